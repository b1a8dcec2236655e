// Package sqlite opens SQLite database handles through the pure-Go
// modernc.org/sqlite driver.
//
// A handle opened here is deliberately a pool of exactly one connection:
// the embedded engine does not support concurrent use of a single session,
// so the pool doubles as the serialization point for everything the store
// submits to one database. Pragmas that are per-connection travel in the
// DSN; one-shot session settings (encryption key, journal mode) are applied
// right after open.
//
// The package also defines the ExtensionLoader collaborator interface and
// the test helpers used across store packages.
package sqlite
