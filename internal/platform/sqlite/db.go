package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// MemoryPath is the path understood by the driver as a private in-memory
// database.
const MemoryPath = ":memory:"

// AccessMode determines how the database file is opened.
type AccessMode string

const (
	// AccessModeReadWrite opens an existing database for reading and writing
	AccessModeReadWrite AccessMode = "rw"
	// AccessModeReadOnly opens the database read-only
	AccessModeReadOnly AccessMode = "ro"
	// AccessModeReadWriteCreate opens for reading and writing, creating the file if absent
	AccessModeReadWriteCreate AccessMode = "rwc"
)

// Options contains settings for opening a SQLite database handle.
type Options struct {
	// PingTimeout bounds the connectivity check performed at open
	PingTimeout time.Duration
	// WALMode enables write-ahead logging (file-backed databases only)
	WALMode bool
	// ForeignKeys enables foreign key enforcement
	ForeignKeys bool
	// BusyTimeout is how long the engine waits on a locked database
	BusyTimeout time.Duration
	// AccessMode selects ro/rw/rwc open behavior
	AccessMode AccessMode
	// Key is an optional encryption credential applied via PRAGMA key before
	// any other statement. Key management itself is a caller concern.
	Key string
}

// DefaultOptions returns settings suitable for an embedded, single-writer
// database.
func DefaultOptions() Options {
	return Options{
		PingTimeout: 5 * time.Second,
		WALMode:     true,
		ForeignKeys: true,
		BusyTimeout: 5 * time.Second,
		AccessMode:  AccessModeReadWriteCreate,
	}
}

// Open opens a SQLite database at path with the given options.
//
// The returned pool is pinned to exactly one underlying connection and that
// connection is never recycled. One connection is what makes a handle a unit
// of serialization: a caller blocked on the pool cannot interleave statements
// with a transaction that currently owns the connection, and an in-memory
// database survives for the life of the handle.
func Open(ctx context.Context, path string, opts Options) (*sql.DB, error) {
	memory := path == MemoryPath

	if !memory {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create directory %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", buildDSN(path, opts, memory))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if err := applySessionSettings(ctx, db, opts, memory); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// buildDSN builds the driver DSN. Per-connection pragmas travel in the DSN so
// they hold even if the driver ever re-establishes the connection; one-shot
// settings are applied afterwards in applySessionSettings.
func buildDSN(path string, opts Options, memory bool) string {
	params := url.Values{}

	if !memory && opts.AccessMode != "" {
		params.Add("mode", string(opts.AccessMode))
	}
	if opts.ForeignKeys {
		params.Add("_pragma", "foreign_keys(1)")
	}
	if opts.BusyTimeout > 0 {
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	}

	if len(params) == 0 {
		return path
	}
	// url.Values.Encode escapes the parentheses; the driver accepts both
	// forms, but keep the DSN readable.
	enc := params.Encode()
	enc = strings.ReplaceAll(enc, "%28", "(")
	enc = strings.ReplaceAll(enc, "%29", ")")
	return path + "?" + enc
}

// applySessionSettings applies the settings that must run as statements: the
// encryption credential first, then the journal mode. WAL is skipped for
// in-memory databases, which do not support it.
func applySessionSettings(ctx context.Context, db *sql.DB, opts Options, memory bool) error {
	if opts.Key != "" {
		if _, err := db.ExecContext(ctx, "PRAGMA key = "+quoteLiteral(opts.Key)); err != nil {
			return fmt.Errorf("apply key pragma: %w", err)
		}
	}

	if opts.WALMode && !memory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			return fmt.Errorf("set journal mode: %w", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA synchronous = NORMAL"); err != nil {
			return fmt.Errorf("set synchronous mode: %w", err)
		}
	}

	return nil
}

// quoteLiteral quotes s as a SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ExtensionLoader loads a shared-library extension into an open database
// session. Loading itself is an external concern; the registry only validates
// paths and delegates here.
type ExtensionLoader interface {
	Load(ctx context.Context, db *sql.DB, path string) error
}

// NopExtensionLoader accepts every extension without loading anything. It is
// the default loader for builds whose driver has no extension support.
type NopExtensionLoader struct{}

// Load implements ExtensionLoader.
func (NopExtensionLoader) Load(context.Context, *sql.DB, string) error { return nil }

// ValidateExtensionPath reports whether path names an existing regular file.
// Called before a handle is registered so a malformed extension path fails
// the open instead of a later statement.
func ValidateExtensionPath(path string) error {
	if path == "" {
		return fmt.Errorf("empty extension path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat extension %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("extension %s is a directory", path)
	}
	return nil
}
