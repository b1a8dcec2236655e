// Package store implements the database registry and everything that talks
// through it: connection string resolution, the transaction manager, the
// statement executor and the migration runner.
//
// A Registry maps string aliases to open Handles. Each Handle pins a single
// SQLite connection, so a statement issued while a transaction holds the
// handle waits for the transaction to finish instead of observing a second
// connection's view of the database.
//
// TxManager is the only component that moves a handle in or out of checkout.
// Transactions are addressed by opaque ids and walk a one-way state machine:
// active, then exactly one of committed or rolled back, with a commit-failed
// detour that only a rollback can leave.
//
// Executor runs single statements either ad hoc against a handle or inside a
// managed transaction, binding positional Value parameters and returning
// typed rows. Migrator drives registered versioned migrations through the
// same transaction manager, one transaction per step.
package store
