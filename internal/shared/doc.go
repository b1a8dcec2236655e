// Package shared contains the error taxonomy and error-handling utilities
// used across the application, without domain-specific logic.
//
// # Error Types and Classification
//
// Every failure the store can surface maps to one sentinel error:
//
//   - ErrInvalidConnectionString: malformed or unsupported connection string
//   - ErrConnection: handle open or IO failure
//   - ErrUnknownAlias: alias is not open
//   - ErrUnknownTransaction: transaction id was never issued
//   - ErrTransactionClosed: transaction already committed or rolled back
//   - ErrTransactionStart: native transaction could not be started
//   - ErrCommit: native commit failed
//   - ErrParameterCount: placeholder/value count mismatch
//   - ErrQuery: engine-level execution failure
//   - ErrMigration: migration step failed and was rolled back
//   - ErrIrreversibleMigration: downward migration past a step with no reverse SQL
//   - ErrUnknownMigrationVersion: target version was never registered
//
// # Error Classification
//
// Use KindOf() to classify errors into categories:
//
//	err := store.Execute(ctx, target, query, params)
//	switch shared.KindOf(err) {
//	case shared.KindUnknownAlias:
//	    // Handle missing alias
//	case shared.KindQuery:
//	    // Handle engine failure
//	default:
//	    // Handle other errors
//	}
//
// Or use predicate functions for cleaner code:
//
//	if shared.IsUnknownTransaction(err) {
//	    // Handle unknown transaction id
//	}
//
// # Kind Priority
//
// When multiple kinds are present in one chain (e.g. with errors.Join), KindOf
// returns the highest-priority kind. KindCanceled is checked first, then the
// specific lifecycle kinds (InvalidConnectionString, UnknownAlias,
// UnknownTransaction, TransactionClosed, TransactionStart, Commit,
// ParameterCount, IrreversibleMigration, UnknownMigrationVersion), and the
// broad Connection, Migration and Query buckets last, so a wrapped chain
// classifies by its most precise member.
//
// # Error Wrapping and Context
//
// Add context to errors while preserving the original error:
//
//	if err := registry.Get(alias); err != nil {
//	    return shared.Wrapf(err, "resolve handle for %q", alias)
//	}
//
// # Error Marking
//
// Mark errors with specific kinds while preserving the original error:
//
//	// Mark a driver error as an engine failure
//	if _, err := db.ExecContext(ctx, query); err != nil {
//	    return shared.MarkKind(err, shared.KindQuery)
//	}
//
//	// Now both work:
//	// shared.IsQuery(markedErr) == true
//	// errors.Is(markedErr, driverErr) == true
//
// # Error Message Style Guide
//
// - Use lowercase messages: "unknown alias" not "Unknown alias"
// - Avoid punctuation: they will often be wrapped with additional context
// - Keep messages composable and in present tense
// - Map Kind to HTTP status codes in adapter layers, not in this package
package shared
