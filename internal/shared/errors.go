// Package shared contains common error types and utilities.
package shared

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors covering every failure the store can surface
var (
	// ErrInvalidConnectionString indicates a malformed or unsupported connection string
	ErrInvalidConnectionString = errors.New("invalid connection string")

	// ErrConnection indicates that a database handle could not be opened
	ErrConnection = errors.New("connection failed")

	// ErrUnknownAlias indicates that no open handle exists for the given alias
	ErrUnknownAlias = errors.New("unknown alias")

	// ErrUnknownTransaction indicates that no transaction exists for the given id
	ErrUnknownTransaction = errors.New("unknown transaction")

	// ErrTransactionClosed indicates that the transaction already reached a terminal state
	ErrTransactionClosed = errors.New("transaction already closed")

	// ErrTransactionStart indicates that a native transaction could not be started
	ErrTransactionStart = errors.New("transaction start failed")

	// ErrCommit indicates that a native commit failed
	ErrCommit = errors.New("commit failed")

	// ErrParameterCount indicates a mismatch between placeholders and bound values
	ErrParameterCount = errors.New("parameter count mismatch")

	// ErrQuery indicates an engine-level execution failure
	ErrQuery = errors.New("query failed")

	// ErrMigration indicates that a migration step failed and was rolled back
	ErrMigration = errors.New("migration failed")

	// ErrIrreversibleMigration indicates a downward migration past a step with no reverse SQL
	ErrIrreversibleMigration = errors.New("irreversible migration")

	// ErrUnknownMigrationVersion indicates a target version that was never registered
	ErrUnknownMigrationVersion = errors.New("unknown migration version")
)

// Kind represents a category of error for easier classification and handling.
type Kind int

const (
	// KindUnknown represents an unclassified error
	KindUnknown Kind = iota
	// KindInvalidConnectionString represents connection-string parse errors
	KindInvalidConnectionString
	// KindConnection represents open/IO failures
	KindConnection
	// KindUnknownAlias represents lookups of aliases that are not open
	KindUnknownAlias
	// KindUnknownTransaction represents lookups of transaction ids that were never issued
	KindUnknownTransaction
	// KindTransactionClosed represents operations on terminal transactions
	KindTransactionClosed
	// KindTransactionStart represents failures to start a native transaction
	KindTransactionStart
	// KindCommit represents native commit failures
	KindCommit
	// KindParameterCount represents parameter binding mismatches
	KindParameterCount
	// KindQuery represents engine-level execution failures
	KindQuery
	// KindMigration represents failed migration steps
	KindMigration
	// KindIrreversibleMigration represents blocked downward migrations
	KindIrreversibleMigration
	// KindUnknownMigrationVersion represents unregistered target versions
	KindUnknownMigrationVersion
	// KindCanceled represents context cancellation
	KindCanceled
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidConnectionString:
		return "InvalidConnectionString"
	case KindConnection:
		return "Connection"
	case KindUnknownAlias:
		return "UnknownAlias"
	case KindUnknownTransaction:
		return "UnknownTransaction"
	case KindTransactionClosed:
		return "TransactionClosed"
	case KindTransactionStart:
		return "TransactionStart"
	case KindCommit:
		return "Commit"
	case KindParameterCount:
		return "ParameterCount"
	case KindQuery:
		return "Query"
	case KindMigration:
		return "Migration"
	case KindIrreversibleMigration:
		return "IrreversibleMigration"
	case KindUnknownMigrationVersion:
		return "UnknownMigrationVersion"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// kindToSentinel maps error kinds to their corresponding sentinel errors.
var kindToSentinel = map[Kind]error{
	KindInvalidConnectionString: ErrInvalidConnectionString,
	KindConnection:              ErrConnection,
	KindUnknownAlias:            ErrUnknownAlias,
	KindUnknownTransaction:      ErrUnknownTransaction,
	KindTransactionClosed:       ErrTransactionClosed,
	KindTransactionStart:        ErrTransactionStart,
	KindCommit:                  ErrCommit,
	KindParameterCount:          ErrParameterCount,
	KindQuery:                   ErrQuery,
	KindMigration:               ErrMigration,
	KindIrreversibleMigration:   ErrIrreversibleMigration,
	KindUnknownMigrationVersion: ErrUnknownMigrationVersion,
}

// kindPriorities defines the deterministic order for error classification.
// Higher priority (lower index) kinds are checked first in KindOf. Specific
// lifecycle kinds outrank the broad KindConnection, KindMigration and
// KindQuery buckets so that a wrapped chain classifies by its most precise
// member.
var kindPriorities = []struct {
	kind Kind
	err  error
}{
	{KindCanceled, nil}, // context.Canceled (special case)
	{KindInvalidConnectionString, ErrInvalidConnectionString},
	{KindUnknownAlias, ErrUnknownAlias},
	{KindUnknownTransaction, ErrUnknownTransaction},
	{KindTransactionClosed, ErrTransactionClosed},
	{KindTransactionStart, ErrTransactionStart},
	{KindCommit, ErrCommit},
	{KindParameterCount, ErrParameterCount},
	{KindIrreversibleMigration, ErrIrreversibleMigration},
	{KindUnknownMigrationVersion, ErrUnknownMigrationVersion},
	{KindConnection, ErrConnection},
	{KindMigration, ErrMigration},
	{KindQuery, ErrQuery},
}

// KindOf returns the Kind of the given error by checking against known sentinel errors.
// It traverses the error chain to find the root classification using a deterministic
// priority order. For errors created with errors.Join, the first matching kind in
// priority order is returned. Returns KindUnknown for unrecognized errors.
//
// Example:
//
//	switch shared.KindOf(err) {
//	case shared.KindUnknownAlias:
//	    return http.StatusNotFound
//	case shared.KindParameterCount:
//	    return http.StatusBadRequest
//	default:
//	    return http.StatusInternalServerError
//	}
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	// Check kinds in priority order (deterministic)
	for _, priority := range kindPriorities {
		if priority.kind == KindCanceled {
			if IsCanceled(err) {
				return KindCanceled
			}
			continue
		}
		if priority.err != nil && errors.Is(err, priority.err) {
			return priority.kind
		}
	}

	return KindUnknown
}

// SentinelOf returns the sentinel error for the given Kind.
// For KindUnknown and KindCanceled, it returns nil.
func SentinelOf(kind Kind) error {
	if sentinel, exists := kindToSentinel[kind]; exists {
		return sentinel
	}
	return nil
}

// MarkKind wraps an error with the appropriate sentinel error for the given kind,
// preserving the original error through error wrapping.
// This allows both KindOf(MarkKind(err, kind)) == kind and errors.Is(MarkKind(err, kind), err) to be true.
// If err is nil, returns the sentinel error for the kind (or nil for unsupported kinds).
// If kind is KindUnknown or KindCanceled, returns the original error unchanged.
//
// This function is idempotent: marking an error with a kind it already has returns the error unchanged.
//
// Example usage for adapting driver errors:
//
//	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
//	    return shared.MarkKind(err, shared.KindQuery)
//	}
func MarkKind(err error, kind Kind) error {
	if err == nil {
		return SentinelOf(kind)
	}

	switch kind {
	case KindUnknown, KindCanceled:
		return err // no sentinel to mark with
	}

	sentinel := SentinelOf(kind)
	if sentinel == nil {
		return err // unknown kind, return unchanged
	}

	// If the error already has this kind, return as-is to avoid double wrapping
	if KindOf(err) == kind {
		return err
	}

	return fmt.Errorf("%w: %w", sentinel, err)
}

// Wrap wraps an error with additional context.
// It returns a new error that formats as "context: err".
// If err is nil, Wrap returns nil.
// If context is empty, returns the original error.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf wraps an error with a formatted context message.
// It returns a new error that formats as "context: err".
// If err is nil, Wrapf returns nil.
// If formatted context is empty, returns the original error.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	context := fmt.Sprintf(format, args...)
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// IsCanceled reports whether the error indicates a canceled context.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled)
}

// IsInvalidConnectionString reports whether the error indicates a malformed connection string.
func IsInvalidConnectionString(err error) bool {
	return errors.Is(err, ErrInvalidConnectionString)
}

// IsConnection reports whether the error indicates an open or IO failure.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsUnknownAlias reports whether the error indicates an alias that is not open.
func IsUnknownAlias(err error) bool {
	return errors.Is(err, ErrUnknownAlias)
}

// IsUnknownTransaction reports whether the error indicates a transaction id that was never issued.
func IsUnknownTransaction(err error) bool {
	return errors.Is(err, ErrUnknownTransaction)
}

// IsTransactionClosed reports whether the error indicates a terminal transaction.
func IsTransactionClosed(err error) bool {
	return errors.Is(err, ErrTransactionClosed)
}

// IsTransactionStart reports whether the error indicates a failed transaction start.
func IsTransactionStart(err error) bool {
	return errors.Is(err, ErrTransactionStart)
}

// IsCommit reports whether the error indicates a failed native commit.
func IsCommit(err error) bool {
	return errors.Is(err, ErrCommit)
}

// IsParameterCount reports whether the error indicates a parameter binding mismatch.
func IsParameterCount(err error) bool {
	return errors.Is(err, ErrParameterCount)
}

// IsQuery reports whether the error indicates an engine-level execution failure.
func IsQuery(err error) bool {
	return errors.Is(err, ErrQuery)
}

// IsMigration reports whether the error indicates a failed migration step.
func IsMigration(err error) bool {
	return errors.Is(err, ErrMigration)
}

// IsIrreversibleMigration reports whether the error indicates a blocked downward migration.
func IsIrreversibleMigration(err error) bool {
	return errors.Is(err, ErrIrreversibleMigration)
}

// IsUnknownMigrationVersion reports whether the error indicates an unregistered target version.
func IsUnknownMigrationVersion(err error) bool {
	return errors.Is(err, ErrUnknownMigrationVersion)
}
