package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sqlbridge/internal/shared"
)

// TxState is the lifecycle state of one explicit transaction.
type TxState int

const (
	// TxActive means the transaction accepts statements and awaits commit or rollback
	TxActive TxState = iota
	// TxCommitFailed means a commit failed; only rollback can retire the id
	TxCommitFailed
	// TxCommitted is terminal
	TxCommitted
	// TxRolledBack is terminal
	TxRolledBack
)

// String returns the state name.
func (s TxState) String() string {
	switch s {
	case TxActive:
		return "active"
	case TxCommitFailed:
		return "commit-failed"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled-back"
	default:
		return "invalid"
	}
}

func (s TxState) terminal() bool { return s == TxCommitted || s == TxRolledBack }

// transaction is one in-flight (or recently retired) explicit transaction.
// The handle checkout is acquired at begin and released only on a terminal
// transition, so a failed commit keeps the session pinned until the caller
// rolls back.
type transaction struct {
	id     string
	alias  string
	handle *Handle

	mu       sync.Mutex
	tx       *sql.Tx
	state    TxState
	begunAt  time.Time
	closedAt time.Time
}

// TxInfo is a read-only snapshot of one transaction, used for reporting.
type TxInfo struct {
	ID      string
	Alias   string
	State   TxState
	BegunAt time.Time
}

// TxManager owns the process-wide map from transaction id to transaction.
// It is the only component that mutates checkout state.
type TxManager struct {
	registry *Registry
	logger   *slog.Logger

	mu  sync.RWMutex
	txs map[string]*transaction
}

// NewTxManager creates an empty transaction manager backed by registry.
func NewTxManager(registry *Registry, logger *slog.Logger) *TxManager {
	return &TxManager{
		registry: registry,
		logger:   logger,
		txs:      make(map[string]*transaction),
	}
}

// Begin starts an explicit transaction on the alias's handle and returns a
// fresh opaque id. Exactly one transaction may hold a handle at a time: a
// second Begin against the same alias fails fast instead of nesting or
// queuing.
func (m *TxManager) Begin(ctx context.Context, alias string) (string, error) {
	h, err := m.registry.Get(alias)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()

	if !h.tryCheckout(id) {
		return "", shared.Wrapf(shared.ErrTransactionStart, "alias %q already has an active transaction", alias)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		h.release(id)
		return "", shared.MarkKind(err, shared.KindTransactionStart)
	}

	t := &transaction{
		id:      id,
		alias:   alias,
		handle:  h,
		tx:      tx,
		state:   TxActive,
		begunAt: time.Now(),
	}

	m.mu.Lock()
	m.txs[id] = t
	m.mu.Unlock()

	m.logger.Debug("transaction begun", "tx_id", id, "alias", alias)
	return id, nil
}

// Commit commits the transaction and releases the handle checkout. On native
// commit failure the transaction transitions to commit-failed and keeps its
// checkout; the caller must still roll back to retire the id.
func (m *TxManager) Commit(ctx context.Context, id string) error {
	t, err := m.lookup(id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.state.terminal():
		return shared.Wrapf(shared.ErrTransactionClosed, "%s", id)
	case t.state == TxCommitFailed:
		return shared.Wrapf(shared.ErrCommit, "transaction %s must be rolled back", id)
	}

	if err := t.tx.Commit(); err != nil {
		t.state = TxCommitFailed
		m.logger.Error("commit failed", "tx_id", id, "alias", t.alias, "error", err)
		return shared.MarkKind(err, shared.KindCommit)
	}

	t.state = TxCommitted
	t.closedAt = time.Now()
	t.tx = nil
	t.handle.release(id)
	m.logger.Debug("transaction committed", "tx_id", id, "alias", t.alias)
	return nil
}

// Rollback rolls the transaction back and releases the handle checkout. It
// accepts both active and commit-failed transactions; the native rollback is
// best-effort since the engine may already have aborted the transaction.
func (m *TxManager) Rollback(ctx context.Context, id string) error {
	t, err := m.lookup(id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.terminal() {
		return shared.Wrapf(shared.ErrTransactionClosed, "%s", id)
	}

	if t.state == TxCommitFailed {
		// database/sql retires the Tx and returns the session to the pool
		// even when the driver's commit fails, so t.tx.Rollback would be a
		// no-op ErrTxDone. If the engine left the transaction open (commit
		// hit BUSY), the session would carry it into the next statement;
		// an explicit ROLLBACK on the handle scrubs it. The engine rejects
		// the statement when no transaction is open, which is fine.
		if _, err := t.handle.db.ExecContext(ctx, "ROLLBACK"); err != nil {
			m.logger.Debug("scrubbing session after failed commit", "tx_id", id, "alias", t.alias, "error", err)
		}
	} else if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		m.logger.Error("rollback error", "tx_id", id, "alias", t.alias, "error", err)
	}

	t.state = TxRolledBack
	t.closedAt = time.Now()
	t.tx = nil
	t.handle.release(id)
	m.logger.Debug("transaction rolled back", "tx_id", id, "alias", t.alias)
	return nil
}

// Known reports whether id names a transaction this manager ever issued and
// still remembers (active, commit-failed, or recently retired).
func (m *TxManager) Known(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.txs[id]
	return ok
}

// resolve returns the handle and native transaction bound to an active (or
// commit-failed) id for statement execution.
func (m *TxManager) resolve(id string) (*Handle, *sql.Tx, error) {
	t, err := m.lookup(id)
	if err != nil {
		return nil, nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.terminal() {
		return nil, nil, shared.Wrapf(shared.ErrTransactionClosed, "%s", id)
	}
	return t.handle, t.tx, nil
}

func (m *TxManager) lookup(id string) (*transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.txs[id]
	if !ok {
		return nil, shared.Wrapf(shared.ErrUnknownTransaction, "%s", id)
	}
	return t, nil
}

// Snapshot returns the current state of every remembered transaction.
func (m *TxManager) Snapshot() []TxInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]TxInfo, 0, len(m.txs))
	for _, t := range m.txs {
		t.mu.Lock()
		out = append(out, TxInfo{ID: t.id, Alias: t.alias, State: t.state, BegunAt: t.begunAt})
		t.mu.Unlock()
	}
	return out
}

// PruneTerminal forgets terminal transactions retired before cutoff and
// returns how many were removed. Terminal records are kept for a while so
// that a repeated commit or rollback is answered with "already closed"
// rather than "unknown".
func (m *TxManager) PruneTerminal(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for id, t := range m.txs {
		t.mu.Lock()
		expired := t.state.terminal() && t.closedAt.Before(cutoff)
		t.mu.Unlock()
		if expired {
			delete(m.txs, id)
			pruned++
		}
	}
	return pruned
}

// RollbackAllActive rolls back every non-terminal transaction. Called on
// shutdown so handles can be closed cleanly.
func (m *TxManager) RollbackAllActive(ctx context.Context) int {
	m.mu.RLock()
	ids := make([]string, 0, len(m.txs))
	for id, t := range m.txs {
		t.mu.Lock()
		if !t.state.terminal() {
			ids = append(ids, id)
		}
		t.mu.Unlock()
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.Rollback(ctx, id); err != nil {
			m.logger.Error("draining transaction", "tx_id", id, "error", err)
		}
	}
	return len(ids)
}
