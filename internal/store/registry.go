package store

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"

	"sqlbridge/internal/platform/sqlite"
	"sqlbridge/internal/shared"
)

// Handle is an open database session bound to one resolved source. The
// wrapped pool holds exactly one connection, so every statement submitted
// through a Handle is serialized with every other statement against the same
// database. The checkout token marks the transaction, if any, that currently
// owns the session.
type Handle struct {
	alias string
	db    *sql.DB

	mu         sync.Mutex
	checkoutID string // transaction id holding the session, "" if free
}

// Alias returns the canonical alias the handle is registered under.
func (h *Handle) Alias() string { return h.alias }

// DB exposes the underlying pool for statement execution.
func (h *Handle) DB() *sql.DB { return h.db }

// tryCheckout marks the handle as owned by transaction id. It fails if
// another transaction already holds the session; nesting is not supported.
func (h *Handle) tryCheckout(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.checkoutID != "" {
		return false
	}
	h.checkoutID = id
	return true
}

// release returns the session if id is the current owner.
func (h *Handle) release(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.checkoutID == id {
		h.checkoutID = ""
	}
}

// CheckedOut reports whether a transaction currently owns the session.
func (h *Handle) CheckedOut() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.checkoutID != ""
}

// Registry is the process-wide map from alias to open Handle. It owns handle
// lifecycle: open, reuse, close. All map mutations go through one mutex;
// lookups may run concurrently.
type Registry struct {
	opts   sqlite.Options
	ext    sqlite.ExtensionLoader
	logger *slog.Logger

	mu      sync.RWMutex
	handles map[string]*Handle
}

// NewRegistry creates an empty registry. A nil loader disables extension
// loading (paths are still validated).
func NewRegistry(opts sqlite.Options, ext sqlite.ExtensionLoader, logger *slog.Logger) *Registry {
	if ext == nil {
		ext = sqlite.NopExtensionLoader{}
	}
	return &Registry{
		opts:    opts,
		ext:     ext,
		logger:  logger,
		handles: make(map[string]*Handle),
	}
}

// Open returns the live handle for src's alias, opening one if needed.
// Repeated calls for an already-open alias return the same handle; the
// extension list of the first open wins. Extension paths are validated
// before the database is touched so a malformed path fails the whole open.
func (r *Registry) Open(ctx context.Context, src Source, extensions []string) (*Handle, error) {
	r.mu.RLock()
	h, ok := r.handles[src.Alias]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	for _, ext := range extensions {
		if err := sqlite.ValidateExtensionPath(ext); err != nil {
			return nil, shared.MarkKind(err, shared.KindConnection)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock; a concurrent caller may have won.
	if h, ok := r.handles[src.Alias]; ok {
		return h, nil
	}

	opts := r.opts
	opts.Key = src.Credential
	if src.InMemory {
		opts.WALMode = false
	}

	db, err := sqlite.Open(ctx, src.Path, opts)
	if err != nil {
		return nil, shared.MarkKind(err, shared.KindConnection)
	}

	for _, ext := range extensions {
		if err := r.ext.Load(ctx, db, ext); err != nil {
			_ = db.Close()
			return nil, shared.Wrapf(shared.MarkKind(err, shared.KindConnection), "load extension %s", ext)
		}
	}

	h = &Handle{alias: src.Alias, db: db}
	r.handles[src.Alias] = h
	r.logger.Info("database opened", "alias", src.Alias, "in_memory", src.InMemory)
	return h, nil
}

// Get returns the open handle for alias.
func (r *Registry) Get(alias string) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[alias]
	if !ok {
		return nil, shared.Wrapf(shared.ErrUnknownAlias, "%q", alias)
	}
	return h, nil
}

// Close removes the alias mapping and releases its handle. It returns false
// without touching the mapping when a transaction currently holds the
// session (closing underneath an in-flight transaction is never allowed;
// the caller retries after the transaction resolves), and false when the
// alias is not open.
func (r *Registry) Close(alias string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[alias]
	if !ok {
		return false
	}
	if h.CheckedOut() {
		r.logger.Warn("close refused, transaction in flight", "alias", alias)
		return false
	}

	delete(r.handles, alias)
	if err := h.db.Close(); err != nil {
		r.logger.Error("closing handle", "alias", alias, "error", err)
	}
	r.logger.Info("database closed", "alias", alias)
	return true
}

// Aliases returns the aliases currently open, in no particular order.
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handles))
	for alias := range r.handles {
		out = append(out, alias)
	}
	return out
}

// CloseAll closes every handle that is not held by a transaction and
// reports how many remain open. Used on shutdown, after the transaction
// manager has drained.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	remaining := 0
	for alias, h := range r.handles {
		if h.CheckedOut() {
			remaining++
			continue
		}
		delete(r.handles, alias)
		if err := h.db.Close(); err != nil {
			r.logger.Error("closing handle", "alias", alias, "error", err)
		}
	}
	return remaining
}
