package store

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"sqlbridge/internal/platform/sqlite"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	r := NewRegistry(sqlite.DefaultOptions(), nil, testLogger())
	t.Cleanup(func() { r.CloseAll() })
	return r
}

// openMemory registers an in-memory database under its raw connection string
// and returns the handle together with its alias.
func openMemory(t *testing.T, r *Registry, raw string) (*Handle, string) {
	t.Helper()

	src, err := Resolve(raw, t.TempDir())
	require.NoError(t, err)

	h, err := r.Open(context.Background(), src, nil)
	require.NoError(t, err)
	return h, src.Alias
}

// newTestStore wires a full store over one in-memory database.
func newTestStore(t *testing.T) (*Registry, *TxManager, *Executor, string) {
	t.Helper()

	r := newTestRegistry(t)
	_, alias := openMemory(t, r, "sqlite::memory:")

	txm := NewTxManager(r, testLogger())
	exec := NewExecutor(r, txm, testLogger())
	return r, txm, exec, alias
}
