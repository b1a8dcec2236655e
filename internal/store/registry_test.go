package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlbridge/internal/shared"
)

func TestRegistry_OpenIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)

	h1, alias := openMemory(t, r, "sqlite::memory:")
	h2, _ := openMemory(t, r, "sqlite::memory:")

	assert.Same(t, h1, h2, "same alias must return the same handle")
	assert.Equal(t, alias, h1.Alias())
	assert.Len(t, r.Aliases(), 1)
}

func TestRegistry_DistinctAliasesDistinctHandles(t *testing.T) {
	r := newTestRegistry(t)

	h1, _ := openMemory(t, r, "sqlite::memory:")
	h2, _ := openMemory(t, r, "sqlite:memory:")

	assert.NotSame(t, h1, h2)
	assert.Len(t, r.Aliases(), 2)
}

func TestRegistry_OpenFileDatabase(t *testing.T) {
	r := newTestRegistry(t)
	dir := t.TempDir()

	src, err := Resolve("sqlite:nested/app.db", dir)
	require.NoError(t, err)

	h, err := r.Open(context.Background(), src, nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "nested", "app.db"), h.Alias())
	assert.FileExists(t, src.Path)
}

func TestRegistry_GetUnknownAlias(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Get("nope")
	require.Error(t, err)
	assert.True(t, shared.IsUnknownAlias(err))
}

func TestRegistry_Close(t *testing.T) {
	r := newTestRegistry(t)
	_, alias := openMemory(t, r, "sqlite::memory:")

	assert.True(t, r.Close(alias))
	assert.False(t, r.Close(alias), "second close reports not found")

	_, err := r.Get(alias)
	assert.True(t, shared.IsUnknownAlias(err))
}

func TestRegistry_CloseUnknownAlias(t *testing.T) {
	r := newTestRegistry(t)

	assert.False(t, r.Close("never-opened"))
}

func TestRegistry_CloseRefusedWhileCheckedOut(t *testing.T) {
	r := newTestRegistry(t)
	h, alias := openMemory(t, r, "sqlite::memory:")

	require.True(t, h.tryCheckout("tx-1"))
	assert.False(t, r.Close(alias), "checked-out handle must not close")

	h.release("tx-1")
	assert.True(t, r.Close(alias))
}

func TestRegistry_CloseAll(t *testing.T) {
	r := newTestRegistry(t)
	openMemory(t, r, "sqlite::memory:")
	h, _ := openMemory(t, r, "sqlite:memory:")

	require.True(t, h.tryCheckout("tx-1"))
	assert.Equal(t, 1, r.CloseAll(), "checked-out handle stays behind")

	h.release("tx-1")
	assert.Equal(t, 0, r.CloseAll())
	assert.Empty(t, r.Aliases())
}

func TestRegistry_OpenRejectsMissingExtension(t *testing.T) {
	r := newTestRegistry(t)

	src, err := Resolve("sqlite::memory:", t.TempDir())
	require.NoError(t, err)

	_, err = r.Open(context.Background(), src, []string{filepath.Join(t.TempDir(), "no-such.so")})
	require.Error(t, err)
	assert.True(t, shared.IsConnection(err))

	_, err = r.Get(src.Alias)
	assert.True(t, shared.IsUnknownAlias(err), "failed open must not register the alias")
}

func TestHandle_CheckoutExclusive(t *testing.T) {
	r := newTestRegistry(t)
	h, _ := openMemory(t, r, "sqlite::memory:")

	require.True(t, h.tryCheckout("a"))
	assert.True(t, h.CheckedOut())
	assert.False(t, h.tryCheckout("b"), "one checkout at a time")

	h.release("b") // wrong token is ignored
	assert.True(t, h.CheckedOut())

	h.release("a")
	assert.False(t, h.CheckedOut())
	assert.True(t, h.tryCheckout("b"))
}
