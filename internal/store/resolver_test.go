package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlbridge/internal/platform/sqlite"
	"sqlbridge/internal/shared"
)

func TestResolve_Memory(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		cred string
	}{
		{name: "bare marker with colon", raw: "sqlite::memory:"},
		{name: "bare marker", raw: "sqlite:memory:"},
		{name: "credential and marker", raw: "sqlite:s3cret:memory:", cred: "s3cret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Resolve(tt.raw, "/data")
			require.NoError(t, err)

			assert.True(t, src.InMemory)
			assert.Equal(t, sqlite.MemoryPath, src.Path)
			assert.Equal(t, tt.raw, src.Alias, "each raw string is its own database")
			assert.Equal(t, tt.cred, src.Credential)
		})
	}
}

func TestResolve_DistinctMemoryStringsDistinctAliases(t *testing.T) {
	a, err := Resolve("sqlite::memory:", "/data")
	require.NoError(t, err)
	b, err := Resolve("sqlite:memory:", "/data")
	require.NoError(t, err)

	assert.NotEqual(t, a.Alias, b.Alias)
}

func TestResolve_RelativePathJoinsDataDir(t *testing.T) {
	src, err := Resolve("sqlite:app.db", "/data/dir")
	require.NoError(t, err)

	assert.False(t, src.InMemory)
	assert.Equal(t, filepath.Join("/data/dir", "app.db"), src.Path)
	assert.Equal(t, src.Path, src.Alias)
	assert.Empty(t, src.Credential)
}

func TestResolve_AbsolutePathKept(t *testing.T) {
	src, err := Resolve("sqlite:/var/lib/app.db", "/data")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/app.db", src.Path)
	assert.Equal(t, "/var/lib/app.db", src.Alias)
}

func TestResolve_CredentialWithFilePath(t *testing.T) {
	src, err := Resolve("sqlite:hunter2:app.db", "/data")
	require.NoError(t, err)

	assert.Equal(t, "hunter2", src.Credential)
	assert.Equal(t, filepath.Join("/data", "app.db"), src.Path)
}

func TestResolve_SamePathSameAlias(t *testing.T) {
	a, err := Resolve("sqlite:app.db", "/data")
	require.NoError(t, err)
	b, err := Resolve("sqlite:./app.db", "/data")
	require.NoError(t, err)

	assert.Equal(t, a.Alias, b.Alias, "cleaned paths collapse to one alias")
}

func TestResolve_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "no scheme", raw: "app.db"},
		{name: "wrong scheme", raw: "postgres:app.db"},
		{name: "empty target", raw: "sqlite:"},
		{name: "empty credential and target", raw: "sqlite::"},
		{name: "empty string", raw: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.raw, "/data")
			require.Error(t, err)
			assert.True(t, shared.IsInvalidConnectionString(err), "got: %v", err)
		})
	}
}
