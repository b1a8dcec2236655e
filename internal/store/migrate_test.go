package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlbridge/internal/shared"
)

func newTestMigrator(t *testing.T) (*Migrator, *Executor, string) {
	t.Helper()

	r, txm, exec, alias := newTestStore(t)
	m := NewMigrator(r, txm, exec, testLogger())
	return m, exec, alias
}

func notesMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "create notes",
			UpSQL:       "CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL)",
			DownSQL:     "DROP TABLE notes",
		},
		{
			Version:     2,
			Description: "add tags",
			UpSQL:       "CREATE TABLE tags (id INTEGER PRIMARY KEY, note_id INTEGER REFERENCES notes(id), label TEXT)",
			DownSQL:     "DROP TABLE tags",
		},
		{
			Version:     3,
			Description: "seed root note",
			UpSQL:       "INSERT INTO notes (body) VALUES ('root')",
			DownSQL:     "DELETE FROM notes WHERE body = 'root'",
		},
	}
}

func TestMigrator_RegisterValidates(t *testing.T) {
	m, _, alias := newTestMigrator(t)

	err := m.Register(alias, []Migration{{Version: 0, UpSQL: "SELECT 1"}})
	require.Error(t, err)

	err = m.Register(alias, []Migration{
		{Version: 1, UpSQL: "SELECT 1"},
		{Version: 1, UpSQL: "SELECT 2"},
	})
	require.Error(t, err)

	// Out-of-order registration is sorted.
	require.NoError(t, m.Register(alias, []Migration{
		{Version: 2, UpSQL: "SELECT 2"},
		{Version: 1, UpSQL: "SELECT 1"},
	}))
	migs := m.Registered(alias)
	require.Len(t, migs, 2)
	assert.Equal(t, int64(1), migs[0].Version)
	assert.Equal(t, int64(2), m.LatestVersion(alias))
}

func TestMigrator_MigrateUpToLatest(t *testing.T) {
	ctx := context.Background()
	m, exec, alias := newTestMigrator(t)
	require.NoError(t, m.Register(alias, notesMigrations()))

	require.NoError(t, m.MigrateTo(ctx, alias, 3))

	applied, err := m.AppliedVersion(ctx, alias)
	require.NoError(t, err)
	assert.Equal(t, int64(3), applied)

	rows := mustSelect(t, exec, AliasTarget(alias), "SELECT body FROM notes", nil)
	require.Len(t, rows, 1)

	book := mustSelect(t, exec, AliasTarget(alias), "SELECT version, description FROM schema_migrations ORDER BY version", nil)
	require.Len(t, book, 3)
	desc, _ := book[0].Get("description")
	assert.Equal(t, Text("create notes"), desc)
}

func TestMigrator_MigrateToIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, _, alias := newTestMigrator(t)
	require.NoError(t, m.Register(alias, notesMigrations()))

	require.NoError(t, m.MigrateTo(ctx, alias, 2))
	require.NoError(t, m.MigrateTo(ctx, alias, 2))

	applied, err := m.AppliedVersion(ctx, alias)
	require.NoError(t, err)
	assert.Equal(t, int64(2), applied)
}

func TestMigrator_MigrateDown(t *testing.T) {
	ctx := context.Background()
	m, exec, alias := newTestMigrator(t)
	require.NoError(t, m.Register(alias, notesMigrations()))
	require.NoError(t, m.MigrateTo(ctx, alias, 3))

	require.NoError(t, m.MigrateTo(ctx, alias, 1))

	applied, err := m.AppliedVersion(ctx, alias)
	require.NoError(t, err)
	assert.Equal(t, int64(1), applied)

	// Version 2's table is gone, version 1's remains.
	_, err = exec.Select(ctx, AliasTarget(alias), "SELECT id FROM tags", nil)
	require.Error(t, err)
	rows := mustSelect(t, exec, AliasTarget(alias), "SELECT id FROM notes", nil)
	assert.Empty(t, rows, "seed row reverted")
}

func TestMigrator_MigrateDownToZero(t *testing.T) {
	ctx := context.Background()
	m, exec, alias := newTestMigrator(t)
	require.NoError(t, m.Register(alias, notesMigrations()))
	require.NoError(t, m.MigrateTo(ctx, alias, 3))

	require.NoError(t, m.MigrateTo(ctx, alias, 0))

	applied, err := m.AppliedVersion(ctx, alias)
	require.NoError(t, err)
	assert.Equal(t, int64(0), applied)

	_, err = exec.Select(ctx, AliasTarget(alias), "SELECT id FROM notes", nil)
	require.Error(t, err)
}

func TestMigrator_IrreversibleChainRefusedUpFront(t *testing.T) {
	ctx := context.Background()
	m, exec, alias := newTestMigrator(t)

	migs := notesMigrations()
	migs[1].DownSQL = "" // version 2 cannot be reverted
	require.NoError(t, m.Register(alias, migs))
	require.NoError(t, m.MigrateTo(ctx, alias, 3))

	err := m.MigrateTo(ctx, alias, 0)
	require.Error(t, err)
	assert.True(t, shared.IsIrreversibleMigration(err), "got: %v", err)

	// Nothing changed: version 3 is still applied even though it is
	// individually reversible.
	applied, err := m.AppliedVersion(ctx, alias)
	require.NoError(t, err)
	assert.Equal(t, int64(3), applied)
	rows := mustSelect(t, exec, AliasTarget(alias), "SELECT body FROM notes", nil)
	assert.Len(t, rows, 1)
}

func TestMigrator_UnknownTargetVersion(t *testing.T) {
	ctx := context.Background()
	m, _, alias := newTestMigrator(t)
	require.NoError(t, m.Register(alias, notesMigrations()))

	err := m.MigrateTo(ctx, alias, 42)
	require.Error(t, err)
	assert.True(t, shared.IsUnknownMigrationVersion(err))
}

func TestMigrator_UnknownAlias(t *testing.T) {
	m, _, _ := newTestMigrator(t)
	require.NoError(t, m.Register("never-opened", notesMigrations()))

	err := m.MigrateTo(context.Background(), "never-opened", 1)
	require.Error(t, err)
	assert.True(t, shared.IsUnknownAlias(err))
}

func TestMigrator_FailingStepRollsBackThatStepOnly(t *testing.T) {
	ctx := context.Background()
	m, exec, alias := newTestMigrator(t)

	migs := notesMigrations()
	migs[2].UpSQL = "INSERT INTO no_such_table VALUES (1)"
	require.NoError(t, m.Register(alias, migs))

	err := m.MigrateTo(ctx, alias, 3)
	require.Error(t, err)
	assert.True(t, shared.IsMigration(err), "got: %v", err)

	// Steps 1 and 2 committed; the failing step left no trace.
	applied, err := m.AppliedVersion(ctx, alias)
	require.NoError(t, err)
	assert.Equal(t, int64(2), applied)

	rows := mustSelect(t, exec, AliasTarget(alias), "SELECT id FROM tags", nil)
	assert.Empty(t, rows)
}

func TestMigrator_PartialUpThenContinue(t *testing.T) {
	ctx := context.Background()
	m, _, alias := newTestMigrator(t)
	require.NoError(t, m.Register(alias, notesMigrations()))

	require.NoError(t, m.MigrateTo(ctx, alias, 1))
	applied, err := m.AppliedVersion(ctx, alias)
	require.NoError(t, err)
	assert.Equal(t, int64(1), applied)

	require.NoError(t, m.MigrateTo(ctx, alias, 3))
	applied, err = m.AppliedVersion(ctx, alias)
	require.NoError(t, err)
	assert.Equal(t, int64(3), applied)
}
