package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlbridge/internal/shared"
)

func TestExecutor_ExecuteReportsResult(t *testing.T) {
	_, _, exec, alias := newTestStore(t)
	mustExec(t, exec, AliasTarget(alias), "CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)", nil)

	res := mustExec(t, exec, AliasTarget(alias), "INSERT INTO notes (body) VALUES (?)", []Value{Text("first")})
	assert.Equal(t, int64(1), res.RowsAffected)
	assert.Equal(t, int64(1), res.LastInsertID)

	res = mustExec(t, exec, AliasTarget(alias), "INSERT INTO notes (body) VALUES (?)", []Value{Text("second")})
	assert.Equal(t, int64(2), res.LastInsertID)

	res = mustExec(t, exec, AliasTarget(alias), "UPDATE notes SET body = ?", []Value{Text("both")})
	assert.Equal(t, int64(2), res.RowsAffected)
}

func TestExecutor_SelectTypedValues(t *testing.T) {
	_, _, exec, alias := newTestStore(t)
	mustExec(t, exec, AliasTarget(alias), "CREATE TABLE mixed (i INTEGER, f REAL, s TEXT, b BLOB, n TEXT)", nil)
	mustExec(t, exec, AliasTarget(alias),
		"INSERT INTO mixed (i, f, s, b, n) VALUES (?, ?, ?, ?, ?)",
		[]Value{Integer(7), Float(2.5), Text("seven"), Blob([]byte{0xde, 0xad}), Null()})

	rows := mustSelect(t, exec, AliasTarget(alias), "SELECT i, f, s, b, n FROM mixed", nil)
	require.Len(t, rows, 1)
	row := rows[0]

	assert.Equal(t, []string{"i", "f", "s", "b", "n"}, row.Columns)
	assert.Equal(t, []Value{Integer(7), Float(2.5), Text("seven"), Blob([]byte{0xde, 0xad}), Null()}, row.Values)
}

func TestExecutor_SelectEmptyResult(t *testing.T) {
	_, _, exec, alias := newTestStore(t)
	mustExec(t, exec, AliasTarget(alias), "CREATE TABLE empty (id INTEGER)", nil)

	rows := mustSelect(t, exec, AliasTarget(alias), "SELECT id FROM empty", nil)
	assert.Empty(t, rows)
}

func TestExecutor_ParameterCountMismatch(t *testing.T) {
	ctx := context.Background()
	_, _, exec, alias := newTestStore(t)
	mustExec(t, exec, AliasTarget(alias), "CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)", nil)

	tests := []struct {
		name   string
		query  string
		params []Value
	}{
		{name: "too few", query: "INSERT INTO notes (body) VALUES (?)", params: nil},
		{name: "too many", query: "INSERT INTO notes (body) VALUES (?)", params: []Value{Text("a"), Text("b")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exec.Execute(ctx, AliasTarget(alias), tt.query, tt.params)
			require.Error(t, err)
			assert.True(t, shared.IsParameterCount(err), "got: %v", err)
		})
	}

	// The mismatch is caught before the engine sees the statement.
	rows := mustSelect(t, exec, AliasTarget(alias), "SELECT id FROM notes", nil)
	assert.Empty(t, rows)
}

func TestExecutor_QueryErrorKind(t *testing.T) {
	ctx := context.Background()
	_, _, exec, alias := newTestStore(t)

	_, err := exec.Execute(ctx, AliasTarget(alias), "INSERT INTO no_such_table VALUES (1)", nil)
	require.Error(t, err)
	assert.True(t, shared.IsQuery(err))

	_, err = exec.Select(ctx, AliasTarget(alias), "SELECT broken FROM nowhere", nil)
	require.Error(t, err)
	assert.True(t, shared.IsQuery(err))
}

func TestExecutor_UnknownAliasAndTransaction(t *testing.T) {
	ctx := context.Background()
	_, _, exec, _ := newTestStore(t)

	_, err := exec.Execute(ctx, AliasTarget("never-opened"), "SELECT 1", nil)
	assert.True(t, shared.IsUnknownAlias(err))

	_, err = exec.Select(ctx, TxTarget("deadbeef"), "SELECT 1", nil)
	assert.True(t, shared.IsUnknownTransaction(err))
}

func TestExecutor_ClosedTransactionTarget(t *testing.T) {
	ctx := context.Background()
	_, txm, exec, alias := newTestStore(t)

	id, err := txm.Begin(ctx, alias)
	require.NoError(t, err)
	require.NoError(t, txm.Commit(ctx, id))

	_, err = exec.Execute(ctx, TxTarget(id), "SELECT 1", nil)
	require.Error(t, err)
	assert.True(t, shared.IsTransactionClosed(err))
}

func TestExecutor_AdHocWaitsForTransactionRelease(t *testing.T) {
	ctx := context.Background()
	_, txm, exec, alias := newTestStore(t)
	mustExec(t, exec, AliasTarget(alias), "CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)", nil)

	id, err := txm.Begin(ctx, alias)
	require.NoError(t, err)
	mustExec(t, exec, TxTarget(id), "INSERT INTO notes (body) VALUES (?)", []Value{Text("held")})

	type result struct {
		rows []Row
		err  error
	}
	done := make(chan result, 1)
	go func() {
		rows, err := exec.Select(context.Background(), AliasTarget(alias), "SELECT body FROM notes", nil)
		done <- result{rows: rows, err: err}
	}()

	// While the transaction holds the handle the ad-hoc statement must wait
	// on the session, not run beside it and observe uncommitted state.
	select {
	case res := <-done:
		t.Fatalf("ad-hoc select ran while the transaction held the handle: rows=%v err=%v", res.rows, res.err)
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, txm.Commit(ctx, id))

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.Len(t, res.rows, 1)
		body, _ := res.rows[0].Get("body")
		assert.Equal(t, Text("held"), body)
	case <-time.After(5 * time.Second):
		t.Fatal("ad-hoc select did not unblock after commit")
	}
}

func TestCountPlaceholders(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{name: "none", query: "SELECT 1", want: 0},
		{name: "simple", query: "INSERT INTO t VALUES (?, ?, ?)", want: 3},
		{name: "inside single quotes", query: "SELECT '?' , ?", want: 1},
		{name: "escaped quote", query: "SELECT 'it''s ?', ?", want: 1},
		{name: "inside double quotes", query: `SELECT "a?b", ?`, want: 1},
		{name: "inside backticks", query: "SELECT `a?b`, ?", want: 1},
		{name: "inside brackets", query: "SELECT [a?b], ?", want: 1},
		{name: "line comment", query: "SELECT ? -- and ? here\n, ?", want: 2},
		{name: "block comment", query: "SELECT ? /* ? ? */ , ?", want: 2},
		{name: "numbered", query: "SELECT ?1, ?2", want: 2},
		{name: "unterminated string", query: "SELECT '? unclosed", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, countPlaceholders(tt.query))
		})
	}
}

func TestExecutor_NumberedPlaceholders(t *testing.T) {
	_, _, exec, alias := newTestStore(t)
	mustExec(t, exec, AliasTarget(alias), "CREATE TABLE pair (a TEXT, b TEXT)", nil)
	mustExec(t, exec, AliasTarget(alias), "INSERT INTO pair (a, b) VALUES (?1, ?2)", []Value{Text("x"), Text("y")})

	rows := mustSelect(t, exec, AliasTarget(alias), "SELECT a, b FROM pair", nil)
	require.Len(t, rows, 1)
	assert.Equal(t, []Value{Text("x"), Text("y")}, rows[0].Values)
}
