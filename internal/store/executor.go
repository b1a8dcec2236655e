package store

import (
	"context"
	"database/sql"
	"log/slog"

	"sqlbridge/internal/shared"
)

// Target names where a statement runs: a bare alias (ad-hoc mode, the
// statement autocommits as its own atomic unit) or a transaction id
// (transactional mode, the statement joins the in-flight transaction).
type Target struct {
	id string
	tx bool
}

// AliasTarget targets ad-hoc execution against an open alias.
func AliasTarget(alias string) Target { return Target{id: alias} }

// TxTarget targets execution inside the transaction with the given id.
func TxTarget(id string) Target { return Target{id: id, tx: true} }

// IsTx reports whether the target is a transaction id.
func (t Target) IsTx() bool { return t.tx }

// String returns the alias or transaction id.
func (t Target) String() string { return t.id }

// Executor runs single parameterized statements against either a registry
// handle or the handle bound to a transaction id.
type Executor struct {
	registry *Registry
	txm      *TxManager
	logger   *slog.Logger
}

// NewExecutor creates an executor over the given registry and manager.
func NewExecutor(registry *Registry, txm *TxManager, logger *slog.Logger) *Executor {
	return &Executor{registry: registry, txm: txm, logger: logger}
}

// Execute runs a mutating statement. Position i of params binds to the i-th
// "?" placeholder; a count mismatch fails before anything reaches the
// engine. In ad-hoc mode the statement autocommits; in transactional mode
// an engine error leaves the transaction open for the caller to resolve.
func (e *Executor) Execute(ctx context.Context, target Target, query string, params []Value) (ExecResult, error) {
	if err := checkParamCount(query, len(params)); err != nil {
		return ExecResult{}, err
	}
	args := valueArgs(params)

	if target.tx {
		_, tx, err := e.txm.resolve(target.id)
		if err != nil {
			return ExecResult{}, err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return ExecResult{}, shared.MarkKind(err, shared.KindQuery)
		}
		return execResult(res)
	}

	h, err := e.registry.Get(target.id)
	if err != nil {
		return ExecResult{}, err
	}
	res, err := h.db.ExecContext(ctx, query, args...)
	if err != nil {
		return ExecResult{}, shared.MarkKind(err, shared.KindQuery)
	}
	return execResult(res)
}

// Select runs a read statement and returns every result row with the
// engine's column order preserved.
func (e *Executor) Select(ctx context.Context, target Target, query string, params []Value) ([]Row, error) {
	if err := checkParamCount(query, len(params)); err != nil {
		return nil, err
	}
	args := valueArgs(params)

	var rows *sql.Rows
	var err error
	if target.tx {
		_, tx, rerr := e.txm.resolve(target.id)
		if rerr != nil {
			return nil, rerr
		}
		rows, err = tx.QueryContext(ctx, query, args...)
	} else {
		h, gerr := e.registry.Get(target.id)
		if gerr != nil {
			return nil, gerr
		}
		rows, err = h.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, shared.MarkKind(err, shared.KindQuery)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, shared.MarkKind(err, shared.KindQuery)
	}

	var out []Row
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, shared.MarkKind(err, shared.KindQuery)
		}
		values := make([]Value, len(cols))
		for i, c := range raw {
			values[i] = valueFromColumn(c)
		}
		out = append(out, Row{Columns: cols, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, shared.MarkKind(err, shared.KindQuery)
	}
	return out, nil
}

func execResult(res sql.Result) (ExecResult, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return ExecResult{}, shared.MarkKind(err, shared.KindQuery)
	}
	last, err := res.LastInsertId()
	if err != nil {
		return ExecResult{}, shared.MarkKind(err, shared.KindQuery)
	}
	return ExecResult{RowsAffected: affected, LastInsertID: last}, nil
}

func valueArgs(params []Value) []any {
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p.arg()
	}
	return args
}

// checkParamCount compares the number of "?" placeholders in query against
// the number of bound values. Placeholders inside string literals, quoted
// identifiers and comments do not count.
func checkParamCount(query string, bound int) error {
	want := countPlaceholders(query)
	if want != bound {
		return shared.Wrapf(shared.ErrParameterCount, "statement has %d placeholders, %d values bound", want, bound)
	}
	return nil
}

func countPlaceholders(query string) int {
	count := 0
	i := 0
	n := len(query)
	for i < n {
		c := query[i]
		switch c {
		case '\'', '"', '`':
			// String literal or quoted identifier; a doubled quote escapes.
			q := c
			i++
			for i < n {
				if query[i] == q {
					if i+1 < n && query[i+1] == q {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
		case '[':
			// Bracket-quoted identifier.
			for i < n && query[i] != ']' {
				i++
			}
			i++
		case '-':
			if i+1 < n && query[i+1] == '-' {
				for i < n && query[i] != '\n' {
					i++
				}
			} else {
				i++
			}
		case '/':
			if i+1 < n && query[i+1] == '*' {
				i += 2
				for i+1 < n && !(query[i] == '*' && query[i+1] == '/') {
					i++
				}
				i += 2
			} else {
				i++
			}
		case '?':
			count++
			i++
			// Numbered form ?NNN still binds one value.
			for i < n && query[i] >= '0' && query[i] <= '9' {
				i++
			}
		default:
			i++
		}
	}
	return count
}
