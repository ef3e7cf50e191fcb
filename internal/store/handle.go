package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Execer is the subset of *sql.DB, *sql.Conn and *sql.Tx the store needs.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// IDColumn is the integer primary key every table carries. Item
// addresses refer to it.
const IDColumn = "_id"

// Values maps column names to values for insert and update.
type Values map[string]any

// Select describes a table query. Where, GroupBy, Having and OrderBy are
// SQL fragments supplied by the caller; Args are bound to the ? placeholders
// in Where and Having.
type Select struct {
	Columns []string
	Where   string
	Args    []any
	GroupBy string
	Having  string
	OrderBy string
	Limit   string
}

// Handle is a database handle. Readable handles and sessions both
// implement it.
type Handle interface {
	Query(ctx context.Context, table string, sel Select) (*sql.Rows, error)
	Insert(ctx context.Context, table string, values Values) (int64, error)
	Update(ctx context.Context, table string, values Values, where string, args []any) (int64, error)
	Delete(ctx context.Context, table string, where string, args []any) (int64, error)
	Exec(ctx context.Context, query string, args ...any) error
	Tables(ctx context.Context) ([]string, error)
	InTransaction() bool
}

// ErrEmptyValues is returned by Update when there is nothing to set.
var ErrEmptyValues = errors.New("empty values")

// ops implements the table operations over any Execer.
type ops struct {
	ex Execer
}

// Query runs a SELECT. Callers are responsible for closing the returned rows.
func (o ops) Query(ctx context.Context, table string, sel Select) (*sql.Rows, error) {
	query := buildSelect(table, sel)
	rows, err := o.ex.QueryContext(ctx, query, sel.Args...)
	if err != nil {
		return nil, &EngineError{Op: "query", Table: table, Err: err}
	}
	return rows, nil
}

// Insert inserts one row and returns its rowid. Empty values insert a row
// of defaults.
func (o ops) Insert(ctx context.Context, table string, values Values) (int64, error) {
	var query string
	var args []any
	if len(values) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quoteIdent(table))
	} else {
		cols := sortedKeys(values)
		quoted := make([]string, len(cols))
		args = make([]any, len(cols))
		for i, c := range cols {
			quoted[i] = quoteIdent(c)
			args[i] = values[c]
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quoteIdent(table),
			strings.Join(quoted, ", "),
			placeholders(len(cols)))
	}

	result, err := o.ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &EngineError{Op: "insert", Table: table, Err: err}
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, &EngineError{Op: "insert", Table: table, Err: fmt.Errorf("last insert id: %w", err)}
	}
	return id, nil
}

// Update sets values on rows matching where and returns the affected count.
func (o ops) Update(ctx context.Context, table string, values Values, where string, args []any) (int64, error) {
	if len(values) == 0 {
		return 0, &EngineError{Op: "update", Table: table, Err: ErrEmptyValues}
	}

	cols := sortedKeys(values)
	sets := make([]string, len(cols))
	bound := make([]any, 0, len(cols)+len(args))
	for i, c := range cols {
		sets[i] = quoteIdent(c) + " = ?"
		bound = append(bound, values[c])
	}
	bound = append(bound, args...)

	query := fmt.Sprintf("UPDATE %s SET %s", quoteIdent(table), strings.Join(sets, ", "))
	if where != "" {
		query += " WHERE " + where
	}
	return o.exec(ctx, "update", table, query, bound)
}

// Delete removes rows matching where and returns the affected count.
// An empty where deletes every row.
func (o ops) Delete(ctx context.Context, table string, where string, args []any) (int64, error) {
	query := "DELETE FROM " + quoteIdent(table)
	if where != "" {
		query += " WHERE " + where
	}
	return o.exec(ctx, "delete", table, query, args)
}

// Exec runs raw SQL.
func (o ops) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := o.ex.ExecContext(ctx, query, args...); err != nil {
		return &EngineError{Op: "exec", Err: err}
	}
	return nil
}

// Tables lists user tables in name order.
func (o ops) Tables(ctx context.Context) ([]string, error) {
	rows, err := o.ex.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, &EngineError{Op: "list tables", Err: err}
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &EngineError{Op: "list tables", Err: err}
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &EngineError{Op: "list tables", Err: err}
	}
	return tables, nil
}

func (o ops) exec(ctx context.Context, op, table, query string, args []any) (int64, error) {
	result, err := o.ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &EngineError{Op: op, Table: table, Err: err}
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, &EngineError{Op: op, Table: table, Err: fmt.Errorf("rows affected: %w", err)}
	}
	return n, nil
}

// reader is the readable handle. It never holds a transaction.
type reader struct {
	ops
}

func (r *reader) InTransaction() bool { return false }

func buildSelect(table string, sel Select) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(sel.Columns) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(sel.Columns, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(quoteIdent(table))
	if sel.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(sel.Where)
	}
	if sel.GroupBy != "" {
		b.WriteString(" GROUP BY ")
		b.WriteString(sel.GroupBy)
	}
	if sel.Having != "" {
		b.WriteString(" HAVING ")
		b.WriteString(sel.Having)
	}
	if sel.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(sel.OrderBy)
	}
	if sel.Limit != "" {
		b.WriteString(" LIMIT ")
		b.WriteString(sel.Limit)
	}
	return b.String()
}

// quoteIdent quotes an SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteIdent quotes an SQL identifier for callers building raw statements.
func QuoteIdent(name string) string {
	return quoteIdent(name)
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// sortedKeys returns the column names in deterministic order.
func sortedKeys(values Values) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
