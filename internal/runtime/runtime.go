// Package runtime implements the Analytical Runtime: a per-query, ephemeral
// in-memory DuckDB session that the secured rowsets from every FetchNode are
// registered into as temp tables, against which the query's (table-name
// rewritten) SQL text is finally executed.
//
// Adapted from the teacher's pkg/adapters/duckdb/adapter.go: the same
// sql.Open("duckdb", ...)/PingContext/error-wrapping idiom, but opened fresh
// per query rather than held as a long-lived adapter connection —
// original_source/omnisql/engine/federated_engine.py documents exactly this
// choice ("prototype's shared conn is not thread-safe when views are
// registered concurrently under load"). Go's duckdb driver has no DataFrame
// registration API like the Python prototype's con.register, so rowsets are
// materialized via CREATE TEMP TABLE followed by parameterized batch
// INSERTs instead.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/leapstack-labs/omniquery/internal/model"
)

// Session is one query's isolated DuckDB connection. Always Close it.
type Session struct {
	db *sql.DB
}

// Open starts a fresh in-memory DuckDB session.
func Open(ctx context.Context) (*Session, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("runtime: opening duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("runtime: pinging duckdb: %w", err)
	}
	return &Session{db: db}, nil
}

// Close tears down the session.
func (s *Session) Close() error {
	return s.db.Close()
}

// ViewName derives the temp table name for a registry table key, matching
// the rewrite rule in Rewrite: dots become underscores.
func ViewName(table string) string {
	return strings.ReplaceAll(table, ".", "_")
}

// Register materializes rs as a temp table named ViewName(table).
func (s *Session) Register(ctx context.Context, table string, rs model.Rowset) error {
	view := ViewName(table)

	var cols []string
	for _, c := range rs.Schema.Columns {
		cols = append(cols, fmt.Sprintf("%q %s", c.Name, duckdbType(c.Type)))
	}
	if len(cols) == 0 {
		cols = []string{`"_empty" BOOLEAN`}
	}

	ddl := fmt.Sprintf(`CREATE TEMP TABLE %q (%s)`, view, strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("runtime: creating table %s: %w", view, err)
	}

	if len(rs.Schema.Columns) == 0 || len(rs.Rows) == 0 {
		return nil
	}

	placeholders := make([]string, len(rs.Schema.Columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insert := fmt.Sprintf(`INSERT INTO %q VALUES (%s)`, view, strings.Join(placeholders, ", "))

	stmt, err := s.db.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("runtime: preparing insert for %s: %w", view, err)
	}
	defer stmt.Close()

	for _, row := range rs.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("runtime: inserting row into %s: %w", view, err)
		}
	}
	return nil
}

// Query executes sql and returns the result columns and rows in order.
func (s *Session) Query(ctx context.Context, querySQL string) ([]string, [][]any, error) {
	rows, err := s.db.QueryContext(ctx, querySQL)
	if err != nil {
		return nil, nil, fmt.Errorf("runtime: executing query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("runtime: reading columns: %w", err)
	}

	var out [][]any
	for rows.Next() {
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("runtime: scanning row: %w", err)
		}
		out = append(out, dest)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("runtime: iterating rows: %w", err)
	}

	return cols, out, nil
}

func duckdbType(t model.ColumnType) string {
	switch t {
	case model.ColumnInt:
		return "BIGINT"
	case model.ColumnFloat:
		return "DOUBLE"
	case model.ColumnBool:
		return "BOOLEAN"
	case model.ColumnTime:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

// Rewrite replaces every occurrence of each table's registry key (e.g.
// "gh.issues") with its temp view name (e.g. "gh_issues") in querySQL.
// Replacement targets are sorted by length descending before substitution
// so a shorter name can never partially match inside a longer one — safe
// here only because every name has already been validated against the
// tenant's table registry by the analyzer.
func Rewrite(querySQL string, tables []string) string {
	sorted := append([]string(nil), tables...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if len(sorted[j]) > len(sorted[i]) {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	out := querySQL
	for _, t := range sorted {
		out = strings.ReplaceAll(out, t, ViewName(t))
	}
	return out
}
