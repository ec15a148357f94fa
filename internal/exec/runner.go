// Package exec runs compiled query plans against a live database. It is
// the reference implementation of the execution seam: the engine and
// querysql packages never touch a connection, and everything here
// receives only frozen plans.
package exec

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/docquery/internal/dialect"
	"github.com/roach88/docquery/internal/engine"
	"github.com/roach88/docquery/internal/querysql"
)

// driverName maps a dialect to its database/sql driver.
func driverName(d dialect.Dialect) (string, error) {
	switch d.Name() {
	case "mariadb":
		return "mysql", nil
	case "postgres":
		return "pgx", nil
	case "sqlite":
		return "sqlite3", nil
	}
	return "", fmt.Errorf("no driver registered for dialect %s", d.Name())
}

// Runner executes frozen plans. Safe for concurrent use; the pool size
// bounds concurrent child-query execution per Run call.
type Runner struct {
	db      *sql.DB
	dialect dialect.Dialect
	logger  *slog.Logger

	// ChildPoolSize bounds concurrent child queries per Run. Zero means
	// sequential execution.
	ChildPoolSize int
}

// Open connects to the database for the given dialect and DSN.
func Open(d dialect.Dialect, dsn string, logger *slog.Logger) (*Runner, error) {
	driver, err := driverName(d)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d.Name(), err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to %s database: %w", d.Name(), err)
	}
	return NewRunner(db, d, logger), nil
}

// NewRunner wraps an existing connection. The caller keeps ownership of
// the pool unless Close is used.
func NewRunner(db *sql.DB, d dialect.Dialect, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{db: db, dialect: d, logger: logger}
}

// Close closes the underlying connection pool.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (r *Runner) DB() *sql.DB {
	return r.db
}

// Run compiles and executes a frozen plan, returning one map per row.
// Child queries listed on the plan run afterwards and their rows are
// stitched onto the parents under the table fieldname.
func (r *Runner) Run(ctx context.Context, plan *engine.Plan) ([]map[string]any, error) {
	compiled, err := querysql.Compile(plan, r.dialect)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("executing query",
		"doctype", plan.Doctype,
		"token", plan.Token,
		"params", len(compiled.Params))

	rows, err := r.query(ctx, compiled.SQL, compiled.Params)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", plan.Doctype, err)
	}

	if len(plan.ChildQueries) > 0 && len(rows) > 0 {
		if err := r.runChildQueries(ctx, plan, rows); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// query executes SQL and scans every row into a column-keyed map.
func (r *Runner) query(ctx context.Context, sqlText string, params []any) ([]map[string]any, error) {
	rows, err := r.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = normalizeScanValue(values[i])
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// normalizeScanValue converts driver byte slices to strings so results
// compare and serialize cleanly.
func normalizeScanValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
