// Package dialect isolates backend-specific SQL behavior behind a small
// interface: identifier quoting, placeholder style, case-insensitive LIKE,
// NULL-coalescing function names, and the Postgres restriction on ordering
// DISTINCT/GROUP BY results by unselected columns.
package dialect

import (
	"fmt"
	"strings"
)

// TablePrefix is prepended to every doctype name to form its table name.
const TablePrefix = "tab"

// Dialect captures the rendering differences between supported backends.
type Dialect interface {
	// Name returns the canonical dialect name: mariadb, postgres, sqlite.
	Name() string

	// QuoteIdent quotes a single identifier (table or column name).
	QuoteIdent(name string) string

	// Placeholder returns the bind placeholder for the n-th parameter
	// (1-based). MariaDB and SQLite use "?", Postgres uses "$n".
	Placeholder(n int) string

	// LikeOperator returns the operator used for like / not like filters.
	// Postgres substitutes ILIKE for case-insensitive matching.
	LikeOperator(negate bool) string

	// IfNullFunc returns the two-argument NULL-coalescing function name.
	IfNullFunc() string

	// SuppressOrderWithDistinct reports whether explicit ORDER BY must be
	// dropped when combined with DISTINCT or GROUP BY because the backend
	// requires order fields to appear in the select list.
	SuppressOrderWithDistinct() bool
}

// MariaDB renders backtick-quoted identifiers and ? placeholders.
type MariaDB struct{}

func (MariaDB) Name() string                    { return "mariadb" }
func (MariaDB) QuoteIdent(name string) string   { return "`" + name + "`" }
func (MariaDB) Placeholder(int) string          { return "?" }
func (MariaDB) IfNullFunc() string              { return "IFNULL" }
func (MariaDB) SuppressOrderWithDistinct() bool { return false }

func (MariaDB) LikeOperator(negate bool) string {
	if negate {
		return "NOT LIKE"
	}
	return "LIKE"
}

// Postgres renders double-quoted identifiers, $n placeholders, and ILIKE.
type Postgres struct{}

func (Postgres) Name() string                    { return "postgres" }
func (Postgres) QuoteIdent(name string) string   { return `"` + name + `"` }
func (Postgres) Placeholder(n int) string        { return fmt.Sprintf("$%d", n) }
func (Postgres) IfNullFunc() string              { return "COALESCE" }
func (Postgres) SuppressOrderWithDistinct() bool { return true }

func (Postgres) LikeOperator(negate bool) string {
	if negate {
		return "NOT ILIKE"
	}
	return "ILIKE"
}

// SQLite renders backtick-quoted identifiers and ? placeholders.
// SQLite LIKE is case-insensitive for ASCII by default, which matches the
// engine's intent without remapping.
type SQLite struct{}

func (SQLite) Name() string                    { return "sqlite" }
func (SQLite) QuoteIdent(name string) string   { return "`" + name + "`" }
func (SQLite) Placeholder(int) string          { return "?" }
func (SQLite) IfNullFunc() string              { return "IFNULL" }
func (SQLite) SuppressOrderWithDistinct() bool { return false }

func (SQLite) LikeOperator(negate bool) string {
	if negate {
		return "NOT LIKE"
	}
	return "LIKE"
}

// FromName returns the dialect for a canonical name.
func FromName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "mariadb", "mysql":
		return MariaDB{}, nil
	case "postgres", "postgresql":
		return Postgres{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unknown dialect: %s", name)
	}
}

// TableName returns the physical table name for a doctype.
func TableName(doctype string) string {
	return TablePrefix + doctype
}

// QuoteTable quotes the physical table name for a doctype.
func QuoteTable(d Dialect, doctype string) string {
	return d.QuoteIdent(TableName(doctype))
}
