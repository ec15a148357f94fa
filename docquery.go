// Package docquery assembles metadata-driven, permission-filtered list
// queries and renders them to parameterized SQL for MariaDB, Postgres,
// or SQLite.
//
// Usage:
//
//	provider, err := docquery.LoadDoctypes("./doctypes")
//	eng := &docquery.Engine{Meta: provider, Perms: oracle, Dialect: docquery.MariaDB{}}
//	plan, err := eng.GetQuery(docquery.QueryArgs{
//		Doctype: "ToDo",
//		Fields:  []any{"name", "status"},
//		Filters: map[string]any{"status": "Open"},
//		User:    "alice@example.com",
//	})
//	compiled, err := docquery.Compile(plan, docquery.MariaDB{})
//	// compiled.SQL, compiled.Params
package docquery

import (
	"github.com/roach88/docquery/internal/dialect"
	"github.com/roach88/docquery/internal/engine"
	"github.com/roach88/docquery/internal/exec"
	"github.com/roach88/docquery/internal/meta"
	"github.com/roach88/docquery/internal/perms"
	"github.com/roach88/docquery/internal/qerr"
	"github.com/roach88/docquery/internal/querysql"
)

// Core assembly types.
type (
	// Engine assembles query plans from metadata and permissions.
	Engine = engine.Engine

	// QueryArgs are the caller-facing query parameters.
	QueryArgs = engine.QueryArgs

	// Plan is a frozen, renderable query description.
	Plan = engine.Plan

	// ChildQuery describes a follow-up query for a child table field.
	ChildQuery = engine.ChildQuery

	// Compiled holds rendered SQL text and its bind parameters.
	Compiled = querysql.Compiled
)

// Metadata types.
type (
	// Provider resolves doctype metadata by name.
	Provider = meta.Provider

	// Doctype is a named collection of typed fields.
	Doctype = meta.Doctype

	// Field is a single field definition within a doctype.
	Field = meta.Field

	// StaticProvider serves metadata from an in-memory map.
	StaticProvider = meta.StaticProvider
)

// Permission types.
type (
	// Oracle answers role, field, user-permission, and sharing questions.
	Oracle = perms.Oracle

	// StaticOracle is an in-memory Oracle for fixtures and embedders.
	StaticOracle = perms.StaticOracle

	// RolePermissions summarizes one user's role-level rights on a doctype.
	RolePermissions = perms.RolePermissions

	// UserPermission restricts a user to one document of a linked doctype.
	UserPermission = perms.UserPermission
)

// Dialects.
type (
	// Dialect captures backend-specific SQL rendering behavior.
	Dialect = dialect.Dialect

	MariaDB  = dialect.MariaDB
	Postgres = dialect.Postgres
	SQLite   = dialect.SQLite
)

// Runner executes frozen plans against a live database.
type Runner = exec.Runner

// LoadDoctypes loads doctype definitions from a directory of CUE files.
func LoadDoctypes(dir string) (*StaticProvider, error) {
	return meta.LoadDir(dir)
}

// NewDoctype builds a doctype with a unique-field index.
func NewDoctype(name string, fields []Field) (*Doctype, error) {
	return meta.NewDoctype(name, fields)
}

// NewStaticProvider builds an in-memory metadata provider.
func NewStaticProvider(doctypes ...*Doctype) *StaticProvider {
	return meta.NewStaticProvider(doctypes...)
}

// NewStaticOracle builds an empty in-memory permission oracle.
// Grant permissions on it before assembling queries.
func NewStaticOracle() *StaticOracle {
	return perms.NewStaticOracle()
}

// DialectFromName returns the dialect for a canonical name
// (mariadb, postgres, sqlite).
func DialectFromName(name string) (Dialect, error) {
	return dialect.FromName(name)
}

// Compile renders a frozen plan to SQL text and bind parameters.
func Compile(plan *Plan, d Dialect) (Compiled, error) {
	return querysql.Compile(plan, d)
}

// Open connects to the database behind dsn and returns a Runner for it.
func Open(d Dialect, dsn string) (*Runner, error) {
	return exec.Open(d, dsn, nil)
}

// Error classification for callers that branch on failure kind.
var (
	// IsValidation reports malformed filter/field/order/group input.
	IsValidation = qerr.IsValidation

	// IsPermission reports role, field, or document permission denials.
	IsPermission = qerr.IsPermission

	// IsType reports arguments of the wrong type (non-integer limit).
	IsType = qerr.IsType
)
