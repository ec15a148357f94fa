package exec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/docquery/internal/dialect"
	"github.com/roach88/docquery/internal/ir"
)

// TreeResolver answers nested-set hierarchy lookups against the live
// database. Tree doctypes carry lft/rgt bounds maintained on write; the
// resolver only reads them.
type TreeResolver struct {
	db      *sql.DB
	dialect dialect.Dialect
}

// NewTreeResolver builds a resolver over an open connection.
func NewTreeResolver(db *sql.DB, d dialect.Dialect) *TreeResolver {
	return &TreeResolver{db: db, dialect: d}
}

// HierarchyNodes returns the names matching a hierarchy operator relative
// to the named node. Negated operators resolve the same node set; the
// engine applies the negation.
func (t *TreeResolver) HierarchyNodes(hierarchy, doctype, name string) ([]string, error) {
	ctx := context.Background()

	lft, rgt, err := t.nodeBounds(ctx, doctype, name)
	if err != nil {
		return nil, err
	}

	var where string
	switch strings.TrimPrefix(hierarchy, "not ") {
	case ir.HierarchyAncestorsOf:
		where = fmt.Sprintf("%s < %s AND %s > %s",
			t.dialect.QuoteIdent("lft"), t.dialect.Placeholder(1),
			t.dialect.QuoteIdent("rgt"), t.dialect.Placeholder(2))
	case ir.HierarchyDescendantsOf:
		where = fmt.Sprintf("%s > %s AND %s < %s",
			t.dialect.QuoteIdent("lft"), t.dialect.Placeholder(1),
			t.dialect.QuoteIdent("rgt"), t.dialect.Placeholder(2))
	case ir.HierarchyDescendantsOfInclusive:
		where = fmt.Sprintf("%s >= %s AND %s <= %s",
			t.dialect.QuoteIdent("lft"), t.dialect.Placeholder(1),
			t.dialect.QuoteIdent("rgt"), t.dialect.Placeholder(2))
	default:
		return nil, fmt.Errorf("unknown hierarchy operator %q", hierarchy)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s ASC",
		t.dialect.QuoteIdent("name"),
		dialect.QuoteTable(t.dialect, doctype),
		where,
		t.dialect.QuoteIdent("lft"))

	rows, err := t.db.QueryContext(ctx, query, lft, rgt)
	if err != nil {
		return nil, fmt.Errorf("hierarchy query %s: %w", doctype, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan hierarchy node: %w", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hierarchy nodes: %w", err)
	}
	return names, nil
}

// nodeBounds fetches the nested-set bounds of the reference node.
func (t *TreeResolver) nodeBounds(ctx context.Context, doctype, name string) (int64, int64, error) {
	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = %s",
		t.dialect.QuoteIdent("lft"),
		t.dialect.QuoteIdent("rgt"),
		dialect.QuoteTable(t.dialect, doctype),
		t.dialect.QuoteIdent("name"),
		t.dialect.Placeholder(1))

	var lft, rgt int64
	err := t.db.QueryRowContext(ctx, query, name).Scan(&lft, &rgt)
	if err == sql.ErrNoRows {
		return 0, 0, fmt.Errorf("hierarchy node %s of %s not found", name, doctype)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("read hierarchy bounds: %w", err)
	}
	return lft, rgt, nil
}
