package exec

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/roach88/docquery/internal/dialect"
	"github.com/roach88/docquery/internal/engine"
)

var childFieldPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// runChildQueries fetches the rows of every child-query descriptor and
// stitches them onto the parent rows under the table fieldname. Child
// queries are independent, so they fan out over a bounded pool when one
// is configured.
func (r *Runner) runChildQueries(ctx context.Context, plan *engine.Plan, parents []map[string]any) error {
	parentNames := collectParentNames(parents)
	if len(parentNames) == 0 {
		return nil
	}

	type result struct {
		fieldname string
		rows      []map[string]any
		err       error
	}
	results := make([]result, len(plan.ChildQueries))

	runOne := func(i int) {
		cq := plan.ChildQueries[i]
		rows, err := r.childRows(ctx, cq, parentNames)
		results[i] = result{fieldname: cq.Fieldname, rows: rows, err: err}
	}

	if r.ChildPoolSize > 1 && len(plan.ChildQueries) > 1 {
		pool, err := ants.NewPool(r.ChildPoolSize)
		if err != nil {
			return fmt.Errorf("child query pool: %w", err)
		}
		defer pool.Release()

		var wg sync.WaitGroup
		for i := range plan.ChildQueries {
			wg.Add(1)
			i := i
			if err := pool.Submit(func() {
				defer wg.Done()
				runOne(i)
			}); err != nil {
				wg.Done()
				results[i] = result{err: fmt.Errorf("submit child query: %w", err)}
			}
		}
		wg.Wait()
	} else {
		for i := range plan.ChildQueries {
			runOne(i)
		}
	}

	for _, res := range results {
		if res.err != nil {
			return res.err
		}
		stitch(parents, res.fieldname, res.rows)
	}
	return nil
}

// childRows fetches the child rows for one descriptor, ordered by idx so
// the stitched lists preserve document order.
func (r *Runner) childRows(ctx context.Context, cq engine.ChildQuery, parentNames []string) ([]map[string]any, error) {
	selectList, err := childSelectList(r.dialect, cq.Fields)
	if err != nil {
		return nil, fmt.Errorf("child query %s: %w", cq.Fieldname, err)
	}

	var sb strings.Builder
	params := []any{}
	bind := func(v any) string {
		params = append(params, v)
		return r.dialect.Placeholder(len(params))
	}

	sb.WriteString("SELECT ")
	sb.WriteString(selectList)
	sb.WriteString(" FROM ")
	sb.WriteString(dialect.QuoteTable(r.dialect, cq.Doctype))
	sb.WriteString(" WHERE ")
	sb.WriteString(r.dialect.QuoteIdent("parent"))
	sb.WriteString(" IN (")
	for i, name := range parentNames {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(bind(name))
	}
	sb.WriteString(") AND ")
	sb.WriteString(r.dialect.QuoteIdent("parenttype"))
	sb.WriteString(" = ")
	sb.WriteString(bind(cq.ParentDoctype))
	sb.WriteString(" AND ")
	sb.WriteString(r.dialect.QuoteIdent("parentfield"))
	sb.WriteString(" = ")
	sb.WriteString(bind(cq.Fieldname))
	sb.WriteString(" ORDER BY ")
	sb.WriteString(r.dialect.QuoteIdent("idx"))
	sb.WriteString(" ASC")

	return r.query(ctx, sb.String(), params)
}

// childSelectList renders the child select list, always including the
// parent back-reference needed for stitching.
func childSelectList(d dialect.Dialect, fields []string) (string, error) {
	for _, f := range fields {
		if f == "*" {
			return "*", nil
		}
	}
	parts := []string{d.QuoteIdent("parent")}
	for _, f := range fields {
		if !childFieldPattern.MatchString(f) {
			return "", fmt.Errorf("invalid child field name %q", f)
		}
		if f == "parent" {
			continue
		}
		parts = append(parts, d.QuoteIdent(f))
	}
	return strings.Join(parts, ", "), nil
}

// collectParentNames pulls the distinct name values off the parent rows,
// preserving first-seen order.
func collectParentNames(parents []map[string]any) []string {
	seen := make(map[string]struct{}, len(parents))
	var names []string
	for _, row := range parents {
		name, ok := row["name"].(string)
		if !ok || name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// stitch attaches child rows to their parents under fieldname. Parents
// without children get an empty list, never nil.
func stitch(parents []map[string]any, fieldname string, children []map[string]any) {
	byParent := make(map[string][]map[string]any, len(parents))
	for _, child := range children {
		parent, _ := child["parent"].(string)
		byParent[parent] = append(byParent[parent], child)
	}
	for _, row := range parents {
		name, _ := row["name"].(string)
		kids := byParent[name]
		if kids == nil {
			kids = []map[string]any{}
		}
		row[fieldname] = kids
	}
}
