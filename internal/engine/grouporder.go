package engine

import (
	"strings"

	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/qerr"
)

// applyGroupBy validates the comma-separated group-by string and adds
// the parsed expressions to the plan.
func (b *builder) applyGroupBy(groupBy string) error {
	for _, part := range strings.Split(groupBy, ",") {
		name := strings.TrimSpace(normalizeFieldString(part))
		if name == "" {
			continue
		}
		expr, err := b.parseClauseField(name, "group by")
		if err != nil {
			return err
		}
		b.plan.GroupBy = append(b.plan.GroupBy, expr)
	}
	return nil
}

// applyOrderBy validates the comma-separated order-by string. Each entry
// may end in asc/desc; the default direction is descending, or ascending
// in compat mode, mirroring the legacy list query.
func (b *builder) applyOrderBy(orderBy string) error {
	for _, part := range strings.Split(orderBy, ",") {
		decl := strings.TrimSpace(normalizeFieldString(part))
		if decl == "" {
			continue
		}

		fieldName := decl
		direction := ""
		words := strings.Fields(decl)
		if len(words) > 1 {
			last := strings.ToLower(words[len(words)-1])
			if last == "asc" || last == "desc" {
				direction = last
				fieldName = strings.Join(words[:len(words)-1], " ")
			}
		}

		expr, err := b.parseClauseField(fieldName, "order by")
		if err != nil {
			return err
		}
		b.plan.OrderBy = append(b.plan.OrderBy, OrderSpec{
			Expr: expr,
			Desc: b.orderDesc(direction),
		})
	}
	return nil
}

// orderDesc resolves an order direction with mode-dependent defaults.
func (b *builder) orderDesc(direction string) bool {
	if b.args.Compat {
		return direction == "desc"
	}
	return direction != "asc"
}

// applyDefaultOrderBy orders by the doctype's configured sort field,
// falling back to creation DESC. A comma-separated sort field spec
// orders by each entry in turn.
func (b *builder) applyDefaultOrderBy() error {
	sortField, sortOrder := b.dt.SortInfo()

	addEntry := func(fieldName, direction string) {
		b.plan.OrderBy = append(b.plan.OrderBy, OrderSpec{
			Expr: ir.Column{Table: b.dt.Name, Name: fieldName},
			Desc: b.orderDesc(strings.ToLower(direction)),
		})
	}

	if strings.Contains(sortField, ",") {
		for _, spec := range strings.Split(sortField, ",") {
			words := strings.Fields(strings.TrimSpace(spec))
			if len(words) == 0 {
				continue
			}
			direction := strings.ToLower(sortOrder)
			if len(words) > 1 {
				direction = strings.ToLower(words[1])
			}
			addEntry(words[0], direction)
		}
		return nil
	}

	addEntry(sortField, strings.ToLower(sortOrder))
	return nil
}

// parseClauseField validates a group-by/order-by field reference. The
// grammar is stricter than SELECT: numeric positions pass through for
// the backend to interpret, previously declared aliases resolve by name,
// and otherwise only backtick-qualified, dynamic, or simple names pass.
func (b *builder) parseClauseField(name, clause string) (ir.Expr, error) {
	if digitPattern.MatchString(name) {
		return ir.Raw{SQL: name}, nil
	}

	if _, ok := b.aliases[name]; ok {
		return ir.Column{Name: name}, nil
	}

	if strings.Contains(name, "`") {
		m := backtickFilterRe.FindStringSubmatch(name)
		if m == nil {
			return nil, qerr.ValidationDetail(name, "%s has invalid backtick notation", clause)
		}
		return ir.Column{Table: m[1], Name: m[3]}, nil
	}

	df, err := parseDynamicField(name, b.dt, false)
	if err != nil {
		return nil, err
	}
	if df != nil {
		if err := b.checkDynamicFieldPermission(df); err != nil {
			return nil, err
		}
		df.ApplyJoin(b.plan)
		col := df.Column()
		col.Alias = ""
		return col, nil
	}

	if !simpleFieldPattern.MatchString(name) {
		return nil, qerr.ValidationDetail(name,
			"invalid field format in %s; use 'field', 'link_field.field', or 'child_table.field'", clause)
	}
	if err := b.checkFieldPermission(b.dt.Name, name, b.args.ParentDoctype); err != nil {
		return nil, err
	}
	return ir.Column{Table: b.dt.Name, Name: name}, nil
}
