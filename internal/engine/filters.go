package engine

import (
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/roach88/docquery/internal/filters"
	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/meta"
	"github.com/roach88/docquery/internal/qerr"
)

var (
	backtickFilterRe = regexp.MustCompile("^`tab([A-Za-z0-9 _-]+)`\\.(`?)([A-Za-z0-9_]+)$")
	dateOnlyRe       = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	datetimeStringRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}`)
)

// applyFilters parses a filter expression and installs the resulting
// condition. In orMode the top-level entries combine with OR.
func (b *builder) applyFilters(raw any, orMode bool) error {
	if raw == nil {
		return nil
	}
	var tree filters.Expr
	var err error
	if orMode {
		tree, err = filters.ParseOr(raw)
	} else {
		tree, err = filters.Parse(raw)
	}
	if err != nil {
		return err
	}
	if tree == nil {
		return nil
	}
	cond, err := b.buildCondition(tree)
	if err != nil {
		return err
	}
	b.plan.AddCondition(cond)
	return nil
}

// buildCondition lowers a parsed filter tree into IR conditions.
func (b *builder) buildCondition(e filters.Expr) (ir.Condition, error) {
	switch node := e.(type) {
	case filters.Leaf:
		return b.buildLeaf(node)
	case filters.And:
		left, err := b.buildCondition(node.Left)
		if err != nil {
			return nil, err
		}
		right, err := b.buildCondition(node.Right)
		if err != nil {
			return nil, err
		}
		return ir.AndAll([]ir.Condition{left, right}), nil
	case filters.Or:
		left, err := b.buildCondition(node.Left)
		if err != nil {
			return nil, err
		}
		right, err := b.buildCondition(node.Right)
		if err != nil {
			return nil, err
		}
		return ir.OrAll([]ir.Condition{left, right}), nil
	}
	return nil, qerr.ValidationDetail(e, "unknown filter expression")
}

// buildLeaf lowers one filter condition, running the full conversion
// pipeline: date-range operators, Date truncation, Datetime between
// expansion, hierarchy lookups, NULL handling, and ifnull wrapping.
func (b *builder) buildLeaf(leaf filters.Leaf) (ir.Condition, error) {
	col, targetDoctype, fieldname, err := b.resolveFilterField(leaf)
	if err != nil {
		return nil, err
	}

	op := ir.NormalizeOperator(leaf.Operator)
	value := leaf.Value
	fieldDef, hasDef := b.fieldDef(targetDoctype, fieldname)

	// timespan / previous / next resolve to a between over a date range.
	if ir.IsRangeOperator(op) {
		span, ok := value.(string)
		if !ok {
			return nil, qerr.ValidationDetail(value, "%s filter requires a named span", op)
		}
		from, to, err := filters.DateRange(op, span, b.now)
		if err != nil {
			return nil, err
		}
		if hasDef && fieldDef.Fieldtype == meta.TypeDate {
			value = []any{filters.FormatDate(from), filters.FormatDate(to)}
		} else {
			value = []any{filters.FormatDatetime(from), filters.FormatDatetime(to)}
		}
		op = ir.FilterBetween
	}

	// Date fields truncate datetime values to the date portion, for every
	// operator.
	if hasDef && fieldDef.Fieldtype == meta.TypeDate {
		value = truncateDatetimes(value)
	}

	// Datetime fields expand date-only between bounds to full-day ranges.
	if op == ir.FilterBetween && hasDef && fieldDef.Fieldtype == meta.TypeDatetime {
		if pair, ok := value.([]any); ok && len(pair) == 2 {
			value = []any{
				expandDateBound(pair[0], "00:00:00.000000"),
				expandDateBound(pair[1], "23:59:59.999999"),
			}
		}
	}

	if ir.IsHierarchyOperator(op) {
		return b.buildHierarchyCondition(col, fieldname, op, value)
	}

	if op == ir.FilterIs {
		return buildIsCondition(col, value)
	}

	if value == nil && b.args.Compat && (op == ir.FilterIn || op == ir.FilterNotIn) {
		value = []any{""}
	}

	// NULL operand: equality means IS NULL; inequality compares against
	// the type fallback so empty and NULL rows both match.
	if value == nil {
		if op == ir.FilterNe {
			fallback := b.ifnullFallback(targetDoctype, fieldname)
			return ir.Comparison{Field: col, Op: ir.CmpNe, Value: ir.NewValue(fallback)}, nil
		}
		return ir.NullCheck{Field: col}, nil
	}

	var field ir.Expr = col
	if b.shouldApplyIfnull(targetDoctype, fieldname, op, value) {
		fallback := b.ifnullFallback(targetDoctype, fieldname)
		if scalarEqual(fallback, value) {
			switch op {
			case ir.FilterEq:
				return ir.OrAll([]ir.Condition{
					ir.NullCheck{Field: col},
					ir.Comparison{Field: col, Op: ir.CmpEq, Value: ir.NewValue(value)},
				}), nil
			case ir.FilterNe:
				return ir.Comparison{Field: col, Op: ir.CmpNe, Value: ir.NewValue(value)}, nil
			}
		}
		field = ir.FunctionCall{Name: "IFNULL", Args: []ir.Expr{col, ir.NewValue(fallback)}}
	}

	switch op {
	case ir.FilterIn, ir.FilterNotIn:
		values, ok := value.([]any)
		if !ok {
			return nil, qerr.ValidationDetail(value, "%s filter requires a list of values", op)
		}
		if len(values) == 0 {
			// An empty IN list is invalid SQL; match nothing instead.
			values = []any{""}
		}
		exprs := make([]ir.Expr, len(values))
		for i, v := range values {
			exprs[i] = ir.NewValue(v)
		}
		return ir.In{Field: field, Values: exprs, Negate: op == ir.FilterNotIn}, nil

	case ir.FilterBetween:
		pair, ok := value.([]any)
		if !ok || len(pair) != 2 {
			return nil, qerr.ValidationDetail(value, "between filter requires exactly two values")
		}
		return ir.Between{Field: field, From: ir.NewValue(pair[0]), To: ir.NewValue(pair[1])}, nil

	default:
		cmp, ok := comparisonOps[op]
		if !ok {
			return nil, qerr.ValidationDetail(op, "unsupported filter operator")
		}
		return ir.Comparison{Field: field, Op: cmp, Value: ir.NewValue(value)}, nil
	}
}

// buildHierarchyCondition resolves a nested-set operator to a membership
// test over the matching node names. The reference doctype is the filter
// field's link target when it is a Link field, else the base doctype.
func (b *builder) buildHierarchyCondition(col ir.Column, fieldname, op string, value any) (ir.Condition, error) {
	if b.eng.Tree == nil {
		return nil, qerr.Validationf("hierarchy operator %q requires a tree resolver", op)
	}
	docname, err := cast.ToStringE(value)
	if err != nil {
		return nil, qerr.ValidationDetail(value, "hierarchy filter value must be a document name")
	}

	refDoctype := b.dt.Name
	if f, ok := b.dt.Field(fieldname); ok && f.Fieldtype == meta.TypeLink && f.Options != "" {
		refDoctype = f.Options
	}

	nodes, err := b.eng.Tree.HierarchyNodes(op, refDoctype, docname)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		nodes = []string{""}
	}
	negate := op == ir.HierarchyNotAncestorsOf || op == ir.HierarchyNotDescendantsOf
	return ir.In{Field: col, Values: valueList(nodes), Negate: negate}, nil
}

// buildIsCondition handles `is set` / `is not set`.
func buildIsCondition(col ir.Column, value any) (ir.Condition, error) {
	spelled, _ := value.(string)
	switch strings.ToLower(strings.TrimSpace(spelled)) {
	case "set":
		return ir.NullCheck{Field: col, Negate: true}, nil
	case "not set":
		return ir.NullCheck{Field: col}, nil
	default:
		return nil, qerr.ValidationDetail(value, `"is" filter value must be "set" or "not set"`)
	}
}

// resolveFilterField validates the leaf's field reference and returns
// the column plus the doctype/fieldname pair for metadata lookups.
// Dynamic and child-table references add their joins here.
func (b *builder) resolveFilterField(leaf filters.Leaf) (ir.Column, string, string, error) {
	field := strings.TrimSpace(normalizeFieldString(leaf.Fieldname))

	if strings.Contains(field, "`") {
		m := backtickFilterRe.FindStringSubmatch(field)
		if m == nil {
			return ir.Column{}, "", "", qerr.ValidationDetail(field, "filter field has invalid backtick notation")
		}
		return ir.Column{Table: m[1], Name: m[3]}, m[1], m[3], nil
	}

	if strings.Contains(field, ".") {
		// Tab notation is not allowed in filters; only link/child access.
		df, err := parseDynamicField(field, b.dt, false)
		if err != nil {
			return ir.Column{}, "", "", err
		}
		if df == nil {
			return ir.Column{}, "", "", qerr.ValidationDetail(field,
				"invalid filter field format; use 'fieldname' or 'link_fieldname.target_fieldname'")
		}
		if err := b.checkDynamicFieldPermission(df); err != nil {
			return ir.Column{}, "", "", err
		}
		df.ApplyJoin(b.plan)
		col := df.Column()
		col.Alias = ""
		return col, col.Table, col.Name, nil
	}

	if !simpleFieldPattern.MatchString(field) {
		return ir.Column{}, "", "", qerr.ValidationDetail(field,
			"invalid characters in fieldname; only letters, numbers, and underscores are allowed")
	}

	// Explicit doctype from a 4-tuple: must be a child table of the base.
	if leaf.Doctype != "" && leaf.Doctype != b.dt.Name {
		parentFieldname := ""
		for _, tf := range b.dt.TableFields() {
			if tf.Options == leaf.Doctype {
				parentFieldname = tf.Fieldname
				break
			}
		}
		if parentFieldname == "" {
			return ir.Column{}, "", "", qerr.Validationf("%s is not a child table of %s", leaf.Doctype, b.dt.Name)
		}
		handler := ChildTableField{
			Doctype:         leaf.Doctype,
			Fieldname:       field,
			ParentDoctype:   b.dt.Name,
			ParentFieldname: parentFieldname,
		}
		if err := b.checkFieldPermission(leaf.Doctype, field, b.dt.Name); err != nil {
			return ir.Column{}, "", "", err
		}
		handler.ApplyJoin(b.plan)
		return ir.Column{Table: leaf.Doctype, Name: field}, leaf.Doctype, field, nil
	}

	// Field not on the base doctype: look for it in the base's child
	// tables before giving up.
	if leaf.Doctype == "" && !b.dt.HasField(field) {
		for _, tf := range b.dt.TableFields() {
			childMeta, err := b.eng.Meta.Doctype(tf.Options)
			if err != nil {
				continue
			}
			if !childMeta.HasOwnField(field) {
				continue
			}
			handler := ChildTableField{
				Doctype:         tf.Options,
				Fieldname:       field,
				ParentDoctype:   b.dt.Name,
				ParentFieldname: tf.Fieldname,
			}
			if err := b.checkFieldPermission(tf.Options, field, b.dt.Name); err != nil {
				return ir.Column{}, "", "", err
			}
			handler.ApplyJoin(b.plan)
			return ir.Column{Table: tf.Options, Name: field}, tf.Options, field, nil
		}
	}

	target := b.dt.Name
	parentForPerm := ""
	if leaf.Doctype != "" {
		target = leaf.Doctype
		parentForPerm = b.args.ParentDoctype
	}
	if err := b.checkFieldPermission(target, field, parentForPerm); err != nil {
		return ir.Column{}, "", "", err
	}
	return ir.Column{Table: target, Name: field}, target, field, nil
}

// fieldDef looks up a field definition, including framework defaults.
func (b *builder) fieldDef(doctype, fieldname string) (meta.Field, bool) {
	dt, err := b.eng.Meta.Doctype(doctype)
	if err != nil {
		return meta.DefaultField(fieldname)
	}
	return dt.Field(fieldname)
}

// truncateDatetimes converts datetime values to their date portion.
func truncateDatetimes(value any) any {
	switch v := value.(type) {
	case time.Time:
		return filters.FormatDate(v)
	case string:
		if datetimeStringRe.MatchString(v) {
			return v[:10]
		}
		return v
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = truncateDatetimes(item)
		}
		return out
	default:
		return value
	}
}

// expandDateBound widens a date-only between bound to the given clock
// time. Values that already carry a time component pass through.
func expandDateBound(value any, clock string) any {
	switch v := value.(type) {
	case string:
		if dateOnlyRe.MatchString(v) {
			return v + " " + clock
		}
		return v
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return filters.FormatDate(v) + " " + clock
		}
		return v
	default:
		return value
	}
}

// isFieldNullable reports whether the column can hold NULL. The primary
// key and the framework timestamps are always populated; numeric types
// and NOT NULL columns never need coalescing.
func (b *builder) isFieldNullable(doctype, fieldname string) bool {
	if fieldname == "name" || fieldname == "modified" || fieldname == "creation" {
		return false
	}
	dt, err := b.eng.Meta.Doctype(doctype)
	if err != nil {
		return true
	}
	f, ok := dt.Field(fieldname)
	if !ok {
		return true
	}
	if f.Fieldtype.IsNumeric() {
		return false
	}
	if f.NotNullable {
		return false
	}
	return true
}

// ifnullFallback returns the type-appropriate fallback used when
// coalescing NULL values in comparisons.
func (b *builder) ifnullFallback(doctype, fieldname string) any {
	f, ok := b.fieldDef(doctype, fieldname)
	if !ok {
		return ""
	}
	switch f.Fieldtype {
	case meta.TypeDate, meta.TypeDatetime:
		return "0001-01-01"
	case meta.TypeTime:
		return "00:00:00"
	case meta.TypeInt, meta.TypeFloat, meta.TypeCurrency, meta.TypePercent, meta.TypeCheck:
		return int64(0)
	default:
		return ""
	}
}

// shouldApplyIfnull decides whether a filter needs NULL-coalescing. The
// operator cases mirror long-standing list-query behavior: skipping the
// wrap where NULL rows can never match keeps indexed range scans cheap.
func (b *builder) shouldApplyIfnull(doctype, fieldname, op string, value any) bool {
	if !b.args.Compat {
		return false
	}
	if !b.isFieldNullable(doctype, fieldname) {
		return false
	}
	if value == nil {
		return false
	}
	if op == ir.FilterLike || op == ir.FilterIs {
		return false
	}
	if op == ir.FilterEq && truthy(value) {
		return false
	}

	f, hasDef := b.fieldDef(doctype, fieldname)
	isDatetimeField := hasDef && (f.Fieldtype == meta.TypeDate || f.Fieldtype == meta.TypeDatetime)
	isCreationOrModified := fieldname == "creation" || fieldname == "modified"

	switch op {
	case ir.FilterGt, ir.FilterGe:
		// NULL is never greater than a bound value.
		if isDatetimeField || isCreationOrModified {
			return false
		}
	case ir.FilterBetween:
		// NULL never falls inside a bounded range; coalescing would only
		// defeat index usage.
		if isDatetimeField || isCreationOrModified {
			return false
		}
	case ir.FilterIn:
		if values, ok := value.([]any); ok {
			for _, v := range values {
				if v == nil || v == "" {
					return true
				}
			}
		}
		return false
	case ir.FilterNotIn:
		return true
	case ir.FilterLt:
		if isDatetimeField || isCreationOrModified {
			return true
		}
	}
	return true
}

// scalarEqual compares a fallback against a filter value without
// tripping over uncomparable list values.
func scalarEqual(fallback, value any) bool {
	switch value.(type) {
	case string, int, int64, float64, bool:
		return fallback == value
	}
	return false
}

// truthy mirrors loose-typing truthiness for normalized filter values.
func truthy(value any) bool {
	switch v := value.(type) {
	case string:
		return v != ""
	case int64:
		return v != 0
	case int:
		return v != 0
	case float64:
		return v != 0
	case bool:
		return v
	case nil:
		return false
	default:
		return true
	}
}
