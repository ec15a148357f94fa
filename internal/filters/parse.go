package filters

import (
	"sort"
	"time"

	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/qerr"
)

// Parse converts a filter expression into a condition tree with AND
// semantics between top-level entries. Accepted shapes:
//
//   - nil: no condition (returns nil, nil)
//   - scalar: shorthand for {"name": value}
//   - map[string]any: each pair ANDed; a slice value is (operator, operand)
//   - []any of scalars: shorthand for name IN (...)
//   - []any of conditions: each entry ANDed
//   - []any nested tree: [condition, "and"|"or", condition, ...]
//   - [][condition...]: a single pre-grouped nested tree, unwrapped
func Parse(filters any) (Expr, error) {
	exprs, err := parseTop(filters)
	if err != nil {
		return nil, err
	}
	return andAll(exprs), nil
}

// ParseOr converts a filter expression like Parse but combines the
// top-level entries with OR instead of AND. Nested trees inside entries
// keep their own boolean structure.
func ParseOr(filters any) (Expr, error) {
	exprs, err := parseTop(filters)
	if err != nil {
		return nil, err
	}
	return orAll(exprs), nil
}

// parseTop returns the list of top-level condition trees, leaving the
// caller to choose the combining operator.
func parseTop(filters any) ([]Expr, error) {
	if filters == nil {
		return nil, nil
	}

	if isScalar(filters) {
		return []Expr{Leaf{Fieldname: "name", Operator: ir.FilterEq, Value: NormalizeValue(filters)}}, nil
	}

	switch f := filters.(type) {
	case map[string]any:
		return parseMap(f)
	case []any:
		return parseList(f)
	case Expr:
		return []Expr{f}, nil
	default:
		return nil, qerr.ValidationDetail(filters, "unsupported filters type %T", filters)
	}
}

// parseMap converts a mapping into one leaf per pair. Keys are processed
// in sorted order so output is deterministic. A slice value is the
// (operator, operand) form.
func parseMap(m map[string]any) ([]Expr, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	exprs := make([]Expr, 0, len(m))
	for _, field := range keys {
		value := m[field]
		operator := ir.FilterEq

		if pair, ok := value.([]any); ok {
			if len(pair) != 2 {
				return nil, qerr.ValidationDetail(pair, "operator/operand pair for %q must have exactly two elements", field)
			}
			opStr, ok := pair[0].(string)
			if !ok {
				return nil, qerr.ValidationDetail(pair, "operator for %q must be a string", field)
			}
			operator = ir.NormalizeOperator(opStr)
			value = pair[1]
		}

		leaf, err := makeLeaf("", field, operator, value)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, leaf)
	}
	return exprs, nil
}

// parseList disambiguates the three list shapes: a flat list of scalar
// identifiers, a nested boolean tree, and a flat list of independent
// conditions.
func parseList(list []any) ([]Expr, error) {
	if len(list) == 0 {
		return nil, nil
	}

	// List of scalar identifiers: shorthand for name IN (...).
	if allScalars(list) {
		values := make([]any, len(list))
		for i, v := range list {
			values[i] = NormalizeValue(v)
		}
		return []Expr{Leaf{Fieldname: "name", Operator: ir.FilterIn, Value: values}}, nil
	}

	// Single pre-grouped condition: [[cond, op, cond, ...]].
	if len(list) == 1 {
		if inner, ok := list[0].([]any); ok && len(inner) >= 3 {
			if _, isOp := inner[1].(string); isOp {
				grouped, err := conditionToExpr(inner)
				if err != nil {
					return nil, qerr.ValidationDetail(list, "parsing nested filters: %v", err)
				}
				return []Expr{grouped}, nil
			}
		}
	}

	// Nested boolean tree: any odd-positioned string, or a leading string,
	// routes the whole list through the nested parser so malformed trees
	// get a precise validation error.
	if looksNested(list) {
		tree, err := parseNested(list)
		if err != nil {
			return nil, qerr.ValidationDetail(list, "parsing nested filters: %v", err)
		}
		if tree == nil {
			return nil, nil
		}
		return []Expr{tree}, nil
	}

	// Flat list of independent conditions.
	var exprs []Expr
	for _, item := range list {
		switch entry := item.(type) {
		case []any:
			leaf, err := parseSimple(entry)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, leaf)
		case map[string]any:
			sub, err := parseMap(entry)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, andAll(sub))
		default:
			return nil, qerr.ValidationDetail(item, "invalid item type %T in filter list; expected list, tuple, or map", item)
		}
	}
	return exprs, nil
}

// looksNested reports whether the list should be treated as a nested
// boolean tree: a string at any odd index, or a string in first position
// (malformed, but routed to the nested parser for a precise error).
func looksNested(list []any) bool {
	if _, ok := list[0].(string); ok {
		return true
	}
	for i, item := range list {
		if i%2 == 1 {
			if _, ok := item.(string); ok {
				return true
			}
		}
	}
	return false
}

// parseNested parses [cond, op, cond, op, cond, ...] with strict
// validation: the first element must be a condition, operators must be
// exactly "and" or "or" (case-insensitive), and a trailing operator
// without a condition is an error.
func parseNested(list []any) (Expr, error) {
	if len(list) == 0 {
		return nil, nil
	}

	first, ok := list[0].([]any)
	if !ok {
		return nil, qerr.ValidationDetail(list[0], "invalid start for filter condition; expected a condition list")
	}
	current, err := conditionToExpr(first)
	if err != nil {
		return nil, err
	}

	idx := 1
	for idx < len(list) {
		opStr, ok := list[idx].(string)
		if !ok {
			return nil, qerr.ValidationDetail(list[idx], "expected 'and' or 'or' operator")
		}
		op := ir.NormalizeOperator(opStr)
		if op != "and" && op != "or" {
			return nil, qerr.ValidationDetail(opStr, "expected 'and' or 'or' operator, found")
		}

		idx++
		if idx >= len(list) {
			return nil, qerr.ValidationDetail(opStr, "filter condition missing after operator")
		}
		nextRaw, ok := list[idx].([]any)
		if !ok {
			return nil, qerr.ValidationDetail(list[idx], "invalid filter condition; expected a condition list")
		}
		next, err := conditionToExpr(nextRaw)
		if err != nil {
			return nil, err
		}

		if op == "and" {
			current = And{Left: current, Right: next}
		} else {
			current = Or{Left: current, Right: next}
		}
		idx++
	}
	return current, nil
}

// conditionToExpr converts a single condition - either a simple 2/3/4
// tuple or a nested sub-tree - into an Expr.
func conditionToExpr(cond []any) (Expr, error) {
	// Nested sub-expression: first element is itself a condition and the
	// second element is a string operator.
	if len(cond) >= 3 {
		if _, isOp := cond[1].(string); isOp {
			if _, isCond := cond[0].([]any); isCond {
				return parseNested(cond)
			}
		}
	}
	return parseSimple(cond)
}

// parseSimple parses a 2-tuple (field, value), 3-tuple (field, operator,
// value), or 4-tuple (doctype, field, operator, value).
func parseSimple(cond []any) (Expr, error) {
	switch len(cond) {
	case 2:
		field, ok := cond[0].(string)
		if !ok {
			return nil, qerr.ValidationDetail(cond, "filter fieldname must be a string")
		}
		return makeLeaf("", field, ir.FilterEq, cond[1])
	case 3:
		field, fok := cond[0].(string)
		op, ook := cond[1].(string)
		if !fok || !ook || !ir.IsFilterOperator(op) {
			return nil, qerr.ValidationDetail(cond, "invalid simple filter format")
		}
		return makeLeaf("", field, ir.NormalizeOperator(op), cond[2])
	case 4:
		doctype, dok := cond[0].(string)
		field, fok := cond[1].(string)
		op, ook := cond[2].(string)
		if !dok || !fok || !ook || !ir.IsFilterOperator(op) {
			return nil, qerr.ValidationDetail(cond, "invalid simple filter format")
		}
		return makeLeaf(doctype, field, ir.NormalizeOperator(op), cond[3])
	default:
		return nil, qerr.ValidationDetail(cond, "unknown filter format")
	}
}

// makeLeaf validates the operator and normalizes the value.
func makeLeaf(doctype, field, operator string, value any) (Expr, error) {
	if !ir.IsFilterOperator(operator) {
		return nil, qerr.ValidationDetail(operator, "unsupported filter operator")
	}
	return Leaf{
		Doctype:   doctype,
		Fieldname: field,
		Operator:  operator,
		Value:     NormalizeValue(value),
	}, nil
}

// isScalar reports whether v is a primitive filter value.
func isScalar(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		time.Time:
		return true
	}
	return false
}

// allScalars reports whether every element of the list is a primitive.
func allScalars(list []any) bool {
	for _, v := range list {
		if !isScalar(v) {
			return false
		}
	}
	return true
}
