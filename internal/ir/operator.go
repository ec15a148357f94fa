package ir

import "strings"

// Filter operators accepted in filter expressions. These are the
// caller-facing operator spellings; the renderer and engine map them onto
// Condition nodes.
const (
	FilterEq      = "="
	FilterNe      = "!="
	FilterLt      = "<"
	FilterGt      = ">"
	FilterLe      = "<="
	FilterGe      = ">="
	FilterIn      = "in"
	FilterNotIn   = "not in"
	FilterLike    = "like"
	FilterNotLike = "not like"
	FilterBetween = "between"
	FilterIs      = "is" // value "set" / "not set"
)

// filterOperators is the closed set of scalar filter operators.
var filterOperators = map[string]struct{}{
	FilterEq: {}, FilterNe: {}, FilterLt: {}, FilterGt: {},
	FilterLe: {}, FilterGe: {}, FilterIn: {}, FilterNotIn: {},
	FilterLike: {}, FilterNotLike: {}, FilterBetween: {}, FilterIs: {},
}

// Nested-set hierarchy operators. These resolve through a tree lookup
// (lft/rgt bounds) instead of a direct column comparison.
const (
	HierarchyAncestorsOf            = "ancestors of"
	HierarchyDescendantsOf          = "descendants of"
	HierarchyNotAncestorsOf         = "not ancestors of"
	HierarchyNotDescendantsOf       = "not descendants of"
	HierarchyDescendantsOfInclusive = "descendants of (inclusive)"
)

var hierarchyOperators = map[string]struct{}{
	HierarchyAncestorsOf: {}, HierarchyDescendantsOf: {},
	HierarchyNotAncestorsOf: {}, HierarchyNotDescendantsOf: {},
	HierarchyDescendantsOfInclusive: {},
}

// Date-range operators resolved to between filters over named spans.
const (
	RangeTimespan = "timespan"
	RangePrevious = "previous"
	RangeNext     = "next"
)

var rangeOperators = map[string]struct{}{
	RangeTimespan: {}, RangePrevious: {}, RangeNext: {},
}

// IsFilterOperator reports whether s (case-insensitive) is any accepted
// filter operator: scalar, hierarchy, or date-range.
func IsFilterOperator(s string) bool {
	f := strings.ToLower(strings.TrimSpace(s))
	if _, ok := filterOperators[f]; ok {
		return true
	}
	if _, ok := hierarchyOperators[f]; ok {
		return true
	}
	_, ok := rangeOperators[f]
	return ok
}

// IsHierarchyOperator reports whether s is a nested-set operator.
func IsHierarchyOperator(s string) bool {
	_, ok := hierarchyOperators[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// IsRangeOperator reports whether s is a timespan/previous/next operator.
func IsRangeOperator(s string) bool {
	_, ok := rangeOperators[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// NormalizeOperator lower-cases and trims an operator spelling.
func NormalizeOperator(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
