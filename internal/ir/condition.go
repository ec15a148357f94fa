package ir

// Condition is a sealed interface for WHERE-clause nodes.
//
// Condition types:
//   - Comparison: field <op> value
//   - NullCheck: field IS [NOT] NULL
//   - Between: field BETWEEN low AND high
//   - In: field [NOT] IN (values...)
//   - And, Or: boolean trees
//   - RawCondition: a pre-rendered fragment (permission hooks only)
type Condition interface {
	condNode() // Marker method - seals interface to this package
}

// Comparison compares a field expression against a single operand.
// Op is one of the scalar comparison operators (=, !=, <, >, <=, >=,
// like, not like). LIKE variants are re-mapped per dialect at render time.
type Comparison struct {
	Field Expr
	Op    CompareOp
	Value Expr
}

func (Comparison) condNode() {}

// CompareOp is a scalar comparison operator.
type CompareOp string

const (
	CmpEq      CompareOp = "="
	CmpNe      CompareOp = "!="
	CmpLt      CompareOp = "<"
	CmpGt      CompareOp = ">"
	CmpLe      CompareOp = "<="
	CmpGe      CompareOp = ">="
	CmpLike    CompareOp = "like"
	CmpNotLike CompareOp = "not like"
)

// NullCheck tests a field for NULL. Negate produces IS NOT NULL.
type NullCheck struct {
	Field  Expr
	Negate bool
}

func (NullCheck) condNode() {}

// Between tests a field against an inclusive range.
type Between struct {
	Field Expr
	From  Expr
	To    Expr
}

func (Between) condNode() {}

// In tests a field for membership in a value list.
// An empty Values list must never be rendered; the filter layer
// normalizes empty collections to a single empty-string value first.
type In struct {
	Field  Expr
	Values []Expr
	Negate bool
}

func (In) condNode() {}

// And combines conditions conjunctively. Rendered with parentheses.
type And struct {
	Conditions []Condition
}

func (And) condNode() {}

// Or combines conditions disjunctively. Rendered with parentheses.
type Or struct {
	Conditions []Condition
}

func (Or) condNode() {}

// RawCondition is a pre-rendered SQL fragment contributed by permission
// query hooks or scripts. Always wrapped in parentheses at render time.
type RawCondition struct {
	SQL string
}

func (RawCondition) condNode() {}

// AndAll combines conditions with AND, flattening trivial cases:
// zero conditions yield nil, one condition is returned unchanged.
func AndAll(conds []Condition) Condition {
	switch len(conds) {
	case 0:
		return nil
	case 1:
		return conds[0]
	default:
		return And{Conditions: conds}
	}
}

// OrAll combines conditions with OR, flattening trivial cases.
func OrAll(conds []Condition) Condition {
	switch len(conds) {
	case 0:
		return nil
	case 1:
		return conds[0]
	default:
		return Or{Conditions: conds}
	}
}
