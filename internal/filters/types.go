// Package filters parses loosely-typed filter expressions into an explicit
// condition tree.
//
// Callers express filters as maps, flat lists of 2/3/4-tuples, or nested
// boolean trees of the form [condition, "and"|"or", condition, ...]. The
// parser converts all of these into the sealed Expr sum type below, with
// malformed structure rejected eagerly via ValidationError - never silently
// misinterpreted.
//
// The parser is purely structural: it never consults doctype metadata.
// Metadata-dependent conversions (date truncation, NULL-coalescing, join
// resolution) happen later, in the assembly engine.
package filters

// Expr is a sealed interface for parsed filter trees.
//
// Expr types:
//   - Leaf: a single (doctype, field, operator, value) condition
//   - And: conjunction of two sub-trees
//   - Or: disjunction of two sub-trees
type Expr interface {
	filterExpr() // Marker method - seals interface to this package
}

// Leaf is a single filter condition. Doctype is empty unless the condition
// came from a 4-tuple naming a (usually child) doctype explicitly.
// Operator is always lower-case.
type Leaf struct {
	Doctype   string
	Fieldname string
	Operator  string
	Value     any
}

func (Leaf) filterExpr() {}

// And is the conjunction of two filter trees.
type And struct {
	Left  Expr
	Right Expr
}

func (And) filterExpr() {}

// Or is the disjunction of two filter trees.
type Or struct {
	Left  Expr
	Right Expr
}

func (Or) filterExpr() {}

// andAll left-folds a list of trees with And. Returns nil for empty input.
func andAll(exprs []Expr) Expr {
	var out Expr
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if out == nil {
			out = e
		} else {
			out = And{Left: out, Right: e}
		}
	}
	return out
}

// orAll left-folds a list of trees with Or. Returns nil for empty input.
func orAll(exprs []Expr) Expr {
	var out Expr
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if out == nil {
			out = e
		} else {
			out = Or{Left: out, Right: e}
		}
	}
	return out
}

// Walk visits every leaf in the tree in left-to-right order.
func Walk(e Expr, visit func(Leaf)) {
	switch node := e.(type) {
	case Leaf:
		visit(node)
	case And:
		Walk(node.Left, visit)
		Walk(node.Right, visit)
	case Or:
		Walk(node.Left, visit)
		Walk(node.Right, visit)
	}
}
