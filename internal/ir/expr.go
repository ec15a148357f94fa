package ir

// Expr is a sealed interface for selectable expressions.
//
// Expr types:
//   - Column: a (possibly table-qualified, possibly aliased) column reference
//   - Star: the * wildcard, optionally table-qualified
//   - Value: a literal rendered as a bound parameter
//   - FunctionCall: an allow-listed SQL function invocation
//   - ArithmeticExpr: a binary +, -, *, / expression
//   - Raw: a pre-rendered SQL fragment (permission hooks only)
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// Column references a column, optionally qualified by doctype and aliased.
// Table holds the doctype name without the table prefix; the renderer adds
// the prefix and dialect quoting.
type Column struct {
	Table string
	Name  string
	Alias string
}

func (Column) exprNode() {}

// WithAlias returns a copy of the column carrying the given alias.
func (c Column) WithAlias(alias string) Column {
	c.Alias = alias
	return c
}

// Star is the * wildcard. Table, when set, qualifies it (table.*).
type Star struct {
	Table string
}

func (Star) exprNode() {}

// Value is a literal rendered as a bound parameter, never interpolated.
type Value struct {
	V any
}

func (Value) exprNode() {}

// NewValue wraps a literal in a Value expression.
func NewValue(v any) Value {
	return Value{V: v}
}

// FunctionCall is an invocation of an allow-listed SQL function.
// Name is the canonical uppercase function name.
type FunctionCall struct {
	Name  string
	Args  []Expr
	Alias string
}

func (FunctionCall) exprNode() {}

// ArithmeticOp is a binary arithmetic operator.
type ArithmeticOp string

const (
	OpAdd ArithmeticOp = "+"
	OpSub ArithmeticOp = "-"
	OpMul ArithmeticOp = "*"
	OpDiv ArithmeticOp = "/"
)

// ArithmeticExpr is a binary arithmetic expression over two operands.
type ArithmeticExpr struct {
	Op    ArithmeticOp
	Left  Expr
	Right Expr
	Alias string
}

func (ArithmeticExpr) exprNode() {}

// Raw is a pre-rendered SQL fragment. It exists solely for permission
// query conditions contributed by hooks and scripts; nothing derived from
// caller-supplied field or filter input may become a Raw.
type Raw struct {
	SQL string
}

func (Raw) exprNode() {}

// ExprAlias returns the alias attached to an expression, if any.
func ExprAlias(e Expr) string {
	switch v := e.(type) {
	case Column:
		return v.Alias
	case FunctionCall:
		return v.Alias
	case ArithmeticExpr:
		return v.Alias
	default:
		return ""
	}
}
