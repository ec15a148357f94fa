// Package querysql renders frozen query plans to dialect-correct,
// parameterized SQL. Every literal value becomes a bind parameter; the
// only raw text in the output comes from RawCondition fragments, which
// the engine restricts to permission hooks and scripts.
package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/docquery/internal/dialect"
	"github.com/roach88/docquery/internal/engine"
	"github.com/roach88/docquery/internal/ir"
)

// Compiled is a rendered query: SQL text plus bind parameters in
// placeholder order.
type Compiled struct {
	SQL    string
	Params []any
}

// Compile renders a plan for the given dialect. The plan must be frozen.
func Compile(p *engine.Plan, d dialect.Dialect) (Compiled, error) {
	if !p.Frozen() {
		return Compiled{}, fmt.Errorf("plan for %s is not frozen", p.Doctype)
	}
	c := &compiler{dialect: d}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if p.Distinct {
		sb.WriteString("DISTINCT ")
	}

	if len(p.Fields) == 0 {
		return Compiled{}, fmt.Errorf("plan for %s has no select fields", p.Doctype)
	}
	for i, f := range p.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		s, err := c.expr(f, true)
		if err != nil {
			return Compiled{}, err
		}
		sb.WriteString(s)
	}

	sb.WriteString(" FROM ")
	sb.WriteString(dialect.QuoteTable(d, p.Doctype))

	for _, j := range p.Joins {
		sb.WriteString(" ")
		sb.WriteString(string(j.Kind))
		sb.WriteString(" ")
		sb.WriteString(dialect.QuoteTable(d, j.Doctype))
		sb.WriteString(" ON ")
		on, err := c.condition(j.On, false)
		if err != nil {
			return Compiled{}, err
		}
		sb.WriteString(on)
	}

	if len(p.Where) > 0 {
		where, err := c.condition(ir.AndAll(p.Where), true)
		if err != nil {
			return Compiled{}, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}

	if len(p.GroupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		for i, g := range p.GroupBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			s, err := c.expr(g, false)
			if err != nil {
				return Compiled{}, err
			}
			sb.WriteString(s)
		}
	}

	if len(p.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, o := range p.OrderBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			s, err := c.expr(o.Expr, false)
			if err != nil {
				return Compiled{}, err
			}
			sb.WriteString(s)
			if o.Desc {
				sb.WriteString(" DESC")
			} else {
				sb.WriteString(" ASC")
			}
		}
	}

	if p.HasLimit {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(p.Limit))
	}
	if p.HasOffset {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(p.Offset))
	}

	if p.ForUpdate {
		sb.WriteString(" FOR UPDATE")
		if p.SkipLocked {
			sb.WriteString(" SKIP LOCKED")
		} else if p.NoWait {
			sb.WriteString(" NOWAIT")
		}
	}

	return Compiled{SQL: sb.String(), Params: c.params}, nil
}

type compiler struct {
	dialect dialect.Dialect
	params  []any
}

// bind appends a parameter and returns its placeholder.
func (c *compiler) bind(v any) string {
	c.params = append(c.params, v)
	return c.dialect.Placeholder(len(c.params))
}

// expr renders a select expression. Aliases render only in the select
// list, never inside predicates or clauses.
func (c *compiler) expr(e ir.Expr, withAlias bool) (string, error) {
	switch v := e.(type) {
	case ir.Column:
		var sb strings.Builder
		if v.Table != "" {
			sb.WriteString(dialect.QuoteTable(c.dialect, v.Table))
			sb.WriteString(".")
		}
		sb.WriteString(c.dialect.QuoteIdent(v.Name))
		if withAlias && v.Alias != "" {
			sb.WriteString(" AS ")
			sb.WriteString(c.dialect.QuoteIdent(v.Alias))
		}
		return sb.String(), nil

	case ir.Star:
		if v.Table != "" {
			return dialect.QuoteTable(c.dialect, v.Table) + ".*", nil
		}
		return "*", nil

	case ir.Value:
		return c.bind(v.V), nil

	case ir.FunctionCall:
		name := v.Name
		if name == "IFNULL" {
			name = c.dialect.IfNullFunc()
		}
		if name == "EXTRACT" {
			return c.extractCall(v, withAlias)
		}
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			s, err := c.expr(a, false)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		out := name + "(" + strings.Join(args, ", ") + ")"
		if withAlias && v.Alias != "" {
			out += " AS " + c.dialect.QuoteIdent(v.Alias)
		}
		return out, nil

	case ir.ArithmeticExpr:
		left, err := c.expr(v.Left, false)
		if err != nil {
			return "", err
		}
		right, err := c.expr(v.Right, false)
		if err != nil {
			return "", err
		}
		out := "(" + left + " " + string(v.Op) + " " + right + ")"
		if withAlias && v.Alias != "" {
			out += " AS " + c.dialect.QuoteIdent(v.Alias)
		}
		return out, nil

	case ir.Raw:
		return v.SQL, nil
	}
	return "", fmt.Errorf("unsupported expression %T", e)
}

// extractDateParts mirrors the parse-time allow-list; the part renders
// as a bare keyword, so it is re-checked here.
var extractDateParts = map[string]struct{}{
	"year": {}, "quarter": {}, "month": {}, "week": {},
	"day": {}, "hour": {}, "minute": {}, "second": {},
}

// extractCall renders EXTRACT in its keyword form, EXTRACT(PART FROM
// source). The date part is never a bind parameter: MariaDB and Postgres
// both require a bare keyword.
func (c *compiler) extractCall(v ir.FunctionCall, withAlias bool) (string, error) {
	if len(v.Args) != 2 {
		return "", fmt.Errorf("EXTRACT requires two arguments, got %d", len(v.Args))
	}

	var part string
	switch p := v.Args[0].(type) {
	case ir.Value:
		part, _ = p.V.(string)
	case ir.Column:
		part = p.Name
	}
	part = strings.ToLower(part)
	if _, ok := extractDateParts[part]; !ok {
		return "", fmt.Errorf("unsupported EXTRACT date part %q", part)
	}

	source, err := c.expr(v.Args[1], false)
	if err != nil {
		return "", err
	}
	out := "EXTRACT(" + strings.ToUpper(part) + " FROM " + source + ")"
	if withAlias && v.Alias != "" {
		out += " AS " + c.dialect.QuoteIdent(v.Alias)
	}
	return out, nil
}

// condition renders a WHERE/ON predicate. top marks the outermost node,
// which needs no wrapping parentheses.
func (c *compiler) condition(cond ir.Condition, top bool) (string, error) {
	switch v := cond.(type) {
	case ir.Comparison:
		field, err := c.expr(v.Field, false)
		if err != nil {
			return "", err
		}
		value, err := c.expr(v.Value, false)
		if err != nil {
			return "", err
		}
		op, err := c.compareOp(v.Op)
		if err != nil {
			return "", err
		}
		return field + " " + op + " " + value, nil

	case ir.NullCheck:
		field, err := c.expr(v.Field, false)
		if err != nil {
			return "", err
		}
		if v.Negate {
			return field + " IS NOT NULL", nil
		}
		return field + " IS NULL", nil

	case ir.Between:
		field, err := c.expr(v.Field, false)
		if err != nil {
			return "", err
		}
		from, err := c.expr(v.From, false)
		if err != nil {
			return "", err
		}
		to, err := c.expr(v.To, false)
		if err != nil {
			return "", err
		}
		return field + " BETWEEN " + from + " AND " + to, nil

	case ir.In:
		field, err := c.expr(v.Field, false)
		if err != nil {
			return "", err
		}
		if len(v.Values) == 0 {
			return "", fmt.Errorf("IN condition on %s has no values", field)
		}
		values := make([]string, len(v.Values))
		for i, val := range v.Values {
			s, err := c.expr(val, false)
			if err != nil {
				return "", err
			}
			values[i] = s
		}
		op := "IN"
		if v.Negate {
			op = "NOT IN"
		}
		return field + " " + op + " (" + strings.Join(values, ", ") + ")", nil

	case ir.And:
		return c.boolTree(v.Conditions, " AND ", top)

	case ir.Or:
		return c.boolTree(v.Conditions, " OR ", top)

	case ir.RawCondition:
		return v.SQL, nil
	}
	return "", fmt.Errorf("unsupported condition %T", cond)
}

func (c *compiler) boolTree(conds []ir.Condition, sep string, top bool) (string, error) {
	parts := make([]string, len(conds))
	for i, cond := range conds {
		s, err := c.condition(cond, false)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	joined := strings.Join(parts, sep)
	if top {
		return joined, nil
	}
	return "(" + joined + ")", nil
}

// compareOp maps an IR comparison operator to dialect SQL. LIKE variants
// defer to the dialect for case-insensitive matching.
func (c *compiler) compareOp(op ir.CompareOp) (string, error) {
	switch op {
	case ir.CmpEq, ir.CmpNe, ir.CmpLt, ir.CmpGt, ir.CmpLe, ir.CmpGe:
		return string(op), nil
	case ir.CmpLike:
		return c.dialect.LikeOperator(false), nil
	case ir.CmpNotLike:
		return c.dialect.LikeOperator(true), nil
	}
	return "", fmt.Errorf("unsupported comparison operator %q", op)
}
