package engine

import (
	"github.com/google/uuid"

	"github.com/roach88/docquery/internal/ir"
)

// JoinKind distinguishes the two join shapes the engine emits.
type JoinKind string

const (
	JoinLeft  JoinKind = "LEFT JOIN"
	JoinInner JoinKind = "INNER JOIN"
)

// Join is a join to another doctype's table. Joins are keyed by doctype:
// adding a join for an already-joined doctype is a no-op.
type Join struct {
	Kind    JoinKind
	Doctype string
	On      ir.Condition
}

// OrderSpec is a single ORDER BY entry.
type OrderSpec struct {
	Expr ir.Expr
	Desc bool
}

// ChildQuery describes a secondary query for a child table selected as a
// one-to-many field. It runs after the primary query against the parent
// names it returned, and its rows are stitched onto each parent row by
// parent/parentfield.
type ChildQuery struct {
	Doctype       string
	Fieldname     string
	Fields        []string
	ParentDoctype string
}

// Plan is the assembled query. It is mutable while the engine builds it
// and frozen before being handed to the caller; mutating a frozen plan is
// a programming error and panics.
type Plan struct {
	// Token uniquely identifies this assembly for logging and tracing.
	Token string

	Doctype string
	Fields  []ir.Expr
	Joins   []Join
	Where   []ir.Condition // combined with AND at render time
	GroupBy []ir.Expr
	OrderBy []OrderSpec

	Limit     int
	Offset    int
	HasLimit  bool
	HasOffset bool

	Distinct   bool
	ForUpdate  bool
	SkipLocked bool
	NoWait     bool

	ChildQueries []ChildQuery

	frozen bool
}

// NewPlan returns an empty plan for the doctype with a fresh token.
func NewPlan(doctype string) *Plan {
	return &Plan{Token: uuid.NewString(), Doctype: doctype}
}

func (p *Plan) mutable() {
	if p.frozen {
		panic("docquery: mutating a frozen plan")
	}
}

// AddField appends a select expression.
func (p *Plan) AddField(e ir.Expr) {
	p.mutable()
	p.Fields = append(p.Fields, e)
}

// HasJoin reports whether a join to the doctype's table already exists.
func (p *Plan) HasJoin(doctype string) bool {
	for _, j := range p.Joins {
		if j.Doctype == doctype {
			return true
		}
	}
	return false
}

// AddJoin adds a join unless one to the same doctype already exists.
func (p *Plan) AddJoin(j Join) {
	p.mutable()
	if p.HasJoin(j.Doctype) {
		return
	}
	p.Joins = append(p.Joins, j)
}

// AddCondition appends a WHERE condition. Nil conditions are ignored.
func (p *Plan) AddCondition(c ir.Condition) {
	p.mutable()
	if c == nil {
		return
	}
	p.Where = append(p.Where, c)
}

// AddChildQuery records a secondary child-table query.
func (p *Plan) AddChildQuery(cq ChildQuery) {
	p.mutable()
	p.ChildQueries = append(p.ChildQueries, cq)
}

// Freeze marks the plan immutable.
func (p *Plan) Freeze() {
	p.frozen = true
}

// Frozen reports whether the plan has been frozen.
func (p *Plan) Frozen() bool {
	return p.frozen
}
