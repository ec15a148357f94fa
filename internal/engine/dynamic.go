package engine

import (
	"regexp"
	"strings"

	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/meta"
)

// DynamicField is a field reference that reaches across a join: either
// through a Link field into the target doctype, or into a child table.
type DynamicField interface {
	dynamicField() // Marker method - seals interface to this package

	// Column returns the select expression for the referenced field.
	Column() ir.Column

	// ApplyJoin adds the field's join to the plan (idempotent).
	ApplyJoin(p *Plan)
}

// LinkTableField reaches through a Link field: selecting
// "assigned_to.full_name" joins the link target's table on its primary
// key matching the base row's link value.
type LinkTableField struct {
	Doctype       string // link target doctype
	Fieldname     string // field selected on the target
	ParentDoctype string
	LinkFieldname string // the Link field on the parent
	Alias         string
}

func (LinkTableField) dynamicField() {}

func (f LinkTableField) Column() ir.Column {
	return ir.Column{Table: f.Doctype, Name: f.Fieldname, Alias: f.Alias}
}

func (f LinkTableField) ApplyJoin(p *Plan) {
	p.AddJoin(Join{
		Kind:    JoinLeft,
		Doctype: f.Doctype,
		On: ir.Comparison{
			Field: ir.Column{Table: f.Doctype, Name: "name"},
			Op:    ir.CmpEq,
			Value: ir.Column{Table: f.ParentDoctype, Name: f.LinkFieldname},
		},
	})
}

// ChildTableField reaches into a child table's rows. The join predicate
// is parent/parenttype, plus parentfield when the originating field is
// known (it is not for tab-notation references).
type ChildTableField struct {
	Doctype         string // child doctype
	Fieldname       string
	ParentDoctype   string
	ParentFieldname string
	Alias           string
}

func (ChildTableField) dynamicField() {}

func (f ChildTableField) Column() ir.Column {
	return ir.Column{Table: f.Doctype, Name: f.Fieldname, Alias: f.Alias}
}

func (f ChildTableField) ApplyJoin(p *Plan) {
	on := []ir.Condition{
		ir.Comparison{
			Field: ir.Column{Table: f.Doctype, Name: "parent"},
			Op:    ir.CmpEq,
			Value: ir.Column{Table: f.ParentDoctype, Name: "name"},
		},
		ir.Comparison{
			Field: ir.Column{Table: f.Doctype, Name: "parenttype"},
			Op:    ir.CmpEq,
			Value: ir.NewValue(f.ParentDoctype),
		},
	}
	if f.ParentFieldname != "" {
		on = append(on, ir.Comparison{
			Field: ir.Column{Table: f.Doctype, Name: "parentfield"},
			Op:    ir.CmpEq,
			Value: ir.NewValue(f.ParentFieldname),
		})
	}
	p.AddJoin(Join{Kind: JoinLeft, Doctype: f.Doctype, On: ir.AndAll(on)})
}

var (
	childTabNotationRe = regexp.MustCompile("^[`\"]?tab([A-Za-z0-9 _-]+)[`\"]?\\.([`\"]?)([A-Za-z0-9_]+)$")
	dottedPartRe       = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	asSplitRe          = regexp.MustCompile(`(?i)\s+as\s+`)
)

// splitAlias strips a trailing " as alias" (case-insensitive, last
// occurrence wins) and returns the bare field and alias.
func splitAlias(field string) (bare, alias string) {
	parts := asSplitRe.Split(field, -1)
	if len(parts) < 2 {
		return strings.TrimSpace(field), ""
	}
	bare = strings.TrimSpace(parts[0])
	alias = strings.Trim(strings.TrimSpace(parts[len(parts)-1]), "`\"")
	return bare, alias
}

// parseDynamicField resolves a dotted or tab-qualified field reference
// against the base doctype. It returns nil when the string is not a
// dynamic reference, leaving the caller to fall back to plain-field
// parsing.
func parseDynamicField(field string, base *meta.Doctype, allowTabNotation bool) (DynamicField, error) {
	if !strings.Contains(field, ".") {
		return nil, nil
	}

	bare, alias := splitAlias(field)

	if allowTabNotation {
		if m := childTabNotationRe.FindStringSubmatch(bare); m != nil {
			childDoctype, childField := m[1], m[3]
			if childDoctype == base.Name {
				// tabBase.field qualifies the base table; not dynamic.
				return nil, nil
			}
			return ChildTableField{
				Doctype:       childDoctype,
				Fieldname:     childField,
				ParentDoctype: base.Name,
				Alias:         alias,
			}, nil
		}
	}

	parts := strings.SplitN(bare, ".", 2)
	if len(parts) != 2 {
		return nil, nil
	}
	left, right := parts[0], parts[1]
	if !dottedPartRe.MatchString(left) || !dottedPartRe.MatchString(right) {
		return nil, nil
	}
	if !base.HasOwnField(left) {
		return nil, nil
	}

	f, _ := base.Field(left)
	switch {
	case f.Fieldtype == meta.TypeLink:
		return LinkTableField{
			Doctype:       f.Options,
			Fieldname:     right,
			ParentDoctype: base.Name,
			LinkFieldname: left,
			Alias:         alias,
		}, nil
	case f.Fieldtype.IsTable():
		return ChildTableField{
			Doctype:         f.Options,
			Fieldname:       right,
			ParentDoctype:   base.Name,
			ParentFieldname: left,
			Alias:           alias,
		}, nil
	}
	return nil, nil
}
