package engine

import (
	"regexp"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/meta"
	"github.com/roach88/docquery/internal/perms"
	"github.com/roach88/docquery/internal/qerr"
	"github.com/roach88/docquery/internal/sqlfn"
)

var (
	// allowedFieldPattern accepts the documented select grammar: simple
	// names, backtick-quoted names, table-qualified names, and an
	// optional " as alias" suffix.
	allowedFieldPattern = regexp.MustCompile(
		"(?i)^(?:(`[A-Za-z0-9 _-]+`|[A-Za-z0-9_]+)\\.)?(`[A-Za-z0-9_]+`|[A-Za-z0-9_]+)(?:\\s+as\\s+(?:`[A-Za-z0-9 _-]+`|[A-Za-z0-9_]+))?$")

	// functionCallPattern detects bare SQL function-call syntax, which is
	// rejected in string fields in favor of the declarative map form.
	functionCallPattern = regexp.MustCompile(`^\s*[A-Za-z_][A-Za-z0-9_]*\s*\(`)

	// fieldParsePattern captures an optional tab-prefixed table part and
	// the field name, with or without backticks.
	fieldParsePattern = regexp.MustCompile("^(?:(`?)(tab[A-Za-z0-9 _-]+)(`?)\\.)?(`?)([A-Za-z0-9_]+)(`?)$")

	simpleFieldPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	digitPattern       = regexp.MustCompile(`^[0-9]+$`)
)

// selectFieldMemo caches the result of validating a select field string.
// Validation is a pure function of the string, so the memo is shared
// process-wide and bounded.
var selectFieldMemo, _ = lru.New[string, string](1024)

// validateSelectField checks a string field against the select grammar.
// Returns the recorded error message ("" means valid).
func validateSelectField(field string) error {
	if msg, ok := selectFieldMemo.Get(field); ok {
		if msg == "" {
			return nil
		}
		return qerr.ValidationDetail(field, "%s", msg)
	}

	msg := classifySelectField(field)
	selectFieldMemo.Add(field, msg)
	if msg == "" {
		return nil
	}
	return qerr.ValidationDetail(field, "%s", msg)
}

func classifySelectField(field string) string {
	if field == "*" || digitPattern.MatchString(field) {
		return ""
	}
	if functionCallPattern.MatchString(field) {
		return "SQL functions are not allowed as strings in SELECT; use the map syntax like {\"COUNT\": \"*\"}"
	}
	if allowedFieldPattern.MatchString(field) {
		return ""
	}
	return "invalid field format for SELECT; field names must be simple, backticked, table-qualified, aliased, or *"
}

// planField is one parsed select entry before permission filtering.
type planField struct {
	expr    ir.Expr      // set for plain columns, functions, operators
	dynamic DynamicField // set for link/child-table references
	child   *ChildQuery  // set for child-query entries
}

// applyFields parses, permission-filters, and installs the select list.
func (b *builder) applyFields(fields []any) error {
	parsed, err := b.parseFields(fields)
	if err != nil {
		return err
	}

	if b.applyPerms {
		parsed, err = b.filterFieldsByPermission(parsed)
		if err != nil {
			return err
		}
	}

	if len(parsed) == 0 {
		parsed = []planField{{expr: ir.Column{Table: b.dt.Name, Name: "name"}}}
	}

	// Aliases of permission-dropped fields must not stay referenceable
	// from group-by or order-by.
	for _, pf := range parsed {
		alias := ""
		if pf.dynamic != nil {
			alias = pf.dynamic.Column().Alias
		} else if pf.expr != nil {
			alias = ir.ExprAlias(pf.expr)
		}
		if alias != "" {
			b.aliases[alias] = struct{}{}
		}
	}

	for _, pf := range parsed {
		switch {
		case pf.dynamic != nil:
			pf.dynamic.ApplyJoin(b.plan)
			b.plan.AddField(pf.dynamic.Column())
		case pf.child != nil:
			b.plan.AddChildQuery(*pf.child)
		default:
			b.plan.AddField(pf.expr)
		}
	}
	return nil
}

// parseFields expands comma-separated strings and dispatches each entry
// to the string or map parser.
func (b *builder) parseFields(fields []any) ([]planField, error) {
	var out []planField
	for _, item := range fields {
		if item == nil {
			continue
		}
		switch entry := item.(type) {
		case string:
			for _, part := range strings.Split(entry, ",") {
				part = strings.TrimSpace(normalizeFieldString(part))
				if part == "" {
					continue
				}
				if err := validateSelectField(part); err != nil {
					return nil, err
				}
				pf, err := b.parseStringField(part)
				if err != nil {
					return nil, err
				}
				out = append(out, pf)
			}
		case map[string]any:
			pfs, err := b.parseMapField(entry)
			if err != nil {
				return nil, err
			}
			out = append(out, pfs...)
		case ir.Expr:
			out = append(out, planField{expr: entry})
		default:
			return nil, qerr.ValidationDetail(item, "invalid field type %T", item)
		}
	}
	return out, nil
}

// parseStringField resolves a validated select string to a column or
// dynamic field.
func (b *builder) parseStringField(field string) (planField, error) {
	if field == "*" {
		return planField{expr: ir.Star{Table: b.dt.Name}}, nil
	}

	df, err := parseDynamicField(field, b.dt, true)
	if err != nil {
		return planField{}, err
	}
	if df != nil {
		if err := b.checkDynamicFieldPermission(df); err != nil {
			return planField{}, err
		}
		return planField{dynamic: df}, nil
	}

	bare, alias := splitAlias(field)
	m := fieldParsePattern.FindStringSubmatch(bare)
	if m == nil {
		return planField{}, qerr.ValidationDetail(field, "could not parse field")
	}
	tablePart, fieldName := m[2], m[5]

	table := b.dt.Name
	if tablePart != "" {
		table = strings.TrimPrefix(tablePart, "tab")
		if !doctypeNamePattern.MatchString(table) {
			return planField{}, qerr.ValidationDetail(field, "invalid characters in table name")
		}
	}
	return planField{expr: ir.Column{Table: table, Name: fieldName, Alias: alias}}, nil
}

// parseMapField dispatches a map entry: function/operator entries go
// through the sqlfn parser; anything else is a child-query entry of the
// form {table_fieldname: [child fields...]}.
func (b *builder) parseMapField(entry map[string]any) ([]planField, error) {
	if sqlfn.IsFunctionEntry(entry) || sqlfn.IsOperatorEntry(entry) {
		parser := &sqlfn.Parser{
			BaseTable: b.dt.Name,
			CheckField: func(fieldname string) error {
				return b.checkFieldPermission(b.dt.Name, fieldname, b.args.ParentDoctype)
			},
			RegisterAlias: func(alias string) {
				b.aliases[alias] = struct{}{}
			},
		}
		expr, err := parser.Parse(entry)
		if err != nil {
			return nil, err
		}
		return []planField{{expr: expr}}, nil
	}

	var out []planField
	for fieldname, raw := range entry {
		if fieldname == strings.ToUpper(fieldname) && fieldname != strings.ToLower(fieldname) {
			return nil, qerr.ValidationDetail(entry, "unsupported function or operator: %s", fieldname)
		}
		childFields, ok := toStringList(raw)
		if !ok {
			return nil, qerr.ValidationDetail(raw, "child query fields for %q must be a list of field names", fieldname)
		}
		cq, err := b.newChildQuery(fieldname, childFields)
		if err != nil {
			return nil, err
		}
		out = append(out, planField{child: cq})
	}
	return out, nil
}

// newChildQuery validates that fieldname is a Table field of the base
// doctype and builds the child-query descriptor.
func (b *builder) newChildQuery(fieldname string, fields []string) (*ChildQuery, error) {
	f, ok := b.dt.Field(fieldname)
	if !ok || !f.Fieldtype.IsTable() {
		return nil, qerr.Validationf("%s is not a child table field of %s", fieldname, b.dt.Name)
	}
	return &ChildQuery{
		Doctype:       f.Options,
		Fieldname:     fieldname,
		Fields:        fields,
		ParentDoctype: b.dt.Name,
	}, nil
}

func toStringList(raw any) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// checkDynamicFieldPermission validates a dynamic reference at parse
// time: child fields against the child doctype, link fields against both
// the parent and the target.
func (b *builder) checkDynamicFieldPermission(df DynamicField) error {
	if !b.applyPerms {
		return nil
	}
	switch f := df.(type) {
	case ChildTableField:
		return b.checkFieldPermission(f.Doctype, f.Fieldname, f.ParentDoctype)
	case LinkTableField:
		if err := b.checkFieldPermission(b.dt.Name, f.LinkFieldname, b.args.ParentDoctype); err != nil {
			return err
		}
		return b.checkFieldPermission(f.Doctype, f.Fieldname, "")
	}
	return nil
}

// filterFieldsByPermission drops select entries the user's permission
// level excludes and expands * to exactly the permitted set.
func (b *builder) filterFieldsByPermission(parsed []planField) ([]planField, error) {
	ptype := b.permissionType(b.dt.Name)
	permitted := b.permittedFieldSet(b.dt.Name, b.args.ParentDoctype, ptype)

	var out []planField
	for _, pf := range parsed {
		switch {
		case pf.child != nil:
			if ptype == perms.PermSelect {
				continue
			}
			childPermitted := b.permittedFieldSet(pf.child.Doctype, pf.child.ParentDoctype, b.permissionType(pf.child.Doctype))
			kept := filterPermitted(pf.child.Fields, childPermitted)
			if len(kept) == 0 {
				continue
			}
			cq := *pf.child
			cq.Fields = kept
			out = append(out, planField{child: &cq})

		case pf.dynamic != nil:
			switch f := pf.dynamic.(type) {
			case ChildTableField:
				if ptype == perms.PermSelect {
					continue
				}
				childPermitted := b.permittedFieldSet(f.Doctype, f.ParentDoctype, b.permissionType(f.Doctype))
				if fieldPermitted(f.Fieldname, childPermitted) {
					out = append(out, pf)
				}
			case LinkTableField:
				if !fieldPermitted(f.LinkFieldname, permitted) {
					continue
				}
				if !b.eng.Perms.HasPermission(f.Doctype, perms.PermSelect, b.args.User) &&
					!b.eng.Perms.HasPermission(f.Doctype, perms.PermRead, b.args.User) {
					continue
				}
				targetPermitted := b.permittedFieldSet(f.Doctype, "", b.permissionType(f.Doctype))
				if fieldPermitted(f.Fieldname, targetPermitted) {
					out = append(out, pf)
				}
			}

		default:
			switch e := pf.expr.(type) {
			case ir.Star:
				for _, name := range b.expandStar(permitted) {
					out = append(out, planField{expr: ir.Column{Table: b.dt.Name, Name: name}})
				}
			case ir.Column:
				if meta.IsOptionalField(e.Name) || fieldPermitted(e.Name, permitted) {
					out = append(out, pf)
				}
			default:
				// Functions and operators already checked their column
				// arguments during parsing.
				out = append(out, pf)
			}
		}
	}
	return out, nil
}

// expandStar returns the concrete column list for a * selection: the
// permitted set when field permissions are defined, else every declared
// field plus the primary key. Sorted for deterministic output.
func (b *builder) expandStar(permitted map[string]struct{}) []string {
	var names []string
	if permitted != nil {
		for name := range permitted {
			names = append(names, name)
		}
	} else {
		names = append(names, "name")
		for _, f := range b.dt.Fields {
			if !f.Fieldtype.IsTable() {
				names = append(names, f.Fieldname)
			}
		}
	}
	sort.Strings(names)
	return names
}

// fieldPermitted treats a nil set as "no field-level rules defined".
func fieldPermitted(name string, permitted map[string]struct{}) bool {
	if permitted == nil {
		return true
	}
	_, ok := permitted[name]
	return ok
}

func filterPermitted(fields []string, permitted map[string]struct{}) []string {
	if permitted == nil {
		return fields
	}
	var kept []string
	for _, f := range fields {
		if _, ok := permitted[f]; ok {
			kept = append(kept, f)
		}
	}
	return kept
}
