package engine

import (
	"fmt"

	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/meta"
	"github.com/roach88/docquery/internal/perms"
	"github.com/roach88/docquery/internal/qerr"
)

// checkReadPermission fails unless the user holds select or read on the
// permission doctype. Child-table queries check against the parent.
func (b *builder) checkReadPermission() error {
	if b.eng.Perms.HasPermission(b.permDoctype, perms.PermSelect, b.args.User) ||
		b.eng.Perms.HasPermission(b.permDoctype, perms.PermRead, b.args.User) {
		return nil
	}
	return &qerr.PermissionError{Doctype: b.permDoctype, User: b.args.User}
}

// permissionType returns the effective permission type for a doctype:
// select when the user holds only select, read otherwise.
func (b *builder) permissionType(doctype string) string {
	rp := b.eng.Perms.RolePermissions(doctype, b.args.User)
	if rp.OnlySelect() {
		return perms.PermSelect
	}
	return perms.PermRead
}

// permittedFieldSet returns the permitted-column set for the triple,
// memoized per call. A nil result means the oracle defines no field-level
// rules for the doctype.
func (b *builder) permittedFieldSet(doctype, parentDoctype, ptype string) map[string]struct{} {
	key := doctype + "\x00" + parentDoctype + "\x00" + ptype
	fields, ok := b.permittedCache[key]
	if !ok {
		fields = b.eng.Perms.PermittedFields(doctype, parentDoctype, ptype, b.args.User)
		b.permittedCache[key] = fields
	}
	if fields == nil {
		return nil
	}
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// checkFieldPermission rejects access to a field the user's permission
// level excludes. Used for filter fields, clause fields, and function
// arguments, which fail loudly instead of being silently dropped.
func (b *builder) checkFieldPermission(doctype, fieldname, parentDoctype string) error {
	if !b.applyPerms || meta.IsOptionalField(fieldname) {
		return nil
	}
	permitted := b.permittedFieldSet(doctype, parentDoctype, b.permissionType(doctype))
	if permitted == nil {
		return nil
	}
	if _, ok := permitted[fieldname]; !ok {
		return &qerr.PermissionError{Doctype: doctype, Fieldname: fieldname, User: b.args.User}
	}
	return nil
}

// addPermissionConditions appends document-level permission predicates.
//
// Layering, most specific first:
//  1. child-table queries join the parent table so conditions can
//     reference parent fields
//  2. no role-level read/select: only shared documents are visible
//  3. owner-gated permissions: owner = user, superseding user permissions
//  4. otherwise user-permission restrictions per link field
//  5. hook and script conditions
//  6. any restriction is OR'd with explicitly shared documents
//  7. no conditions at all means role permission is unconditional
func (b *builder) addPermissionConditions() error {
	permTable := b.permDoctype

	if b.permDoctype != b.dt.Name {
		b.plan.AddJoin(Join{
			Kind:    JoinInner,
			Doctype: b.permDoctype,
			On: ir.Comparison{
				Field: ir.Column{Table: b.dt.Name, Name: "parent"},
				Op:    ir.CmpEq,
				Value: ir.Column{Table: b.permDoctype, Name: "name"},
			},
		})
	}

	rp := b.eng.Perms.RolePermissions(b.permDoctype, b.args.User)
	if !rp.Read && !rp.Select {
		shared := b.eng.Perms.Shared(b.permDoctype, b.args.User)
		if len(shared) == 0 {
			return &qerr.PermissionError{Doctype: b.permDoctype, User: b.args.User}
		}
		b.plan.AddCondition(inNames(permTable, shared))
		return nil
	}

	var conditions []ir.Condition

	if perms.RequiresOwnerConstraint(rp) {
		conditions = append(conditions, ir.Comparison{
			Field: ir.Column{Table: permTable, Name: "owner"},
			Op:    ir.CmpEq,
			Value: ir.NewValue(b.args.User),
		})
	} else {
		userConds, err := b.userPermissionConditions(permTable)
		if err != nil {
			return err
		}
		conditions = append(conditions, userConds...)
	}

	hookConds, err := b.permissionQueryConditions()
	if err != nil {
		return err
	}
	conditions = append(conditions, hookConds...)

	if len(conditions) == 0 {
		return nil
	}

	combined := ir.AndAll(conditions)
	if shared := b.eng.Perms.Shared(b.permDoctype, b.args.User); len(shared) > 0 {
		combined = ir.OrAll([]ir.Condition{combined, inNames(permTable, shared)})
	}
	b.plan.AddCondition(combined)
	return nil
}

// userPermissionConditions restricts each link field of the permission
// doctype (including its implicit link to self) to the user's allowed
// values. Unless strict mode is on, empty link values pass through.
func (b *builder) userPermissionConditions(permTable string) ([]ir.Condition, error) {
	if b.args.IgnoreUserPermissions {
		return nil, nil
	}
	userPerms := b.eng.Perms.UserPermissions(b.args.User)
	if len(userPerms) == 0 {
		return nil, nil
	}

	permMeta, err := b.eng.Meta.Doctype(b.permDoctype)
	if err != nil {
		return nil, err
	}

	type linkRef struct {
		options               string
		fieldname             string
		ignoreUserPermissions bool
	}
	links := []linkRef{{options: b.permDoctype, fieldname: "name"}}
	for _, f := range permMeta.LinkFields() {
		links = append(links, linkRef{
			options:               f.Options,
			fieldname:             f.Fieldname,
			ignoreUserPermissions: f.IgnoreUserPermissions,
		})
	}

	var conditions []ir.Condition
	for _, link := range links {
		if link.ignoreUserPermissions {
			continue
		}
		records := userPerms[link.options]
		if len(records) == 0 {
			continue
		}

		var docs []string
		for _, rec := range records {
			switch {
			case rec.ApplicableFor == "":
				docs = append(docs, rec.Doc)
			case link.fieldname == "name" && b.args.ReferenceDoctype != "":
				if rec.ApplicableFor == b.args.ReferenceDoctype {
					docs = append(docs, rec.Doc)
				}
			case rec.ApplicableFor == b.permDoctype:
				docs = append(docs, rec.Doc)
			}
		}
		if len(docs) == 0 {
			continue
		}

		field := ir.Column{Table: permTable, Name: link.fieldname}
		restricted := ir.In{Field: field, Values: valueList(docs)}
		if b.eng.StrictUserPermissions {
			conditions = append(conditions, restricted)
			continue
		}
		empty := ir.Comparison{
			Field: ir.FunctionCall{Name: "IFNULL", Args: []ir.Expr{field, ir.NewValue("")}},
			Op:    ir.CmpEq,
			Value: ir.NewValue(""),
		}
		conditions = append(conditions, ir.OrAll([]ir.Condition{empty, restricted}))
	}
	return conditions, nil
}

// permissionQueryConditions gathers raw SQL fragments from registered
// hooks and the doctype's permission query script. A failing hook or
// script aborts assembly.
func (b *builder) permissionQueryConditions() ([]ir.Condition, error) {
	var conditions []ir.Condition

	if b.eng.Hooks != nil {
		fragments, err := b.eng.Hooks.Conditions(b.permDoctype, b.args.User)
		if err != nil {
			return nil, err
		}
		for _, fragment := range fragments {
			conditions = append(conditions, ir.RawCondition{SQL: fmt.Sprintf("(%s)", fragment)})
		}
	}

	if b.eng.Scripts != nil {
		fragment, err := b.eng.Scripts.Condition(b.permDoctype, b.args.User)
		if err != nil {
			return nil, err
		}
		if fragment != "" {
			conditions = append(conditions, ir.RawCondition{SQL: fmt.Sprintf("(%s)", fragment)})
		}
	}
	return conditions, nil
}

func inNames(table string, names []string) ir.Condition {
	return ir.In{
		Field:  ir.Column{Table: table, Name: "name"},
		Values: valueList(names),
	}
}

func valueList(values []string) []ir.Expr {
	out := make([]ir.Expr, len(values))
	for i, v := range values {
		out[i] = ir.NewValue(v)
	}
	return out
}
