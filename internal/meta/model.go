// Package meta models doctype metadata: field definitions, default
// framework fields, and the Provider seam through which the engine looks
// metadata up. The engine never reads schema from the database; all field
// knowledge flows through a Provider.
package meta

import (
	"fmt"
	"strings"
)

// FieldType tags a field definition. The engine only branches on the
// types below; unknown tags behave like Data.
type FieldType string

const (
	TypeData        FieldType = "Data"
	TypeText        FieldType = "Text"
	TypeSmallText   FieldType = "Small Text"
	TypeLongText    FieldType = "Long Text"
	TypeSelect      FieldType = "Select"
	TypeLink        FieldType = "Link"
	TypeDynamicLink FieldType = "Dynamic Link"
	TypeTable       FieldType = "Table"
	TypeTableMulti  FieldType = "Table MultiSelect"
	TypeDate        FieldType = "Date"
	TypeDatetime    FieldType = "Datetime"
	TypeTime        FieldType = "Time"
	TypeInt         FieldType = "Int"
	TypeFloat       FieldType = "Float"
	TypeCurrency    FieldType = "Currency"
	TypePercent     FieldType = "Percent"
	TypeCheck       FieldType = "Check"
	TypeJSON        FieldType = "JSON"
)

// IsTable reports whether the type holds a one-to-many child table.
func (t FieldType) IsTable() bool {
	return t == TypeTable || t == TypeTableMulti
}

// IsNumeric reports whether the type maps to a non-nullable numeric column.
func (t FieldType) IsNumeric() bool {
	switch t {
	case TypeInt, TypeFloat, TypeCurrency, TypePercent, TypeCheck:
		return true
	}
	return false
}

// Field is a single field definition within a doctype.
type Field struct {
	Fieldname string
	Fieldtype FieldType

	// Options names the target doctype for Link and Table types.
	Options string

	// Permlevel is the numeric field-permission tier.
	Permlevel int

	// IgnoreUserPermissions exempts this link field from user-permission
	// filtering.
	IgnoreUserPermissions bool

	// NotNullable marks columns declared NOT NULL, which never need
	// NULL-coalescing in filters.
	NotNullable bool
}

// Doctype is a named collection of typed fields plus list-view defaults.
type Doctype struct {
	Name   string
	Fields []Field

	// IsTree marks doctypes with lft/rgt nested-set bounds.
	IsTree bool

	// IsChild marks child-table doctypes (rows owned by a parent document).
	IsChild bool

	// SortField and SortOrder define default list ordering. SortField may
	// hold a comma-separated multi-field spec ("modified desc, name asc").
	SortField string
	SortOrder string

	index map[string]Field
}

// NewDoctype builds a Doctype and its field index. Field names must be
// unique; a duplicate is a definition error.
func NewDoctype(name string, fields []Field) (*Doctype, error) {
	dt := &Doctype{
		Name:   name,
		Fields: fields,
		index:  make(map[string]Field, len(fields)),
	}
	for _, f := range fields {
		if _, dup := dt.index[f.Fieldname]; dup {
			return nil, fmt.Errorf("doctype %s: duplicate field %s", name, f.Fieldname)
		}
		dt.index[f.Fieldname] = f
	}
	return dt, nil
}

// Field returns the definition for fieldname. Framework default fields
// (name, owner, creation, ...) resolve even when not declared.
func (d *Doctype) Field(fieldname string) (Field, bool) {
	if f, ok := d.index[fieldname]; ok {
		return f, true
	}
	return DefaultField(fieldname)
}

// HasField reports whether fieldname resolves on this doctype, including
// framework default fields.
func (d *Doctype) HasField(fieldname string) bool {
	_, ok := d.Field(fieldname)
	return ok
}

// HasOwnField reports whether fieldname is explicitly declared, excluding
// framework default fields.
func (d *Doctype) HasOwnField(fieldname string) bool {
	_, ok := d.index[fieldname]
	return ok
}

// TableFields returns the child-table fields in declaration order.
func (d *Doctype) TableFields() []Field {
	var out []Field
	for _, f := range d.Fields {
		if f.Fieldtype.IsTable() {
			out = append(out, f)
		}
	}
	return out
}

// LinkFields returns the link fields in declaration order.
func (d *Doctype) LinkFields() []Field {
	var out []Field
	for _, f := range d.Fields {
		if f.Fieldtype == TypeLink {
			out = append(out, f)
		}
	}
	return out
}

// SortInfo returns the default sort field and order, falling back to
// creation DESC when unset.
func (d *Doctype) SortInfo() (field, order string) {
	field, order = d.SortField, d.SortOrder
	if field == "" {
		field = "creation"
	}
	if order == "" {
		order = "DESC"
	}
	return field, order
}

// Provider resolves doctype metadata by name.
type Provider interface {
	// Doctype returns the metadata for name, or an error when the doctype
	// is not defined.
	Doctype(name string) (*Doctype, error)
}

// Framework default fields present on every document row.
var defaultFields = map[string]FieldType{
	"name":        TypeData,
	"owner":       TypeLink,
	"creation":    TypeDatetime,
	"modified":    TypeDatetime,
	"modified_by": TypeLink,
	"docstatus":   TypeCheck,
	"idx":         TypeInt,
}

// Child-row back-reference fields, present on child-table doctypes.
var childTableFields = map[string]FieldType{
	"parent":      TypeData,
	"parentfield": TypeData,
	"parenttype":  TypeData,
}

// Optional framework fields that bypass field-permission checks.
var optionalFields = map[string]struct{}{
	"_user_tags": {},
	"_comments":  {},
	"_assign":    {},
	"_liked_by":  {},
	"_seen":      {},
}

// DefaultField resolves a framework default field definition.
func DefaultField(fieldname string) (Field, bool) {
	if t, ok := defaultFields[fieldname]; ok {
		return Field{Fieldname: fieldname, Fieldtype: t}, true
	}
	if t, ok := childTableFields[fieldname]; ok {
		return Field{Fieldname: fieldname, Fieldtype: t}, true
	}
	if _, ok := optionalFields[fieldname]; ok {
		return Field{Fieldname: fieldname, Fieldtype: TypeData}, true
	}
	return Field{}, false
}

// IsDefaultField reports whether fieldname is a framework default field,
// child back-reference, or optional field.
func IsDefaultField(fieldname string) bool {
	_, ok := DefaultField(fieldname)
	return ok
}

// IsOptionalField reports whether fieldname is an optional framework field
// (e.g. _user_tags) that bypasses field-permission checks.
func IsOptionalField(fieldname string) bool {
	_, ok := optionalFields[strings.ToLower(fieldname)]
	return ok
}
