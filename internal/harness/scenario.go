// Package harness runs declarative query scenarios for conformance
// testing. A scenario YAML file declares doctype metadata, an optional
// permission fixture, and one query; running it renders the SQL a live
// deployment would execute. Golden files pin the rendered output.
package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/docquery/internal/engine"
	"github.com/roach88/docquery/internal/meta"
	"github.com/roach88/docquery/internal/perms"
)

// Scenario is one declarative query rendering case.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Dialect selects the SQL backend: mariadb, postgres, or sqlite.
	Dialect string `yaml:"dialect"`

	// Doctypes declares the metadata the query runs against.
	Doctypes []DoctypeDef `yaml:"doctypes"`

	// Permissions optionally sets up the permission oracle. When absent
	// the query must run with ignore_permissions.
	Permissions *PermissionDef `yaml:"permissions,omitempty"`

	// Query holds the caller-facing query arguments.
	Query QueryDef `yaml:"query"`
}

// DoctypeDef declares one doctype's metadata.
type DoctypeDef struct {
	Name      string     `yaml:"name"`
	IsChild   bool       `yaml:"is_child,omitempty"`
	IsTree    bool       `yaml:"is_tree,omitempty"`
	SortField string     `yaml:"sort_field,omitempty"`
	SortOrder string     `yaml:"sort_order,omitempty"`
	Fields    []FieldDef `yaml:"fields"`
}

// FieldDef declares one field of a doctype.
type FieldDef struct {
	Fieldname             string `yaml:"fieldname"`
	Fieldtype             string `yaml:"fieldtype"`
	Options               string `yaml:"options,omitempty"`
	NotNullable           bool   `yaml:"not_nullable,omitempty"`
	IgnoreUserPermissions bool   `yaml:"ignore_user_permissions,omitempty"`
}

// PermissionDef populates a static permission oracle.
type PermissionDef struct {
	Roles           []RoleGrant       `yaml:"roles,omitempty"`
	Fields          []FieldGrant      `yaml:"fields,omitempty"`
	UserPermissions []UserPermGrant   `yaml:"user_permissions,omitempty"`
	Shared          []SharedDocsGrant `yaml:"shared,omitempty"`
}

// RoleGrant sets the role-level summary for one (doctype, user) pair.
// IfOwner lists the permission types granted only to document owners.
type RoleGrant struct {
	Doctype string   `yaml:"doctype"`
	User    string   `yaml:"user"`
	Read    bool     `yaml:"read,omitempty"`
	Select  bool     `yaml:"select,omitempty"`
	IfOwner []string `yaml:"if_owner,omitempty"`
}

// FieldGrant sets the permitted column list for one (doctype, ptype).
type FieldGrant struct {
	Doctype   string   `yaml:"doctype"`
	Ptype     string   `yaml:"ptype"`
	Permitted []string `yaml:"permitted"`
}

// UserPermGrant restricts a user to one document of a linked doctype.
type UserPermGrant struct {
	User          string `yaml:"user"`
	Doctype       string `yaml:"doctype"`
	Doc           string `yaml:"doc"`
	ApplicableFor string `yaml:"applicable_for,omitempty"`
}

// SharedDocsGrant shares documents of a doctype with a user.
type SharedDocsGrant struct {
	Doctype string   `yaml:"doctype"`
	User    string   `yaml:"user"`
	Docs    []string `yaml:"docs"`
}

// QueryDef mirrors the engine's query arguments in YAML form.
type QueryDef struct {
	Doctype               string `yaml:"doctype"`
	Fields                []any  `yaml:"fields,omitempty"`
	Filters               any    `yaml:"filters,omitempty"`
	OrFilters             any    `yaml:"or_filters,omitempty"`
	OrderBy               string `yaml:"order_by,omitempty"`
	GroupBy               string `yaml:"group_by,omitempty"`
	Limit                 any    `yaml:"limit,omitempty"`
	Offset                any    `yaml:"offset,omitempty"`
	Distinct              bool   `yaml:"distinct,omitempty"`
	User                  string `yaml:"user,omitempty"`
	Compat                bool   `yaml:"compat,omitempty"`
	IgnorePermissions     bool   `yaml:"ignore_permissions,omitempty"`
	IgnoreUserPermissions bool   `yaml:"ignore_user_permissions,omitempty"`
	ParentDoctype         string `yaml:"parent_doctype,omitempty"`
	ReferenceDoctype      string `yaml:"reference_doctype,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly instead of silently changing the query.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Dialect == "" {
		return fmt.Errorf("dialect is required")
	}
	if len(s.Doctypes) == 0 {
		return fmt.Errorf("doctypes list is required and must be non-empty")
	}
	for i, dt := range s.Doctypes {
		if dt.Name == "" {
			return fmt.Errorf("doctypes[%d]: name is required", i)
		}
		for j, f := range dt.Fields {
			if f.Fieldname == "" || f.Fieldtype == "" {
				return fmt.Errorf("doctypes[%d].fields[%d]: fieldname and fieldtype are required", i, j)
			}
		}
	}
	if s.Query.Doctype == "" {
		return fmt.Errorf("query.doctype is required")
	}
	if s.Permissions == nil && !s.Query.IgnorePermissions {
		return fmt.Errorf("query needs ignore_permissions when no permissions fixture is given")
	}
	return nil
}

// buildProvider turns the declared doctypes into a metadata provider.
func buildProvider(s *Scenario) (*meta.StaticProvider, error) {
	provider := meta.NewStaticProvider()
	for _, def := range s.Doctypes {
		fields := make([]meta.Field, len(def.Fields))
		for i, f := range def.Fields {
			fields[i] = meta.Field{
				Fieldname:             f.Fieldname,
				Fieldtype:             meta.FieldType(f.Fieldtype),
				Options:               f.Options,
				NotNullable:           f.NotNullable,
				IgnoreUserPermissions: f.IgnoreUserPermissions,
			}
		}
		dt, err := meta.NewDoctype(def.Name, fields)
		if err != nil {
			return nil, err
		}
		dt.IsChild = def.IsChild
		dt.IsTree = def.IsTree
		dt.SortField = def.SortField
		dt.SortOrder = def.SortOrder
		provider.Add(dt)
	}
	return provider, nil
}

// Args converts the YAML query definition to engine arguments.
func (q QueryDef) Args() engine.QueryArgs {
	return engine.QueryArgs{
		Doctype:               q.Doctype,
		Fields:                q.Fields,
		Filters:               q.Filters,
		OrFilters:             q.OrFilters,
		OrderBy:               q.OrderBy,
		GroupBy:               q.GroupBy,
		Limit:                 q.Limit,
		Offset:                q.Offset,
		Distinct:              q.Distinct,
		User:                  q.User,
		Compat:                q.Compat,
		IgnorePermissions:     q.IgnorePermissions,
		IgnoreUserPermissions: q.IgnoreUserPermissions,
		ParentDoctype:         q.ParentDoctype,
		ReferenceDoctype:      q.ReferenceDoctype,
	}
}

// BuildOracle turns a permission fixture into a static oracle. A nil
// fixture yields an empty oracle that denies everything.
func BuildOracle(def *PermissionDef) *perms.StaticOracle {
	oracle := perms.NewStaticOracle()
	if def == nil {
		return oracle
	}
	for _, grant := range def.Roles {
		rp := perms.RolePermissions{Read: grant.Read, Select: grant.Select}
		if len(grant.IfOwner) > 0 {
			rp.HasIfOwnerEnabled = true
			rp.IfOwner = make(map[string]bool, len(grant.IfOwner))
			for _, ptype := range grant.IfOwner {
				rp.IfOwner[ptype] = true
			}
		}
		oracle.Grant(grant.Doctype, grant.User, rp)
	}
	for _, grant := range def.Fields {
		oracle.GrantFields(grant.Doctype, grant.Ptype, grant.Permitted)
	}
	for _, grant := range def.UserPermissions {
		oracle.RestrictUser(grant.User, grant.Doctype, perms.UserPermission{
			Doc:           grant.Doc,
			ApplicableFor: grant.ApplicableFor,
		})
	}
	for _, grant := range def.Shared {
		for _, doc := range grant.Docs {
			oracle.Share(grant.Doctype, grant.User, doc)
		}
	}
	return oracle
}
