// Package perms defines the permission oracle consulted during query
// assembly, plus the hook and script extension points that contribute
// extra WHERE conditions.
//
// The oracle answers document-level questions (does this user hold read
// or select on this doctype, which documents are shared with them, which
// linked values are they restricted to) and field-level questions (which
// columns may appear in the select list). The engine layers these
// answers into permission conditions; this package holds no query logic.
package perms

// Permission types consulted during assembly.
const (
	PermRead   = "read"
	PermSelect = "select"
)

// RolePermissions summarizes role-level access for a (doctype, user)
// pair. IfOwner marks permission types granted only when the acting user
// owns the document.
type RolePermissions struct {
	Read              bool
	Select            bool
	IfOwner           map[string]bool
	HasIfOwnerEnabled bool
}

// Has reports whether the given permission type is granted at the role
// level, owner-gated or not.
func (rp RolePermissions) Has(ptype string) bool {
	switch ptype {
	case PermRead:
		return rp.Read
	case PermSelect:
		return rp.Select
	default:
		return false
	}
}

// OnlySelect reports whether the user holds select but not read. Such
// users see only the select-permitted column set.
func (rp RolePermissions) OnlySelect() bool {
	return rp.Select && !rp.Read
}

// RequiresOwnerConstraint reports whether every read/select grant the
// user holds is owner-gated, in which case the query must be scoped to
// owner = user and user-permission filtering is skipped.
func RequiresOwnerConstraint(rp RolePermissions) bool {
	if !rp.HasIfOwnerEnabled || len(rp.IfOwner) == 0 {
		return false
	}
	for _, ptype := range []string{PermSelect, PermRead} {
		if rp.Has(ptype) && !rp.IfOwner[ptype] {
			return false
		}
	}
	return true
}

// UserPermission restricts a user to a specific document of a linked
// doctype. ApplicableFor, when set, limits the restriction to queries on
// that doctype only.
type UserPermission struct {
	Doc           string
	ApplicableFor string
}

// Oracle answers permission questions during query assembly. All methods
// are synchronous and must be safe for concurrent use.
type Oracle interface {
	// HasPermission reports whether user holds ptype on doctype at all.
	HasPermission(doctype, ptype, user string) bool

	// RolePermissions returns the role-level summary for (doctype, user).
	RolePermissions(doctype, user string) RolePermissions

	// PermittedFields lists the columns user may select on doctype.
	// parentDoctype is set when doctype is a child table. ptype is the
	// effective permission type (select when the user lacks read).
	PermittedFields(doctype, parentDoctype, ptype, user string) []string

	// UserPermissions returns the user's linked-document restrictions,
	// keyed by the linked doctype.
	UserPermissions(user string) map[string][]UserPermission

	// Shared lists documents of doctype explicitly shared with user.
	Shared(doctype, user string) []string
}

// StaticOracle is an in-memory Oracle for tests and offline rendering.
type StaticOracle struct {
	Roles     map[string]map[string]RolePermissions  // doctype -> user
	Fields    map[string]map[string][]string         // doctype -> ptype
	UserPerms map[string]map[string][]UserPermission // user -> linked doctype
	SharedDoc map[string]map[string][]string         // doctype -> user
}

// NewStaticOracle returns an empty oracle; use the Grant* methods to
// populate it.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{
		Roles:     map[string]map[string]RolePermissions{},
		Fields:    map[string]map[string][]string{},
		UserPerms: map[string]map[string][]UserPermission{},
		SharedDoc: map[string]map[string][]string{},
	}
}

// Grant sets the role-level summary for (doctype, user).
func (o *StaticOracle) Grant(doctype, user string, rp RolePermissions) {
	if o.Roles[doctype] == nil {
		o.Roles[doctype] = map[string]RolePermissions{}
	}
	o.Roles[doctype][user] = rp
}

// GrantFields sets the permitted column list for (doctype, ptype).
func (o *StaticOracle) GrantFields(doctype, ptype string, fields []string) {
	if o.Fields[doctype] == nil {
		o.Fields[doctype] = map[string][]string{}
	}
	o.Fields[doctype][ptype] = fields
}

// RestrictUser adds a user-permission record for user on the linked
// doctype.
func (o *StaticOracle) RestrictUser(user, linkedDoctype string, up UserPermission) {
	if o.UserPerms[user] == nil {
		o.UserPerms[user] = map[string][]UserPermission{}
	}
	o.UserPerms[user][linkedDoctype] = append(o.UserPerms[user][linkedDoctype], up)
}

// Share marks a document of doctype as shared with user.
func (o *StaticOracle) Share(doctype, user, docname string) {
	if o.SharedDoc[doctype] == nil {
		o.SharedDoc[doctype] = map[string][]string{}
	}
	o.SharedDoc[doctype][user] = append(o.SharedDoc[doctype][user], docname)
}

func (o *StaticOracle) HasPermission(doctype, ptype, user string) bool {
	return o.RolePermissions(doctype, user).Has(ptype)
}

func (o *StaticOracle) RolePermissions(doctype, user string) RolePermissions {
	if byUser, ok := o.Roles[doctype]; ok {
		return byUser[user]
	}
	return RolePermissions{}
}

func (o *StaticOracle) PermittedFields(doctype, parentDoctype, ptype, user string) []string {
	if byType, ok := o.Fields[doctype]; ok {
		if fields, ok := byType[ptype]; ok {
			return fields
		}
	}
	return nil
}

func (o *StaticOracle) UserPermissions(user string) map[string][]UserPermission {
	return o.UserPerms[user]
}

func (o *StaticOracle) Shared(doctype, user string) []string {
	if byUser, ok := o.SharedDoc[doctype]; ok {
		return byUser[user]
	}
	return nil
}
