package perms

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRolePermissionsHas(t *testing.T) {
	rp := RolePermissions{Read: true}
	assert.True(t, rp.Has(PermRead))
	assert.False(t, rp.Has(PermSelect))
	assert.False(t, rp.Has("write"))
}

func TestOnlySelect(t *testing.T) {
	assert.True(t, RolePermissions{Select: true}.OnlySelect())
	assert.False(t, RolePermissions{Select: true, Read: true}.OnlySelect())
	assert.False(t, RolePermissions{}.OnlySelect())
}

func TestRequiresOwnerConstraint(t *testing.T) {
	tests := []struct {
		name string
		rp   RolePermissions
		want bool
	}{
		{
			name: "no if-owner rules",
			rp:   RolePermissions{Read: true},
			want: false,
		},
		{
			name: "all grants owner-gated",
			rp: RolePermissions{
				Read:              true,
				IfOwner:           map[string]bool{PermRead: true},
				HasIfOwnerEnabled: true,
			},
			want: true,
		},
		{
			name: "ungated read alongside gated select",
			rp: RolePermissions{
				Read:              true,
				Select:            true,
				IfOwner:           map[string]bool{PermSelect: true},
				HasIfOwnerEnabled: true,
			},
			want: false,
		},
		{
			name: "if-owner enabled but empty set",
			rp:   RolePermissions{Read: true, HasIfOwnerEnabled: true},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RequiresOwnerConstraint(tt.rp))
		})
	}
}

func TestStaticOracle(t *testing.T) {
	o := NewStaticOracle()
	o.Grant("ToDo", "alice@example.com", RolePermissions{Read: true})
	o.GrantFields("ToDo", PermRead, []string{"name", "status"})
	o.RestrictUser("alice@example.com", "Company", UserPermission{Doc: "ACME"})
	o.Share("ToDo", "alice@example.com", "TODO-0009")

	assert.True(t, o.HasPermission("ToDo", PermRead, "alice@example.com"))
	assert.False(t, o.HasPermission("ToDo", PermSelect, "alice@example.com"))
	assert.False(t, o.HasPermission("ToDo", PermRead, "bob@example.com"))
	assert.False(t, o.HasPermission("Note", PermRead, "alice@example.com"))

	assert.Equal(t, []string{"name", "status"}, o.PermittedFields("ToDo", "", PermRead, "alice@example.com"))
	assert.Nil(t, o.PermittedFields("ToDo", "", PermSelect, "alice@example.com"))

	ups := o.UserPermissions("alice@example.com")
	require.Len(t, ups["Company"], 1)
	assert.Equal(t, "ACME", ups["Company"][0].Doc)

	assert.Equal(t, []string{"TODO-0009"}, o.Shared("ToDo", "alice@example.com"))
	assert.Nil(t, o.Shared("ToDo", "bob@example.com"))
}

func TestHookRegistry(t *testing.T) {
	r := NewHookRegistry()
	r.Register("ToDo", func(user string) (string, error) {
		return "`tabToDo`.`status` != 'Hidden'", nil
	})
	r.Register("*", func(user string) (string, error) {
		return "1 = 1", nil
	})
	r.Register("Note", func(user string) (string, error) {
		return "", nil
	})

	fragments, err := r.Conditions("ToDo", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"`tabToDo`.`status` != 'Hidden'", "1 = 1"}, fragments)

	// Doctype with only the wildcard hook.
	fragments, err = r.Conditions("Event", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"1 = 1"}, fragments)

	// Empty fragments are dropped.
	fragments, err = r.Conditions("Note", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"1 = 1"}, fragments)
}

func TestHookErrorAbortsAssembly(t *testing.T) {
	r := NewHookRegistry()
	hookErr := errors.New("backend unavailable")
	r.Register("ToDo", func(user string) (string, error) {
		return "", hookErr
	})

	_, err := r.Conditions("ToDo", "alice@example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, hookErr)
}

func TestScriptStore(t *testing.T) {
	s := NewScriptStore()
	source := "\"`tabToDo`.owner = '\" + user + \"'\""
	require.NoError(t, s.Set("ToDo", source))
	assert.True(t, s.Has("ToDo"))
	assert.False(t, s.Has("Note"))

	fragment, err := s.Condition("ToDo", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "`tabToDo`.owner = 'alice@example.com'", fragment)

	// No script registered: empty fragment, no error.
	fragment, err = s.Condition("Note", "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, fragment)
}

func TestScriptStoreConditionalFragment(t *testing.T) {
	s := NewScriptStore()
	require.NoError(t, s.Set("ToDo", `user == "admin@example.com" ? "" : "docstatus < 2"`))

	fragment, err := s.Condition("ToDo", "admin@example.com")
	require.NoError(t, err)
	assert.Empty(t, fragment)

	fragment, err = s.Condition("ToDo", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "docstatus < 2", fragment)
}

func TestScriptStoreRejectsNonString(t *testing.T) {
	s := NewScriptStore()
	err := s.Set("ToDo", "1 + 2")
	assert.Error(t, err)
}
