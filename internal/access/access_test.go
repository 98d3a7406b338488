package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/claystudio/membership-backend/pkg/config"
)

func TestAllowedAnyOfAndAllOf(t *testing.T) {
	set := NewRoleSet("studio-member", " ", "kiln-tech")

	assert.True(t, Allowed(set, AnyOf("studio-admin", "studio-member")))
	assert.False(t, Allowed(set, AnyOf("studio-admin")))
	assert.True(t, Allowed(set, AllOf("studio-member", "kiln-tech")))
	assert.False(t, Allowed(set, AllOf("studio-member", "studio-admin")))
	assert.False(t, Allowed(set, AllOf()))
	assert.False(t, Allowed(set, nil))
	assert.False(t, Allowed(nil, AnyOf("studio-member")))
}

func TestRequirementFuncNil(t *testing.T) {
	var f RequirementFunc
	assert.False(t, f.SatisfiedBy(NewRoleSet("studio-admin")))
}

func TestStudioRolesRequirements(t *testing.T) {
	roles := RolesFromConfig(config.RolesConfig{
		MemberRoleID:  "role-member",
		InviteeRoleID: " role-invitee ",
		AdminRoleID:   "role-admin",
	})

	admin := NewRoleSet("role-admin")
	invitee := NewRoleSet("role-invitee")

	assert.True(t, Allowed(admin, roles.ReviewApplications()))
	assert.True(t, Allowed(admin, roles.ManageRoles()))
	assert.False(t, Allowed(invitee, roles.ReviewApplications()))
	assert.True(t, Allowed(invitee, roles.StudioAccess()))
	assert.False(t, Allowed(NewRoleSet(), roles.StudioAccess()))

	assert.True(t, roles.Known("role-invitee"))
	assert.False(t, roles.Known("role-printer"))
	assert.False(t, roles.Known(""))
}
