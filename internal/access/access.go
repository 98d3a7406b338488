// Package access holds the studio's single authorization capability check.
// Callers describe what they need as a Requirement and ask whether a member's
// role set satisfies it, instead of comparing role strings inline.
package access

import (
	"strings"

	"github.com/claystudio/membership-backend/pkg/config"
)

// Role is an opaque identifier issued by the identity store.
type Role string

// RoleSet is the set of roles held by a member.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from raw role identifiers, ignoring blanks.
func NewRoleSet(roles ...string) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		set[Role(r)] = struct{}{}
	}
	return set
}

// Has reports whether the set contains role.
func (s RoleSet) Has(role Role) bool {
	if s == nil || role == "" {
		return false
	}
	_, ok := s[role]
	return ok
}

// Requirement is a predicate over a role set.
type Requirement interface {
	SatisfiedBy(RoleSet) bool
}

// RequirementFunc adapts a plain function into a Requirement.
type RequirementFunc func(RoleSet) bool

func (f RequirementFunc) SatisfiedBy(set RoleSet) bool {
	if f == nil {
		return false
	}
	return f(set)
}

// AnyOf is satisfied when at least one role is held.
func AnyOf(roles ...Role) Requirement {
	return RequirementFunc(func(set RoleSet) bool {
		for _, r := range roles {
			if set.Has(r) {
				return true
			}
		}
		return false
	})
}

// AllOf is satisfied only when every role is held. An empty AllOf is never satisfied.
func AllOf(roles ...Role) Requirement {
	return RequirementFunc(func(set RoleSet) bool {
		if len(roles) == 0 {
			return false
		}
		for _, r := range roles {
			if !set.Has(r) {
				return false
			}
		}
		return true
	})
}

// Allowed is the capability check used across the service.
func Allowed(set RoleSet, req Requirement) bool {
	if req == nil {
		return false
	}
	return req.SatisfiedBy(set)
}

// StudioRoles resolves the configured role identifiers once at startup.
type StudioRoles struct {
	Member  Role
	Invitee Role
	Admin   Role
}

// RolesFromConfig converts configuration into typed studio roles.
func RolesFromConfig(cfg config.RolesConfig) StudioRoles {
	return StudioRoles{
		Member:  Role(strings.TrimSpace(cfg.MemberRoleID)),
		Invitee: Role(strings.TrimSpace(cfg.InviteeRoleID)),
		Admin:   Role(strings.TrimSpace(cfg.AdminRoleID)),
	}
}

// ReviewApplications is required to read and decide membership applications.
func (r StudioRoles) ReviewApplications() Requirement {
	return AnyOf(r.Admin)
}

// ManageRoles is required to grant or revoke studio roles.
func (r StudioRoles) ManageRoles() Requirement {
	return AnyOf(r.Admin)
}

// StudioAccess is held by anyone admitted to the studio.
func (r StudioRoles) StudioAccess() Requirement {
	return AnyOf(r.Member, r.Invitee, r.Admin)
}

// Known reports whether role is one of the configured studio roles.
func (r StudioRoles) Known(role Role) bool {
	return role != "" && (role == r.Member || role == r.Invitee || role == r.Admin)
}
