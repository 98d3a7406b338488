package controllers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claystudio/membership-backend/api/responses"
	"github.com/claystudio/membership-backend/api/validators"
	"github.com/claystudio/membership-backend/internal/access"
	"github.com/claystudio/membership-backend/internal/roles"
	pkgerrors "github.com/claystudio/membership-backend/pkg/errors"
	"github.com/claystudio/membership-backend/pkg/logger"
)

type roleGrantRequest struct {
	Role string `json:"role" validate:"required,notblank,max=100"`
}

type memberRolesResponse struct {
	MemberID uuid.UUID `json:"member_id"`
	Roles    []string  `json:"roles"`
}

// AdminMemberRoles lists the roles held by a member.
func AdminMemberRoles(svc roles.Assigner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "role assigner unavailable"))
			return
		}
		memberID, err := validators.ParseUUIDParam(r, "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeMemberRoles(w, r, svc, logg, memberID)
	}
}

// AdminMemberRoleGrant assigns a studio role to a member.
func AdminMemberRoleGrant(svc roles.Assigner, studio access.StudioRoles, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "role assigner unavailable"))
			return
		}
		memberID, err := validators.ParseUUIDParam(r, "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body roleGrantRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role, err := studioRole(studio, body.Role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Assign(r.Context(), role, memberID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeMemberRoles(w, r, svc, logg, memberID)
	}
}

// AdminMemberRoleRevoke removes a studio role from a member.
func AdminMemberRoleRevoke(svc roles.Assigner, studio access.StudioRoles, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "role assigner unavailable"))
			return
		}
		memberID, err := validators.ParseUUIDParam(r, "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role, err := studioRole(studio, chi.URLParam(r, "role"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Remove(r.Context(), role, memberID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeMemberRoles(w, r, svc, logg, memberID)
	}
}

func studioRole(studio access.StudioRoles, raw string) (access.Role, error) {
	role := access.Role(strings.TrimSpace(raw))
	if !studio.Known(role) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unknown studio role").WithDetails(map[string]any{"role": raw})
	}
	return role, nil
}

func writeMemberRoles(w http.ResponseWriter, r *http.Request, svc roles.Assigner, logg *logger.Logger, memberID uuid.UUID) {
	set, err := svc.List(r.Context(), memberID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	out := make([]string, 0, len(set))
	for role := range set {
		out = append(out, string(role))
	}
	sort.Strings(out)
	responses.WriteSuccess(w, memberRolesResponse{MemberID: memberID, Roles: out})
}
