package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/claystudio/membership-backend/api/middleware"
	"github.com/claystudio/membership-backend/api/responses"
	"github.com/claystudio/membership-backend/api/validators"
	"github.com/claystudio/membership-backend/internal/applications"
	"github.com/claystudio/membership-backend/pkg/enums"
	pkgerrors "github.com/claystudio/membership-backend/pkg/errors"
	"github.com/claystudio/membership-backend/pkg/logger"
	"github.com/claystudio/membership-backend/pkg/types"
)

const maxNotesLength = 2000

type applicationIntakeRequest struct {
	FirstName         string               `json:"first_name" validate:"required,notblank,max=100"`
	LastName          string               `json:"last_name" validate:"required,notblank,max=100"`
	Email             string               `json:"email" validate:"required,email,max=254"`
	Phone             *string              `json:"phone" validate:"omitempty,max=40"`
	Address           types.MailingAddress `json:"address"`
	Experience        string               `json:"experience" validate:"max=4000"`
	CommunityInterest string               `json:"community_interest" validate:"max=4000"`
}

func (r applicationIntakeRequest) toInput() applications.SubmitInput {
	return applications.SubmitInput{
		FirstName:         r.FirstName,
		LastName:          r.LastName,
		Email:             r.Email,
		Phone:             r.Phone,
		Address:           r.Address,
		Experience:        r.Experience,
		CommunityInterest: r.CommunityInterest,
	}
}

type applicationDecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Notes    string `json:"notes" validate:"max=2000"`
}

// ApplicationIntake accepts a public membership application.
func ApplicationIntake(svc applications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "applications service unavailable"))
			return
		}

		var body applicationIntakeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Submit(r.Context(), body.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

// AdminApplicationList returns the review queue, optionally filtered by status.
func AdminApplicationList(svc applications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "applications service unavailable"))
			return
		}

		limit, err := validators.ParseLimit(r, 50, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := applications.ListParams{Limit: limit}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseApplicationStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			params.Status = &status
		}

		rows, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// AdminApplicationDetail returns a single application.
func AdminApplicationDetail(svc applications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "applications service unavailable"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "applicationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// AdminApplicationDecision records an approve or reject decision by the
// authenticated reviewer.
func AdminApplicationDecision(svc applications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "applications service unavailable"))
			return
		}

		reviewerID, err := uuid.Parse(middleware.MemberIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "reviewer context missing"))
			return
		}

		appID, err := validators.ParseUUIDParam(r, "applicationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body applicationDecisionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		decision, err := enums.ParseApplicationDecision(body.Decision)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid decision"))
			return
		}

		dto, err := svc.Decide(r.Context(), applications.DecideInput{
			ApplicationID: appID,
			Decision:      decision,
			Notes:         validators.TrimText(body.Notes, maxNotesLength),
			ReviewerID:    reviewerID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}
