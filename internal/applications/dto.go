package applications

import (
	"time"

	"github.com/google/uuid"

	"github.com/claystudio/membership-backend/pkg/db/models"
	"github.com/claystudio/membership-backend/pkg/enums"
	"github.com/claystudio/membership-backend/pkg/types"
)

// ApplicationDTO is the reviewer-facing view of an application.
type ApplicationDTO struct {
	ID                uuid.UUID               `json:"id"`
	FirstName         string                  `json:"first_name"`
	LastName          string                  `json:"last_name"`
	Email             string                  `json:"email"`
	Phone             *string                 `json:"phone,omitempty"`
	Address           types.MailingAddress    `json:"address"`
	Experience        string                  `json:"experience"`
	CommunityInterest string                  `json:"community_interest"`
	Status            enums.ApplicationStatus `json:"status"`
	SubmittedAt       time.Time               `json:"submitted_at"`
	ApprovedAt        *time.Time              `json:"approved_at,omitempty"`
	RejectedAt        *time.Time              `json:"rejected_at,omitempty"`
	Notes             *string                 `json:"notes,omitempty"`
	DecidedBy         *uuid.UUID              `json:"decided_by,omitempty"`
	LinkedMemberID    *uuid.UUID              `json:"linked_member_id"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

// FromModel maps the persistence model to the DTO.
func FromModel(m *models.Application) *ApplicationDTO {
	if m == nil {
		return nil
	}
	return &ApplicationDTO{
		ID:                m.ID,
		FirstName:         m.FirstName,
		LastName:          m.LastName,
		Email:             m.Email,
		Phone:             m.Phone,
		Address:           m.Address,
		Experience:        m.Experience,
		CommunityInterest: m.CommunityInterest,
		Status:            m.Status,
		SubmittedAt:       m.SubmittedAt,
		ApprovedAt:        m.ApprovedAt,
		RejectedAt:        m.RejectedAt,
		Notes:             m.Notes,
		DecidedBy:         m.DecidedBy,
		LinkedMemberID:    m.LinkedMemberID,
		UpdatedAt:         m.UpdatedAt,
	}
}

// SubmitInput is a validated intake form.
type SubmitInput struct {
	FirstName         string
	LastName          string
	Email             string
	Phone             *string
	Address           types.MailingAddress
	Experience        string
	CommunityInterest string
}

// DecideInput carries one reviewer decision.
type DecideInput struct {
	ApplicationID uuid.UUID
	Decision      enums.ApplicationDecision
	Notes         string
	ReviewerID    uuid.UUID
}

// ListParams filters the review queue.
type ListParams struct {
	Status *enums.ApplicationStatus
	Limit  int
}

// DecisionUpdate is the column set written by a decision.
type DecisionUpdate struct {
	Status         enums.ApplicationStatus
	ApprovedAt     *time.Time
	RejectedAt     *time.Time
	Notes          *string
	DecidedBy      uuid.UUID
	LinkedMemberID *uuid.UUID
}

func (u DecisionUpdate) columns() map[string]any {
	return map[string]any{
		"status":           u.Status,
		"approved_at":      u.ApprovedAt,
		"rejected_at":      u.RejectedAt,
		"notes":            u.Notes,
		"decided_by":       u.DecidedBy,
		"linked_member_id": u.LinkedMemberID,
	}
}
