package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/claystudio/membership-backend/pkg/enums"
)

// ApplicationSubmittedEvent signals a new membership application awaiting review.
type ApplicationSubmittedEvent struct {
	ApplicationID uuid.UUID `json:"application_id"`
	Email         string    `json:"email"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// ApplicationDecidedEvent is emitted in the same transaction as an approve or reject.
type ApplicationDecidedEvent struct {
	ApplicationID  uuid.UUID                 `json:"application_id"`
	Decision       enums.ApplicationDecision `json:"decision"`
	Status         enums.ApplicationStatus   `json:"status"`
	DecidedBy      uuid.UUID                 `json:"decided_by"`
	DecidedAt      time.Time                 `json:"decided_at"`
	LinkedMemberID *uuid.UUID                `json:"linked_member_id,omitempty"`
	ContactID      *uuid.UUID                `json:"contact_id,omitempty"`
	MemberCreated  bool                      `json:"member_created"`
}
