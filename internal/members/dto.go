package members

import (
	"github.com/google/uuid"

	"github.com/claystudio/membership-backend/pkg/db/models"
)

// CreateMemberDTO carries the fields needed to insert a member.
type CreateMemberDTO struct {
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	ContactID    *uuid.UUID
}

// ToModel converts the DTO into a persistence model.
func (d CreateMemberDTO) ToModel() *models.Member {
	return &models.Member{
		Email:        d.Email,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		PasswordHash: d.PasswordHash,
		ContactID:    d.ContactID,
	}
}

// MemberRolesDTO is the role view returned after a grant or revoke.
type MemberRolesDTO struct {
	MemberID uuid.UUID `json:"member_id"`
	Roles    []string  `json:"roles"`
}
