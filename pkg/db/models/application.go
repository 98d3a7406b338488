package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/claystudio/membership-backend/pkg/enums"
	"github.com/claystudio/membership-backend/pkg/types"
)

// Application is one studio membership request moving through review.
type Application struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	FirstName         string                  `gorm:"column:first_name;not null"`
	LastName          string                  `gorm:"column:last_name;not null"`
	Email             string                  `gorm:"column:email;type:text;not null;index"`
	Phone             *string                 `gorm:"column:phone"`
	Address           types.MailingAddress    `gorm:"column:address;type:jsonb"`
	Experience        string                  `gorm:"column:experience;type:text;not null;default:''"`
	CommunityInterest string                  `gorm:"column:community_interest;type:text;not null;default:''"`
	Status            enums.ApplicationStatus `gorm:"column:status;type:text;not null;default:'submitted';index"`
	SubmittedAt       time.Time               `gorm:"column:submitted_at;not null"`
	ApprovedAt        *time.Time              `gorm:"column:approved_at"`
	RejectedAt        *time.Time              `gorm:"column:rejected_at"`
	Notes             *string                 `gorm:"column:notes;type:text"`
	DecidedBy         *uuid.UUID              `gorm:"column:decided_by;type:uuid"`
	LinkedMemberID    *uuid.UUID              `gorm:"column:linked_member_id;type:uuid"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Application) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
