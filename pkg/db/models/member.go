package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Member is an authenticated account in the studio's identity store.
type Member struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Email        string     `gorm:"column:email;type:text;not null;uniqueIndex:ux_members_email"`
	PasswordHash string     `gorm:"column:password_hash;not null"`
	FirstName    string     `gorm:"column:first_name;not null"`
	LastName     string     `gorm:"column:last_name;not null"`
	ContactID    *uuid.UUID `gorm:"column:contact_id;type:uuid"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *Member) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// MemberRole grants one opaque role identifier to a member.
type MemberRole struct {
	MemberID  uuid.UUID `gorm:"column:member_id;type:uuid;primaryKey"`
	Role      string    `gorm:"column:role;type:text;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
