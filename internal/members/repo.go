package members

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/claystudio/membership-backend/pkg/db"
	"github.com/claystudio/membership-backend/pkg/db/models"
)

// ErrAlreadyExists is returned by Create when the e-mail is already registered.
var ErrAlreadyExists = errors.New("member already exists")

// Repository exposes member persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a members repo bound to the provided GORM DB.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a new member. A unique violation on e-mail maps to ErrAlreadyExists.
func (r *Repository) Create(ctx context.Context, dto CreateMemberDTO) (*models.Member, error) {
	member := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(member).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return member, nil
}

// FindByEmail retrieves the member whose login e-mail matches exactly.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Member, error) {
	var member models.Member
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// FindByID loads a member by UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	var member models.Member
	if err := r.db.WithContext(ctx).First(&member, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// Exists reports whether a member with the id is present.
func (r *Repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Member{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// AssignRole grants a role. Granting a role the member already holds is a no-op.
func (r *Repository) AssignRole(ctx context.Context, memberID uuid.UUID, role string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.MemberRole{MemberID: memberID, Role: role}).Error
}

// RemoveRole revokes a role. Revoking a role that is not held is a no-op.
func (r *Repository) RemoveRole(ctx context.Context, memberID uuid.UUID, role string) error {
	return r.db.WithContext(ctx).
		Where("member_id = ? AND role = ?", memberID, role).
		Delete(&models.MemberRole{}).Error
}

// ListRoles returns the member's roles in lexical order.
func (r *Repository) ListRoles(ctx context.Context, memberID uuid.UUID) ([]string, error) {
	var roles []string
	err := r.db.WithContext(ctx).
		Model(&models.MemberRole{}).
		Where("member_id = ?", memberID).
		Order("role").
		Pluck("role", &roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}
