package contacts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/claystudio/membership-backend/pkg/db"
	"github.com/claystudio/membership-backend/pkg/db/models"
)

// ErrAlreadyExists is returned by Create when a contact already owns the e-mail.
var ErrAlreadyExists = errors.New("contact already exists")

// CreateContactDTO carries the CRM fields captured from an application.
type CreateContactDTO struct {
	Email     string
	FirstName string
	LastName  string
	Phone     *string
}

// Repository exposes CRM contact persistence.
type Repository struct {
	db *gorm.DB
}

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

func (r *Repository) Create(ctx context.Context, dto CreateContactDTO) (*models.Contact, error) {
	contact := &models.Contact{
		Email:     dto.Email,
		FirstName: dto.FirstName,
		LastName:  dto.LastName,
		Phone:     dto.Phone,
	}
	if err := r.db.WithContext(ctx).Create(contact).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return contact, nil
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Contact, error) {
	var contact models.Contact
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&contact).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Contact, error) {
	var contact models.Contact
	if err := r.db.WithContext(ctx).First(&contact, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}
