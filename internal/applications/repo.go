package applications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/claystudio/membership-backend/pkg/db"
	"github.com/claystudio/membership-backend/pkg/db/models"
	"github.com/claystudio/membership-backend/pkg/enums"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

var (
	// ErrConflict means the row exists but no longer has the expected status.
	ErrConflict = errors.New("application status changed concurrently")
	// ErrDuplicatePending means the e-mail already has an application awaiting review.
	ErrDuplicatePending = errors.New("pending application already exists for email")
)

// Repository is the application store.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Application, error)
	List(ctx context.Context, params ListParams) ([]models.Application, error)
	ListSubmittedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Application, error)
	UpdateDecision(ctx context.Context, id uuid.UUID, update DecisionUpdate, expected enums.ApplicationStatus) (*models.Application, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the application store to a GORM connection.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, app *models.Application) error {
	if err := r.db.WithContext(ctx).Create(app).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return ErrDuplicatePending
		}
		return err
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	var app models.Application
	if err := r.db.WithContext(ctx).First(&app, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

// List returns applications newest first, optionally filtered by status.
func (r *repository) List(ctx context.Context, params ListParams) ([]models.Application, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := r.db.WithContext(ctx).Model(&models.Application{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var rows []models.Application
	err := query.
		Order("submitted_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListSubmittedBefore returns applications still awaiting review that were
// submitted before cutoff, oldest first.
func (r *repository) ListSubmittedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Application, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	var rows []models.Application
	err := r.db.WithContext(ctx).
		Where("status = ? AND submitted_at < ?", enums.ApplicationStatusSubmitted, cutoff).
		Order("submitted_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateDecision writes the decision only while the row still has the expected
// status. Zero affected rows on an existing row is ErrConflict; a missing row
// is gorm.ErrRecordNotFound.
func (r *repository) UpdateDecision(ctx context.Context, id uuid.UUID, update DecisionUpdate, expected enums.ApplicationStatus) (*models.Application, error) {
	columns := update.columns()
	columns["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(columns)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrConflict
	}
	return r.FindByID(ctx, id)
}
