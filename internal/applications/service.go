package applications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/claystudio/membership-backend/internal/access"
	"github.com/claystudio/membership-backend/internal/contacts"
	"github.com/claystudio/membership-backend/internal/identity"
	"github.com/claystudio/membership-backend/internal/members"
	"github.com/claystudio/membership-backend/internal/notifications"
	"github.com/claystudio/membership-backend/pkg/config"
	"github.com/claystudio/membership-backend/pkg/db/models"
	"github.com/claystudio/membership-backend/pkg/enums"
	pkgerrors "github.com/claystudio/membership-backend/pkg/errors"
	"github.com/claystudio/membership-backend/pkg/logger"
	"github.com/claystudio/membership-backend/pkg/metrics"
	"github.com/claystudio/membership-backend/pkg/outbox"
	"github.com/claystudio/membership-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.Event) error
}

type roleGranter interface {
	Assign(ctx context.Context, role access.Role, memberID uuid.UUID) error
}

type contactCreator interface {
	Create(ctx context.Context, dto contacts.CreateContactDTO) (*models.Contact, error)
}

type notifier interface {
	Send(ctx context.Context, msg notifications.Message) bool
}

// Service runs membership applications from intake to a terminal decision.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*ApplicationDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*ApplicationDTO, error)
	List(ctx context.Context, params ListParams) ([]ApplicationDTO, error)
	Decide(ctx context.Context, input DecideInput) (*ApplicationDTO, error)
}

// ServiceParams groups the collaborators of the application service.
type ServiceParams struct {
	Repository    Repository
	Tx            txRunner
	Outbox        outboxPublisher
	Resolver      identity.Resolver
	Provisioner   members.Provisioner
	Roles         roleGranter
	Contacts      contactCreator
	Notifier      notifier
	StudioRoles   access.StudioRoles
	Notifications config.NotificationsConfig
	Logger        *logger.Logger
	Metrics       *metrics.MembershipMetrics
	Now           func() time.Time
}

type service struct {
	repo        Repository
	tx          txRunner
	outbox      outboxPublisher
	resolver    identity.Resolver
	provisioner members.Provisioner
	roles       roleGranter
	contacts    contactCreator
	notifier    notifier
	studioRoles access.StudioRoles
	notifyCfg   config.NotificationsConfig
	logg        *logger.Logger
	metrics     *metrics.MembershipMetrics
	now         func() time.Time
}

// NewService validates the collaborators and builds the service.
func NewService(p ServiceParams) (Service, error) {
	if p.Repository == nil {
		return nil, fmt.Errorf("applications repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Resolver == nil {
		return nil, fmt.Errorf("identity resolver required")
	}
	if p.Provisioner == nil {
		return nil, fmt.Errorf("member provisioner required")
	}
	if p.Roles == nil {
		return nil, fmt.Errorf("role assigner required")
	}
	if p.Contacts == nil {
		return nil, fmt.Errorf("contacts repository required")
	}
	if p.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if p.StudioRoles.Invitee == "" {
		return nil, fmt.Errorf("invitee role id required")
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:        p.Repository,
		tx:          p.Tx,
		outbox:      p.Outbox,
		resolver:    p.Resolver,
		provisioner: p.Provisioner,
		roles:       p.Roles,
		contacts:    p.Contacts,
		notifier:    p.Notifier,
		studioRoles: p.StudioRoles,
		notifyCfg:   p.Notifications,
		logg:        p.Logger,
		metrics:     p.Metrics,
		now:         now,
	}, nil
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*ApplicationDTO, error) {
	email := identity.NormalizeEmail(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid email")
	}
	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)
	if firstName == "" || lastName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "first and last name are required")
	}

	app := &models.Application{
		FirstName:         firstName,
		LastName:          lastName,
		Email:             email,
		Phone:             trimmedOrNil(input.Phone),
		Address:           input.Address.Normalize(),
		Experience:        strings.TrimSpace(input.Experience),
		CommunityInterest: strings.TrimSpace(input.CommunityInterest),
		Status:            enums.ApplicationStatusSubmitted,
		SubmittedAt:       s.now().UTC(),
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, app); err != nil {
			if errors.Is(err, ErrDuplicatePending) {
				return pkgerrors.New(pkgerrors.CodeConflict, "an application for this email is already awaiting review")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create application")
		}
		return s.outbox.Emit(ctx, tx, outbox.Event{
			EventType:     enums.EventApplicationSubmitted,
			AggregateType: enums.AggregateApplication,
			AggregateID:   app.ID,
			Data: payloads.ApplicationSubmittedEvent{
				ApplicationID: app.ID,
				Email:         app.Email,
				FirstName:     app.FirstName,
				LastName:      app.LastName,
				SubmittedAt:   app.SubmittedAt,
			},
		})
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "submit application")
		}
		return nil, err
	}

	s.metrics.IncSubmission()
	s.notifyAdmin(ctx, app)
	return FromModel(app), nil
}

func (s *service) notifyAdmin(ctx context.Context, app *models.Application) {
	adminContact := strings.TrimSpace(s.notifyCfg.AdminContactID)
	if adminContact == "" {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithApplicationID(ctx, app.ID.String()), "admin contact not configured; skipping new application notice")
		}
		return
	}
	s.notifier.Send(context.WithoutCancel(ctx), notifications.Message{
		TemplateID:    s.notifyCfg.NewApplicationTemplateID,
		Kind:          enums.NotificationNewApplication,
		RecipientID:   adminContact,
		RecipientKind: enums.RecipientContact,
		Variables: map[string]string{
			"application_id": app.ID.String(),
			"first_name":     app.FirstName,
			"last_name":      app.LastName,
			"email":          app.Email,
		},
	})
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ApplicationDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "application id required")
	}
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(app), nil
}

func (s *service) List(ctx context.Context, params ListParams) ([]ApplicationDTO, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	rows, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list applications")
	}
	out := make([]ApplicationDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "application not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load application")
	}
	return app, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
