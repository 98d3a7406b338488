package members

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/claystudio/membership-backend/internal/identity"
	"github.com/claystudio/membership-backend/internal/notifications"
	"github.com/claystudio/membership-backend/pkg/config"
	"github.com/claystudio/membership-backend/pkg/db/models"
	"github.com/claystudio/membership-backend/pkg/enums"
	pkgerrors "github.com/claystudio/membership-backend/pkg/errors"
	"github.com/claystudio/membership-backend/pkg/logger"
	"github.com/claystudio/membership-backend/pkg/metrics"
	"github.com/claystudio/membership-backend/pkg/security"
)

type memberCreator interface {
	Create(ctx context.Context, dto CreateMemberDTO) (*models.Member, error)
}

type detachedSender interface {
	Detach(ctx context.Context, msg notifications.Message)
}

// ProvisionInput describes the person to turn into a member.
type ProvisionInput struct {
	Email     string
	FirstName string
	LastName  string
	ContactID *uuid.UUID
}

// ProvisionResult reports the member id and whether this call created it.
type ProvisionResult struct {
	MemberID   uuid.UUID
	WasCreated bool
}

// Provisioner guarantees a member exists for an e-mail address.
type Provisioner interface {
	Provision(ctx context.Context, input ProvisionInput) (ProvisionResult, error)
}

type provisioner struct {
	members       memberCreator
	resolver      identity.Resolver
	sender        detachedSender
	passwordCfg   config.PasswordConfig
	setupTemplate string
	logg          *logger.Logger
	metrics       *metrics.MembershipMetrics
}

// ProvisionerParams groups the provisioner collaborators.
type ProvisionerParams struct {
	Members       memberCreator
	Resolver      identity.Resolver
	Sender        detachedSender
	Password      config.PasswordConfig
	SetupTemplate string
	Logger        *logger.Logger
	Metrics       *metrics.MembershipMetrics
}

// NewProvisioner validates and wires the provisioner.
func NewProvisioner(p ProvisionerParams) (Provisioner, error) {
	if p.Members == nil {
		return nil, fmt.Errorf("members repository required")
	}
	if p.Resolver == nil {
		return nil, fmt.Errorf("identity resolver required")
	}
	if p.Sender == nil {
		return nil, fmt.Errorf("notification sender required")
	}
	if strings.TrimSpace(p.SetupTemplate) == "" {
		return nil, fmt.Errorf("password setup template required")
	}
	return &provisioner{
		members:       p.Members,
		resolver:      p.Resolver,
		sender:        p.Sender,
		passwordCfg:   p.Password,
		setupTemplate: p.SetupTemplate,
		logg:          p.Logger,
		metrics:       p.Metrics,
	}, nil
}

// Provision tries to create the member first and only looks the e-mail up when
// the store reports it is already taken. A concurrent creation for the same
// e-mail therefore resolves to the winner's id instead of failing.
func (p *provisioner) Provision(ctx context.Context, input ProvisionInput) (ProvisionResult, error) {
	email := identity.NormalizeEmail(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return ProvisionResult{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid email")
	}

	hash, err := p.temporaryCredential()
	if err != nil {
		p.metrics.IncProvisioning("failed")
		return ProvisionResult{}, err
	}

	member, err := p.members.Create(ctx, CreateMemberDTO{
		Email:        email,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		PasswordHash: hash,
		ContactID:    input.ContactID,
	})
	switch {
	case err == nil:
		p.metrics.IncProvisioning("created")
		p.sendPasswordSetup(ctx, member)
		return ProvisionResult{MemberID: member.ID, WasCreated: true}, nil
	case errors.Is(err, ErrAlreadyExists):
		return p.recoverExisting(ctx, email, err)
	default:
		p.metrics.IncProvisioning("failed")
		return ProvisionResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create member")
	}
}

func (p *provisioner) recoverExisting(ctx context.Context, email string, cause error) (ProvisionResult, error) {
	found, err := p.resolver.Resolve(ctx, email)
	if err != nil {
		p.metrics.IncProvisioning("failed")
		return ProvisionResult{}, err
	}
	if !found.IsMember() {
		p.metrics.IncProvisioning("failed")
		inconsistency := pkgerrors.Wrap(pkgerrors.CodeIdentityInconsistency, cause, "member store reported a duplicate e-mail that cannot be resolved")
		if p.logg != nil {
			p.logg.Error(p.logg.WithField(ctx, "identity_kind", string(found.Kind)), "member provisioning inconsistency", inconsistency)
		}
		return ProvisionResult{}, inconsistency
	}
	p.metrics.IncProvisioning("reused")
	return ProvisionResult{MemberID: found.ID, WasCreated: false}, nil
}

func (p *provisioner) temporaryCredential() (string, error) {
	length := p.passwordCfg.TempPasswordLength
	if length <= 0 {
		length = security.DefaultTempPasswordLength
	}
	tempPassword, err := security.GenerateTempPassword(length)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate temp password")
	}
	hash, err := security.HashPassword(tempPassword, p.passwordCfg)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	return hash, nil
}

func (p *provisioner) sendPasswordSetup(ctx context.Context, member *models.Member) {
	p.sender.Detach(ctx, notifications.Message{
		TemplateID:    p.setupTemplate,
		Kind:          enums.NotificationPasswordSetup,
		RecipientID:   member.ID.String(),
		RecipientKind: enums.RecipientMember,
		Email:         member.Email,
		Variables: map[string]string{
			"first_name": member.FirstName,
			"email":      member.Email,
		},
	})
}
