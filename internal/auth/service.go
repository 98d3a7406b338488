package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/claystudio/membership-backend/internal/access"
	"github.com/claystudio/membership-backend/internal/identity"
	pkgAuth "github.com/claystudio/membership-backend/pkg/auth"
	"github.com/claystudio/membership-backend/pkg/config"
	"github.com/claystudio/membership-backend/pkg/db/models"
	pkgerrors "github.com/claystudio/membership-backend/pkg/errors"
	"github.com/claystudio/membership-backend/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// Service defines the behavior needed by the auth controller.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
}

type memberRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Member, error)
	ListRoles(ctx context.Context, memberID uuid.UUID) ([]string, error)
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Members     memberRepository
	JWTConfig   config.JWTConfig
	StudioRoles access.StudioRoles
	Now         func() time.Time
}

type service struct {
	members     memberRepository
	jwtCfg      config.JWTConfig
	studioRoles access.StudioRoles
	now         func() time.Time
}

// NewService constructs a login service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Members == nil {
		return nil, fmt.Errorf("member repository is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		members:     params.Members,
		jwtCfg:      params.JWTConfig,
		studioRoles: params.StudioRoles,
		now:         now,
	}, nil
}

// Login verifies the member's password and mints a token carrying their
// studio roles. Members without any studio role cannot sign in.
func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	member, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	granted, err := s.members.ListRoles(ctx, member.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list roles")
	}
	set := access.NewRoleSet(granted...)
	if !access.Allowed(set, s.studioRoles.StudioAccess()) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	now := s.now().UTC()
	token, err := pkgAuth.Issue(s.jwtCfg, now, member.ID, granted)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}

	return &LoginResponse{
		AccessToken: token.Value,
		ExpiresAt:   token.ExpiresAt,
		MemberID:    member.ID,
		Roles:       granted,
	}, nil
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.Member, error) {
	normalized := identity.NormalizeEmail(email)
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	member, err := s.members.FindByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup member")
	}

	valid, err := security.VerifyPassword(password, member.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return member, nil
}
