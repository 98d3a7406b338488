// Package roles grants and revokes studio roles on members.
package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/claystudio/membership-backend/internal/access"
	pkgerrors "github.com/claystudio/membership-backend/pkg/errors"
)

type roleStore interface {
	Exists(ctx context.Context, memberID uuid.UUID) (bool, error)
	AssignRole(ctx context.Context, memberID uuid.UUID, role string) error
	RemoveRole(ctx context.Context, memberID uuid.UUID, role string) error
	ListRoles(ctx context.Context, memberID uuid.UUID) ([]string, error)
}

// Assigner manages role grants. Both operations are idempotent.
type Assigner interface {
	Assign(ctx context.Context, role access.Role, memberID uuid.UUID) error
	Remove(ctx context.Context, role access.Role, memberID uuid.UUID) error
	List(ctx context.Context, memberID uuid.UUID) (access.RoleSet, error)
}

type assigner struct {
	store roleStore
}

func NewAssigner(store roleStore) (Assigner, error) {
	if store == nil {
		return nil, fmt.Errorf("role store required")
	}
	return &assigner{store: store}, nil
}

func (a *assigner) Assign(ctx context.Context, role access.Role, memberID uuid.UUID) error {
	if err := a.requireMember(ctx, role, memberID); err != nil {
		return err
	}
	if err := a.store.AssignRole(ctx, memberID, string(role)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign role")
	}
	return nil
}

func (a *assigner) Remove(ctx context.Context, role access.Role, memberID uuid.UUID) error {
	if err := a.requireMember(ctx, role, memberID); err != nil {
		return err
	}
	if err := a.store.RemoveRole(ctx, memberID, string(role)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove role")
	}
	return nil
}

func (a *assigner) List(ctx context.Context, memberID uuid.UUID) (access.RoleSet, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	held, err := a.store.ListRoles(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list roles")
	}
	return access.NewRoleSet(held...), nil
}

func (a *assigner) requireMember(ctx context.Context, role access.Role, memberID uuid.UUID) error {
	if strings.TrimSpace(string(role)) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "role required")
	}
	if memberID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	ok, err := a.store.Exists(ctx, memberID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check member")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
	}
	return nil
}
