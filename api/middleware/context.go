package middleware

import (
	"context"

	"github.com/claystudio/membership-backend/internal/access"
)

type contextKey string

const (
	ctxMemberID contextKey = "member_id"
	ctxRoles    contextKey = "roles"
)

// MemberIDFromContext returns the authenticated member id, or "" when anonymous.
func MemberIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxMemberID).(string); ok {
		return v
	}
	return ""
}

// RolesFromContext returns the role set carried by the access token.
func RolesFromContext(ctx context.Context) access.RoleSet {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxRoles).(access.RoleSet); ok {
		return v
	}
	return nil
}

// WithMemberID injects the member identifier into the context.
func WithMemberID(ctx context.Context, memberID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxMemberID, memberID)
}

// WithRoles injects the caller's role set into the context.
func WithRoles(ctx context.Context, roles access.RoleSet) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRoles, roles)
}
