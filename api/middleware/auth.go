package middleware

import (
	"net/http"
	"strings"

	"github.com/claystudio/membership-backend/api/responses"
	"github.com/claystudio/membership-backend/internal/access"
	pkgAuth "github.com/claystudio/membership-backend/pkg/auth"
	"github.com/claystudio/membership-backend/pkg/config"
	pkgerrors "github.com/claystudio/membership-backend/pkg/errors"
	"github.com/claystudio/membership-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the claims.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.Verify(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			memberID := claims.MemberID().String()
			ctx := WithMemberID(r.Context(), memberID)
			ctx = WithRoles(ctx, access.NewRoleSet(claims.Roles...))
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"member_id": memberID,
					"roles":     claims.Roles,
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
