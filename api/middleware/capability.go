package middleware

import (
	"net/http"

	"github.com/claystudio/membership-backend/api/responses"
	"github.com/claystudio/membership-backend/internal/access"
	pkgerrors "github.com/claystudio/membership-backend/pkg/errors"
	"github.com/claystudio/membership-backend/pkg/logger"
)

// RequireCapability lets the request through only when the caller's roles
// satisfy req. It must run after Auth.
func RequireCapability(req access.Requirement, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if MemberIDFromContext(r.Context()) == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			if !access.Allowed(RolesFromContext(r.Context()), req) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
