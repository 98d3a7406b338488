package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/claystudio/membership-backend/api/controllers"
	"github.com/claystudio/membership-backend/api/middleware"
	"github.com/claystudio/membership-backend/internal/access"
	"github.com/claystudio/membership-backend/internal/applications"
	"github.com/claystudio/membership-backend/internal/auth"
	"github.com/claystudio/membership-backend/internal/roles"
	"github.com/claystudio/membership-backend/pkg/config"
	"github.com/claystudio/membership-backend/pkg/db"
	"github.com/claystudio/membership-backend/pkg/logger"
	"github.com/claystudio/membership-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface needs. Redis is optional;
// without it idempotency and rate limiting are skipped.
type RouterParams struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           db.Pinger
	Redis        *redis.Client
	Gatherer     prometheus.Gatherer
	Auth         auth.Service
	Applications applications.Service
	Roles        roles.Assigner
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	studio := access.RolesFromConfig(cfg.Roles)

	var (
		replayStore  middleware.ReplayStore
		limiterStore middleware.RateLimitStore
		redisPinger  controllers.Pinger
	)
	if p.Redis != nil {
		replayStore = p.Redis
		limiterStore = p.Redis
		redisPinger = p.Redis
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		chimw.RealIP,
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	window, perIP := cfg.RateLimit.IntakeWindow, int64(cfg.RateLimit.IntakeIPLimit)
	intakeThrottle := middleware.Throttle{Name: "intake", Window: window, PerIP: perIP, PerEmail: perIP}
	loginThrottle := middleware.Throttle{Name: "login", Window: window, PerIP: perIP * 2, PerEmail: perIP}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": redisPinger,
		}))
	})

	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.With(
			middleware.RateLimit(intakeThrottle, limiterStore, logg),
			middleware.Idempotent(replayStore, middleware.IntakeReplayTTL, logg),
		).Post("/applications", controllers.ApplicationIntake(p.Applications, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.RateLimit(loginThrottle, limiterStore, logg)).
			Post("/login", controllers.AuthLogin(p.Auth, logg))
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/applications", func(r chi.Router) {
			r.Use(middleware.RequireCapability(studio.ReviewApplications(), logg))
			r.Get("/", controllers.AdminApplicationList(p.Applications, logg))
			r.Get("/{applicationId}", controllers.AdminApplicationDetail(p.Applications, logg))
			r.With(middleware.Idempotent(replayStore, middleware.DecisionReplayTTL, logg)).
				Post("/{applicationId}/decision", controllers.AdminApplicationDecision(p.Applications, logg))
		})

		r.Route("/members/{memberId}/roles", func(r chi.Router) {
			r.Use(middleware.RequireCapability(studio.ManageRoles(), logg))
			r.Get("/", controllers.AdminMemberRoles(p.Roles, logg))
			r.With(middleware.Idempotent(replayStore, middleware.IntakeReplayTTL, logg)).
				Post("/", controllers.AdminMemberRoleGrant(p.Roles, studio, logg))
			r.Delete("/{role}", controllers.AdminMemberRoleRevoke(p.Roles, studio, logg))
		})
	})

	return r
}
