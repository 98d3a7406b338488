package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/claystudio/membership-backend/api/routes"
	"github.com/claystudio/membership-backend/internal/access"
	"github.com/claystudio/membership-backend/internal/applications"
	"github.com/claystudio/membership-backend/internal/auth"
	"github.com/claystudio/membership-backend/internal/contacts"
	"github.com/claystudio/membership-backend/internal/identity"
	"github.com/claystudio/membership-backend/internal/members"
	"github.com/claystudio/membership-backend/internal/notifications"
	"github.com/claystudio/membership-backend/internal/roles"
	"github.com/claystudio/membership-backend/pkg/config"
	"github.com/claystudio/membership-backend/pkg/db"
	"github.com/claystudio/membership-backend/pkg/logger"
	"github.com/claystudio/membership-backend/pkg/metrics"
	"github.com/claystudio/membership-backend/pkg/migrate"
	"github.com/claystudio/membership-backend/pkg/outbox"
	"github.com/claystudio/membership-backend/pkg/pubsub"
	"github.com/claystudio/membership-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		requireResource(ctx, logg, "redis", err)
	} else {
		logg.Warn(ctx, "redis disabled, idempotency and rate limiting are off")
	}

	var pubsubClient *pubsub.Client
	if cfg.FeatureFlags.PubSubNotifier {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		requireResource(ctx, logg, "pubsub", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	membershipMetrics := metrics.NewMembershipMetrics(registry)

	notifiers := notifications.FanOut{notifications.NewLogNotifier(logg)}
	if pubsubClient != nil {
		pubsubNotifier, err := notifications.NewPubSubNotifier(pubsubClient.NotificationPublisher())
		requireResource(ctx, logg, "pubsub notifier", err)
		notifiers = append(notifiers, pubsubNotifier)
	}
	dispatcher := notifications.NewDispatcher(notifiers, logg, membershipMetrics, cfg.Notifications.SendTimeout)

	conn := dbClient.DB()
	memberRepo := members.NewRepository(conn)
	contactRepo := contacts.NewRepository(conn)
	studioRoles := access.RolesFromConfig(cfg.Roles)

	resolver, err := identity.NewResolver(memberRepo, contactRepo)
	requireResource(ctx, logg, "identity resolver", err)

	provisioner, err := members.NewProvisioner(members.ProvisionerParams{
		Members:       memberRepo,
		Resolver:      resolver,
		Sender:        dispatcher,
		Password:      cfg.Password,
		SetupTemplate: cfg.Notifications.PasswordSetupTemplateID,
		Logger:        logg,
		Metrics:       membershipMetrics,
	})
	requireResource(ctx, logg, "member provisioner", err)

	assigner, err := roles.NewAssigner(memberRepo)
	requireResource(ctx, logg, "role assigner", err)

	applicationService, err := applications.NewService(applications.ServiceParams{
		Repository:    applications.NewRepository(conn),
		Tx:            dbClient,
		Outbox:        outbox.NewWriter(outbox.NewRepository(conn), logg),
		Resolver:      resolver,
		Provisioner:   provisioner,
		Roles:         assigner,
		Contacts:      contactRepo,
		Notifier:      dispatcher,
		StudioRoles:   studioRoles,
		Notifications: cfg.Notifications,
		Logger:        logg,
		Metrics:       membershipMetrics,
	})
	requireResource(ctx, logg, "applications service", err)

	authService, err := auth.NewService(auth.ServiceParams{
		Members:     memberRepo,
		JWTConfig:   cfg.JWT,
		StudioRoles: studioRoles,
	})
	requireResource(ctx, logg, "auth service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	runCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:       cfg,
			Logger:       logg,
			DB:           dbClient,
			Redis:        redisClient,
			Gatherer:     registry,
			Auth:         authService,
			Applications: applicationService,
			Roles:        assigner,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(runCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logg.Info(runCtx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), shutdownTimeout)
	defer cancel()

	var closeErr error
	closeErr = multierr.Append(closeErr, server.Shutdown(shutdownCtx))
	dispatcher.Wait()
	if pubsubClient != nil {
		closeErr = multierr.Append(closeErr, pubsubClient.Close())
	}
	if redisClient != nil {
		closeErr = multierr.Append(closeErr, redisClient.Close())
	}
	closeErr = multierr.Append(closeErr, dbClient.Close())
	if closeErr != nil {
		logg.Error(shutdownCtx, "error during shutdown", closeErr)
		exitCode = 1
	}

	logg.Info(shutdownCtx, "api server stopped")
	os.Exit(exitCode)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "resource not working: "+resource, err)
	os.Exit(1)
}
