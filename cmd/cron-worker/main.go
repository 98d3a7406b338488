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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/claystudio/membership-backend/internal/applications"
	"github.com/claystudio/membership-backend/internal/cron"
	"github.com/claystudio/membership-backend/internal/notifications"
	"github.com/claystudio/membership-backend/pkg/config"
	"github.com/claystudio/membership-backend/pkg/db"
	"github.com/claystudio/membership-backend/pkg/logger"
	"github.com/claystudio/membership-backend/pkg/metrics"
	"github.com/claystudio/membership-backend/pkg/migrate"
	"github.com/claystudio/membership-backend/pkg/outbox"
	"github.com/claystudio/membership-backend/pkg/pubsub"
	"github.com/claystudio/membership-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "cron-worker",
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	if !cfg.Redis.Enabled() {
		logg.Error(ctx, "cron worker needs redis for its lock", errors.New("redis not configured"))
		os.Exit(1)
	}
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)

	registry := prometheus.NewRegistry()
	jobMetrics := metrics.NewJobMetrics(registry)
	membershipMetrics := metrics.NewMembershipMetrics(registry)

	notifiers := notifications.FanOut{notifications.NewLogNotifier(logg)}
	var pubsubClient *pubsub.Client
	if cfg.FeatureFlags.PubSubNotifier {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		requireResource(ctx, logg, "pubsub", err)
		pubsubNotifier, err := notifications.NewPubSubNotifier(pubsubClient.NotificationPublisher())
		requireResource(ctx, logg, "pubsub notifier", err)
		notifiers = append(notifiers, pubsubNotifier)
	}
	dispatcher := notifications.NewDispatcher(notifiers, logg, membershipMetrics, cfg.Notifications.SendTimeout)

	pruneJob, err := cron.NewOutboxPruneJob(cron.OutboxPruneParams{
		Logger:     logg,
		DB:         dbClient,
		Outbox:     outbox.NewRepository(dbClient.DB()),
		RetainDays: cfg.Maintenance.OutboxRetentionDays,
	})
	requireResource(ctx, logg, "outbox prune job", err)

	reminderJob, err := cron.NewReviewReminderJob(cron.ReviewReminderJobParams{
		Logger:         logg,
		Applications:   applications.NewRepository(dbClient.DB()),
		Sender:         dispatcher,
		TemplateID:     cfg.Notifications.ReviewReminderTemplateID,
		AdminContactID: cfg.Notifications.AdminContactID,
		After:          cfg.Maintenance.ReviewReminderAfter,
	})
	requireResource(ctx, logg, "review reminder job", err)

	lock, err := cron.NewRedisLock(redisClient, cfg.App.Env, 0)
	requireResource(ctx, logg, "cron lock", err)

	scheduler, err := cron.NewScheduler(cron.SchedulerParams{
		Logger:   logg,
		Lock:     lock,
		Metrics:  jobMetrics,
		Jobs:     []cron.Job{pruneJob, reminderJob},
		Interval: cfg.Maintenance.Interval,
	})
	requireResource(ctx, logg, "scheduler", err)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: ":" + cfg.App.Port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()

	logg.Info(ctx, "starting cron worker")
	exitCode := 0
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	var closeErr error
	closeErr = multierr.Append(closeErr, metricsServer.Shutdown(shutdownCtx))
	if pubsubClient != nil {
		closeErr = multierr.Append(closeErr, pubsubClient.Close())
	}
	closeErr = multierr.Append(closeErr, redisClient.Close())
	closeErr = multierr.Append(closeErr, dbClient.Close())
	if closeErr != nil {
		logg.Error(shutdownCtx, "error during shutdown", closeErr)
		exitCode = 1
	}

	logg.Info(shutdownCtx, "cron worker shutting down gracefully")
	os.Exit(exitCode)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "resource not working: "+resource, err)
	os.Exit(1)
}
