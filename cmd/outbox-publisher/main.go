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

	"github.com/claystudio/membership-backend/internal/relay"
	"github.com/claystudio/membership-backend/pkg/config"
	"github.com/claystudio/membership-backend/pkg/db"
	"github.com/claystudio/membership-backend/pkg/logger"
	"github.com/claystudio/membership-backend/pkg/metrics"
	"github.com/claystudio/membership-backend/pkg/migrate"
	"github.com/claystudio/membership-backend/pkg/outbox"
	"github.com/claystudio/membership-backend/pkg/outbox/registry"
	"github.com/claystudio/membership-backend/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	bootCtx := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(bootCtx, ".env not loaded, using process environment")
	}

	cfg, err := config.Load()
	exitOn(logg, err, "load config")

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	exitOn(logg, err, "connect database")
	defer closeQuietly(logg, "database", dbClient.Close)

	exitOn(logg, migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient), "dev migrations")

	bus, err := pubsub.NewClient(bootCtx, cfg.GCP, cfg.PubSub, logg)
	exitOn(logg, err, "connect pubsub")
	defer closeQuietly(logg, "pubsub", bus.Close)

	events, err := registry.New(cfg.PubSub)
	exitOn(logg, err, "build event registry")

	promRegistry := prometheus.NewRegistry()
	worker, err := relay.New(relay.Params{
		Logger:   logg,
		DB:       dbClient,
		Store:    outbox.NewRepository(dbClient.DB()),
		Registry: events,
		Sink:     relay.NewPubSubSink(bus),
		Metrics:  metrics.NewOutboxMetrics(promRegistry),
		Config:   cfg.Outbox,
	})
	exitOn(logg, err, "build relay")

	ctx, stop := signal.NotifyContext(bootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()

	logg.Info(logg.WithField(ctx, "batch_size", cfg.Outbox.BatchSize), "outbox relay started")
	err = worker.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(bootCtx, 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(bootCtx, "outbox relay stopped", err)
		os.Exit(1)
	}
	logg.Info(bootCtx, "outbox relay stopped")
}

func exitOn(logg *logger.Logger, err error, step string) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), step+" failed", err)
	os.Exit(1)
}

func closeQuietly(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "close "+name, err)
	}
}
