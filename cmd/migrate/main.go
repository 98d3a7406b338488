package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/claystudio/membership-backend/pkg/config"
	"github.com/claystudio/membership-backend/pkg/db"
	"github.com/claystudio/membership-backend/pkg/logger"
	"github.com/claystudio/membership-backend/pkg/migrate"
	"github.com/joho/godotenv"
)

func main() {
	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate")
	name := flag.String("name", "", "migration name for -cmd=create")
	dir := flag.String("dir", migrate.SourceDir, "source directory for -cmd=create")
	target := flag.String("version", "", "target YYYYMMDDHHMMSS for -cmd=version")
	flag.Parse()

	// create and validate work on files only
	switch *cmd {
	case "create":
		path, err := migrate.Create(*dir, *name, time.Now())
		exitOn(err)
		fmt.Println("created", path)
		return
	case "validate":
		exitOn(migrate.Validate(migrate.Migrations()))
		fmt.Println("migrations valid")
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	exitOn(err)

	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithField(context.Background(), "cmd", *cmd)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)
	migrator, err := migrate.NewMigrator(sqlDB)
	requireResource(ctx, logg, "migrator", err)

	switch *cmd {
	case "up":
		applied, err := migrator.Up(ctx)
		requireResource(ctx, logg, "goose up", err)
		logg.Info(logg.WithField(ctx, "applied", applied), "migrations applied")
	case "down":
		version, err := migrator.Down(ctx)
		requireResource(ctx, logg, "goose down", err)
		logg.Info(logg.WithField(ctx, "version", version), "migration rolled back")
	case "status":
		rows, err := migrator.Status(ctx)
		requireResource(ctx, logg, "goose status", err)
		for _, row := range rows {
			state := "pending"
			if row.Applied {
				state = "applied"
			}
			fmt.Printf("%d\t%s\t%s\n", row.Version, state, row.Path)
		}
	case "version":
		if *target == "" {
			exitOn(fmt.Errorf("missing -version"))
		}
		requireResource(ctx, logg, "goose version", migrator.To(ctx, *target))
	default:
		exitOn(fmt.Errorf("unknown -cmd %q", *cmd))
	}
}

func exitOn(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
