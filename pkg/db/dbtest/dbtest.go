// Package dbtest opens throwaway sqlite databases carrying the studio schema
// for repository tests.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/claystudio/membership-backend/pkg/db/models"
)

// Postgres enforces this as a partial unique index in the migrations.
const pendingEmailIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_applications_pending_email
	ON applications (email) WHERE status = 'submitted'`

// Open returns an isolated in-memory database with every studio table migrated.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := conn.AutoMigrate(
		&models.Member{},
		&models.MemberRole{},
		&models.Contact{},
		&models.Application{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	if err := conn.Exec(pendingEmailIndex).Error; err != nil {
		t.Fatalf("create pending email index: %v", err)
	}
	return conn
}
