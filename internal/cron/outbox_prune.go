package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/claystudio/membership-backend/pkg/logger"
)

const (
	OutboxPruneJobName      = "outbox-prune"
	defaultOutboxRetainDays = 30
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedPruner interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxPruneParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Outbox     publishedPruner
	RetainDays int
	Now        func() time.Time
}

// NewOutboxPruneJob deletes outbox rows that were published more than
// RetainDays ago. Unpublished and parked rows are never touched.
func NewOutboxPruneJob(p OutboxPruneParams) (Job, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.DB == nil:
		return nil, errors.New("db required")
	case p.Outbox == nil:
		return nil, errors.New("outbox repository required")
	}
	retain := p.RetainDays
	if retain <= 0 {
		retain = defaultOutboxRetainDays
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}

	return JobFunc(OutboxPruneJobName, func(ctx context.Context) error {
		cutoff := now().UTC().AddDate(0, 0, -retain)
		var deleted int64
		err := p.DB.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := p.Outbox.DeletePublishedBefore(tx, cutoff)
			deleted = n
			return err
		})
		if err != nil {
			return fmt.Errorf("prune published outbox rows: %w", err)
		}
		p.Logger.Info(p.Logger.WithFields(ctx, map[string]any{
			"cutoff":       cutoff,
			"retain_days":  retain,
			"rows_deleted": deleted,
		}), "outbox pruned")
		return nil
	}), nil
}
