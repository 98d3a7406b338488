package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/claystudio/membership-backend/pkg/config"
	"github.com/claystudio/membership-backend/pkg/db/models"
	"github.com/claystudio/membership-backend/pkg/enums"
	"github.com/claystudio/membership-backend/pkg/logger"
	"github.com/claystudio/membership-backend/pkg/metrics"
	"github.com/claystudio/membership-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	maxIdle            = 10 * time.Second
	sendTimeout        = 15 * time.Second
	metricsLabel       = "outbox-relay"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Store is the slice of the outbox repository the relay needs.
type Store interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.Resolved, error)
}

type Params struct {
	Logger   *logger.Logger
	DB       txRunner
	Store    Store
	Registry resolver
	Sink     Sink
	Metrics  *metrics.OutboxMetrics
	Config   config.OutboxConfig
}

// Relay moves committed outbox rows to the message bus. Each batch is
// claimed with row locks inside one transaction so concurrent relays never
// send the same row.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	store       Store
	registry    resolver
	sink        Sink
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	idle        backoff
}

func New(p Params) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.DB == nil:
		return nil, errors.New("db required")
	case p.Store == nil:
		return nil, errors.New("outbox store required")
	case p.Registry == nil:
		return nil, errors.New("event registry required")
	case p.Sink == nil:
		return nil, errors.New("sink required")
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		store:       p.Store,
		registry:    p.Registry,
		sink:        p.Sink,
		metrics:     p.Metrics,
		batchSize:   p.Config.BatchSize,
		maxAttempts: p.Config.MaxAttempts,
		idle:        backoff{base: time.Duration(p.Config.PollIntervalMS) * time.Millisecond, max: maxIdle},
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.idle.base <= 0 {
		r.idle.base = defaultPoll
	}
	return r, nil
}

// Run drains the outbox until ctx is cancelled. Full batches are followed
// immediately by the next one; empty batches wait one poll interval and
// failing batches back off.
func (r *Relay) Run(ctx context.Context) error {
	failures := 0
	for {
		n, err := r.Drain(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			failures++
			r.logg.Error(r.logg.WithField(ctx, "consecutive_failures", failures), "outbox.batch_failed", err)
			wait = r.idle.delay(failures)
		case n == 0:
			failures = 0
			wait = r.idle.delay(0)
		default:
			failures = 0
		}

		if wait == 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Drain processes one batch and returns how many rows it handled.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	started := time.Now()
	defer func() { r.metrics.ObserveBatch(metricsLabel, time.Since(started)) }()

	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.store.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		for _, event := range events {
			if err := r.deliver(ctx, tx, event); err != nil {
				return err
			}
			handled++
		}
		return nil
	})
	return handled, err
}

// deliver sends one row and records the outcome on it. Only bookkeeping
// failures are returned; send failures are recorded on the row.
func (r *Relay) deliver(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	})

	resolved, err := r.registry.Resolve(event)
	if err == nil {
		ctx = r.logg.WithFields(ctx, map[string]any{"topic": resolved.Route.Topic, "event_id": resolved.Envelope.EventID})
		err = r.send(ctx, event, resolved)
	}

	switch {
	case err == nil:
		if err := r.store.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.metrics.IncPublished(string(event.EventType))
		r.logg.Info(ctx, "outbox.published")
		return nil

	case permanent(err):
		return r.park(ctx, tx, event, enums.OutboxTerminalNonRetryable, err)

	case event.AttemptCount+1 >= r.maxAttempts:
		return r.park(ctx, tx, event, enums.OutboxTerminalMaxAttempts, err)

	default:
		r.metrics.IncFailed(string(event.EventType))
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "outbox.retry_scheduled")
		if err := r.store.MarkFailedTx(tx, event.ID, err); err != nil {
			return fmt.Errorf("mark failed %s: %w", event.ID, err)
		}
		return nil
	}
}

func (r *Relay) send(ctx context.Context, event models.OutboxEvent, resolved *registry.Resolved) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return r.sink.Send(sendCtx, resolved.Route.Topic, event.Payload, map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	})
}

// park marks the row terminal so it is never fetched again.
func (r *Relay) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxTerminalReason, cause error) error {
	r.metrics.IncFailed(string(event.EventType))
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"terminal_reason": reason,
		"error":           cause.Error(),
	}), "outbox.parked")

	if err := r.store.MarkTerminalTx(tx, event.ID, fmt.Errorf("%s: %w", reason, cause), r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func permanent(err error) bool {
	return registry.IsPermanent(err) || errors.Is(err, ErrNoRoute)
}
