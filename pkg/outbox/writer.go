package outbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/claystudio/membership-backend/pkg/logger"
)

// Writer appends events to the outbox inside the caller's transaction, so an
// event exists exactly when the state change that caused it commits.
type Writer struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewWriter(repo *Repository, logg *logger.Logger) *Writer {
	return &Writer{repo: repo, logg: logg, now: time.Now}
}

func (w *Writer) Emit(ctx context.Context, tx *gorm.DB, event Event) error {
	if tx == nil {
		return errors.New("outbox emit needs a transaction")
	}
	row, env, err := event.Seal(w.now())
	if err != nil {
		return err
	}
	if err := w.repo.Insert(tx.WithContext(ctx), row); err != nil {
		return err
	}
	w.logg.Debug(w.logg.WithFields(ctx, map[string]any{
		"event_id":     env.EventID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID.String(),
	}), "outbox event queued")
	return nil
}
