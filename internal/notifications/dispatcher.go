package notifications

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/claystudio/membership-backend/pkg/errors"
	"github.com/claystudio/membership-backend/pkg/logger"
	"github.com/claystudio/membership-backend/pkg/metrics"
)

const defaultSendTimeout = 10 * time.Second

// Dispatcher wraps a Notifier with best-effort semantics: failures are logged
// and counted, never returned to the caller.
type Dispatcher struct {
	notifier Notifier
	logg     *logger.Logger
	metrics  *metrics.MembershipMetrics
	timeout  time.Duration
	inflight sync.WaitGroup
}

// NewDispatcher builds a dispatcher. A non-positive timeout falls back to ten seconds.
func NewDispatcher(notifier Notifier, logg *logger.Logger, m *metrics.MembershipMetrics, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Dispatcher{
		notifier: notifier,
		logg:     logg,
		metrics:  m,
		timeout:  timeout,
	}
}

// Send delivers msg synchronously and reports whether it was accepted.
func (d *Dispatcher) Send(ctx context.Context, msg Message) bool {
	if d == nil || d.notifier == nil {
		return false
	}
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.notifier.Send(sendCtx, msg); err != nil {
		d.metrics.IncNotification(msg.TemplateID, "failed")
		if d.logg != nil {
			logCtx := d.logg.WithFields(ctx, map[string]any{
				"code":         string(pkgerrors.CodeNotification),
				"template_id":  msg.TemplateID,
				"recipient_id": msg.RecipientID,
				"error":        err.Error(),
			})
			d.logg.Warn(logCtx, "notification send failed")
		}
		return false
	}
	d.metrics.IncNotification(msg.TemplateID, "sent")
	return true
}

// Detach delivers msg on its own goroutine. The send outlives the caller's
// cancellation but keeps its request-scoped values and the dispatcher timeout.
func (d *Dispatcher) Detach(ctx context.Context, msg Message) {
	if d == nil || d.notifier == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.Send(detached, msg)
	}()
}

// Wait blocks until every detached send has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.inflight.Wait()
}
