package notifications

import (
	"context"

	"github.com/claystudio/membership-backend/pkg/logger"
)

// LogNotifier records messages in the structured log. Used when no mailer topic is configured.
type LogNotifier struct {
	logg *logger.Logger
}

func NewLogNotifier(logg *logger.Logger) *LogNotifier {
	return &LogNotifier{logg: logg}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if n.logg == nil {
		return nil
	}
	ctx = n.logg.WithFields(ctx, map[string]any{
		"template_id":    msg.TemplateID,
		"recipient_id":   msg.RecipientID,
		"recipient_kind": string(msg.RecipientKind),
	})
	n.logg.Info(ctx, "notification queued")
	return nil
}
