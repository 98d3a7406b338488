package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/claystudio/membership-backend/pkg/pubsub"
)

type publisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error)
}

type topicPublisher struct {
	topic *gcppubsub.Publisher
}

func (p topicPublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	return pubsub.Publish(ctx, p.topic, data, attrs)
}

type envelope struct {
	TemplateID string            `json:"template_id"`
	Kind       string            `json:"kind,omitempty"`
	Recipient  recipient         `json:"recipient"`
	Variables  map[string]string `json:"variables,omitempty"`
	QueuedAt   time.Time         `json:"queued_at"`
}

type recipient struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Email string `json:"email,omitempty"`
}

// PubSubNotifier publishes messages to the topic consumed by the mailer.
type PubSubNotifier struct {
	pub publisher
	now func() time.Time
}

// NewPubSubNotifier binds the notifier to a Pub/Sub topic publisher.
func NewPubSubNotifier(topic *gcppubsub.Publisher) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, fmt.Errorf("notification topic publisher required")
	}
	return newPubSubNotifier(topicPublisher{topic: topic}), nil
}

func newPubSubNotifier(pub publisher) *PubSubNotifier {
	return &PubSubNotifier{pub: pub, now: time.Now}
}

func (n *PubSubNotifier) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(envelope{
		TemplateID: msg.TemplateID,
		Kind:       msg.Kind.String(),
		Recipient: recipient{
			ID:    msg.RecipientID,
			Kind:  string(msg.RecipientKind),
			Email: msg.Email,
		},
		Variables: msg.Variables,
		QueuedAt:  n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	attrs := map[string]string{
		"template_id":    msg.TemplateID,
		"recipient_kind": string(msg.RecipientKind),
	}
	if _, err := n.pub.Publish(ctx, payload, attrs); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
