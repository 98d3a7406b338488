package relay

import (
	"context"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/claystudio/membership-backend/pkg/pubsub"
)

// ErrNoRoute means no publisher exists for the event's topic. Retrying
// cannot help until the deployment is fixed.
var ErrNoRoute = errors.New("no publisher for topic")

// Sink delivers one encoded event to a topic and returns once it is
// acknowledged.
type Sink interface {
	Send(ctx context.Context, topic string, data []byte, attrs map[string]string) error
}

type publisherSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

// PubSubSink sends events through the studio Pub/Sub client.
type PubSubSink struct {
	publishers publisherSource
}

func NewPubSubSink(publishers publisherSource) *PubSubSink {
	return &PubSubSink{publishers: publishers}
}

func (s *PubSubSink) Send(ctx context.Context, topic string, data []byte, attrs map[string]string) error {
	publisher := s.publishers.Publisher(topic)
	if publisher == nil {
		return fmt.Errorf("%w %q", ErrNoRoute, topic)
	}
	_, err := pubsub.Publish(ctx, publisher, data, attrs)
	return err
}
