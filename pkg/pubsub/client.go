// Package pubsub wraps the Cloud Pub/Sub v2 client used for domain events
// and mailer notifications.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/claystudio/membership-backend/pkg/config"
	"github.com/claystudio/membership-backend/pkg/logger"
)

var (
	ErrNoProject  = errors.New("gcp project id not configured")
	ErrNoTopics   = errors.New("no pubsub topics configured")
	ErrNotStarted = errors.New("pubsub client not started")
)

// Client owns the gRPC connection and one long-lived publisher per topic.
// Publishers batch in the background, so they are created once and stopped
// on Close.
type Client struct {
	gcp     *gcppubsub.Client
	project string
	topics  config.PubSubConfig

	mu         sync.Mutex
	publishers map[string]*gcppubsub.Publisher
}

// NewClient dials Pub/Sub and fails when a configured topic does not exist.
func NewClient(ctx context.Context, gcp config.GCPConfig, topics config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, ErrNoProject
	}
	conn, err := gcppubsub.NewClient(ctx, project, dialOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("dial pubsub: %w", err)
	}

	c := &Client{gcp: conn, project: project, topics: topics, publishers: map[string]*gcppubsub.Publisher{}}
	if err := c.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	logg.Info(logg.WithField(ctx, "topics", configuredTopics(topics)), "pubsub ready")
	return c, nil
}

func dialOptions(gcp config.GCPConfig) []option.ClientOption {
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return nil
}

func configuredTopics(cfg config.PubSubConfig) []string {
	var out []string
	for _, t := range []string{cfg.DomainTopic, cfg.NotificationTopic} {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Ping confirms every configured topic exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.gcp == nil {
		return ErrNotStarted
	}
	topics := configuredTopics(c.topics)
	if len(topics) == 0 {
		return ErrNoTopics
	}
	for _, topic := range topics {
		_, err := c.gcp.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topicPath(c.project, topic)})
		switch {
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("topic %q does not exist", topic)
		case err != nil:
			return fmt.Errorf("get topic %q: %w", topic, err)
		}
	}
	return nil
}

// Publisher returns the shared publisher for topic, creating it on first
// use. A nil client or blank topic yields nil.
func (c *Client) Publisher(topic string) *gcppubsub.Publisher {
	if c == nil || c.gcp == nil {
		return nil
	}
	path := topicPath(c.project, topic)
	if path == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[path]; ok {
		return p
	}
	p := c.gcp.Publisher(path)
	c.publishers[path] = p
	return p
}

// NotificationPublisher is the publisher for the mailer topic.
func (c *Client) NotificationPublisher() *gcppubsub.Publisher {
	if c == nil {
		return nil
	}
	return c.Publisher(c.topics.NotificationTopic)
}

// Close flushes pending messages and releases the connection.
func (c *Client) Close() error {
	if c == nil || c.gcp == nil {
		return nil
	}
	c.mu.Lock()
	for path, p := range c.publishers {
		p.Stop()
		delete(c.publishers, path)
	}
	c.mu.Unlock()
	return c.gcp.Close()
}

// Publish sends one message and waits for the server id.
func Publish(ctx context.Context, p *gcppubsub.Publisher, data []byte, attrs map[string]string) (string, error) {
	if p == nil {
		return "", ErrNotStarted
	}
	return p.Publish(ctx, &gcppubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
}

// topicPath expands a short topic id to projects/<project>/topics/<id>.
// Full resource names pass through.
func topicPath(project, topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ""
	}
	if strings.HasPrefix(topic, "projects/") && strings.Contains(topic, "/topics/") {
		return topic
	}
	if project = strings.TrimSpace(project); project == "" {
		return ""
	}
	return "projects/" + project + "/topics/" + topic
}
