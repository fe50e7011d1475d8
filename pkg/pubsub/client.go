// Package pubsub publishes operational alerts, notably the reconciler's aged
// pending backlog warning, to a Google Pub/Sub topic.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/selliahq/payments-backend/pkg/config"
	"github.com/selliahq/payments-backend/pkg/logger"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Pinger is the readiness-probe view of the client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Client wraps the Pub/Sub v2 client, pinned to the alerts topic from config.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.AlertsConfig
}

var errProjectIDRequired = errors.New("gcp project id is required")

// NewClient connects to Pub/Sub and verifies the alerts topic up front, so a
// misconfigured topic surfaces at boot instead of on the first stuck payment.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.AlertsConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: psClient, projectID: gcp.ProjectID, cfg: cfg}
	if err := c.checkTopic(ctx, cfg.Topic); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(ctx, "pubsub client initialized")
	}
	return c, nil
}

// checkTopic asks the admin API whether the topic exists. The v2 client
// reports this through gRPC status codes rather than a sentinel error.
func (c *Client) checkTopic(ctx context.Context, name string) error {
	resource := c.qualifyTopic(name)
	if resource == "" {
		return fmt.Errorf("alerts topic not configured")
	}

	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: resource})
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("topic %q does not exist", name)
	}
	if err != nil {
		return fmt.Errorf("checking topic %q: %w", name, err)
	}
	return nil
}

// Ping re-verifies the alerts topic, which doubles as a connectivity check.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.checkTopic(ctx, c.cfg.Topic)
}

// Publisher returns a publisher for the given topic ID or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	resource := c.qualifyTopic(name)
	if resource == "" {
		return nil
	}
	return c.client.Publisher(resource)
}

// AlertsPublisher returns the publisher for the configured alerts topic.
func (c *Client) AlertsPublisher() *pubsub.Publisher {
	return c.Publisher(c.cfg.Topic)
}

// PublishAlert sends one message to the alerts topic and blocks until the
// server acks it.
func (c *Client) PublishAlert(ctx context.Context, data []byte, attributes map[string]string) error {
	publisher := c.AlertsPublisher()
	if publisher == nil {
		return fmt.Errorf("alerts topic not configured")
	}
	result := publisher.Publish(ctx, &pubsub.Message{Data: data, Attributes: attributes})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing alert: %w", err)
	}
	return nil
}

// Close releases the underlying gRPC resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// qualifyTopic expands a bare topic ID into its full resource name. Names
// that already look fully qualified pass through untouched.
func (c *Client) qualifyTopic(name string) string {
	if c == nil {
		return ""
	}
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(c.projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", p, n)
}
