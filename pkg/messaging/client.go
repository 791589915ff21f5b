// Package messaging wraps the NATS connection the pipeline consumes
// telemetry from and publishes escalation events to.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Config holds connection settings for the bus client.
type Config struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// Client is a thin connection wrapper tracking its subscriptions so they can
// be drained on shutdown. Incoming messages are delivered on the NATS client
// goroutine; handlers must hand work off instead of blocking it.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	log  *zap.Logger

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NewClient connects to the bus. JetStream is optional: when unavailable,
// durable publishes fall back to plain ones.
func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("bus disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("bus reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bus: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		log.Warn("jetstream unavailable, durable publish disabled", zap.Error(err))
		js = nil
	}

	return &Client{
		conn: conn,
		js:   js,
		log:  log,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Subscribe registers a handler for a subject.
func (c *Client) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.subs[subject]; exists {
		return fmt.Errorf("already subscribed to %s", subject)
	}

	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	c.subs[subject] = sub
	return nil
}

// Publish marshals v to JSON and publishes it at least once: through
// JetStream when available, plain NATS otherwise.
func (c *Client) Publish(ctx context.Context, subject string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	if c.js != nil {
		if _, err := c.js.Publish(subject, payload, nats.Context(ctx)); err == nil {
			return nil
		} else if err != nats.ErrNoStreamResponse {
			return fmt.Errorf("failed to publish to %s: %w", subject, err)
		}
		// No stream covers the subject; fall through to core NATS.
	}

	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// IsConnected reports the connection status.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Close unsubscribes everything and closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			c.log.Warn("failed to unsubscribe", zap.String("subject", subject), zap.Error(err))
		}
		delete(c.subs, subject)
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
