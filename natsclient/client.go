// Package natsclient manages the NATS connection used by the publish sink
// and the KV-backed data-access facade.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/torocatala/dino/errors"
)

// Error variables for connection state
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
)

// Client manages a NATS connection with JetStream access.
type Client struct {
	url           string
	clientName    string
	username      string
	password      string
	token         string
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration

	logger *slog.Logger

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream
}

// Option configures the client.
type Option func(*Client)

// WithName sets the connection name reported to the server.
func WithName(name string) Option {
	return func(c *Client) { c.clientName = name }
}

// WithCredentials sets username/password authentication.
func WithCredentials(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithToken sets token authentication.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithReconnect configures reconnect behavior.
func WithReconnect(maxReconnects int, wait time.Duration) Option {
	return func(c *Client) {
		c.maxReconnects = maxReconnects
		c.reconnectWait = wait
	}
}

// WithTimeout sets the connect timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

// New creates a client for the given server URL.
func New(url string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		url:           url,
		clientName:    "dino",
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the connection and initializes JetStream.
func (c *Client) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}

	natsOpts := []nats.Option{
		nats.Name(c.clientName),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			c.logger.Info("NATS reconnected", "url", conn.ConnectedUrl())
		}),
	}
	if c.username != "" {
		natsOpts = append(natsOpts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		natsOpts = append(natsOpts, nats.Token(c.token))
	}

	conn, err := nats.Connect(c.url, natsOpts...)
	if err != nil {
		return errors.WrapTransient(err, "NATSClient", "Connect", "connect to server")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return errors.WrapFatal(err, "NATSClient", "Connect", "initialize jetstream")
	}

	c.conn = conn
	c.js = js
	c.logger.Info("Connected to NATS", "url", conn.ConnectedUrl())
	return nil
}

// Close drains and closes the connection.
func (c *Client) Close(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("NATS drain failed, closing hard", "error", err)
		c.conn.Close()
	}
	c.conn = nil
	c.js = nil
}

// IsConnected reports connection health.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Publish sends a message on a subject. Fire-and-forget: no acknowledgment
// is awaited.
func (c *Client) Publish(subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "NATSClient", "Publish",
			fmt.Sprintf("publish to %s", subject))
	}
	return nil
}

// Subscribe registers a handler for a subject.
func (c *Client) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return nil, ErrNotConnected
	}
	sub, err := conn.Subscribe(subject, handler)
	if err != nil {
		return nil, errors.WrapTransient(err, "NATSClient", "Subscribe",
			fmt.Sprintf("subscribe to %s", subject))
	}
	return sub, nil
}

// EnsureKeyValue creates or opens a KV bucket.
func (c *Client) EnsureKeyValue(ctx context.Context, bucket string) (jetstream.KeyValue, error) {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return nil, ErrNotConnected
	}

	kv, err := js.KeyValue(ctx, bucket)
	if err == nil {
		return kv, nil
	}
	if !stderrors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, errors.WrapTransient(err, "NATSClient", "EnsureKeyValue",
			fmt.Sprintf("open bucket %s", bucket))
	}

	kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket})
	if err != nil {
		return nil, errors.WrapTransient(err, "NATSClient", "EnsureKeyValue",
			fmt.Sprintf("create bucket %s", bucket))
	}
	return kv, nil
}
