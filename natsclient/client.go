package natsclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/wuchunfu/nessie/errors"
)

// Client manages one NATS connection with JetStream enabled. It is safe
// for concurrent use once connected.
type Client struct {
	url        string
	clientName string
	username   string
	password   string
	token      string

	timeout       time.Duration
	drainTimeout  time.Duration
	maxReconnects int
	reconnectWait time.Duration

	logger  *slog.Logger
	metrics metricsRecorder

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream
}

// metricsRecorder is the slice of metric.Metrics the client feeds.
type metricsRecorder interface {
	RecordNATSStatus(connected bool)
	RecordNATSReconnect()
	RecordNATSRTT(rtt time.Duration)
}

// NewClient creates an unconnected client for the given NATS URL.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"Client", "NewClient", "NATS URL must not be empty")
	}

	c := &Client{
		url:           url,
		clientName:    "nessie-storage",
		timeout:       5 * time.Second,
		drainTimeout:  10 * time.Second,
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// URL returns the configured NATS URL.
func (c *Client) URL() string {
	return c.url
}

// Connect establishes the connection and initializes JetStream.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "Client", "Connect", "context done before connect")
	}

	opts := []nats.Option{
		nats.Name(c.clientName),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.logger.Warn("NATS disconnected", "error", err)
			if c.metrics != nil {
				c.metrics.RecordNATSStatus(false)
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			c.logger.Info("NATS reconnected", "url", conn.ConnectedUrl())
			if c.metrics != nil {
				c.metrics.RecordNATSStatus(true)
				c.metrics.RecordNATSReconnect()
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.logger.Info("NATS connection closed")
			if c.metrics != nil {
				c.metrics.RecordNATSStatus(false)
			}
		}),
	}
	if c.username != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}

	conn, err := nats.Connect(c.url, opts...)
	if err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrNoConnection, err),
			"Client", "Connect", fmt.Sprintf("connect to %s", c.url))
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return errors.WrapFatal(err, "Client", "Connect", "initialize JetStream")
	}

	c.conn = conn
	c.js = js
	c.logger.Info("NATS connected", "url", conn.ConnectedUrl(), "name", c.clientName)
	if c.metrics != nil {
		c.metrics.RecordNATSStatus(true)
	}
	return nil
}

// Close drains and closes the connection. Drain lets in-flight work
// finish; a drain failure falls back to a hard close.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	drainDone := make(chan error, 1)
	go func() {
		drainDone <- c.conn.Drain()
	}()

	select {
	case err := <-drainDone:
		if err != nil {
			c.logger.Error("NATS drain failed, forcing close", "error", err)
			c.conn.Close()
		}
	case <-time.After(c.drainTimeout):
		c.logger.Error("NATS drain timed out, forcing close", "timeout", c.drainTimeout)
		c.conn.Close()
	case <-ctx.Done():
		c.conn.Close()
	}

	c.conn = nil
	c.js = nil
	if c.metrics != nil {
		c.metrics.RecordNATSStatus(false)
	}
	return nil
}

// IsConnected reports whether the connection is currently up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// RTT measures the round-trip time to the server.
func (c *Client) RTT() (time.Duration, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return 0, errors.WrapTransient(errors.ErrNoConnection, "Client", "RTT", "connection down")
	}
	rtt, err := conn.RTT()
	if err != nil {
		return 0, errors.WrapTransient(err, "Client", "RTT", "measure round-trip time")
	}
	if c.metrics != nil {
		c.metrics.RecordNATSRTT(rtt)
	}
	return rtt, nil
}

// JetStream returns the JetStream context.
func (c *Client) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.js == nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection,
			"Client", "JetStream", "not connected")
	}
	return c.js, nil
}

// CreateKeyValueBucket creates a KV bucket, or binds to it when it
// already exists.
func (c *Client) CreateKeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}

	bucket, err := js.CreateKeyValue(ctx, cfg)
	if err != nil {
		if bucket, bindErr := js.KeyValue(ctx, cfg.Bucket); bindErr == nil {
			return bucket, nil
		}
		return nil, errors.WrapTransient(err, "Client", "CreateKeyValueBucket",
			fmt.Sprintf("create bucket %s", cfg.Bucket))
	}
	return bucket, nil
}

// GetKeyValueBucket binds to an existing KV bucket.
func (c *Client) GetKeyValueBucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}

	bucket, err := js.KeyValue(ctx, name)
	if err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrBucketNotFound, err),
			"Client", "GetKeyValueBucket", fmt.Sprintf("bind bucket %s", name))
	}
	return bucket, nil
}

// DeleteKeyValueBucket removes a KV bucket and all its keys.
func (c *Client) DeleteKeyValueBucket(ctx context.Context, name string) error {
	js, err := c.JetStream()
	if err != nil {
		return err
	}

	if err := js.DeleteKeyValue(ctx, name); err != nil {
		return errors.WrapTransient(err, "Client", "DeleteKeyValueBucket",
			fmt.Sprintf("delete bucket %s", name))
	}
	return nil
}
