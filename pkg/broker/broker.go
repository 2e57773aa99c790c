// Package broker wraps the NATS JetStream substrate behind a small queue
// interface: stream and consumer provisioning, publish, batched pull,
// ack/nak. The router and storage workers speak only this interface, so
// tests run against the in-memory queue instead of a live server.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/p8fs/p8fs/internal/logger"
	"github.com/p8fs/p8fs/internal/telemetry"
)

const (
	// DefaultReconnectWait is the fixed gap between reconnect attempts.
	DefaultReconnectWait = 2 * time.Second

	// DefaultMaxReconnects bounds reconnect attempts before giving up.
	DefaultMaxReconnects = 10
)

// Config holds broker connection configuration.
type Config struct {
	// URL is the server URL (nats://host:4222).
	URL string

	// Name identifies this client in server monitoring.
	Name string

	// ReconnectWait is the gap between reconnect attempts. Default: 2s.
	ReconnectWait time.Duration

	// MaxReconnects bounds reconnect attempts. Default: 10.
	MaxReconnects int
}

// Header carries optional message metadata across publish and fetch.
type Header = nats.Header

// Msg is one pulled message. Ack removes it from the work queue; Nak asks
// the broker to re-deliver it.
type Msg interface {
	Subject() string
	Data() []byte
	Ack() error
	Nak() error

	// Headers returns the message headers, nil when none were published.
	Headers() Header

	// Delivered is the delivery attempt count, starting at 1.
	Delivered() uint64
}

// Queue is the pub/pull surface the pipeline uses.
type Queue interface {
	// Publish sends data on subject and waits for stream acknowledgement.
	// Optional headers travel with the message.
	Publish(ctx context.Context, subject string, data []byte, headers ...Header) error

	// Fetch pulls up to batch messages from the durable consumer, waiting at
	// most wait for the first one. An empty batch is not an error.
	Fetch(ctx context.Context, stream, consumer string, batch int, wait time.Duration) ([]Msg, error)
}

// Client is the JetStream-backed Queue. Safe for concurrent use.
type Client struct {
	nc *nats.Conn
	js jetstream.JetStream
}

var _ Queue = (*Client)(nil)

// Connect establishes the broker connection. Reconnection is automatic with
// a fixed wait between attempts; every connection state change is logged.
func Connect(cfg Config) (*Client, error) {
	wait := cfg.ReconnectWait
	if wait == 0 {
		wait = DefaultReconnectWait
	}
	maxReconnects := cfg.MaxReconnects
	if maxReconnects == 0 {
		maxReconnects = DefaultMaxReconnects
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(wait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("Broker disconnected", logger.Err(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Broker reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("Broker connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open JetStream context: %w", err)
	}

	logger.Info("Broker connected", "url", nc.ConnectedUrl())
	return &Client{nc: nc, js: js}, nil
}

// Close drains pending operations and closes the connection.
func (c *Client) Close() error {
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return fmt.Errorf("failed to drain broker connection: %w", err)
	}
	return nil
}

// Publish sends data on subject and waits for the stream acknowledgement.
func (c *Client) Publish(ctx context.Context, subject string, data []byte, headers ...Header) error {
	ctx, span := telemetry.StartBrokerSpan(ctx, "publish", subject)
	defer span.End()

	msg := &nats.Msg{Subject: subject, Data: data, Header: mergeHeaders(headers)}
	if _, err := c.js.PublishMsg(ctx, msg); err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("failed to publish on %s: %w", subject, err)
	}
	return nil
}

// mergeHeaders flattens the variadic headers, nil when empty.
func mergeHeaders(headers []Header) Header {
	var merged Header
	for _, h := range headers {
		for key, values := range h {
			if merged == nil {
				merged = Header{}
			}
			merged[key] = append(merged[key], values...)
		}
	}
	return merged
}

// Fetch pulls up to batch messages from the durable consumer.
func (c *Client) Fetch(ctx context.Context, stream, consumer string, batch int, wait time.Duration) ([]Msg, error) {
	cons, err := c.js.Consumer(ctx, stream, consumer)
	if err != nil {
		return nil, fmt.Errorf("failed to look up consumer %s/%s: %w", stream, consumer, err)
	}

	res, err := cons.Fetch(batch, jetstream.FetchMaxWait(wait))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch from %s/%s: %w", stream, consumer, err)
	}

	var msgs []Msg
	for m := range res.Messages() {
		msgs = append(msgs, &jsMsg{m: m})
	}
	if err := res.Error(); err != nil {
		// Partial batches are still usable; surface the error only when the
		// fetch produced nothing.
		if len(msgs) == 0 {
			return nil, fmt.Errorf("failed to fetch from %s/%s: %w", stream, consumer, err)
		}
		logger.Warn("Partial fetch", logger.KeyStream, stream, logger.Err(err))
	}
	return msgs, nil
}

// jsMsg adapts jetstream.Msg to the Msg interface.
type jsMsg struct {
	m jetstream.Msg
}

func (j *jsMsg) Subject() string { return j.m.Subject() }
func (j *jsMsg) Data() []byte    { return j.m.Data() }
func (j *jsMsg) Headers() Header { return j.m.Headers() }
func (j *jsMsg) Ack() error      { return j.m.Ack() }
func (j *jsMsg) Nak() error      { return j.m.Nak() }

func (j *jsMsg) Delivered() uint64 {
	meta, err := j.m.Metadata()
	if err != nil {
		return 1
	}
	return meta.NumDelivered
}
