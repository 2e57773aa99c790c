// Package router implements the tiered router: it pulls raw storage events
// from the ingress stream, classifies each by declared size and republishes
// it unmodified on the matching tier subject.
package router

import (
	"context"
	"time"

	"github.com/p8fs/p8fs/internal/logger"
	"github.com/p8fs/p8fs/internal/telemetry"
	"github.com/p8fs/p8fs/pkg/broker"
	"github.com/p8fs/p8fs/pkg/events"
)

const (
	// DefaultBatchSize is the maximum number of messages pulled per fetch.
	DefaultBatchSize = 10

	// DefaultFetchTimeout is how long a fetch waits for the first message.
	DefaultFetchTimeout = 30 * time.Second
)

// Metrics is the optional metrics hook for routing decisions.
type Metrics interface {
	EventRouted(tier string)
	EventRejected(reason string)
}

// Config holds router configuration.
type Config struct {
	// BatchSize is the pull batch size. Default: 10.
	BatchSize int

	// FetchTimeout is the pull wait. Default: 30s.
	FetchTimeout time.Duration

	// Metrics is an optional metrics collector.
	Metrics Metrics
}

// Router pulls from the ingress consumer and fans events out by size tier.
type Router struct {
	queue   broker.Queue
	batch   int
	timeout time.Duration
	metrics Metrics
}

// New creates a router bound to a queue.
func New(queue broker.Queue, cfg Config) *Router {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Router{
		queue:   queue,
		batch:   batch,
		timeout: timeout,
		metrics: cfg.Metrics,
	}
}

// Run pulls and routes until ctx is cancelled. In-flight messages finish
// before Run returns; unacked ones re-deliver after the ack wait.
func (r *Router) Run(ctx context.Context) error {
	logger.Info("Router started",
		logger.KeyStream, broker.StreamIngress,
		logger.KeyConsumer, broker.ConsumerRouter)

	for {
		if err := ctx.Err(); err != nil {
			logger.Info("Router stopped")
			return nil
		}

		msgs, err := r.queue.Fetch(ctx, broker.StreamIngress, broker.ConsumerRouter, r.batch, r.timeout)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("Router stopped")
				return nil
			}
			logger.Warn("Ingress fetch failed", logger.Err(err))
			continue
		}

		for _, msg := range msgs {
			r.route(ctx, msg)
		}
	}
}

// RunOnce drains at most one batch. Used by tests and the process command.
func (r *Router) RunOnce(ctx context.Context) (int, error) {
	msgs, err := r.queue.Fetch(ctx, broker.StreamIngress, broker.ConsumerRouter, r.batch, r.timeout)
	if err != nil {
		return 0, err
	}
	for _, msg := range msgs {
		r.route(ctx, msg)
	}
	return len(msgs), nil
}

// route classifies one message and forwards it. The payload is republished
// byte-identical with its headers; the ingress message is acked only after
// the tier publish succeeded.
func (r *Router) route(ctx context.Context, msg broker.Msg) {
	ctx, span := telemetry.StartBrokerSpan(ctx, "route", msg.Subject())
	defer span.End()

	ev, err := events.ParseEvent(msg.Data())
	if err != nil {
		logger.WarnCtx(ctx, "Rejecting malformed event",
			logger.KeyDelivered, msg.Delivered(),
			logger.Err(err))
		if r.metrics != nil {
			r.metrics.EventRejected("parse")
		}
		if err := msg.Nak(); err != nil {
			logger.Warn("Nak failed", logger.Err(err))
		}
		return
	}

	tier := ev.Tier()
	subject, _ := broker.TierSubject(string(tier))

	if err := r.queue.Publish(ctx, subject, msg.Data(), msg.Headers()); err != nil {
		logger.ErrorCtx(ctx, "Tier publish failed",
			logger.Tier(string(tier)),
			logger.Path(ev.Path),
			logger.Err(err))
		if r.metrics != nil {
			r.metrics.EventRejected("publish")
		}
		if err := msg.Nak(); err != nil {
			logger.Warn("Nak failed", logger.Err(err))
		}
		return
	}

	if err := msg.Ack(); err != nil {
		// The event is already forwarded; redelivery is harmless because
		// downstream upserts are idempotent.
		logger.WarnCtx(ctx, "Ack failed after republish", logger.Err(err))
	}

	if r.metrics != nil {
		r.metrics.EventRouted(string(tier))
	}
	logger.DebugCtx(ctx, "Routed event",
		logger.Tier(string(tier)),
		logger.Tenant(ev.TenantID),
		logger.Path(ev.Path),
		logger.Size(ev.Size))
}
