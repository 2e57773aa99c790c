package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/p8fs/p8fs/internal/logger"
)

// Subjects of the storage event pipeline.
const (
	SubjectIngress = "p8fs.storage.events"
	SubjectSmall   = "p8fs.storage.events.small"
	SubjectMedium  = "p8fs.storage.events.medium"
	SubjectLarge   = "p8fs.storage.events.large"
)

// Stream names.
const (
	StreamIngress = "INGRESS"
	StreamSmall   = "SMALL"
	StreamMedium  = "MEDIUM"
	StreamLarge   = "LARGE"
)

// Durable consumer names.
const (
	ConsumerRouter = "router-consumer"
	ConsumerSmall  = "small-workers"
	ConsumerMedium = "medium-workers"
	ConsumerLarge  = "large-workers"
)

// StreamSpec pairs a stream with its single durable consumer.
type StreamSpec struct {
	Stream        string
	Subject       string
	MaxAge        time.Duration
	Consumer      string
	AckWait       time.Duration
	MaxDeliver    int
	MaxAckPending int
}

// Topology returns the full provisioned topology: the ingress stream the
// router pulls from and one work-queue stream per size tier. Large blobs get
// a longer ack wait and retention because a single download can run for many
// minutes.
func Topology() []StreamSpec {
	return []StreamSpec{
		{StreamIngress, SubjectIngress, 24 * time.Hour, ConsumerRouter, 60 * time.Second, 5, 200},
		{StreamSmall, SubjectSmall, 24 * time.Hour, ConsumerSmall, 300 * time.Second, 3, 100},
		{StreamMedium, SubjectMedium, 24 * time.Hour, ConsumerMedium, 600 * time.Second, 3, 50},
		{StreamLarge, SubjectLarge, 48 * time.Hour, ConsumerLarge, 1800 * time.Second, 2, 10},
	}
}

// EnsureTopology provisions every stream and consumer. Idempotent: existing
// streams and consumers are updated in place.
func (c *Client) EnsureTopology(ctx context.Context) error {
	for _, spec := range Topology() {
		if err := c.EnsureStream(ctx, spec); err != nil {
			return err
		}
		if err := c.EnsureConsumer(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

// EnsureStream creates or updates one work-queue stream.
func (c *Client) EnsureStream(ctx context.Context, spec StreamSpec) error {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      spec.Stream,
		Subjects:  []string{spec.Subject},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
		MaxAge:    spec.MaxAge,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", spec.Stream, err)
	}
	logger.Debug("Ensured stream",
		logger.KeyStream, spec.Stream,
		logger.KeySubject, spec.Subject)
	return nil
}

// EnsureConsumer creates or updates the durable pull consumer for a stream.
func (c *Client) EnsureConsumer(ctx context.Context, spec StreamSpec) error {
	_, err := c.js.CreateOrUpdateConsumer(ctx, spec.Stream, jetstream.ConsumerConfig{
		Durable:       spec.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       spec.AckWait,
		MaxDeliver:    spec.MaxDeliver,
		MaxAckPending: spec.MaxAckPending,
		FilterSubject: spec.Subject,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure consumer %s on %s: %w", spec.Consumer, spec.Stream, err)
	}
	logger.Debug("Ensured consumer",
		logger.KeyStream, spec.Stream,
		logger.KeyConsumer, spec.Consumer)
	return nil
}

// TierSubject maps a tier name onto its subject.
func TierSubject(tier string) (string, bool) {
	switch tier {
	case "small":
		return SubjectSmall, true
	case "medium":
		return SubjectMedium, true
	case "large":
		return SubjectLarge, true
	}
	return "", false
}

// TierBinding maps a tier name onto its (stream, consumer, subject) triple.
func TierBinding(tier string) (stream, consumer, subject string, ok bool) {
	switch tier {
	case "small":
		return StreamSmall, ConsumerSmall, SubjectSmall, true
	case "medium":
		return StreamMedium, ConsumerMedium, SubjectMedium, true
	case "large":
		return StreamLarge, ConsumerLarge, SubjectLarge, true
	}
	return "", "", "", false
}
