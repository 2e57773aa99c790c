package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopologyTable(t *testing.T) {
	specs := Topology()
	require.Len(t, specs, 4)

	byStream := make(map[string]StreamSpec)
	for _, s := range specs {
		byStream[s.Stream] = s
	}

	ingress := byStream[StreamIngress]
	assert.Equal(t, SubjectIngress, ingress.Subject)
	assert.Equal(t, ConsumerRouter, ingress.Consumer)
	assert.Equal(t, 60*time.Second, ingress.AckWait)
	assert.Equal(t, 5, ingress.MaxDeliver)
	assert.Equal(t, 200, ingress.MaxAckPending)
	assert.Equal(t, 24*time.Hour, ingress.MaxAge)

	large := byStream[StreamLarge]
	assert.Equal(t, SubjectLarge, large.Subject)
	assert.Equal(t, 1800*time.Second, large.AckWait)
	assert.Equal(t, 2, large.MaxDeliver)
	assert.Equal(t, 10, large.MaxAckPending)
	assert.Equal(t, 48*time.Hour, large.MaxAge)

	assert.Equal(t, 3, byStream[StreamSmall].MaxDeliver)
	assert.Equal(t, 600*time.Second, byStream[StreamMedium].AckWait)
}

func TestTierBinding(t *testing.T) {
	stream, consumer, subject, ok := TierBinding("medium")
	require.True(t, ok)
	assert.Equal(t, StreamMedium, stream)
	assert.Equal(t, ConsumerMedium, consumer)
	assert.Equal(t, SubjectMedium, subject)

	_, _, _, ok = TierBinding("huge")
	assert.False(t, ok)
}

func TestMemoryQueuePublishFetchAck(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, SubjectIngress, []byte(`{"a":1}`)))
	require.NoError(t, q.Publish(ctx, SubjectIngress, []byte(`{"a":2}`)))

	msgs, err := q.Fetch(ctx, StreamIngress, ConsumerRouter, 10, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte(`{"a":1}`), msgs[0].Data())
	assert.Equal(t, uint64(1), msgs[0].Delivered())

	require.NoError(t, msgs[0].Ack())
	require.NoError(t, msgs[1].Ack())
	assert.Zero(t, q.Pending(SubjectIngress))
}

func TestMemoryQueueNakRequeuesInOrder(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, SubjectSmall, []byte("first")))
	require.NoError(t, q.Publish(ctx, SubjectSmall, []byte("second")))

	msgs, err := q.Fetch(ctx, StreamSmall, ConsumerSmall, 1, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NoError(t, msgs[0].Nak())

	msgs, err = q.Fetch(ctx, StreamSmall, ConsumerSmall, 1, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("first"), msgs[0].Data())
	assert.Equal(t, uint64(2), msgs[0].Delivered())
}

func TestMemoryQueueHeadersRoundTrip(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, SubjectIngress, []byte("with"),
		Header{"Trace-Id": []string{"abc123"}}))
	require.NoError(t, q.Publish(ctx, SubjectIngress, []byte("without")))

	msgs, err := q.Fetch(ctx, StreamIngress, ConsumerRouter, 10, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "abc123", msgs[0].Headers().Get("Trace-Id"))
	assert.Nil(t, msgs[1].Headers())
}

func TestMemoryQueueFetchTimeout(t *testing.T) {
	q := NewMemoryQueue()

	start := time.Now()
	msgs, err := q.Fetch(context.Background(), StreamMedium, ConsumerMedium, 5, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestMemoryQueueUnknownConsumer(t *testing.T) {
	q := NewMemoryQueue()
	_, err := q.Fetch(context.Background(), "NOPE", "missing", 1, time.Millisecond)
	require.Error(t, err)
}
