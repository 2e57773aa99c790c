package router

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p8fs/p8fs/internal/bytesize"
	"github.com/p8fs/p8fs/pkg/broker"
	"github.com/p8fs/p8fs/pkg/events"
)

func testRouter(q broker.Queue) *Router {
	return New(q, Config{FetchTimeout: 20 * time.Millisecond})
}

func publishEvent(t *testing.T, q *broker.MemoryQueue, size int64) []byte {
	t.Helper()
	ev := events.StorageEvent{
		EventType: events.EventCreate,
		Path:      "/buckets/t1/uploads/2026/01/01/a.txt",
		TenantID:  "t1",
		Size:      size,
		Timestamp: 1767225600,
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NoError(t, q.Publish(context.Background(), broker.SubjectIngress, data))
	return data
}

func TestRouteToTierSubjects(t *testing.T) {
	tests := []struct {
		name    string
		size    int64
		subject string
	}{
		{"small", 1024, broker.SubjectSmall},
		{"boundary 100MiB is medium", int64(100 * bytesize.MiB), broker.SubjectMedium},
		{"just under 100MiB is small", int64(100*bytesize.MiB) - 1, broker.SubjectSmall},
		{"boundary 1GiB is large", int64(1 * bytesize.GiB), broker.SubjectLarge},
		{"just under 1GiB is medium", int64(1*bytesize.GiB) - 1, broker.SubjectMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := broker.NewMemoryQueue()
			data := publishEvent(t, q, tt.size)

			n, err := testRouter(q).RunOnce(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			msgs, err := q.Fetch(context.Background(), streamFor(tt.subject), consumerFor(tt.subject), 1, 20*time.Millisecond)
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			// Forwarded payload must be byte-identical.
			assert.Equal(t, data, msgs[0].Data())
			assert.Zero(t, q.Pending(broker.SubjectIngress))
		})
	}
}

func streamFor(subject string) string {
	for _, s := range broker.Topology() {
		if s.Subject == subject {
			return s.Stream
		}
	}
	return ""
}

func consumerFor(subject string) string {
	for _, s := range broker.Topology() {
		if s.Subject == subject {
			return s.Consumer
		}
	}
	return ""
}

func TestRouteForwardsHeaders(t *testing.T) {
	q := broker.NewMemoryQueue()
	ev := events.StorageEvent{
		EventType: events.EventCreate,
		Path:      "/buckets/t1/uploads/2026/01/01/a.txt",
		TenantID:  "t1",
		Size:      1024,
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NoError(t, q.Publish(context.Background(), broker.SubjectIngress, data,
		broker.Header{"Trace-Id": []string{"abc123"}}))

	_, err = testRouter(q).RunOnce(context.Background())
	require.NoError(t, err)

	msgs, err := q.Fetch(context.Background(), broker.StreamSmall, broker.ConsumerSmall, 1, 20*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "abc123", msgs[0].Headers().Get("Trace-Id"))
}

func TestMalformedEventIsNaked(t *testing.T) {
	q := broker.NewMemoryQueue()
	require.NoError(t, q.Publish(context.Background(), broker.SubjectIngress, []byte(`{not json`)))

	n, err := testRouter(q).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The message goes back on the ingress queue for redelivery.
	assert.Equal(t, 1, q.Pending(broker.SubjectIngress))
	assert.Zero(t, q.Pending(broker.SubjectSmall))
}

func TestMissingSizeIsNaked(t *testing.T) {
	// No size field at all: must not default to 0 and route as small.
	q := broker.NewMemoryQueue()
	payload := []byte(`{"event_type":"create","path":"/buckets/t1/uploads/a.txt","tenant_id":"t1"}`)
	require.NoError(t, q.Publish(context.Background(), broker.SubjectIngress, payload))

	_, err := testRouter(q).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, q.Pending(broker.SubjectIngress))
	assert.Zero(t, q.Pending(broker.SubjectSmall))
}

func TestNegativeSizeIsNaked(t *testing.T) {
	q := broker.NewMemoryQueue()
	payload := []byte(`{"event_type":"create","path":"/buckets/t1/uploads/a.txt","tenant_id":"t1","size":-5}`)
	require.NoError(t, q.Publish(context.Background(), broker.SubjectIngress, payload))

	_, err := testRouter(q).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, q.Pending(broker.SubjectIngress))
}

func TestRunStopsOnCancel(t *testing.T) {
	q := broker.NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- testRouter(q).Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("router did not stop after cancel")
	}
}

func TestBatchDrain(t *testing.T) {
	q := broker.NewMemoryQueue()
	for range 7 {
		publishEvent(t, q, 2048)
	}

	n, err := testRouter(q).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, 7, q.Pending(broker.SubjectSmall))
	assert.Zero(t, q.Pending(broker.SubjectIngress))
}
