package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue with work-queue semantics: messages are
// removed on Ack and requeued in order on Nak. Used by tests and by the
// process command's offline mode.
type MemoryQueue struct {
	mu       sync.Mutex
	bindings map[string]string   // "stream/consumer" -> subject
	queues   map[string][]*mmMsg // subject -> pending messages
}

// NewMemoryQueue builds an empty queue with the standard topology bound.
func NewMemoryQueue() *MemoryQueue {
	q := &MemoryQueue{
		bindings: make(map[string]string),
		queues:   make(map[string][]*mmMsg),
	}
	for _, spec := range Topology() {
		q.Bind(spec.Stream, spec.Consumer, spec.Subject)
	}
	return q
}

// Bind routes fetches on (stream, consumer) to a subject queue. Used to add
// isolated test topologies beside the standard one.
func (q *MemoryQueue) Bind(stream, consumer, subject string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.bindings[stream+"/"+consumer] = subject
}

// Publish appends data to the subject's queue.
func (q *MemoryQueue) Publish(_ context.Context, subject string, data []byte, headers ...Header) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queues[subject] = append(q.queues[subject],
		&mmMsg{q: q, subject: subject, data: data, headers: mergeHeaders(headers)})
	return nil
}

// Fetch pops up to batch messages, polling until wait expires if the queue
// is empty.
func (q *MemoryQueue) Fetch(ctx context.Context, stream, consumer string, batch int, wait time.Duration) ([]Msg, error) {
	q.mu.Lock()
	subject, ok := q.bindings[stream+"/"+consumer]
	q.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no consumer %s on stream %s", consumer, stream)
	}

	deadline := time.Now().Add(wait)
	for {
		if msgs := q.pop(subject, batch); len(msgs) > 0 {
			return msgs, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Pending returns the number of undelivered messages on a subject.
func (q *MemoryQueue) Pending(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[subject])
}

func (q *MemoryQueue) pop(subject string, batch int) []Msg {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := q.queues[subject]
	n := min(batch, len(pending))
	if n == 0 {
		return nil
	}

	var msgs []Msg
	for _, m := range pending[:n] {
		m.delivered++
		msgs = append(msgs, m)
	}
	q.queues[subject] = pending[n:]
	return msgs
}

var _ Queue = (*MemoryQueue)(nil)

type mmMsg struct {
	q         *MemoryQueue
	subject   string
	data      []byte
	headers   Header
	delivered uint64
}

func (m *mmMsg) Subject() string   { return m.subject }
func (m *mmMsg) Data() []byte      { return m.data }
func (m *mmMsg) Headers() Header   { return m.headers }
func (m *mmMsg) Delivered() uint64 { return m.delivered }
func (m *mmMsg) Ack() error        { return nil }

// Nak puts the message back at the front so redelivery order matches the
// broker's.
func (m *mmMsg) Nak() error {
	m.q.mu.Lock()
	defer m.q.mu.Unlock()
	m.q.queues[m.subject] = append([]*mmMsg{m}, m.q.queues[m.subject]...)
	return nil
}
