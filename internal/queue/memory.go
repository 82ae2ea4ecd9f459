package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is the single-process queue for tests and local runs. Unacked
// messages return to the ready list once their visibility deadline passes.
type Memory struct {
	visibility time.Duration
	now        func() time.Time

	mu       sync.Mutex
	ready    []string
	inflight map[string]inflightEntry
}

type inflightEntry struct {
	body     string
	deadline time.Time
}

// NewMemory creates an in-memory queue with the given visibility window.
func NewMemory(visibility time.Duration) *Memory {
	return &Memory{
		visibility: visibility,
		now:        time.Now,
		inflight:   make(map[string]inflightEntry),
	}
}

// withClock overrides the clock (tests).
func (q *Memory) withClock(now func() time.Time) *Memory {
	q.now = now
	return q
}

func (q *Memory) Send(_ context.Context, body string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready = append(q.ready, body)
	return nil
}

// FetchBatch long-polls up to wait for the first message. The poll deadline
// uses the wall clock; the injected clock only governs visibility.
func (q *Memory) FetchBatch(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	deadline := time.Now().Add(wait)
	for {
		msgs := q.take(max)
		if len(msgs) > 0 || wait <= 0 || !time.Now().Before(deadline) {
			return msgs, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (q *Memory) take(max int) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.reclaimExpired()

	n := max
	if n > len(q.ready) {
		n = len(q.ready)
	}

	msgs := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		body := q.ready[i]
		receipt := uuid.NewString()
		q.inflight[receipt] = inflightEntry{
			body:     body,
			deadline: q.now().Add(q.visibility),
		}
		msgs = append(msgs, Message{Body: body, Receipt: receipt})
	}
	q.ready = q.ready[n:]

	return msgs
}

func (q *Memory) Ack(_ context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, receipt)
	return nil
}

// reclaimExpired moves timed-out deliveries back to the ready list. Caller
// holds the lock.
func (q *Memory) reclaimExpired() {
	now := q.now()
	for receipt, entry := range q.inflight {
		if !entry.deadline.After(now) {
			q.ready = append(q.ready, entry.body)
			delete(q.inflight, receipt)
		}
	}
}

// Len reports ready plus in-flight messages, for drain loops and tests.
func (q *Memory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.inflight)
}
