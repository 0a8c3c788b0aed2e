package dispatch

import (
	"sync"

	"github.com/obsidianstack/trapbridge/pkg/types"
)

// Queue is an unbounded FIFO of events awaiting delivery. The head stays in
// place until it is explicitly popped, so a failed delivery is retried
// before anything queued behind it.
//
// Queue is safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	items  []*types.AlertEvent
	notify chan struct{}
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Enqueue appends ev. It never blocks on delivery and never fails.
func (q *Queue) Enqueue(ev *types.AlertEvent) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Peek returns the head without removing it.
func (q *Queue) Peek() (*types.AlertEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// Pop removes and returns the head.
func (q *Queue) Pop() (*types.AlertEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	ev := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return ev, true
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns a snapshot of the queued events, head first.
func (q *Queue) Pending() []*types.AlertEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*types.AlertEvent, len(q.items))
	copy(out, q.items)
	return out
}

// Ready receives a value after an Enqueue. It may fire spuriously.
func (q *Queue) Ready() <-chan struct{} { return q.notify }
