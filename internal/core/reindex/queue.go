package reindex

import (
	"sync"

	"finder/internal/model"
)

// eventQueue is an unbounded FIFO. push never blocks, so a change source is
// never held up by an in-flight rescan.
type eventQueue struct {
	mu      sync.Mutex
	items   []model.ChangeEvent
	stopped bool
	signal  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev model.ChangeEvent) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrStopped
	}
	if ev.IsStop() {
		q.stopped = true
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

func (q *eventQueue) pop() (model.ChangeEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return model.ChangeEvent{}, false
	}
	ev := q.items[0]
	q.items[0] = model.ChangeEvent{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return ev, true
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
