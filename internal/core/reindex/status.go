package reindex

import (
	"sync"
	"time"

	"finder/internal/model"
)

// statusBoard holds the current IndexStatus. Notifications (Removed, Updated,
// Failed) revert to Idle after ttl; Indexing lasts until the rescan ends.
type statusBoard struct {
	mu    sync.Mutex
	cur   model.IndexStatus
	gen   uint64
	ttl   time.Duration
	timer *time.Timer

	updates chan model.IndexStatus
}

func newStatusBoard(ttl time.Duration) *statusBoard {
	return &statusBoard{
		cur:     model.IndexStatus{Kind: model.StatusIdle, At: time.Now()},
		ttl:     ttl,
		updates: make(chan model.IndexStatus, 16),
	}
}

func (b *statusBoard) get() model.IndexStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cur
}

func (b *statusBoard) set(s model.IndexStatus) {
	if s.At.IsZero() {
		s.At = time.Now()
	}

	b.mu.Lock()
	b.gen++
	gen := b.gen
	b.cur = s
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if s.Kind != model.StatusIdle && s.Kind != model.StatusIndexing {
		b.timer = time.AfterFunc(b.ttl, func() { b.expire(gen) })
	}
	b.mu.Unlock()

	b.notify(s)
}

func (b *statusBoard) expire(gen uint64) {
	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		return
	}
	idle := model.IndexStatus{Kind: model.StatusIdle, Entries: b.cur.Entries, At: time.Now()}
	b.cur = idle
	b.timer = nil
	b.mu.Unlock()

	b.notify(idle)
}

// notify never blocks; when the buffer is full the oldest update is dropped.
func (b *statusBoard) notify(s model.IndexStatus) {
	select {
	case b.updates <- s:
		return
	default:
	}
	select {
	case <-b.updates:
	default:
	}
	select {
	case b.updates <- s:
	default:
	}
}

func (b *statusBoard) stop() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()
}
