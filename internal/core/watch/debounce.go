package watch

import (
	"sync"
	"time"
)

// Debouncer folds a burst of pushes into one onFire call carrying the burst
// size. The watcher uses it so a flood of writes becomes a single Reindex
// event instead of thousands of queued ones.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending int
	onFire  func(count int)
}

func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	return &Debouncer{delay: delay}
}

func (d *Debouncer) OnFire(fn func(count int)) {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.onFire = fn
	d.mu.Unlock()
}

func (d *Debouncer) Push() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.pending++
	if d.timer != nil {
		_ = d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
	d.mu.Unlock()
}

// Flush fires any pending burst now.
func (d *Debouncer) Flush() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.timer != nil {
		_ = d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	d.fire()
}

// Stop drops any pending burst.
func (d *Debouncer) Stop() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.timer != nil {
		_ = d.timer.Stop()
		d.timer = nil
	}
	d.pending = 0
	d.mu.Unlock()
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	n := d.pending
	d.pending = 0
	fn := d.onFire
	d.mu.Unlock()

	if fn == nil || n == 0 {
		return
	}
	fn(n)
}
