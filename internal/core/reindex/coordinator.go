// Package reindex serializes change events into debounced full rescans and
// immediate removals, publishing each new snapshot atomically.
package reindex

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"finder/internal/logging"
	"finder/internal/model"
)

var reindexLog = logging.ForComponent(logging.CompReindex)

// ErrStopped is returned by Submit once Stop has been requested.
var ErrStopped = errors.New("reindex coordinator is stopped")

// ScanFunc produces a complete snapshot of the indexed tree.
type ScanFunc func() (*model.Snapshot, error)

// Saver persists a snapshot. flatfile.Store satisfies it.
type Saver interface {
	Save(snap *model.Snapshot) error
}

type State int32

const (
	StateIdle State = iota
	StateDebouncing
	StateRescanning
	StateRemoving
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDebouncing:
		return "debouncing"
	case StateRescanning:
		return "rescanning"
	case StateRemoving:
		return "removing"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Options struct {
	// Debounce is the quiet period after the last Reindex event before a
	// rescan starts. Zero rescans as soon as the queue is drained.
	Debounce time.Duration
	// StatusTTL is how long Removed/Updated/Failed stay visible. Default 3s.
	StatusTTL time.Duration
	Scan      ScanFunc
	// Store may be nil, in which case snapshots live only in memory.
	Store Saver
	// Initial is published as version 1. It is copied, not modified.
	Initial *model.Snapshot
}

type Coordinator struct {
	debounce time.Duration
	scan     ScanFunc
	store    Saver

	queue   *eventQueue
	status  *statusBoard
	snap    atomic.Pointer[model.Snapshot]
	version atomic.Int64
	state   atomic.Int32
	scans   atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

func New(opts Options) (*Coordinator, error) {
	if opts.Scan == nil {
		return nil, fmt.Errorf("reindex: scan func is required")
	}
	if opts.Debounce < 0 {
		return nil, fmt.Errorf("reindex: negative debounce %s", opts.Debounce)
	}
	ttl := opts.StatusTTL
	if ttl <= 0 {
		ttl = 3 * time.Second
	}

	c := &Coordinator{
		debounce: opts.Debounce,
		scan:     opts.Scan,
		store:    opts.Store,
		queue:    newEventQueue(),
		status:   newStatusBoard(ttl),
		done:     make(chan struct{}),
	}
	initial := opts.Initial
	if initial == nil {
		initial = &model.Snapshot{}
	}
	c.publish(initial)
	return c, nil
}

// Start launches the single consumer goroutine. Calling it more than once is
// a no-op.
func (c *Coordinator) Start() {
	c.startOnce.Do(func() { go c.loop() })
}

// Submit enqueues an event without blocking.
func (c *Coordinator) Submit(ev model.ChangeEvent) error {
	if ev.IsStop() {
		return fmt.Errorf("reindex: use Stop to stop the coordinator")
	}
	return c.queue.push(ev)
}

// Stop enqueues the stop sentinel and waits for the consumer to exit. Events
// queued before Stop are processed first and an in-flight rescan completes.
// A debounce window that has not yet fired is dropped.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		_ = c.queue.push(model.Stop())
		c.Start()
		<-c.done
		c.status.stop()
	})
}

// Snapshot returns the current published snapshot. It never returns nil.
func (c *Coordinator) Snapshot() *model.Snapshot {
	return c.snap.Load()
}

// Status returns the current status without blocking.
func (c *Coordinator) Status() model.IndexStatus {
	return c.status.get()
}

// Updates delivers status changes. Slow readers miss intermediate updates.
func (c *Coordinator) Updates() <-chan model.IndexStatus {
	return c.status.updates
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Scans reports how many rescans have run.
func (c *Coordinator) Scans() int64 {
	return c.scans.Load()
}

// Pending reports the number of queued, unprocessed events.
func (c *Coordinator) Pending() int {
	return c.queue.len()
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

// publish stores a copy of snap stamped with the next version. The caller's
// snapshot, including Options.Initial, is left as it was.
func (c *Coordinator) publish(snap *model.Snapshot) *model.Snapshot {
	next := *snap
	next.Version = c.version.Add(1)
	c.snap.Store(&next)
	return &next
}

func (c *Coordinator) loop() {
	defer close(c.done)

	var timer *time.Timer
	var fire <-chan time.Time
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer, fire = nil, nil
	}

	for {
		ev, ok := c.queue.pop()
		if !ok {
			select {
			case <-c.queue.signal:
			case <-fire:
				stopTimer()
				c.rescan()
				c.setState(StateIdle)
			}
			continue
		}

		switch {
		case ev.IsStop():
			if fire != nil {
				reindexLog.Info("pending_rescan_dropped")
			}
			stopTimer()
			c.setState(StateStopped)
			reindexLog.Info("stopped", slog.Int64("scans", c.scans.Load()))
			return

		case ev.Kind == model.EventRemove:
			prev := c.State()
			c.setState(StateRemoving)
			c.remove(ev.Path)
			c.setState(prev)

		default:
			stopTimer()
			timer = time.NewTimer(c.debounce)
			fire = timer.C
			c.setState(StateDebouncing)
		}
	}
}

func (c *Coordinator) rescan() {
	c.setState(StateRescanning)
	c.scans.Add(1)
	c.status.set(model.IndexStatus{Kind: model.StatusIndexing, Entries: c.Snapshot().Len()})

	started := time.Now()
	snap, err := c.scan()
	if err != nil {
		reindexLog.Error("rescan_failed", slog.String("error", err.Error()))
		c.fail(err)
		return
	}
	if snap == nil {
		snap = &model.Snapshot{}
	}
	if snap.BuiltAt.IsZero() {
		snap.BuiltAt = time.Now()
	}
	if err := c.save(snap); err != nil {
		return
	}
	snap = c.publish(snap)
	c.status.set(model.IndexStatus{Kind: model.StatusUpdated, Entries: snap.Len()})
	reindexLog.Info("rescan_done",
		slog.Int("entries", snap.Len()),
		slog.Int64("version", snap.Version),
		slog.Duration("elapsed", time.Since(started)),
	)
}

func (c *Coordinator) remove(path string) {
	if path == "" {
		return
	}
	path = filepath.Clean(path)
	next, ok := c.Snapshot().Without(path)
	if !ok {
		reindexLog.Debug("remove_noop", slog.String("path", path))
		return
	}
	if err := c.save(next); err != nil {
		return
	}
	next = c.publish(next)
	c.status.set(model.IndexStatus{Kind: model.StatusRemoved, Path: path, Entries: next.Len()})
	reindexLog.Info("removed", slog.String("path", path), slog.Int("entries", next.Len()))
}

// save persists snap. On failure the published snapshot is left untouched.
func (c *Coordinator) save(snap *model.Snapshot) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Save(snap); err != nil {
		reindexLog.Error("save_failed", slog.String("error", err.Error()))
		c.fail(err)
		return err
	}
	return nil
}

func (c *Coordinator) fail(err error) {
	c.status.set(model.IndexStatus{Kind: model.StatusFailed, Err: err.Error(), Entries: c.Snapshot().Len()})
}
