package scan

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"finder/internal/core/walk"
	"finder/internal/logging"
	"finder/internal/model"
)

var scanLog = logging.ForComponent(logging.CompScan)

var ErrClosed = errors.New("scan coordinator is closed")

type Options struct {
	Base       string
	Exclusions []string
	IgnoreFile string
	// Workers is the pool size; 0 means max(1, NumCPU/2).
	Workers int
}

type Stats struct {
	walk.Stats
	Roots    int
	Entries  int
	Fallback bool
	Elapsed  time.Duration
}

type result struct {
	entries []model.PathEntry
	stats   walk.Stats
}

type task struct {
	root   string
	filter *walk.Filter
	out    chan<- result
}

// Coordinator fans a full scan out over the immediate subdirectories of Base.
// Its worker pool is started once and shared by every FullScan call.
type Coordinator struct {
	opts    Options
	workers int

	mu     sync.Mutex
	filter *walk.Filter

	tasks     chan task
	startOnce sync.Once
	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

func New(opts Options) (*Coordinator, error) {
	base := strings.TrimSpace(opts.Base)
	if base == "" {
		return nil, fmt.Errorf("base is required")
	}
	opts.Base = filepath.Clean(base)

	filter, err := walk.NewFilter(opts.Base, walk.Options{
		Exclusions: opts.Exclusions,
		IgnoreFile: opts.IgnoreFile,
	})
	if err != nil {
		return nil, fmt.Errorf("load ignore file: %w", err)
	}

	return &Coordinator{
		opts:    opts,
		workers: DefaultWorkers(opts.Workers),
		filter:  filter,
		tasks:   make(chan task),
		closed:  make(chan struct{}),
	}, nil
}

func DefaultWorkers(n int) int {
	if n > 0 {
		return n
	}
	n = runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}

func (c *Coordinator) Workers() int {
	if c == nil {
		return 0
	}
	return c.workers
}

func (c *Coordinator) Base() string {
	if c == nil {
		return ""
	}
	return c.opts.Base
}

func (c *Coordinator) start() {
	c.startOnce.Do(func() {
		c.wg.Add(c.workers)
		for i := 0; i < c.workers; i++ {
			go c.worker()
		}
	})
}

func (c *Coordinator) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.closed:
			return
		case t := <-c.tasks:
			entries, st := walk.Scan(t.root, t.filter)
			t.out <- result{entries: entries, stats: st}
		}
	}
}

// Close stops the pool after running tasks finish. Safe to call more than once.
func (c *Coordinator) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() { close(c.closed) })
	c.wg.Wait()
	return nil
}

// currentFilter re-reads the ignore file so edits apply to the next scan.
// A broken ignore file keeps the previous filter.
func (c *Coordinator) currentFilter() *walk.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := walk.NewFilter(c.opts.Base, walk.Options{
		Exclusions: c.opts.Exclusions,
		IgnoreFile: c.opts.IgnoreFile,
	})
	if err != nil {
		scanLog.Warn("ignore_file_reload_failed", slog.String("path", c.opts.IgnoreFile), slog.String("error", err.Error()))
		return c.filter
	}
	c.filter = f
	return f
}

// FullScan produces a fresh snapshot of Base. Worker outputs are concatenated
// in completion order. If Base cannot be enumerated the scan degrades to a
// single walk of Base.
func (c *Coordinator) FullScan() (*model.Snapshot, Stats, error) {
	if c == nil {
		return nil, Stats{}, fmt.Errorf("scan coordinator is nil")
	}
	select {
	case <-c.closed:
		return nil, Stats{}, ErrClosed
	default:
	}
	c.start()

	started := time.Now()
	filter := c.currentFilter()
	base := c.opts.Base

	var (
		entries []model.PathEntry
		st      Stats
		roots   []string
	)

	dirs, files, err := walk.ListChildren(base, filter)
	switch {
	case err != nil:
		scanLog.Warn("base_enumeration_failed", slog.String("base", base), slog.String("error", err.Error()))
		st.Fallback = true
		roots = []string{base}
	case !filter.ShouldInclude(base, true):
		roots = nil
	default:
		entries = make([]model.PathEntry, 0, 1+len(files))
		entries = append(entries, model.NewPathEntry(base))
		st.Dirs++
		for _, f := range files {
			entries = append(entries, model.NewPathEntry(f))
		}
		st.Files += len(files)
		roots = dirs
	}

	out := make(chan result, len(roots))
	for _, root := range roots {
		select {
		case c.tasks <- task{root: root, filter: filter, out: out}:
		case <-c.closed:
			return nil, Stats{}, ErrClosed
		}
	}

	for range roots {
		select {
		case r := <-out:
			entries = append(entries, r.entries...)
			st.Stats.Add(r.stats)
		case <-c.closed:
			return nil, Stats{}, ErrClosed
		}
	}

	st.Roots = len(roots)
	st.Entries = len(entries)
	st.Elapsed = time.Since(started)

	scanLog.Info("full_scan_done",
		slog.String("base", base),
		slog.Int("roots", st.Roots),
		slog.Int("entries", st.Entries),
		slog.Int("denied", st.Denied),
		slog.Int("vanished", st.Vanished),
		slog.Bool("fallback", st.Fallback),
		slog.Duration("elapsed", st.Elapsed),
	)

	return &model.Snapshot{Entries: entries, BuiltAt: time.Now()}, st, nil
}
