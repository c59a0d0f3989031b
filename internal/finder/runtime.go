// Package finder wires the scanner, snapshot store, reindex coordinator,
// watcher and query engine into one runtime with an ordered shutdown.
package finder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"finder/internal/config"
	"finder/internal/core/query"
	"finder/internal/core/reindex"
	"finder/internal/core/scan"
	"finder/internal/core/walk"
	"finder/internal/core/watch"
	"finder/internal/index/flatfile"
	"finder/internal/logging"
	"finder/internal/model"
)

type Options struct {
	// Watch starts a filesystem watcher feeding the reindex coordinator.
	Watch bool
	// Built, when set, is called after a missing snapshot file was built at startup.
	Built func(scan.Stats)
}

type Runtime struct {
	cfg     *config.Config
	store   *flatfile.Store
	scanner *scan.Coordinator
	coord   *reindex.Coordinator
	engine  *query.Engine
	watcher *watch.Watcher

	cancel    context.CancelFunc
	running   *errgroup.Group
	closeOnce sync.Once
	closeErr  error
}

var runtimeLog = logging.ForComponent(logging.CompRuntime)

// Open loads (or builds) the snapshot and starts the reindex coordinator,
// plus the watcher when opts.Watch is set. The snapshot load and watcher
// registration run concurrently since both walk large trees.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Prepare(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := flatfile.Open(cfg.IndexPath)
	if err != nil {
		return nil, err
	}
	scanner, err := scan.New(scan.Options{
		Base:       cfg.BaseDir,
		Exclusions: cfg.Exclusions,
		IgnoreFile: cfg.IgnoreFile,
		Workers:    cfg.Workers,
	})
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		cfg:     cfg,
		store:   store,
		scanner: scanner,
		engine:  query.NewEngine(query.Options{}),
	}

	var initial *model.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap, err := r.loadOrBuild(opts.Built)
		if err != nil {
			return err
		}
		initial = snap
		return nil
	})
	if opts.Watch {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			w, err := r.newWatcher()
			if err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			r.watcher = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if r.watcher != nil {
			_ = r.watcher.Close()
		}
		_ = scanner.Close()
		return nil, err
	}

	coord, err := reindex.New(reindex.Options{
		Debounce:  cfg.Debounce,
		StatusTTL: cfg.StatusTTL,
		Scan:      r.fullScan,
		Store:     store,
		Initial:   initial,
	})
	if err != nil {
		if r.watcher != nil {
			_ = r.watcher.Close()
		}
		_ = scanner.Close()
		return nil, err
	}
	r.coord = coord
	coord.Start()

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = &errgroup.Group{}
	if r.watcher != nil {
		w := r.watcher
		r.running.Go(func() error { return w.Run(runCtx) })
	}

	runtimeLog.Info("opened",
		slog.String("base", cfg.BaseDir),
		slog.String("index", cfg.IndexPath),
		slog.Int("entries", initial.Len()),
		slog.Bool("watch", opts.Watch),
		slog.Duration("debounce", cfg.Debounce),
	)
	return r, nil
}

func (r *Runtime) loadOrBuild(built func(scan.Stats)) (*model.Snapshot, error) {
	if r.store.Exists() {
		return r.store.Load()
	}
	snap, stats, err := r.scanner.FullScan()
	if err != nil {
		return nil, fmt.Errorf("initial scan: %w", err)
	}
	if err := r.store.Save(snap); err != nil {
		return nil, err
	}
	if built != nil {
		built(stats)
	}
	return snap, nil
}

func (r *Runtime) fullScan() (*model.Snapshot, error) {
	snap, _, err := r.scanner.FullScan()
	return snap, err
}

func (r *Runtime) newWatcher() (*watch.Watcher, error) {
	filter, err := walk.NewFilter(r.cfg.BaseDir, walk.Options{
		Exclusions: r.cfg.Exclusions,
		IgnoreFile: r.cfg.IgnoreFile,
	})
	if err != nil {
		return nil, err
	}
	return watch.New(r.cfg.BaseDir, r.submit, watch.Options{
		Filter:       filter,
		SkipPaths:    []string{r.cfg.IndexPath, r.cfg.DataDir, r.cfg.Log.Dir},
		SnapshotName: r.store.Name(),
	})
}

func (r *Runtime) submit(ev model.ChangeEvent) error {
	return r.coord.Submit(ev)
}

// Submit enqueues a change event, as if it came from the watcher.
func (r *Runtime) Submit(ev model.ChangeEvent) error {
	return r.submit(ev)
}

func (r *Runtime) Config() *config.Config { return r.cfg }
func (r *Runtime) Snapshot() *model.Snapshot { return r.coord.Snapshot() }
func (r *Runtime) Status() model.IndexStatus { return r.coord.Status() }
func (r *Runtime) Engine() *query.Engine { return r.engine }
func (r *Runtime) Coordinator() *reindex.Coordinator { return r.coord }

// Watching reports whether a filesystem watcher is running.
func (r *Runtime) Watching() bool { return r.watcher != nil }

// Close stops the watcher, drains the reindex queue, waits for the consumer
// and then shuts the scan pool down, in that order.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	r.closeOnce.Do(func() {
		started := time.Now()
		var errs []error
		if r.watcher != nil {
			if err := r.watcher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close watcher: %w", err))
			}
		}
		if r.cancel != nil {
			r.cancel()
		}
		if r.running != nil {
			if err := r.running.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				errs = append(errs, err)
			}
		}
		if r.coord != nil {
			r.coord.Stop()
		}
		if err := r.scanner.Close(); err != nil {
			errs = append(errs, err)
		}
		r.closeErr = errors.Join(errs...)
		runtimeLog.Info("closed", slog.Duration("elapsed", time.Since(started)))
	})
	return r.closeErr
}

// BuildIndex runs one full scan and writes the snapshot file, without
// starting a coordinator.
func BuildIndex(cfg *config.Config) (*model.Snapshot, scan.Stats, error) {
	if err := cfg.Prepare(); err != nil {
		return nil, scan.Stats{}, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, scan.Stats{}, fmt.Errorf("create data dir: %w", err)
	}
	store, err := flatfile.Open(cfg.IndexPath)
	if err != nil {
		return nil, scan.Stats{}, err
	}
	scanner, err := scan.New(scan.Options{
		Base:       cfg.BaseDir,
		Exclusions: cfg.Exclusions,
		IgnoreFile: cfg.IgnoreFile,
		Workers:    cfg.Workers,
	})
	if err != nil {
		return nil, scan.Stats{}, err
	}
	defer scanner.Close()

	snap, stats, err := scanner.FullScan()
	if err != nil {
		return nil, stats, err
	}
	if err := store.Save(snap); err != nil {
		return nil, stats, err
	}
	return snap, stats, nil
}

// LoadIndex reads the snapshot file without scanning.
func LoadIndex(cfg *config.Config) (*model.Snapshot, error) {
	if err := cfg.Prepare(); err != nil {
		return nil, err
	}
	store, err := flatfile.Open(cfg.IndexPath)
	if err != nil {
		return nil, err
	}
	return store.Load()
}
