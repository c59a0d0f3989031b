// Package watch turns filesystem notifications under a base directory into
// reindex change events.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"finder/internal/core/walk"
	"finder/internal/logging"
	"finder/internal/model"
)

var watchLog = logging.ForComponent(logging.CompWatch)

// Sink receives change events. It must not block for long.
type Sink func(model.ChangeEvent) error

type Options struct {
	Filter *walk.Filter
	// SkipPaths are files or directories whose events are dropped, e.g. the
	// data directory holding the snapshot and log files.
	SkipPaths []string
	// SnapshotName is the base name of the snapshot file. Events for it and
	// for the store's ".<name>.*.tmp" files are dropped wherever they occur.
	SnapshotName string
	// Coalesce folds bursts of non-removal events into one Reindex. Default 100ms.
	Coalesce time.Duration
}

type Watcher struct {
	rootAbs string
	filter  *walk.Filter
	skip    []string
	snap    string
	sink    Sink

	burst   *Debouncer
	watcher *fsnotify.Watcher
	watched atomic.Int64
	errLog  rate.Sometimes

	closeOnce sync.Once
	closed    chan struct{}
}

func New(root string, sink Sink, opts Options) (*Watcher, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	rootAbs = filepath.Clean(rootAbs)

	skip := make([]string, 0, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		skip = append(skip, filepath.Clean(p))
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		rootAbs: rootAbs,
		filter:  opts.Filter,
		skip:    skip,
		snap:    filepath.Base(strings.TrimSpace(opts.SnapshotName)),
		sink:    sink,
		burst:   NewDebouncer(opts.Coalesce),
		watcher: fsw,
		errLog:  rate.Sometimes{First: 3, Interval: 10 * time.Second},
		closed:  make(chan struct{}),
	}
	w.burst.OnFire(func(n int) {
		watchLog.Debug("burst", slog.Int("events", n))
		w.emit(model.Reindex())
	})

	w.addDirRecursive(rootAbs)
	watchLog.Info("watching", slog.String("root", rootAbs), slog.Int64("dirs", w.watched.Load()))
	return w, nil
}

// Watched reports how many directories have been added.
func (w *Watcher) Watched() int {
	if w == nil {
		return 0
	}
	return int(w.watched.Load())
}

func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	w.closeOnce.Do(func() { close(w.closed) })
	w.burst.Stop()
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}

// Run forwards events until ctx is done or the watcher is closed. Errors from
// the OS (queue overflow, vanished watches) are logged and do not stop it.
func (w *Watcher) Run(ctx context.Context) error {
	if w == nil || w.watcher == nil {
		return fmt.Errorf("watcher is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.closed:
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Lost events; only a full rescan can catch up.
				w.emit(model.Reindex())
			}
			w.logErr("watch_error", w.rootAbs, err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	name := filepath.Clean(ev.Name)
	base := filepath.Base(name)
	if !w.inRoot(name) || w.skipped(name) || isNoise(base) || w.ownWrite(base) {
		return
	}

	// Removed and renamed-away paths can no longer be stat'ed; they are
	// treated as files, and a Remove for an unindexed path is a no-op.
	isDir := false
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Chmod) != 0 {
		if st, err := os.Lstat(name); err == nil {
			isDir = st.IsDir()
		}
	}
	if parent := filepath.Dir(name); parent != w.rootAbs && !w.filter.ShouldInclude(parent, true) {
		return
	}
	if !w.filter.ShouldInclude(name, isDir) {
		return
	}
	if isDir && ev.Op&fsnotify.Create != 0 {
		w.addDirRecursive(name)
	}

	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A rename reports the old name; the new one arrives as Create.
		w.emit(model.Remove(name))
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.burst.Push()
	}
}

func (w *Watcher) emit(ev model.ChangeEvent) {
	select {
	case <-w.closed:
		return
	default:
	}
	if err := w.sink(ev); err != nil {
		w.logErr("sink_error", ev.Path, err)
	}
}

func (w *Watcher) logErr(msg, path string, err error) {
	w.errLog.Do(func() {
		watchLog.Warn(msg, slog.String("path", path), slog.String("error", err.Error()))
	})
}

func (w *Watcher) inRoot(abs string) bool {
	rel, err := filepath.Rel(w.rootAbs, abs)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) skipped(abs string) bool {
	for _, s := range w.skip {
		if abs == s {
			return true
		}
		if rel, err := filepath.Rel(s, abs); err == nil && !strings.HasPrefix(rel, "..") && rel != "." {
			return true
		}
	}
	return false
}

// addDirRecursive watches absDir and every included directory below it.
// Directories that cannot be read or watched are skipped.
func (w *Watcher) addDirRecursive(absDir string) {
	_ = filepath.WalkDir(absDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && p != absDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.rootAbs && (w.skipped(p) || !w.filter.ShouldInclude(p, true)) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			w.logErr("watch_add_failed", p, err)
			return filepath.SkipDir
		}
		w.watched.Add(1)
		return nil
	})
}

// ownWrite reports the snapshot file and the temp files the store renames
// into place. Reacting to them would schedule a rescan after every save.
func (w *Watcher) ownWrite(base string) bool {
	if w.snap == "" || w.snap == "." || w.snap == string(filepath.Separator) {
		return false
	}
	if base == w.snap {
		return true
	}
	prefix := "." + w.snap + "."
	return strings.HasPrefix(base, prefix) && strings.HasSuffix(base, ".tmp") && len(base) > len(prefix)+len(".tmp")
}

// isNoise reports editor swap, lock and backup files, none of which ever
// belong in the index.
func isNoise(base string) bool {
	switch {
	case base == "4913":
		return true
	case strings.HasSuffix(base, "~"):
		return true
	case strings.HasSuffix(base, ".swp"), strings.HasSuffix(base, ".swx"), strings.HasSuffix(base, ".swpx"):
		return true
	case strings.HasPrefix(base, ".#"):
		return true
	case strings.HasPrefix(base, "~$"):
		return true
	}
	return false
}
