package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finder/internal/core/walk"
	"finder/internal/model"
)

type harness struct {
	root   string
	events chan model.ChangeEvent
	w      *Watcher
}

func startWatcher(t *testing.T, opts Options) *harness {
	t.Helper()
	root := t.TempDir()
	if opts.Filter == nil {
		f, err := walk.NewFilter(root, walk.Options{Exclusions: []string{"/skipme/"}})
		require.NoError(t, err)
		opts.Filter = f
	}
	if opts.Coalesce == 0 {
		opts.Coalesce = 30 * time.Millisecond
	}
	h := &harness{root: root, events: make(chan model.ChangeEvent, 256)}
	sink := func(ev model.ChangeEvent) error {
		h.events <- ev
		return nil
	}
	for i, p := range opts.SkipPaths {
		opts.SkipPaths[i] = filepath.Join(root, p)
	}
	w, err := New(root, sink, opts)
	require.NoError(t, err)
	h.w = w

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = w.Close()
		<-done
	})
	return h
}

// next waits for an event matching pred, discarding others.
func (h *harness) next(t *testing.T, pred func(model.ChangeEvent) bool) model.ChangeEvent {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if pred(ev) {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event")
			return model.ChangeEvent{}
		}
	}
}

func (h *harness) quiet(t *testing.T, d time.Duration) []model.ChangeEvent {
	t.Helper()
	var got []model.ChangeEvent
	deadline := time.After(d)
	for {
		select {
		case ev := <-h.events:
			got = append(got, ev)
		case <-deadline:
			return got
		}
	}
}

func isReindex(ev model.ChangeEvent) bool { return ev.Kind == model.EventReindex }

func TestWatcher_CreateEmitsReindex(t *testing.T) {
	h := startWatcher(t, Options{})
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "new.txt"), []byte("x"), 0o644))
	h.next(t, isReindex)
}

func TestWatcher_BurstCoalesces(t *testing.T) {
	h := startWatcher(t, Options{Coalesce: 150 * time.Millisecond})
	for i := 0; i < 20; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(h.root, "f"+string(rune('a'+i))), []byte("x"), 0o644))
	}
	got := h.quiet(t, 600*time.Millisecond)
	n := 0
	for _, ev := range got {
		if isReindex(ev) {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestWatcher_RemoveEmitsRemove(t *testing.T) {
	h := startWatcher(t, Options{})
	p := filepath.Join(h.root, "gone.txt")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	h.next(t, isReindex)

	require.NoError(t, os.Remove(p))
	ev := h.next(t, func(ev model.ChangeEvent) bool { return ev.Kind == model.EventRemove })
	assert.Equal(t, p, ev.Path)
}

func TestWatcher_RenameRemovesOldName(t *testing.T) {
	h := startWatcher(t, Options{})
	oldp := filepath.Join(h.root, "old.txt")
	require.NoError(t, os.WriteFile(oldp, []byte("x"), 0o644))
	h.next(t, isReindex)

	require.NoError(t, os.Rename(oldp, filepath.Join(h.root, "new.txt")))
	ev := h.next(t, func(ev model.ChangeEvent) bool { return ev.Kind == model.EventRemove })
	assert.Equal(t, oldp, ev.Path)
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	h := startWatcher(t, Options{})
	before := h.w.Watched()

	sub := filepath.Join(h.root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	h.next(t, isReindex)
	require.Eventually(t, func() bool { return h.w.Watched() == before+1 }, 2*time.Second, 10*time.Millisecond)

	inner := filepath.Join(sub, "inner.txt")
	require.NoError(t, os.WriteFile(inner, []byte("x"), 0o644))
	require.NoError(t, os.Remove(inner))
	ev := h.next(t, func(ev model.ChangeEvent) bool { return ev.Kind == model.EventRemove })
	assert.Equal(t, inner, ev.Path)
}

func TestWatcher_ExcludedAndSkippedPathsAreSilent(t *testing.T) {
	h := startWatcher(t, Options{SkipPaths: []string{"data"}})

	// Neither directory is watched, and creating them emits nothing.
	require.NoError(t, os.Mkdir(filepath.Join(h.root, "skipme"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(h.root, "data"), 0o755))
	h.quiet(t, 200*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(h.root, "skipme", "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "data", "index.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "notes.txt~"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(h.root, ".notes.txt.swp"), []byte("x"), 0o644))

	assert.Empty(t, h.quiet(t, 300*time.Millisecond))
}

func TestWatcher_SnapshotWritesAreSilent(t *testing.T) {
	h := startWatcher(t, Options{SnapshotName: "finder.idx"})

	tmp := filepath.Join(h.root, ".finder.idx.4821.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("/a\n/b"), 0o644))
	require.NoError(t, os.Rename(tmp, filepath.Join(h.root, "finder.idx")))
	assert.Empty(t, h.quiet(t, 300*time.Millisecond))

	require.NoError(t, os.WriteFile(filepath.Join(h.root, "finder.idx.notes"), []byte("x"), 0o644))
	h.next(t, isReindex)
}

func TestWatcher_FileNamedLikeExclusionIsReported(t *testing.T) {
	h := startWatcher(t, Options{})

	// "/skipme/" names a directory; a plain file called skipme is indexed.
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "skipme"), []byte("x"), 0o644))
	h.next(t, isReindex)
}

func TestWatcher_OwnWrite(t *testing.T) {
	w := &Watcher{snap: "finder.idx"}
	for _, name := range []string{"finder.idx", ".finder.idx.1.tmp", ".finder.idx.998877.tmp"} {
		assert.True(t, w.ownWrite(name), name)
	}
	for _, name := range []string{"finder.idx.bak", ".finder.idx..tmp", "index.txt", ".index.txt.1.tmp"} {
		assert.False(t, w.ownWrite(name), name)
	}
	assert.False(t, (&Watcher{}).ownWrite("anything"))
}

func TestIsNoise(t *testing.T) {
	for _, name := range []string{"4913", "a.go~", ".a.go.swp", ".a.swx", ".#lock", "~$report.docx"} {
		assert.True(t, isNoise(name), name)
	}
	for _, name := range []string{"index.txt", "main.go", "tmp", "report.tmp", ".index.txt.12345.tmp"} {
		assert.False(t, isNoise(name), name)
	}
}

func TestNew_RequiresSink(t *testing.T) {
	_, err := New(t.TempDir(), nil, Options{})
	assert.Error(t, err)
}
