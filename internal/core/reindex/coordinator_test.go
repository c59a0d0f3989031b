package reindex

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finder/internal/model"
)

type memStore struct {
	mu    sync.Mutex
	saves int
	last  *model.Snapshot
	err   error
}

func (s *memStore) Save(snap *model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saves++
	s.last = snap
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *memStore) lastPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last.Paths()
}

type countingScan struct {
	calls   atomic.Int64
	active  atomic.Int64
	maxSeen atomic.Int64
	delay   time.Duration
	paths   []string
}

func (s *countingScan) scan() (*model.Snapshot, error) {
	s.calls.Add(1)
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		m := s.maxSeen.Load()
		if n <= m || s.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return model.SnapshotFromPaths(s.paths), nil
}

func newCoordinator(t *testing.T, opts Options) *Coordinator {
	t.Helper()
	c, err := New(opts)
	require.NoError(t, err)
	c.Start()
	t.Cleanup(c.Stop)
	return c
}

func TestCoordinator_CoalescesBurstIntoOneRescan(t *testing.T) {
	sc := &countingScan{paths: []string{"/a", "/a/b"}}
	st := &memStore{}
	c := newCoordinator(t, Options{Debounce: 100 * time.Millisecond, Scan: sc.scan, Store: st})

	for i := 0; i < 20; i++ {
		require.NoError(t, c.Submit(model.Reindex()))
	}

	require.Eventually(t, func() bool { return sc.calls.Load() == 1 && st.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	assert.EqualValues(t, 1, sc.calls.Load())
	assert.Equal(t, []string{"/a", "/a/b"}, c.Snapshot().Paths())
	assert.Equal(t, []string{"/a", "/a/b"}, st.lastPaths())
}

func TestCoordinator_EventResetsDebounce(t *testing.T) {
	sc := &countingScan{}
	c := newCoordinator(t, Options{Debounce: 400 * time.Millisecond, Scan: sc.scan})

	require.NoError(t, c.Submit(model.Reindex()))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, c.Submit(model.Reindex()))

	// The first window would have closed at 400ms.
	time.Sleep(300 * time.Millisecond)
	assert.EqualValues(t, 0, sc.calls.Load())
	assert.Equal(t, StateDebouncing, c.State())

	require.Eventually(t, func() bool { return sc.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestCoordinator_RemoveAppliesWithoutRescan(t *testing.T) {
	sc := &countingScan{}
	st := &memStore{}
	initial := model.SnapshotFromPaths([]string{"/x", "/x/gone.txt", "/x/keep.txt", "/x/gone.txt"})
	c := newCoordinator(t, Options{Debounce: time.Hour, Scan: sc.scan, Store: st, Initial: initial})
	v0 := c.Snapshot().Version
	assert.EqualValues(t, 1, v0)

	require.NoError(t, c.Submit(model.Remove("/x/gone.txt")))

	require.Eventually(t, func() bool { return c.Snapshot().Count("/x/gone.txt") == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"/x", "/x/keep.txt"}, c.Snapshot().Paths())
	assert.Greater(t, c.Snapshot().Version, v0)
	assert.EqualValues(t, 0, sc.calls.Load())
	assert.Equal(t, 1, st.count())
	assert.Equal(t, []string{"/x", "/x/keep.txt"}, st.lastPaths())

	s := c.Status()
	assert.Equal(t, model.StatusRemoved, s.Kind)
	assert.Equal(t, "/x/gone.txt", s.Path)

	// The earlier snapshot is never mutated, not even its Version.
	assert.Equal(t, 2, initial.Count("/x/gone.txt"))
	assert.Zero(t, initial.Version)
}

func TestCoordinator_RemoveAbsentPathIsNoop(t *testing.T) {
	st := &memStore{}
	initial := model.SnapshotFromPaths([]string{"/x"})
	c := newCoordinator(t, Options{Scan: (&countingScan{}).scan, Store: st, Initial: initial})

	require.NoError(t, c.Submit(model.Remove("/nope")))
	require.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	assert.Same(t, initial, c.Snapshot())
	assert.Equal(t, 0, st.count())
	assert.Equal(t, model.StatusIdle, c.Status().Kind)
}

func TestCoordinator_RemoveDuringDebounceKeepsTimer(t *testing.T) {
	sc := &countingScan{paths: []string{"/fresh"}}
	initial := model.SnapshotFromPaths([]string{"/old", "/old/f"})
	c := newCoordinator(t, Options{Debounce: 300 * time.Millisecond, Scan: sc.scan, Initial: initial})

	require.NoError(t, c.Submit(model.Reindex()))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, c.Submit(model.Remove("/old/f")))

	require.Eventually(t, func() bool { return c.Snapshot().Count("/old/f") == 0 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 0, sc.calls.Load())
	require.Eventually(t, func() bool { return sc.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return c.Snapshot().Count("/fresh") == 1 }, time.Second, 5*time.Millisecond)
}

func TestCoordinator_AtMostOneRescan(t *testing.T) {
	sc := &countingScan{delay: 150 * time.Millisecond}
	c := newCoordinator(t, Options{Debounce: 5 * time.Millisecond, Scan: sc.scan})

	require.NoError(t, c.Submit(model.Reindex()))
	require.Eventually(t, func() bool { return sc.active.Load() == 1 }, time.Second, time.Millisecond)
	for i := 0; i < 5; i++ {
		require.NoError(t, c.Submit(model.Reindex()))
	}

	require.Eventually(t, func() bool { return sc.calls.Load() == 2 && sc.active.Load() == 0 }, 3*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, sc.maxSeen.Load())
}

func TestCoordinator_SaveFailureKeepsSnapshot(t *testing.T) {
	st := &memStore{err: errors.New("disk full")}
	initial := model.SnapshotFromPaths([]string{"/x", "/x/a"})
	c := newCoordinator(t, Options{Scan: (&countingScan{paths: []string{"/y"}}).scan, Store: st, Initial: initial})

	require.NoError(t, c.Submit(model.Remove("/x/a")))
	require.Eventually(t, func() bool { return c.Status().Kind == model.StatusFailed }, time.Second, 5*time.Millisecond)
	assert.Contains(t, c.Status().Err, "disk full")
	assert.Same(t, initial, c.Snapshot())

	require.NoError(t, c.Submit(model.Reindex()))
	require.Eventually(t, func() bool { return c.Scans() == 1 && c.State() == StateIdle }, time.Second, 5*time.Millisecond)
	assert.Same(t, initial, c.Snapshot())
	assert.Equal(t, model.StatusFailed, c.Status().Kind)
}

func TestCoordinator_ScanFailureSetsFailed(t *testing.T) {
	initial := model.SnapshotFromPaths([]string{"/x"})
	scan := func() (*model.Snapshot, error) { return nil, errors.New("boom") }
	c := newCoordinator(t, Options{Scan: scan, Initial: initial})

	require.NoError(t, c.Submit(model.Reindex()))
	require.Eventually(t, func() bool { return c.Status().Kind == model.StatusFailed }, time.Second, 5*time.Millisecond)
	assert.Same(t, initial, c.Snapshot())
}

func TestCoordinator_StatusRevertsToIdle(t *testing.T) {
	initial := model.SnapshotFromPaths([]string{"/x", "/x/a"})
	c := newCoordinator(t, Options{StatusTTL: 50 * time.Millisecond, Scan: (&countingScan{}).scan, Initial: initial})

	require.NoError(t, c.Submit(model.Remove("/x/a")))
	require.Eventually(t, func() bool { return c.Status().Kind == model.StatusRemoved }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return c.Status().Kind == model.StatusIdle }, time.Second, 5*time.Millisecond)
}

func TestCoordinator_UpdatesStream(t *testing.T) {
	c := newCoordinator(t, Options{Scan: (&countingScan{paths: []string{"/a"}}).scan, StatusTTL: time.Minute})
	require.NoError(t, c.Submit(model.Reindex()))

	var kinds []model.StatusKind
	timeout := time.After(2 * time.Second)
	for len(kinds) < 2 {
		select {
		case s := <-c.Updates():
			kinds = append(kinds, s.Kind)
		case <-timeout:
			t.Fatalf("timed out, got %v", kinds)
		}
	}
	assert.Equal(t, []model.StatusKind{model.StatusIndexing, model.StatusUpdated}, kinds)
}

func TestCoordinator_StopWaitsForInFlightRescan(t *testing.T) {
	sc := &countingScan{delay: 200 * time.Millisecond, paths: []string{"/done"}}
	c, err := New(Options{Scan: sc.scan})
	require.NoError(t, err)
	c.Start()

	require.NoError(t, c.Submit(model.Reindex()))
	require.Eventually(t, func() bool { return sc.active.Load() == 1 }, time.Second, time.Millisecond)

	c.Stop()
	assert.EqualValues(t, 0, sc.active.Load())
	assert.Equal(t, []string{"/done"}, c.Snapshot().Paths())
	assert.Equal(t, StateStopped, c.State())
	assert.ErrorIs(t, c.Submit(model.Reindex()), ErrStopped)

	c.Stop()
}

func TestCoordinator_StopDrainsQueuedRemovals(t *testing.T) {
	initial := model.SnapshotFromPaths([]string{"/a", "/b", "/c"})
	c, err := New(Options{Debounce: time.Hour, Scan: (&countingScan{}).scan, Initial: initial})
	require.NoError(t, err)

	require.NoError(t, c.Submit(model.Remove("/a")))
	require.NoError(t, c.Submit(model.Reindex()))
	require.NoError(t, c.Submit(model.Remove("/c")))
	c.Stop()

	assert.Equal(t, []string{"/b"}, c.Snapshot().Paths())
	assert.EqualValues(t, 0, c.Scans())
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{Scan: (&countingScan{}).scan, Debounce: -time.Second})
	assert.Error(t, err)
}
