package watch

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebounce_Coalesces(t *testing.T) {
	d := NewDebouncer(100 * time.Millisecond)
	var fires, got atomic.Int64
	d.OnFire(func(n int) {
		fires.Add(1)
		got.Store(int64(n))
	})

	d.Push()
	d.Push()
	d.Push()
	time.Sleep(300 * time.Millisecond)

	if fires.Load() != 1 || got.Load() != 3 {
		t.Fatalf("expected 1 fire of 3, got fires=%d n=%d", fires.Load(), got.Load())
	}
}

func TestDebounce_FlushAndStop(t *testing.T) {
	d := NewDebouncer(time.Hour)
	var got atomic.Int64
	d.OnFire(func(n int) { got.Add(int64(n)) })

	d.Push()
	d.Flush()
	if got.Load() != 1 {
		t.Fatalf("flush: expected 1, got %d", got.Load())
	}

	d.Push()
	d.Stop()
	d.Flush()
	if got.Load() != 1 {
		t.Fatalf("stop: expected pending burst dropped, got %d", got.Load())
	}
}
