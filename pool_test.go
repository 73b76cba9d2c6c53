package ringpool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

type widget struct {
	tid       int
	resets    int32
	destroyed bool
}

func (w *widget) Reset(arg int)      { atomic.AddInt32(&w.resets, 1) }
func (w *widget) Destroy()           { w.destroyed = true }
func (w *widget) ThreadID() int      { return w.tid }
func (w *widget) SetThreadID(id int) { w.tid = id }

func widgetAllocator() Allocator[*widget] {
	return AllocatorFunc[*widget](func() (*widget, bool) { return &widget{}, true })
}

func newTestPool(t *testing.T, poolSize, localCacheSize int) *Pool[*widget, int] {
	t.Helper()
	p, err := New[*widget, int](Config[*widget, int]{
		Name:           "test",
		PoolSize:       poolSize,
		LocalCacheSize: localCacheSize,
		Allocator:      widgetAllocator(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := newTestPool(t, 4, 2)
	v, err := p.Acquire(1)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if v == nil {
		t.Fatal("Acquire returned a nil widget")
	}
	p.Release(v)

	v2, err := p.Acquire(7)
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if atomic.LoadInt32(&v2.resets) == 0 {
		t.Fatal("a recycled widget should have had Reset called at least once")
	}
}

// TestAcquireRetagsAffinityOnEveryPath confirms spec P5 ("every slot
// acquired on thread tau has threadId == tau at the moment it is
// returned") holds on the medium path (ring pop) and not just on the
// slow (allocator) path: a widget stamped with a stale tid by prewarm
// must come back re-tagged with the acquiring goroutine's own pid.
func TestAcquireRetagsAffinityOnEveryPath(t *testing.T) {
	p := newTestPool(t, 4, 0) // LocalCacheSize=0 forces every Acquire through the ring
	v, err := p.Acquire(0)    // New() already prewarmed the ring; this pops from it
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if got, want := v.ThreadID(), ThreadID(); got != want {
		t.Fatalf("medium-path Acquire returned tid=%d, want the acquiring thread's id %d", got, want)
	}
}

func TestCapacityMatchesPoolSize(t *testing.T) {
	p := newTestPool(t, 16, 4)
	if got := p.Capacity(); got != 16 {
		t.Fatalf("Capacity() = %d, want 16", got)
	}
}

func TestNewAutoPrewarmsHalfCapacity(t *testing.T) {
	p := newTestPool(t, 8, 0)
	if got := p.ring.approxSize(); got != 4 {
		t.Fatalf("ring.approxSize() after New = %d, want 4 (PoolSize/2)", got)
	}
}

func TestStatsTrackAcquireAndRelease(t *testing.T) {
	p, err := New[*widget, int](Config[*widget, int]{
		Name:        "stats",
		PoolSize:    4,
		EnableStats: true,
		Allocator:   widgetAllocator(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	v, err := p.Acquire(0)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	p.Release(v)

	s := p.Stats()
	if s.Acquires == 0 {
		t.Fatal("Stats().Acquires should be nonzero after an Acquire")
	}
	if s.Releases == 0 {
		t.Fatal("Stats().Releases should be nonzero after a Release")
	}
}

func TestStatsZeroWhenDisabled(t *testing.T) {
	p := newTestPool(t, 4, 1)
	v, _ := p.Acquire(0)
	p.Release(v)
	if s := p.Stats(); s != (Stats{}) {
		t.Fatalf("Stats() with EnableStats=false = %+v, want zero value", s)
	}
}

func TestCloseRejectsFurtherAcquire(t *testing.T) {
	p := newTestPool(t, 4, 1)
	p.Close()

	if _, err := p.Acquire(0); !errors.Is(err, ErrShutdown) {
		t.Fatalf("Acquire after Close = %v, want ErrShutdown", err)
	}
}

func TestAllocationFailureSurfaces(t *testing.T) {
	failing := AllocatorFunc[*widget](func() (*widget, bool) { return nil, false })
	p, err := New[*widget, int](Config[*widget, int]{
		Name:      "failing",
		PoolSize:  2,
		Allocator: failing,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := p.Acquire(0); !errors.Is(err, ErrAllocationFailed) {
		t.Fatalf("Acquire with a failing allocator = %v, want ErrAllocationFailed", err)
	}
}

func TestShrinkDestroysUpToMax(t *testing.T) {
	p := newTestPool(t, 16, 0)
	p.Prewarm(16)
	before := p.ring.approxSize()
	destroyed := p.Shrink(4)
	if destroyed != 4 {
		t.Fatalf("Shrink(4) destroyed %d, want 4", destroyed)
	}
	if after := p.ring.approxSize(); before-after != 4 {
		t.Fatalf("ring shrank by %d, want 4", before-after)
	}
}

func TestFlushLocalCachePushesIntoRing(t *testing.T) {
	p := newTestPool(t, 16, 4)
	p.Shrink(16) // empty the ring so the assertion below is unambiguous

	cache, _ := p.locals.Load().pin(p.localCacheSize)
	cache.push(&widget{})
	runtimeProcUnpin()

	p.FlushLocalCache()
	if got := p.ring.approxSize(); got != 1 {
		t.Fatalf("ring.approxSize() after FlushLocalCache = %d, want 1", got)
	}
}

func TestConcurrentAcquireReleaseNeverDuplicates(t *testing.T) {
	p := newTestPool(t, 64, 8)
	const goroutines = 16
	const iterations = 200

	var held sync.Map
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				v, err := p.Acquire(i)
				if err != nil {
					t.Errorf("Acquire failed: %v", err)
					return
				}
				if _, dup := held.LoadOrStore(v, struct{}{}); dup {
					t.Errorf("widget %p handed to two goroutines at once", v)
					return
				}
				held.Delete(v)
				p.Release(v)
			}
		}()
	}
	wg.Wait()
}

func BenchmarkAcquireRelease(b *testing.B) {
	p, err := New[*widget, int](Config[*widget, int]{
		Name:      "bench",
		PoolSize:  1024,
		Allocator: widgetAllocator(),
	})
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}
	b.ResetTimer()

	b.Run("sequential", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			v, err := p.Acquire(i)
			if err != nil {
				b.Fatalf("Acquire failed: %v", err)
			}
			p.Release(v)
		}
	})

	b.Run("concurrent", func(b *testing.B) {
		b.RunParallel(func(pb *testing.PB) {
			i := 0
			for pb.Next() {
				v, err := p.Acquire(i)
				if err != nil {
					b.Fatalf("Acquire failed: %v", err)
				}
				p.Release(v)
				i++
			}
		})
	})
}
