package ringpool

import "testing"

func TestLocalCachePushPopLIFO(t *testing.T) {
	c := newLocalCache[int](3)
	if !c.push(1) || !c.push(2) || !c.push(3) {
		t.Fatal("push failed under capacity")
	}
	if c.push(4) {
		t.Fatal("push should fail once capacity is reached")
	}
	for _, want := range []int{3, 2, 1} {
		v, ok := c.pop()
		if !ok || v != want {
			t.Fatalf("pop() = (%d, %v), want (%d, true)", v, ok, want)
		}
	}
	if _, ok := c.pop(); ok {
		t.Fatal("pop should fail once empty")
	}
}

func TestLocalCacheInvalidate(t *testing.T) {
	c := newLocalCache[int](2)
	c.push(1)
	c.invalidate()
	if c.push(2) {
		t.Fatal("push should fail on an invalidated cache")
	}
	if _, ok := c.pop(); ok {
		t.Fatal("pop should fail on an invalidated cache")
	}
}

func TestLocalCacheDrain(t *testing.T) {
	c := newLocalCache[int](4)
	c.push(10)
	c.push(20)
	got := c.drain()
	if len(got) != 2 || got[0] != 10 || got[1] != 20 {
		t.Fatalf("drain() = %v, want [10 20]", got)
	}
	if _, ok := c.pop(); ok {
		t.Fatal("cache should be empty after drain")
	}
	if got := c.drain(); got != nil {
		t.Fatalf("drain() on an empty cache = %v, want nil", got)
	}
}

func TestPerPCachesPinReturnsUsableCache(t *testing.T) {
	var set perPCaches[int]
	cache, pid := set.pin(4)
	if cache == nil {
		t.Fatal("pin returned a nil cache")
	}
	if pid < 0 {
		t.Fatalf("pin returned negative pid %d", pid)
	}
	runtimeProcUnpin()

	if !cache.push(42) {
		t.Fatal("push into newly pinned cache failed")
	}
	v, ok := cache.pop()
	if !ok || v != 42 {
		t.Fatalf("pop() = (%d, %v), want (42, true)", v, ok)
	}
}

func TestPerPCachesLoadReflectsGrowth(t *testing.T) {
	var set perPCaches[int]
	if set.load() != nil {
		t.Fatal("load() on an unpinned set should be nil")
	}
	_, _ = set.pin(4)
	runtimeProcUnpin()
	if set.load() == nil {
		t.Fatal("load() after pin should return the backing array")
	}
}
