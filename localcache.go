package ringpool

import (
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"
)

// localCache is the thread-local cache (spec §4.3, C3): a fixed
// capacity LIFO stack of free slot handles owned by exactly one P
// (spec SPEC_FULL §0 maps "thread" to "P" the same way the teacher's
// poolLocal does), plus an atomic valid flag.
//
// Layout intentionally separates the hot data array from the count so
// the array doesn't false-share with the single int the owning P
// mutates on every push/pop, mirroring the teacher's poolLocal padding
// discipline.
type localCache[T any] struct {
	valid atomic.Bool
	n     int
	_     [64 - 8 - 8]byte
	data  []T
}

func newLocalCache[T any](capacity int) *localCache[T] {
	c := &localCache[T]{data: make([]T, capacity)}
	c.valid.Store(true)
	return c
}

// push implements spec §4.3 Push. Caller must already hold the pin for
// this P; only the owning goroutine-on-this-P ever calls push.
func (c *localCache[T]) push(v T) bool {
	if !c.valid.Load() {
		return false
	}
	if c.n >= len(c.data) {
		return false
	}
	c.data[c.n] = v
	c.n++
	return true
}

// pop implements spec §4.3 Pop.
func (c *localCache[T]) pop() (v T, ok bool) {
	if !c.valid.Load() {
		return v, false
	}
	if c.n == 0 {
		return v, false
	}
	c.n--
	v = c.data[c.n]
	var zero T
	c.data[c.n] = zero
	return v, true
}

// invalidate implements spec §4.3 Invalidate: release-ordered, paired
// with valid.Load's acquire ordering on any later access attempt.
func (c *localCache[T]) invalidate() {
	c.valid.Store(false)
}

// drain removes and returns every handle currently cached, resetting
// the count to zero. Used by FlushLocalCache and by cache rescue.
func (c *localCache[T]) drain() []T {
	if c.n == 0 {
		return nil
	}
	out := make([]T, c.n)
	copy(out, c.data[:c.n])
	for i := 0; i < c.n; i++ {
		var zero T
		c.data[i] = zero
	}
	c.n = 0
	return out
}

// perPCaches is the growable array of per-P localCache pointers backing
// a single pool instantiation, directly generalizing the teacher's
// pin/pinSlow/indexLocal growth dance (pool.go) from a single shared
// poolLocal[T] array to one localCache[T] per P, since the spec wants
// a bounded LIFO rather than the teacher's unbounded chain.
type perPCaches[T any] struct {
	slice unsafe.Pointer // *[]*localCache[T]
	cap   int
}

func (p *perPCaches[T]) load() []*localCache[T] {
	ptr := atomic.LoadPointer(&p.slice)
	if ptr == nil {
		return nil
	}
	return *(*[]*localCache[T])(ptr)
}

// pin pins the current goroutine to its P and returns that P's
// localCache, creating or growing the backing array if it has no cache
// for this P yet. Caller must call runtimeProcUnpin when done.
func (p *perPCaches[T]) pin(capacity int) (*localCache[T], int) {
	pid := runtimeProcPin()
	caches := p.load()
	if pid < len(caches) && caches[pid] != nil {
		return caches[pid], pid
	}
	runtimeProcUnpin()
	return p.pinSlow(capacity)
}

func (p *perPCaches[T]) pinSlow(capacity int) (*localCache[T], int) {
	allPPoolsMu.Lock()
	defer allPPoolsMu.Unlock()

	pid := runtimeProcPin()
	caches := p.load()
	if pid < len(caches) && caches[pid] != nil {
		return caches[pid], pid
	}

	size := runtime.GOMAXPROCS(0)
	if pid >= size {
		size = pid + 1
	}
	next := make([]*localCache[T], size)
	copy(next, caches)
	for i := range next {
		if next[i] == nil {
			next[i] = newLocalCache[T](capacity)
		}
	}
	atomic.StorePointer(&p.slice, unsafe.Pointer(&next))
	return next[pid], pid
}

// allPPoolsMu serializes the rare growth path across every
// instantiation of Pool[T]; taken on the first pin of a fresh cache set
// (a new pool, or a new generation after a GC rotation) and when a P id
// beyond the current array appears.
var allPPoolsMu sync.Mutex
