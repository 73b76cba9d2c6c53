// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ringpool

import (
	"context"
	"reflect"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// prewarmBatchSize, shrinkBatchSize and drainBatchSize are the "small
// constant size" batch sizes spec §4.4 asks for in Prewarm, Shrink and
// the shutdown ring drain respectively.
const (
	prewarmBatchSize = 32
	shrinkBatchSize  = 16
	drainBatchSize   = 64
	// shutdownQuiesce is the best-effort sleep from spec §4.4
	// Destruction step 2 / §9 Open Questions: not a correctness
	// guarantee, just a chance for in-flight operations to observe the
	// shutdown flag.
	shutdownQuiesce = 2 * time.Millisecond
)

// noCopy causes `go vet`'s copylocks check to flag any accidental copy
// of a Pool (or Handle) after its per-P arrays have been allocated.
// Copied verbatim from the teacher's pool.go.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// isNil reports whether v is a "null slot" (spec §4.4 Release: "Null
// slot: no-op"). Only meaningful for pointer-like T; used exactly once
// per Release call, mirroring the teacher's own reflect-based isNil.
func isNil[T any](v T) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice, reflect.UnsafePointer:
		return rv.IsNil()
	default:
		return false
	}
}

// poolState mirrors spec §4.4 "State machine (per pool)".
type poolState int32

const (
	stateActive poolState = iota
	stateDraining
	stateDead
)

// Pool is the raw engine (spec §4.4, C4): the policy layer binding the
// allocation adapter (C1), global ring (C2) and per-P caches (C3).
//
// T is the payload type; A is the (possibly struct{}) argument type
// Acquire/Reset/Build take, generalizing the spec's variadic
// "acquire(args…)" into a single Go type parameter.
type Pool[T any, A any] struct {
	noCopy noCopy

	name string
	log  *logrus.Entry

	alloc              Allocator[T]
	localCacheSize     int
	prewarmConcurrency int

	ring   *ring[T]
	locals atomic.Pointer[perPCaches[T]]
	victim atomic.Pointer[perPCaches[T]]

	shutdown atomic.Bool // release on store, acquire on load (spec §5)
	state    atomic.Int32

	stats *statsBlock

	gcArmed atomic.Bool
}

// New constructs a Pool per spec §6 `new(allocator) -> pool` /
// §2 Lifecycles "immediately auto-prewarms to PoolSize/2".
func New[T any, A any](cfg Config[T, A]) (*Pool[T, A], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = "pool"
	}
	concurrency := cfg.PrewarmConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	p := &Pool[T, A]{
		name:               name,
		alloc:              cfg.Allocator,
		localCacheSize:     cfg.LocalCacheSize,
		prewarmConcurrency: concurrency,
		ring:               newRing[T](cfg.PoolSize),
	}
	if cfg.EnableStats {
		p.stats = &statsBlock{}
	}
	if cfg.Logger != nil {
		p.log = cfg.Logger.WithField("pool", name)
	}
	p.locals.Store(new(perPCaches[T]))
	p.victim.Store(new(perPCaches[T]))

	globalRegistry.register(p, p)
	p.armGCWatcher()

	if p.log != nil {
		p.log.WithField("pool_size", cfg.PoolSize).Info("ringpool: constructed")
	}

	p.Prewarm(cfg.PoolSize / 2)

	return p, nil
}

// Capacity returns PoolSize (spec §4.4 capacity(): "Compile-time
// constant equal to PoolSize"; here, a construction-time constant).
func (p *Pool[T, A]) Capacity() int { return p.ring.capacity() }

// Stats returns a snapshot of the counters (spec §4.4 get_stats),
// zeroed when the pool was built with EnableStats: false.
func (p *Pool[T, A]) Stats() Stats { return p.stats.snapshot() }

func (p *Pool[T, A]) recordBatch() {
	if p.stats != nil {
		p.stats.batchOperations.add(1)
	}
}

// Acquire implements spec §4.4 Acquire: fast path (per-P cache),
// medium path (global ring), slow path (allocator).
func (p *Pool[T, A]) Acquire(args A) (out T, err error) {
	if p.shutdown.Load() { // acquire-ordered: pairs with Close's release store
		var zero T
		return zero, ErrShutdown
	}

	if p.stats != nil {
		p.stats.acquires.add(1)
		p.stats.inUse.add(1)
	}

	cache, pid := p.locals.Load().pin(p.localCacheSize)
	if v, ok := cache.pop(); ok {
		runtimeProcUnpin()
		if p.stats != nil {
			p.stats.sameThreadHits.add(1)
			p.stats.cacheHits.add(1)
			p.stats.currentPoolSize.add(-1)
		}
		return constructOrReset[T, A](v, args, pid), nil
	}
	runtimeProcUnpin()

	if v, ok := p.ring.tryPop(); ok {
		if p.stats != nil {
			p.stats.crossThreadOps.add(1)
			p.stats.currentPoolSize.add(-1)
		}
		return constructOrReset[T, A](v, args, pid), nil
	}

	pid = runtimeProcPin()
	v, cErr := constructWith[T, A](p.alloc, args, pid)
	runtimeProcUnpin()
	if cErr != nil {
		if p.stats != nil {
			p.stats.inUse.add(-1)
		}
		var zero T
		return zero, cErr
	}
	if p.stats != nil {
		p.stats.creates.add(1)
	}
	return v, nil
}

// Release implements spec §4.4 Release.
func (p *Pool[T, A]) Release(v T) {
	if isNil(v) {
		return
	}
	if p.stats != nil {
		p.stats.releases.add(1)
		p.stats.inUse.add(-1)
	}

	cache, pid := p.locals.Load().pin(p.localCacheSize)
	same := sameThread(v, pid)
	runCleanup[T, A](v)

	if same && !p.shuttingDown() && cache.push(v) {
		runtimeProcUnpin()
		if p.stats != nil {
			p.stats.currentPoolSize.add(1)
		}
		return
	}
	runtimeProcUnpin()

	if p.ring.tryPush(v) {
		if p.stats != nil {
			p.stats.currentPoolSize.add(1)
		}
	} else {
		destroyAndDeallocate(v)
	}
	if p.stats != nil && !same {
		p.stats.crossThreadOps.add(1)
	}
}

// Prewarm implements spec §4.4 Prewarm: clamp to remaining ring
// capacity, fill in batches, allocating concurrently up to
// PrewarmConcurrency via a weighted semaphore (SPEC_FULL §2).
func (p *Pool[T, A]) Prewarm(count int) {
	remaining := p.Capacity() - p.ring.approxSize()
	if count > remaining {
		count = remaining
	}
	if count <= 0 {
		return
	}

	sem := semaphore.NewWeighted(int64(p.prewarmConcurrency))
	ctx := context.Background()
	done := make(chan struct{})
	pending := 0

	for start := 0; start < count; start += prewarmBatchSize {
		n := min(prewarmBatchSize, count-start)
		pending++
		_ = sem.Acquire(ctx, 1)
		go func(n int) {
			defer sem.Release(1)
			defer func() { done <- struct{}{} }()
			p.prewarmBatch(n)
		}(n)
	}
	for i := 0; i < pending; i++ {
		<-done
	}
}

// prewarmBatch allocates up to n payloads and pushes them into the
// ring, stopping and destroying on the first allocation or push
// failure (spec §4.4 Prewarm failure semantics).
func (p *Pool[T, A]) prewarmBatch(n int) {
	batch := make([]T, 0, n)
	pid := runtimeProcPin()
	for i := 0; i < n; i++ {
		v, ok := allocateAndConstruct[T](p.alloc, pid)
		if !ok {
			break
		}
		batch = append(batch, v)
	}
	runtimeProcUnpin()

	pushed := 0
	for _, v := range batch {
		if !p.ring.tryPush(v) {
			break
		}
		pushed++
	}
	if p.stats != nil && pushed > 0 {
		p.stats.currentPoolSize.add(int64(pushed))
	}
	for _, v := range batch[pushed:] {
		destroyAndDeallocate(v)
	}
	p.recordBatch()
}

// FlushLocalCache implements spec §4.4 FlushLocalCache: drain the
// calling goroutine's per-P cache, pushing every handle to the ring and
// destroying any that don't fit.
func (p *Pool[T, A]) FlushLocalCache() {
	cache, _ := p.locals.Load().pin(p.localCacheSize)
	entries := cache.drain()
	runtimeProcUnpin()
	for _, v := range entries {
		if !p.ring.tryPush(v) {
			destroyAndDeallocate(v)
			if p.stats != nil {
				p.stats.currentPoolSize.add(-1)
			}
		}
	}
	p.recordBatch()
}

// Shrink implements spec §4.4 Shrink: flush the caller's cache, then
// destroy up to max slots pulled from the ring in batches.
func (p *Pool[T, A]) Shrink(max int) int {
	p.FlushLocalCache()

	destroyed := 0
	for destroyed < max {
		n := min(shrinkBatchSize, max-destroyed)
		got := 0
		for i := 0; i < n; i++ {
			v, ok := p.ring.tryPop()
			if !ok {
				break
			}
			destroyAndDeallocate(v)
			got++
		}
		if p.stats != nil && got > 0 {
			p.stats.currentPoolSize.add(-int64(got))
		}
		destroyed += got
		p.recordBatch()
		if got < n {
			break // ring is empty; nothing more to shrink
		}
	}
	return destroyed
}

// shuttingDown reports whether the shutdown flag is set (spec §4.5
// rescue contract: "checks each candidate pool's shutdown flag under
// acquire ordering before attempting try_push").
func (p *Pool[T, A]) shuttingDown() bool { return p.shutdown.Load() }

// rescueAny implements the rescuer interface consulted by dying caches
// (spec §4.5): accept v into this pool's ring if it is the right type
// and this pool isn't shutting down.
func (p *Pool[T, A]) rescueAny(v any) bool {
	if p.shuttingDown() {
		return false
	}
	val, ok := v.(T)
	if !ok {
		return false
	}
	accepted := p.ring.tryPush(val)
	if accepted && p.stats != nil {
		p.stats.currentPoolSize.add(1)
	}
	return accepted
}

// Close implements spec §4.4 Destruction / the Active->Draining->Dead
// state machine.
func (p *Pool[T, A]) Close() {
	p.state.Store(int32(stateDraining))
	p.shutdown.Store(true) // release-ordered

	time.Sleep(shutdownQuiesce)

	globalRegistry.unregister(p)

	// Synchronous rescue-or-destroy pass over every per-P cache
	// (SPEC_FULL §0/§7: the Go-idiomatic stand-in for "thread exit"
	// rescue, run eagerly here so quiescent teardown never depends on
	// a GC having happened).
	p.drainCacheSet(p.locals.Load())
	p.drainCacheSet(p.victim.Load())

	for {
		drained := 0
		for i := 0; i < drainBatchSize; i++ {
			v, ok := p.ring.tryPop()
			if !ok {
				break
			}
			destroyAndDeallocate(v)
			drained++
		}
		if p.stats != nil && drained > 0 {
			p.stats.currentPoolSize.add(-int64(drained))
		}
		if drained == 0 {
			break
		}
	}

	p.state.Store(int32(stateDead))
	if p.log != nil {
		p.log.Info("ringpool: closed")
	}
}

func (p *Pool[T, A]) drainCacheSet(set *perPCaches[T]) {
	for _, c := range set.load() {
		if c == nil {
			continue
		}
		c.invalidate()
		entries := c.drain()
		if p.stats != nil && len(entries) > 0 {
			p.stats.currentPoolSize.add(-int64(len(entries)))
		}
		for _, v := range entries {
			if !globalRegistry.rescue(p, v) {
				destroyAndDeallocate(v)
			}
		}
	}
}

// armGCWatcher arms a best-effort GC-cycle watcher (SPEC_FULL §11): a
// tiny sentinel object whose finalizer fires on (approximately) the
// next GC cycle, at which point this pool rotates its per-P caches
// into a victim generation and expires the previous victim generation,
// generalizing the teacher's poolCleanup/allPools/oldPools global
// victim rotation (pool.go) from a single process-wide pair of slices
// into one generation-pair per pool instantiation.
func (p *Pool[T, A]) armGCWatcher() {
	if p.gcArmed.Swap(true) {
		return
	}
	sentinel := new(gcSentinel[T, A])
	sentinel.pool = p
	runtime.SetFinalizer(sentinel, (*gcSentinel[T, A]).fire)
}

type gcSentinel[T any, A any] struct {
	pool *Pool[T, A]
}

func (s *gcSentinel[T, A]) fire() {
	p := s.pool
	if p.shuttingDown() {
		return
	}
	p.rotateGeneration()
	p.gcArmed.Store(false)
	p.armGCWatcher()
}

// rotateGeneration expires the current victim generation (rescuing or
// destroying every slot it still holds) and demotes the current
// per-P caches to become the next victim generation, exactly mirroring
// the teacher's poolCleanup two-generation scheme.
func (p *Pool[T, A]) rotateGeneration() {
	p.drainCacheSet(p.victim.Load())

	p.victim.Store(p.locals.Load())
	p.locals.Store(new(perPCaches[T]))
}
