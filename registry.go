package ringpool

import (
	"sync"
	"time"
)

// poolID identifies one live pool instantiation for the registry. Any
// comparable value works; each *Pool[T] uses its own address.
type poolID = any

// rescuer is the narrow interface a dying cache needs from a live pool
// to attempt a rescue: check whether it is still accepting slots, and
// push one in if so (spec §4.5).
type rescuer interface {
	shuttingDown() bool
	rescueAny(v any) bool
}

// registry is the process-wide active-pool registry (spec §4.5, C5): a
// concurrent map from pool identity to creation timestamp, read only by
// cache rescue paths and written only on pool construction/destruction.
//
// Grounded on the teacher's allPools/oldPools globals (pool.go), which
// serve the same purpose for Go's own sync.Pool (GC-cycle victim
// rotation); generalized here into a named, reusable type instead of
// package-level slices, and keyed by pool identity rather than
// implicitly by GC epoch, because spec §4.5 requires concurrent
// insert/remove/iterate without a stop-the-world assumption.
type registry struct {
	mu    sync.RWMutex
	pools map[poolID]rescuer
	times sync.Map // poolID -> time.Time, diagnostic only (spec §4.5)
}

var globalRegistry = &registry{pools: make(map[poolID]rescuer)}

func (r *registry) register(id poolID, p rescuer) {
	r.mu.Lock()
	r.pools[id] = p
	r.mu.Unlock()
	r.times.Store(id, time.Now())
}

func (r *registry) unregister(id poolID) {
	r.mu.Lock()
	delete(r.pools, id)
	r.mu.Unlock()
	r.times.Delete(id)
}

// rescue offers v to every live, non-shutting-down registered pool
// (other than exclude) until one accepts it. Returns false if none do.
func (r *registry) rescue(exclude poolID, v any) bool {
	r.mu.RLock()
	candidates := make([]rescuer, 0, len(r.pools))
	for id, p := range r.pools {
		if id == exclude {
			continue
		}
		candidates = append(candidates, p)
	}
	r.mu.RUnlock()

	for _, p := range candidates {
		if p.shuttingDown() { // acquire-ordered load, spec §4.5
			continue
		}
		if p.rescueAny(v) {
			return true
		}
	}
	return false
}

// createdAt returns the diagnostic creation time recorded for id, if any.
func (r *registry) createdAt(id poolID) (time.Time, bool) {
	v, ok := r.times.Load(id)
	if !ok {
		return time.Time{}, false
	}
	return v.(time.Time), true
}
