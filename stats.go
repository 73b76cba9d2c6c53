package ringpool

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// cacheLinePad is sized to push a following field onto its own cache
// line on the common 64-byte-line platforms the teacher already
// targets (pool.go's own `64 - unsafe.Sizeof(...)` padding fields).
type cacheLinePad [64]byte

// statCounter is one relaxed-atomic counter isolated on its own cache
// line, per spec §4.6 / C6.
type statCounter struct {
	v   atomic.Int64
	_   cacheLinePad
}

func (c *statCounter) add(n int64) { c.v.Add(n) }
func (c *statCounter) load() int64 { return c.v.Load() }

// statsBlock holds the nine counters named in spec §3. When a Pool is
// built with EnableStats: false, statsBlock is never allocated
// (*statsBlock stays nil) and every update site short-circuits on a
// nil check, which the compiler turns into a single predictable branch
// rather than touching nine cache lines for nothing -- the portable
// equivalent of the spec's "compiled away when disabled" (§2, C6).
type statsBlock struct {
	acquires        statCounter
	releases        statCounter
	creates         statCounter
	crossThreadOps  statCounter
	sameThreadHits  statCounter
	inUse           statCounter
	currentPoolSize statCounter
	cacheHits       statCounter
	batchOperations statCounter
}

// Stats is the immutable snapshot returned by Pool.Stats (spec §4.4
// get_stats). Snapshots are not mutually consistent across fields --
// every field is read independently with relaxed ordering (spec §5,
// §9 Open Questions).
type Stats struct {
	Acquires        int64
	Releases        int64
	Creates         int64
	CrossThreadOps  int64
	SameThreadHits  int64
	InUse           int64
	CurrentPoolSize int64
	CacheHits       int64
	BatchOperations int64
}

func (s *statsBlock) snapshot() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		Acquires:        s.acquires.load(),
		Releases:        s.releases.load(),
		Creates:         s.creates.load(),
		CrossThreadOps:  s.crossThreadOps.load(),
		SameThreadHits:  s.sameThreadHits.load(),
		InUse:           s.inUse.load(),
		CurrentPoolSize: s.currentPoolSize.load(),
		CacheHits:       s.cacheHits.load(),
		BatchOperations: s.batchOperations.load(),
	}
}

// statsCollector adapts a live Pool's statsBlock to prometheus.Collector
// (SPEC_FULL §2), so a host process can register a pool's counters
// alongside its own metrics without this package importing a global
// registry anywhere.
type statsCollector struct {
	name string
	get  func() Stats
}

// Collector returns a prometheus.Collector exposing this pool's
// counters, or nil if the pool was built with EnableStats: false.
func (p *Pool[T, A]) Collector() prometheus.Collector {
	if p.stats == nil {
		return nil
	}
	return &statsCollector{name: p.name, get: p.Stats}
}

var statDescs = map[string]*prometheus.Desc{
	"acquires":          prometheus.NewDesc("ringpool_acquires_total", "Total Acquire calls.", []string{"pool"}, nil),
	"releases":          prometheus.NewDesc("ringpool_releases_total", "Total Release calls.", []string{"pool"}, nil),
	"creates":           prometheus.NewDesc("ringpool_creates_total", "Total slow-path allocations.", []string{"pool"}, nil),
	"cross_thread_ops":  prometheus.NewDesc("ringpool_cross_thread_ops_total", "Total cross-thread acquire/release handoffs.", []string{"pool"}, nil),
	"same_thread_hits":  prometheus.NewDesc("ringpool_same_thread_hits_total", "Total same-thread fast-path hits.", []string{"pool"}, nil),
	"in_use":            prometheus.NewDesc("ringpool_in_use", "Slots currently out with callers.", []string{"pool"}, nil),
	"current_pool_size": prometheus.NewDesc("ringpool_current_size", "Approximate slots currently free (cache + ring).", []string{"pool"}, nil),
	"cache_hits":        prometheus.NewDesc("ringpool_cache_hits_total", "Total per-P cache hits.", []string{"pool"}, nil),
	"batch_operations":  prometheus.NewDesc("ringpool_batch_operations_total", "Total batch operations (prewarm/flush/shrink).", []string{"pool"}, nil),
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range statDescs {
		ch <- d
	}
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.get()
	emit := func(key string, kind prometheus.ValueType, val float64) {
		ch <- prometheus.MustNewConstMetric(statDescs[key], kind, val, c.name)
	}
	emit("acquires", prometheus.CounterValue, float64(s.Acquires))
	emit("releases", prometheus.CounterValue, float64(s.Releases))
	emit("creates", prometheus.CounterValue, float64(s.Creates))
	emit("cross_thread_ops", prometheus.CounterValue, float64(s.CrossThreadOps))
	emit("same_thread_hits", prometheus.CounterValue, float64(s.SameThreadHits))
	emit("in_use", prometheus.GaugeValue, float64(s.InUse))
	emit("current_pool_size", prometheus.GaugeValue, float64(s.CurrentPoolSize))
	emit("cache_hits", prometheus.CounterValue, float64(s.CacheHits))
	emit("batch_operations", prometheus.CounterValue, float64(s.BatchOperations))
}
