package ringpool

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Config is the instantiation-time configuration named in spec §6:
// PoolSize, LocalCacheSize, EnableStats, Allocator, plus the ambient
// fields (Name, Logger, PrewarmConcurrency) this module's ambient
// stack needs. Following the PoolConfig/Config[T,P] pattern from the
// PoolX/GenPool pack examples: a plain struct of exported fields,
// validated eagerly by New. There is no DefaultConfig constructor;
// unset optional fields fall back to the defaults documented below.
type Config[T any, A any] struct {
	// Name identifies this pool in logs and in the optional Prometheus
	// collector. Defaults to "pool" if empty.
	Name string

	// PoolSize is the global ring's fixed capacity. Must be a power of
	// two (spec §3 invariant 3).
	PoolSize int

	// LocalCacheSize is the per-P LIFO cache capacity. Zero is valid
	// (spec's boundary behavior: "Acquire with LocalCacheSize=0 must
	// still function via the global ring").
	LocalCacheSize int

	// EnableStats compiles in the statistics block (spec §4.6).
	EnableStats bool

	// Allocator produces fresh payloads for the slow acquire path and
	// for Prewarm.
	Allocator Allocator[T]

	// PrewarmConcurrency bounds how many goroutines Prewarm may use to
	// fill batches concurrently (SPEC_FULL §2). Defaults to 1 (fully
	// serial, matching spec §4.4 Prewarm's "batches of a small constant
	// size" description) when zero or negative.
	PrewarmConcurrency int

	// Logger receives lifecycle events: construction, Close, and a
	// warning when a Shared Handle is garbage-collected without Release.
	// Prewarm, Shrink and allocation failures are not logged. A nil
	// Logger disables logging entirely; never required for correctness.
	Logger *logrus.Logger
}

func (c Config[T, A]) validate() error {
	if c.Allocator == nil {
		return fmt.Errorf("ringpool: Config.Allocator is required")
	}
	if c.PoolSize <= 0 || c.PoolSize&(c.PoolSize-1) != 0 {
		return fmt.Errorf("ringpool: Config.PoolSize must be a power of two, got %d", c.PoolSize)
	}
	if c.LocalCacheSize < 0 {
		return fmt.Errorf("ringpool: Config.LocalCacheSize must be >= 0, got %d", c.LocalCacheSize)
	}
	return nil
}
