package ringpool

import "errors"

// ErrShutdown is returned by Acquire once the owning pool has begun
// shutting down. No counters are mutated when this is returned.
var ErrShutdown = errors.New("ringpool: pool is shut down")

// ErrAllocationFailed is returned by Acquire when the slow path's
// Allocator.New call failed and neither the per-P cache nor the global
// ring held a free slot.
var ErrAllocationFailed = errors.New("ringpool: allocation failed")
