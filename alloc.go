package ringpool

// Allocator is the external collaborator from spec §1: something
// capable of producing a fresh T and, optionally, tearing one down.
// New reports ok=false on failure instead of relying on a nil/zero
// check against the generic T (which cannot portably distinguish "no
// value" from a legitimate zero-valued struct payload). Go is garbage
// collected, so there is no explicit free(); "deallocate" (spec §4.1)
// means invoking Destroy (if the payload wants to release an external
// resource) and then dropping the last reference.
type Allocator[T any] interface {
	// New returns a freshly constructed T, or ok=false on failure
	// (spec's AllocationFailed).
	New() (T, bool)
}

// AllocatorFunc adapts a plain function to Allocator, mirroring the
// Allocator[T] func type used throughout the retrieved pool examples
// (GenPool, PoolX) instead of a single-method interface literal at
// every call site.
type AllocatorFunc[T any] func() (T, bool)

// New implements Allocator.
func (f AllocatorFunc[T]) New() (T, bool) { return f() }

// allocateAndConstruct implements spec §4.1 AllocateAndConstruct: calls
// the allocator, swallows any panic from it, and tags thread affinity
// on success. A panicking or failing allocator counts as failure.
func allocateAndConstruct[T any](alloc Allocator[T], pid int) (out T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	out, ok = alloc.New()
	if !ok {
		var zero T
		return zero, false
	}
	tagAffinity(out, pid)
	return out, true
}

// constructWith implements spec §4.1 ConstructWith: allocate, then run
// the Build/Reset capability with args if present, else leave the
// freshly allocated value untouched. This is the one path in the core
// that is allowed to propagate a panic from construction, per spec
// §4.1 and §7 ("Construction exception on slow-path acquire").
func constructWith[T any, A any](alloc Allocator[T], args A, pid int) (T, error) {
	v, ok := alloc.New()
	if !ok {
		var zero T
		return zero, ErrAllocationFailed
	}
	tagAffinity(v, pid)
	if b, ok := any(v).(Builder[A]); ok {
		b.Build(args) // allowed to panic; propagates to the caller
		return v, nil
	}
	if r, ok := any(v).(Resetter[A]); ok {
		r.Reset(args) // allowed to panic; propagates to the caller
		return v, nil
	}
	return v, nil
}

// destroyAndDeallocate implements spec §4.1 DestroyAndDeallocate:
// invoke the payload's Destroy capability (swallowing any panic), then
// let it go out of scope. This is the ONLY teardown path used anywhere
// in the engine (prewarm failure, release-into-full-ring, shrink, ring
// drain, cache rescue failure) -- resolving the spec's Open Question
// about two release-on-return variants in favor of always routing
// through this single function.
func destroyAndDeallocate[T any](v T) {
	defer func() { recover() }()
	if d, ok := any(v).(Destroyer); ok {
		d.Destroy()
	}
}
