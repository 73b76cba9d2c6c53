package ringpool

// Resetter is the optional "reset" capability (spec §3, §4.4.1). A
// payload that implements it is reinitialized for reuse by calling
// Reset with the arguments passed to Acquire; Resetter takes priority
// over every other recycling path.
type Resetter[A any] interface {
	Reset(A)
}

// Builder is the optional "build" capability: post-default-construction
// initialization. When a recycled slot is handed out again it is
// consulted only if the payload has no Resetter; on the slow allocation
// path (constructWith) it takes priority over Resetter.
type Builder[A any] interface {
	Build(A)
}

// Destroyer is the optional pre-return cleanup capability, consulted
// on release when a payload has no Resetter (Builder plays no part
// there), and whenever a payload is permanently destroyed by the
// allocation adapter.
type Destroyer interface {
	Destroy()
}

// ThreadAffine is the optional affinity-tag capability (spec GLOSSARY
// "affinity tag"). A payload exposing it records which thread (P, see
// SPEC_FULL §0) last initialized it, which release uses to classify a
// same-thread vs cross-thread return without any pool-level bookkeeping.
type ThreadAffine interface {
	ThreadID() int
	SetThreadID(id int)
}

// tagAffinity stamps v with the current thread id if it exposes
// ThreadAffine. No-op otherwise.
func tagAffinity[T any](v T, pid int) {
	if a, ok := any(v).(ThreadAffine); ok {
		a.SetThreadID(pid)
	}
}

// sameThread reports whether v's affinity tag matches pid. Payloads
// without the capability are always treated as same-thread (spec
// §4.4 Release step 2).
func sameThread[T any](v T, pid int) bool {
	a, ok := any(v).(ThreadAffine)
	if !ok {
		return true
	}
	return a.ThreadID() == pid
}

// constructOrReset implements spec §4.4.1 for a slot recycled from the
// cache or ring: retag affinity for the acquiring thread (spec §8 P5 —
// a slot handed across threads via the ring, or rescued into another
// pool's cache, must report the new thread as soon as it is handed
// back out), then prefer Reset, else Build, else leave the payload as
// is (a recycled T from this pool is always already a valid, if stale,
// T — there is no separate destroy-then-reconstruct step available in
// a GC'd language, see SPEC_FULL §0).
func constructOrReset[T any, A any](v T, args A, pid int) (out T) {
	tagAffinity(v, pid)
	out = v
	defer func() {
		// Swallow any panic from Reset/Build, as the spec requires
		// reset/destroy exceptions to never propagate (§4.4, §7).
		if r := recover(); r != nil {
			out = v
		}
	}()
	if r, ok := any(v).(Resetter[A]); ok {
		r.Reset(args)
		return v
	}
	if b, ok := any(v).(Builder[A]); ok {
		b.Build(args)
		return v
	}
	return v
}

// runCleanup implements the release-path cleanup order from spec §4.4
// step 3: prefer Reset (with the zero value of A, since release never
// carries fresh arguments), else Destroy, else nothing.
func runCleanup[T any, A any](v T) {
	defer func() {
		recover() // reset/destroy exceptions are swallowed (spec §7)
	}()
	var zero A
	if r, ok := any(v).(Resetter[A]); ok {
		r.Reset(zero)
		return
	}
	if d, ok := any(v).(Destroyer); ok {
		d.Destroy()
	}
}
