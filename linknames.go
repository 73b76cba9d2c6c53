package ringpool

import (
	_ "unsafe"
)

// procPin pins the current goroutine to its P, disabling preemption,
// and returns the P's id. procUnpin must be called when done. Both are
// linknamed into the runtime exactly as the teacher does (lib_golang.go)
// and as github.com/AlexsanderHamir/GenPool's getShard does; this is
// the only portable way to get a cheap, stable, small "thread id" for
// the §0 thread-to-P mapping without cgo.
//
//go:linkname procPin runtime.procPin
func procPin() int

//go:linkname procUnpin runtime.procUnpin
func procUnpin()

func runtimeProcPin() int { return procPin() }

func runtimeProcUnpin() { procUnpin() }

// ThreadID returns the id of the calling goroutine's current P. It is
// exposed for payloads that want to implement ThreadAffine without
// reaching into this package's internals.
func ThreadID() (id int) {
	id = procPin()
	procUnpin()
	return
}
