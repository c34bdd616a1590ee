// Package race provides a Pure-Go dynamic data-race detector runtime
// without a CGO dependency.
//
// This package implements a ThreadSanitizer-style shadow-memory race
// detector: every aligned application word carries a small set of
// shadow slots recording recent (thread, epoch, byte-range, write-flag)
// accesses, checked against each thread's vector clock on every access.
//
// # Quick Start
//
// Manual instrumentation:
//
//	package main
//
//	import (
//		"github.com/kolkov/racecore/race"
//		"unsafe"
//	)
//
//	var counter int
//
//	func main() {
//		race.Init()
//		defer race.Fini()
//
//		race.RaceWrite(uintptr(unsafe.Pointer(&counter)))
//		counter = 42
//	}
//
// # API Overview
//
//   - Initialization and finalization: [Init], [Fini]
//   - Memory access tracking: [RaceRead], [RaceWrite], [RaceReadRange], [RaceWriteRange]
//   - Synchronization primitives: [RaceAcquire], [RaceRelease]
//   - Mutex lifecycle: [MutexCreate], [MutexDestroy], [MutexLock], [MutexUnlock],
//     [MutexReadLock], [MutexReadUnlock], [MutexReadOrWriteUnlock]
//   - Goroutine lifecycle: [GoCreate], [GoStart], [GoEnd], [GoJoin], [GoDetach]
//
// # How It Works
//
// A build tool or hand-instrumented program inserts calls before every
// memory access and synchronization operation:
//
//	// Original code:
//	x = 42
//
//	// Instrumented code:
//	race.RaceWrite(uintptr(unsafe.Pointer(&x)))
//	x = 42
//
// Goroutine creation needs two calls, one on each side of the `go`
// statement, so the detector can record the creator-happens-before-created
// edge:
//
//	tid, uid := race.GoCreate()
//	go func() {
//		race.GoStart(tid)
//		defer race.GoEnd()
//		...
//	}()
//	race.GoJoin(uid) // if the creator will wait for it
//
// When a race is detected, a report is printed showing both conflicting
// accesses, their goroutine ids, and reconstructed, symbolized stack
// traces for each.
//
// # Configuration
//
// GORACE, in the same spirit as Go's own race detector, accepts a
// space-separated key=value string:
//
//	GORACE="halt_on_error=1 history_size=256 suppressions=/path/to/file"
//
// Only suppressions changes the detector's behavior: halt_on_error and
// history_size are parsed but Init does not act on them. If suppressions
// is unset, Init looks for .race-suppressions next to the nearest go.mod
// above the working directory.
package race
