// Package race provides the public API for the Pure-Go race detector
// core.
//
// See doc.go for detailed documentation and examples.
package race

import (
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/kolkov/racecore/internal/race/collab"
	"github.com/kolkov/racecore/internal/race/engine"
)

var (
	ctx      *engine.Context
	initOnce sync.Once

	goids sync.Map // int64 goroutine id -> int tid, populated by GoStart.

	mainTid int

	enabled atomic.Bool
)

// Init initializes the race detector runtime and registers the calling
// goroutine as the root thread. Init is safe to call multiple times;
// subsequent calls are no-ops.
//
//	func main() {
//		race.Init()
//		defer race.Fini()
//		// ... rest of program
//	}
func Init() {
	initOnce.Do(func() {
		cfg := parseRuntimeConfig(os.Getenv("GORACE"))
		suppressionsPath := cfg.SuppressionsFile
		if suppressionsPath == "" {
			suppressionsPath = defaultSuppressionsFile()
		}

		suppressor := collab.NewLineSuppressor()
		if suppressionsPath != "" {
			_ = suppressor.LoadFile(suppressionsPath)
		}

		ectx := engine.NewContext(engine.Config{
			Projection: collab.NewMapShadowProjection(),
			Symbolizer: collab.RuntimeSymbolizer{},
			Suppressor: suppressor,
			Printer:    collab.NewTextPrinter(nil),
			Die:        collab.StderrDie,
		})

		tid, _ := ectx.GoCreate(-1, false)
		ectx.GoStart(tid)
		mainTid = tid
		goids.Store(goroutineID(), tid)

		ctx = ectx
		enabled.Store(true)
	})
}

// Fini finalizes the race detector. Should be deferred from main after a
// call to Init.
func Fini() {
	if !enabled.Load() {
		return
	}
	ctx.GoEnd(mainTid)
	ctx.Finalize()
	enabled.Store(false)
}

func currentTid() int {
	v, ok := goids.Load(goroutineID())
	if !ok {
		// A goroutine that never called GoStart is, from the detector's
		// point of view, attributed to whichever goroutine called Init —
		// instrumenting every `go` statement with GoCreate/GoStart is the
		// caller's responsibility.
		return mainTid
	}
	return v.(int)
}

// callerPC returns the program counter of RaceRead/RaceWrite's caller, for
// use as the Mop event's pc (so a reconstructed stack's leaf frame points
// at the instrumented line, not at this package).
func callerPC() uintptr {
	var pcs [1]uintptr
	n := runtime.Callers(3, pcs[:])
	if n == 0 {
		return 0
	}
	return pcs[0]
}

// GoCreate records that the calling goroutine is about to start a new one,
// returning the (tid, uid) pair the new goroutine must pass to GoStart and
// that the creator (or anyone) must later pass to GoJoin/GoDetach to
// observe its happens-before edge.
//
//	tid, uid := race.GoCreate()
//	go func() {
//		race.GoStart(tid)
//		defer race.GoEnd()
//		...
//	}()
func GoCreate() (tid int, uid uint64) {
	if !enabled.Load() {
		return 0, 0
	}
	return ctx.GoCreate(currentTid(), false)
}

// GoStart registers the calling goroutine as tid, absorbing the
// happens-before edge GoCreate recorded for it.
func GoStart(tid int) {
	if !enabled.Load() {
		return
	}
	ctx.GoStart(tid)
	goids.Store(goroutineID(), tid)
}

// GoEnd ends the calling goroutine's life.
func GoEnd() {
	if !enabled.Load() {
		return
	}
	tid := currentTid()
	ctx.GoEnd(tid)
	goids.Delete(goroutineID())
}

// GoJoin blocks until uid's goroutine finishes, absorbing its
// happens-before clock into the calling goroutine.
func GoJoin(uid uint64) {
	if !enabled.Load() {
		return
	}
	ctx.GoJoin(currentTid(), uid)
}

// GoDetach marks uid's goroutine detached: no one will ever GoJoin it.
func GoDetach(uid uint64) {
	if !enabled.Load() {
		return
	}
	ctx.GoDetach(uid)
}

// RaceRead records a memory read operation at the given address.
//
// This function is automatically inserted by an instrumentation tool
// before each memory read operation. Manual calls are typically not
// needed.
//
//nolint:revive // RaceRead naming matches Go's official race detector API
func RaceRead(addr uintptr) {
	if !enabled.Load() {
		return
	}
	ctx.MemoryAccess(currentTid(), callerPC(), addr, 8, false)
}

// RaceWrite records a memory write operation at the given address.
//
//nolint:revive // RaceWrite naming matches Go's official race detector API
func RaceWrite(addr uintptr) {
	if !enabled.Load() {
		return
	}
	ctx.MemoryAccess(currentTid(), callerPC(), addr, 8, true)
}

// RaceReadRange records a read of size bytes starting at addr, splitting
// it into aligned word-sized checks.
func RaceReadRange(addr uintptr, size int) {
	if !enabled.Load() {
		return
	}
	ctx.MemoryAccessRange(currentTid(), callerPC(), addr, size, false)
}

// RaceWriteRange records a write of size bytes starting at addr,
// splitting it into aligned word-sized checks.
func RaceWriteRange(addr uintptr, size int) {
	if !enabled.Load() {
		return
	}
	ctx.MemoryAccessRange(currentTid(), callerPC(), addr, size, true)
}

// RaceAcquire records the acquisition of a synchronization object at addr.
//
// This establishes a happens-before relationship: all memory operations
// before a corresponding RaceRelease(addr) are visible to operations
// after this call. Typical uses: sync.Mutex.Lock, channel receive,
// sync.WaitGroup.Wait.
//
//nolint:revive // RaceAcquire naming matches Go's official race detector API
func RaceAcquire(addr uintptr) {
	if !enabled.Load() {
		return
	}
	ctx.Acquire(currentTid(), addr)
}

// RaceRelease records the release of a synchronization object at addr.
// Typical uses: sync.Mutex.Unlock, channel send, sync.WaitGroup.Done.
//
//nolint:revive // RaceRelease naming matches Go's official race detector API
func RaceRelease(addr uintptr) {
	if !enabled.Load() {
		return
	}
	ctx.Release(currentTid(), addr)
}

// MutexCreate explicitly creates a sync object at addr. rw marks a
// reader/writer mutex, enabling MutexReadLock/MutexReadUnlock there.
func MutexCreate(addr uintptr, rw bool) {
	if !enabled.Load() {
		return
	}
	ctx.MutexCreate(addr, rw)
}

// MutexDestroy destroys the sync object at addr.
func MutexDestroy(addr uintptr) {
	if !enabled.Load() {
		return
	}
	ctx.MutexDestroy(currentTid(), addr)
}

// MutexLock records acquisition of a plain or write lock on addr.
func MutexLock(addr uintptr) {
	if !enabled.Load() {
		return
	}
	ctx.MutexLock(currentTid(), addr)
}

// MutexUnlock records release of a plain or write lock on addr.
func MutexUnlock(addr uintptr) {
	if !enabled.Load() {
		return
	}
	ctx.MutexUnlock(currentTid(), addr)
}

// MutexReadLock records acquisition of a read lock on addr.
func MutexReadLock(addr uintptr) {
	if !enabled.Load() {
		return
	}
	ctx.MutexReadLock(currentTid(), addr)
}

// MutexReadUnlock records release of a read lock on addr.
func MutexReadUnlock(addr uintptr) {
	if !enabled.Load() {
		return
	}
	ctx.MutexReadUnlock(currentTid(), addr)
}

// MutexReadOrWriteUnlock releases addr without the caller needing to know
// whether it was held for reading or writing.
func MutexReadOrWriteUnlock(addr uintptr) {
	if !enabled.Load() {
		return
	}
	ctx.MutexReadOrWriteUnlock(currentTid(), addr)
}
