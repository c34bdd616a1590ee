// Package engine wires the Vector Clock, Sync Object Table, Event Trace,
// Thread Registry, Shadow Memory Engine, and Race Reporter together and
// exposes exactly the operations instrumentation calls: memory accesses,
// function entry/exit, mutex lock/unlock, raw acquire/release, and thread
// lifecycle hooks.
//
// Context is the single piece of explicit process-wide state this module
// needs. It has an explicit Initialize/Finalize lifecycle rather than
// being built by an implicit package-level init(): a caller constructs
// one Context, drives every instrumentation hook through it, and calls
// Finalize once after the last thread has exited. Finalize is idempotent.
package engine

import (
	"sync"
	"sync/atomic"

	"github.com/kolkov/racecore/internal/race/clock"
	"github.com/kolkov/racecore/internal/race/report"
	"github.com/kolkov/racecore/internal/race/shadow"
	"github.com/kolkov/racecore/internal/race/syncobj"
	"github.com/kolkov/racecore/internal/race/thread"
	"github.com/kolkov/racecore/internal/race/trace"
)

// Die aborts the process. It is injected so a caller controls how a
// fatal, unrecoverable internal-invariant violation is surfaced; the
// default implementation panics. A Die implementation must never return —
// Context always panics immediately after calling it regardless, so a
// caller that returns from Die does not leave the engine in a half-dead
// state.
type Die func(msg string)

// Warn reports a user-program misuse (join of an unknown uid, unlock of
// an unowned mutex) that the caller should log, without aborting.
type Warn func(msg string)

// Context owns every piece of process-wide detector state.
type Context struct {
	globalSlab *clock.SlabAlloc
	syncTable  *syncobj.Table
	registry   *thread.Registry
	reporter   *report.Reporter
	projection shadow.Projection

	die  Die
	warn Warn

	mu       sync.Mutex
	threads  map[int]*threadHandle
	nextUID  atomic.Uint64
	finalize sync.Once
}

type threadHandle struct {
	ctx   *thread.Context
	state *thread.State
}

// Config bundles the collaborators a Context needs beyond the ones it
// owns outright.
type Config struct {
	Projection shadow.Projection
	Symbolizer report.Symbolizer
	Suppressor report.Suppressor
	Printer    report.Printer
	Die        Die
	Warn       Warn
}

// NewContext constructs a fresh Context. It does not register any thread;
// the caller must call GoStart for the first (main) goroutine itself.
func NewContext(cfg Config) *Context {
	global := clock.NewSlabAlloc()
	registry := thread.NewRegistry(global)
	c := &Context{
		globalSlab: global,
		syncTable:  syncobj.NewTable(global),
		registry:   registry,
		projection: cfg.Projection,
		die:        cfg.Die,
		warn:       cfg.Warn,
		threads:    make(map[int]*threadHandle),
	}
	c.reporter = report.New(registry, cfg.Symbolizer, cfg.Suppressor, cfg.Printer)
	if c.die == nil {
		c.die = func(msg string) { panic(msg) }
	}
	if c.warn == nil {
		c.warn = func(string) {}
	}
	return c
}

// Finalize ends the Context's lifecycle. Safe to call once after the last
// thread has exited; subsequent calls are no-ops. It releases nothing
// itself and does not disable the Context: operations made after it
// behave exactly as before.
func (c *Context) Finalize() {
	c.finalize.Do(func() {})
}

func (c *Context) fatal(msg string) {
	c.die(msg)
	panic(msg) // Die must not return control here; this guarantees divergence even if it does.
}

// threadState resolves the caller's tid to its live State, or fatally
// aborts — every hot-path entry point requires the caller to have already
// called GoStart for this thread.
func (c *Context) threadState(tid int) *thread.State {
	c.mu.Lock()
	h := c.threads[tid]
	c.mu.Unlock()
	if h == nil || h.state == nil {
		c.fatal("engine: memory access from unregistered thread")
	}
	return h.state
}

// NewUID allocates a fresh opaque thread identifier for ThreadCreate/Join/
// Detach bookkeeping.
func (c *Context) NewUID() uint64 {
	return c.nextUID.Add(1)
}

// GoCreate records that the calling thread (parentTid) is about to start a
// new goroutine, establishing a creator-happens-before-created edge. It
// returns the tid and uid the new goroutine must pass to GoStart and that
// the creator (or anyone) must later pass to GoJoin/GoDetach.
func (c *Context) GoCreate(parentTid int, detached bool) (tid int, uid uint64) {
	uid = c.NewUID()
	var parentState *thread.State
	if h := c.threadGet(parentTid); h != nil {
		parentState = h.state
	}
	ctx := c.registry.ThreadCreate(parentState, uid, detached, c.fatal)
	return ctx.Tid, uid
}

func (c *Context) threadGet(tid int) *threadHandle {
	c.mu.Lock()
	h := c.threads[tid]
	c.mu.Unlock()
	return h
}

// GoStart registers the calling goroutine as tid, completing the protocol
// a prior GoCreate began for it. The process's first goroutine (which has
// no parent edge to absorb) calls GoCreate(-1, false) to obtain tid 0
// before calling GoStart.
func (c *Context) GoStart(tid int) {
	ctx := c.registry.Slot(tid)
	state := c.registry.ThreadStart(ctx)
	c.mu.Lock()
	c.threads[tid] = &threadHandle{ctx: ctx, state: state}
	c.mu.Unlock()
}

// GoEnd ends the calling goroutine's life (tid). Whether it was created
// or later marked detached is read from its registry context.
func (c *Context) GoEnd(tid int) {
	h := c.threadGet(tid)
	if h == nil {
		return
	}
	c.registry.ThreadFinish(h.ctx, h.state)
	c.mu.Lock()
	delete(c.threads, tid)
	c.mu.Unlock()
}

// GoJoin blocks the calling thread (tid) until uid's goroutine finishes,
// absorbing its happens-before clock.
func (c *Context) GoJoin(tid int, uid uint64) {
	h := c.threadGet(tid)
	if h == nil {
		c.fatal("engine: join from unregistered thread")
	}
	c.registry.ThreadJoin(h.state, uid, c.warn)
}

// GoDetach marks uid's goroutine detached.
func (c *Context) GoDetach(uid uint64) {
	c.registry.ThreadDetach(uid, c.warn)
}

// MemoryAccess is the hot-path entry point for a single aligned access of
// 1, 2, 4, or 8 bytes.
func (c *Context) MemoryAccess(tid int, pc, addr uintptr, size int, isWrite bool) {
	st := c.threadState(tid)
	shadow.Access(st, c.projection, c.reporter, pc, addr, size, isWrite)
}

// MemoryAccessRange splits an access of arbitrary size into aligned
// word-sized MemoryAccess calls, as required for any size outside
// {1,2,4,8} or any access crossing an 8-byte boundary.
func (c *Context) MemoryAccessRange(tid int, pc, addr uintptr, size int, isWrite bool) {
	for size > 0 {
		aligned := addr &^ 7
		spaceInWord := 8 - int(addr-aligned)
		chunk := size
		if chunk > spaceInWord {
			chunk = spaceInWord
		}
		switch {
		case chunk >= 8:
			chunk = 8
		case chunk >= 4:
			chunk = 4
		case chunk >= 2:
			chunk = 2
		default:
			chunk = 1
		}
		c.MemoryAccess(tid, pc, addr, chunk, isWrite)
		addr += uintptr(chunk)
		size -= chunk
	}
}

// FuncEntry records entry into a function at pc.
func (c *Context) FuncEntry(tid int, pc uintptr) {
	st := c.threadState(tid)
	st.Epoch++
	st.Trace.Append(st.Epoch, trace.Pack(trace.EventFuncEnter, pc))
}

// FuncExit records return from the innermost entered function.
func (c *Context) FuncExit(tid int) {
	st := c.threadState(tid)
	st.Epoch++
	st.Trace.Append(st.Epoch, trace.Pack(trace.EventFuncExit, 0))
}

// MutexCreate explicitly creates a sync object at addr. rw marks a
// reader/writer mutex (so ReadLock/ReadUnlock are meaningful there).
func (c *Context) MutexCreate(addr uintptr, rw bool) {
	c.syncTable.Insert(addr, rw)
}

// MutexDestroy destroys the sync object at addr, if one exists.
func (c *Context) MutexDestroy(tid int, addr uintptr) {
	obj := c.syncTable.GetAndRemoveIfExists(addr)
	if obj == nil {
		return
	}
	st := c.threadState(tid)
	obj.Free(st.ClockSlab)
}

func (c *Context) lockCommon(tid int, addr uintptr, isRead bool, eventType trace.EventType) {
	st := c.threadState(tid)
	st.Epoch++
	st.Trace.Append(st.Epoch, trace.Pack(eventType, 0))

	obj := c.syncTable.GetOrCreateAndLock(addr)
	obj.AcquireInto(&st.Clock, st.ClockSlab, tid, isRead)
	obj.Unlock()
	st.FastSynchEpoch = st.Epoch
}

func (c *Context) unlockCommon(tid int, addr uintptr, eventType trace.EventType) {
	st := c.threadState(tid)
	st.Epoch++
	st.Trace.Append(st.Epoch, trace.Pack(eventType, 0))

	obj := c.syncTable.GetAndLockIfExists(addr)
	if obj == nil {
		c.warn("engine: unlock of unknown mutex")
		return
	}
	st.Clock.Set(st.Tid, st.Epoch, st.ClockSlab)
	_, ok := obj.ReleaseFrom(&st.Clock, st.ClockSlab, tid)
	obj.Unlock()
	if !ok {
		c.warn("engine: unlock by a thread that never locked this mutex")
	}
	st.FastSynchEpoch = st.Epoch
}

// releaseCommon backs the raw Release annotation: unlike unlockCommon, it
// implicitly creates the SyncObject at addr (mirroring lockCommon's
// GetOrCreateAndLock) instead of warning and dropping the clock when none
// exists yet. A release with no prior acquire on addr is the expected
// common case here — a channel send before any receive, a
// sync.WaitGroup.Done before Wait — not user-program misuse, so there is
// nothing to warn about.
func (c *Context) releaseCommon(tid int, addr uintptr, eventType trace.EventType) {
	st := c.threadState(tid)
	st.Epoch++
	st.Trace.Append(st.Epoch, trace.Pack(eventType, 0))

	obj := c.syncTable.GetOrCreateAndLock(addr)
	st.Clock.Set(st.Tid, st.Epoch, st.ClockSlab)
	obj.ReleaseFrom(&st.Clock, st.ClockSlab, tid)
	obj.Unlock()
	st.FastSynchEpoch = st.Epoch
}

// MutexLock records acquisition of addr as a plain or write lock.
func (c *Context) MutexLock(tid int, addr uintptr) {
	c.lockCommon(tid, addr, false, trace.EventLock)
}

// MutexUnlock records release of a plain or write lock on addr.
func (c *Context) MutexUnlock(tid int, addr uintptr) {
	c.unlockCommon(tid, addr, trace.EventUnlock)
}

// MutexReadLock records acquisition of addr as a read lock.
func (c *Context) MutexReadLock(tid int, addr uintptr) {
	c.lockCommon(tid, addr, true, trace.EventRLock)
}

// MutexReadUnlock records release of a read lock on addr.
func (c *Context) MutexReadUnlock(tid int, addr uintptr) {
	c.unlockCommon(tid, addr, trace.EventRUnlock)
}

// MutexReadOrWriteUnlock releases addr without the caller having to know
// whether it was held for reading or writing: it replays whichever kind
// of acquisition this thread actually recorded. Use this when the call
// site cannot distinguish sync.RWMutex.Unlock from RUnlock (e.g. a defer
// over an interface value).
func (c *Context) MutexReadOrWriteUnlock(tid int, addr uintptr) {
	st := c.threadState(tid)
	st.Epoch++

	obj := c.syncTable.GetAndLockIfExists(addr)
	if obj == nil {
		c.warn("engine: unlock of unknown mutex")
		return
	}
	st.Clock.Set(st.Tid, st.Epoch, st.ClockSlab)
	wasRead, ok := obj.ReleaseFrom(&st.Clock, st.ClockSlab, tid)
	obj.Unlock()
	if !ok {
		c.warn("engine: unlock by a thread that never locked this mutex")
	}
	if wasRead {
		st.Trace.Append(st.Epoch, trace.Pack(trace.EventRUnlock, 0))
	} else {
		st.Trace.Append(st.Epoch, trace.Pack(trace.EventUnlock, 0))
	}
	st.FastSynchEpoch = st.Epoch
}

// Acquire establishes a happens-before edge at an arbitrary address not
// necessarily backed by a SyncObject mutex (e.g. a channel receive): the
// calling thread's clock absorbs whatever was last Released at addr.
func (c *Context) Acquire(tid int, addr uintptr) {
	c.lockCommon(tid, addr, false, trace.EventLock)
}

// Release publishes the calling thread's clock at addr for a future
// Acquire to absorb (e.g. a channel send). Unlike MutexUnlock, Release
// implicitly creates addr's SyncObject if this is the first annotation
// ever seen there, so a Release with no preceding Acquire on this thread
// still publishes a happens-before edge instead of being dropped.
func (c *Context) Release(tid int, addr uintptr) {
	c.releaseCommon(tid, addr, trace.EventUnlock)
}
