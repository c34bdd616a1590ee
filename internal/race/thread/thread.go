// Package thread implements the Thread Registry: the state machine that
// tracks every tid's lifecycle (Invalid -> Created -> Running -> Finished
// -> Invalid, with dead contexts retained briefly for post-mortem stack
// reconstruction) and the create/start/finish/join/detach protocol that
// establishes happens-before edges between a creator and its child and
// between a finished thread and whoever joins it.
//
// "Thread" here means goroutine: MaxTid is a dense registry size, not an
// OS thread limit, and uid is whatever opaque value the caller's
// goroutine-lifecycle hook chooses to identify a goroutine across its
// create/join/detach calls (race/ uses an incrementing counter, since Go
// exposes no public goroutine id).
package thread

import (
	"sync"

	"github.com/kolkov/racecore/internal/race/clock"
	"github.com/kolkov/racecore/internal/race/trace"
)

// MaxTid bounds the dense registry. It is smaller than the full address
// space a tid's bit width could address (see clock.MaxTid / kTidBits):
// the registry is an eagerly allocated table, not sparse storage, so its
// size is chosen for memory footprint rather than to exhaust the tid
// namespace.
const MaxTid = clock.MaxTid

// DeadListSize bounds how many finished-and-joined contexts are retained
// for stack reconstruction of races that surface after a thread has died.
const DeadListSize = 128

// Status is a ThreadContext's position in its lifecycle state machine.
type Status int

const (
	Invalid Status = iota
	Created
	Running
	Finished
)

// State is the live, per-thread state exclusively owned by its thread.
// It is only ever touched by another goroutine for stack reconstruction,
// and only while the Registry's mutex is held.
type State struct {
	Tid            int
	Epoch          uint64
	FastSynchEpoch uint64
	Trace          *trace.Trace
	Clock          clock.ThreadClock
	ClockSlab      *clock.Slab
	Accesses       uint64
	Races          uint64
}

// Context is one slot of the Thread Registry.
type Context struct {
	Tid      int
	state    *State
	status   Status
	uid      uint64
	detached bool
	reuse    int

	// syncClock is this thread's exported happens-before clock: populated
	// at ThreadFinish (or by ThreadCreate's creator-to-child edge before
	// the child has even started), consumed by whoever Joins this tid.
	syncClock clock.ThreadClock
	epoch0    uint64

	// deadTrace retains the trace of a Finished context so a race reported
	// against stale events can still reconstruct its stack.
	deadTrace *trace.Trace
}

// Status reports the context's current lifecycle state.
func (c *Context) Status() Status { return c.status }

// UID reports the opaque identifier this context was created with.
func (c *Context) UID() uint64 { return c.uid }

// Registry owns every ThreadContext slot and the global clock slab pool
// every per-thread Slab ultimately draws from.
type Registry struct {
	mu       sync.Mutex
	cond     *sync.Cond
	slots    [MaxTid]Context
	deadList []*Context
	global   *clock.SlabAlloc
}

// Slot returns the fixed registry slot for tid. Every tid's Context lives
// at a stable index for the registry's lifetime; only its contents
// (status, uid, state, ...) change as the tid is created, started,
// finished, and recycled.
func (r *Registry) Slot(tid int) *Context {
	return &r.slots[tid]
}

// NewRegistry returns an empty registry backed by global.
func NewRegistry(global *clock.SlabAlloc) *Registry {
	r := &Registry{global: global}
	r.cond = sync.NewCond(&r.mu)
	for i := range r.slots {
		r.slots[i].Tid = i
	}
	return r
}

// dieDefault is called when the registry cannot satisfy an invariant it
// must satisfy (no free slot) and ThreadCreate was given a nil die; callers
// plug in their own fatal-abort collaborator through that argument. It
// panics.
var dieDefault = func(msg string) { panic(msg) }

// ThreadCreate allocates the smallest Invalid slot, records uid/detached,
// and if parent is non-nil establishes a creator-happens-before-created
// edge by releasing parent's clock into the new context's syncClock.
func (r *Registry) ThreadCreate(parent *State, uid uint64, detached bool, die func(string)) *Context {
	if die == nil {
		die = dieDefault
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var ctx *Context
	for i := range r.slots {
		if r.slots[i].status == Invalid {
			ctx = &r.slots[i]
			break
		}
	}
	if ctx == nil {
		die("thread: no free registry slot (kMaxTid exhausted)")
		return nil
	}

	ctx.status = Created
	ctx.uid = uid
	ctx.detached = detached
	ctx.reuse++
	ctx.deadTrace = nil

	if parent != nil {
		ctx.epoch0 = parent.Epoch
		parent.Clock.Set(parent.Tid, parent.Epoch, parent.ClockSlab)
		parent.FastSynchEpoch = parent.Epoch
		parent.Clock.Release(&ctx.syncClock, parent.ClockSlab)
	}
	return ctx
}

// ThreadStart transitions ctx Created -> Running on the new thread itself,
// allocating its ThreadState, trace, and clock slab, and absorbing the
// creator's happens-before edge recorded by ThreadCreate.
func (r *Registry) ThreadStart(ctx *Context) *State {
	slab := clock.NewSlab(r.global)
	st := &State{
		Tid:       ctx.Tid,
		Epoch:     1,
		Trace:     trace.New(),
		ClockSlab: slab,
	}
	st.Clock.Set(ctx.Tid, 1, slab)

	r.mu.Lock()
	ctx.status = Running
	ctx.state = st
	st.Clock.Acquire(&ctx.syncClock, slab)
	r.mu.Unlock()

	return st
}

// ThreadFinish ends a thread's life. A detached thread is freed
// immediately; otherwise the thread moves to Finished and its context
// (with its trace retained) enters the bounded dead list for later Join
// or post-mortem stack reconstruction.
func (r *Registry) ThreadFinish(ctx *Context, st *State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctx.detached {
		ctx.status = Invalid
		ctx.state = nil
		ctx.syncClock.Free(st.ClockSlab)
		st.ClockSlab.Drain()
		r.cond.Broadcast()
		return
	}

	st.Clock.Set(ctx.Tid, st.Epoch, st.ClockSlab)
	st.FastSynchEpoch = st.Epoch
	st.Clock.Release(&ctx.syncClock, st.ClockSlab)

	ctx.status = Finished
	ctx.deadTrace = st.Trace
	ctx.state = nil
	st.ClockSlab.Drain()

	r.deadList = append(r.deadList, ctx)
	if len(r.deadList) > DeadListSize {
		evicted := r.deadList[0]
		r.deadList = r.deadList[1:]
		r.freeLocked(evicted)
	}
	r.cond.Broadcast()
}

// freeLocked transitions a Finished or Created context to Invalid,
// releasing its syncClock. Caller must hold r.mu.
func (r *Registry) freeLocked(ctx *Context) {
	ctx.status = Invalid
	ctx.syncClock.Free(r.globalSlab())
	ctx.deadTrace = nil
}

// globalSlab returns a throwaway Slab for releasing chunks with no
// thread-local cache to amortize through (the registry itself has no
// owning thread).
func (r *Registry) globalSlab() *clock.Slab {
	return clock.NewSlab(r.global)
}

// findByUID scans the registry for a live (Running or Finished) context
// with the given uid. Caller must hold r.mu.
func (r *Registry) findByUID(uid uint64) *Context {
	for i := range r.slots {
		c := &r.slots[i]
		if c.uid == uid && (c.status == Running || c.status == Finished) {
			return c
		}
	}
	return nil
}

// ThreadJoin blocks until the uid'd thread finishes, then absorbs its
// happens-before clock into self and frees its context. Joining an
// unknown or already-detached uid is a user-program misuse: it is logged
// by the caller via warn and otherwise a no-op.
func (r *Registry) ThreadJoin(self *State, uid uint64, warn func(string)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := r.findByUID(uid)
	if ctx == nil {
		if warn != nil {
			warn("thread: join of unknown or already-joined uid")
		}
		return
	}
	if ctx.detached {
		if warn != nil {
			warn("thread: join of a detached thread")
		}
		return
	}
	for ctx.status == Running {
		r.cond.Wait()
	}
	if ctx.status != Finished {
		return
	}
	self.Clock.Acquire(&ctx.syncClock, self.ClockSlab)
	r.removeFromDeadList(ctx)
	r.freeLocked(ctx)
}

// ThreadDetach marks uid's context detached, freeing it immediately if it
// has already finished. Detaching an unknown uid is a user-program misuse.
func (r *Registry) ThreadDetach(uid uint64, warn func(string)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := r.findByUID(uid)
	if ctx == nil {
		if warn != nil {
			warn("thread: detach of unknown uid")
		}
		return
	}
	ctx.detached = true
	if ctx.status == Finished {
		r.removeFromDeadList(ctx)
		r.freeLocked(ctx)
	}
}

func (r *Registry) removeFromDeadList(ctx *Context) {
	for i, c := range r.deadList {
		if c == ctx {
			r.deadList = append(r.deadList[:i], r.deadList[i+1:]...)
			return
		}
	}
}

// ReconstructStack reconstructs the call stack for tid at epoch, checking
// both the live thread (if running) and the dead list for a retained
// trace. Returns nil if no trace is available or the relevant partition
// has rotated away.
func (r *Registry) ReconstructStack(tid int, epoch uint64) []uintptr {
	r.mu.Lock()
	ctx := &r.slots[tid]
	var tr *trace.Trace
	if ctx.status == Running && ctx.state != nil {
		tr = ctx.state.Trace
	} else if ctx.deadTrace != nil {
		tr = ctx.deadTrace
	}
	r.mu.Unlock()

	if tr == nil {
		return nil
	}
	return tr.Reconstruct(epoch)
}
