// Package syncobj implements the Sync Object Table: a concurrent map from
// user-visible synchronization addresses (the address of a sync.Mutex,
// sync.RWMutex, channel, or any other address a caller annotates with
// Acquire/Release) to the SyncObject tracking that primitive's clock.
//
// The table is sharded to avoid a single global mutex becoming a
// bottleneck when unrelated goroutines lock unrelated mutexes
// concurrently. Each SyncObject additionally carries its own short
// critical-section spinlock, held only across that object's own
// clock Acquire/Release — never across the table shard's mutex.
package syncobj

import (
	"sync"
	"sync/atomic"

	"github.com/kolkov/racecore/internal/race/clock"
)

const numShards = 64

func shardFor(addr uintptr) int {
	// Fibonacci/golden-ratio multiplicative hash, matching the distribution
	// properties the teacher's CAS-based shadow table relies on.
	return int((uint64(addr) * 11400714819323198485) >> 58 % numShards)
}

// Kind distinguishes the flavor of synchronization primitive a SyncObject
// represents. Only Mutex is implemented; the type is kept open (a tagged
// variant, not an interface) so a future kind can be added without
// introducing virtual dispatch on the hot acquire/release path.
type Kind int

const (
	// KindMutex covers both plain mutexes and read/write mutexes; RWOrPlain
	// distinguishes the two without a second Kind value.
	KindMutex Kind = iota
)

// holder records one outstanding acquisition of a SyncObject, so that
// Unlock can later be told, implicitly, whether it was a read or write
// acquisition (see SyncObject.ReleaseFrom's wasRead result).
type holder struct {
	tid    int
	isRead bool
}

// SyncObject is the tagged variant the Sync Object Table stores per
// address. Fields below spin is guarded by spin; the clock is only ever
// touched while spin is held.
type SyncObject struct {
	Kind Kind
	Addr uintptr

	spin uint32 // CAS-based critical-section spinlock.

	RWOrPlain bool // true: reader/writer semantics; false: plain exclusive mutex.
	Recursive bool

	clock   clock.ThreadClock
	holders []holder
}

func (s *SyncObject) lockSpin() {
	for !atomic.CompareAndSwapUint32(&s.spin, 0, 1) {
		// Busy-wait: critical sections under this spinlock are a handful of
		// clock operations, never a blocking call.
	}
}

func (s *SyncObject) unlockSpin() {
	atomic.StoreUint32(&s.spin, 0)
}

// Table is a sharded address -> *SyncObject map.
type Table struct {
	global *clock.SlabAlloc
	shards [numShards]shard
}

type shard struct {
	mu   sync.Mutex
	objs map[uintptr]*SyncObject
}

// NewTable returns an empty Sync Object Table whose SyncObjects allocate
// clock chunks from global.
func NewTable(global *clock.SlabAlloc) *Table {
	t := &Table{global: global}
	for i := range t.shards {
		t.shards[i].objs = make(map[uintptr]*SyncObject)
	}
	return t
}

// Insert creates a new SyncObject for addr, replacing any existing one
// (matching MutexCreate's semantics: recreating at a live address discards
// prior happens-before history, which is correct because the program must
// have destroyed the old object first).
func (t *Table) Insert(addr uintptr, rwOrPlain bool) *SyncObject {
	sh := &t.shards[shardFor(addr)]
	obj := &SyncObject{Addr: addr, Kind: KindMutex, RWOrPlain: rwOrPlain}
	sh.mu.Lock()
	sh.objs[addr] = obj
	sh.mu.Unlock()
	return obj
}

// GetAndLockIfExists returns the SyncObject at addr with its spinlock
// already held, or nil if no object exists there yet. The caller must call
// Unlock on the returned object when done.
func (t *Table) GetAndLockIfExists(addr uintptr) *SyncObject {
	sh := &t.shards[shardFor(addr)]
	sh.mu.Lock()
	obj := sh.objs[addr]
	sh.mu.Unlock()
	if obj == nil {
		return nil
	}
	obj.lockSpin()
	return obj
}

// GetOrCreateAndLock returns the SyncObject at addr, creating one
// implicitly (rwOrPlain defaulting to false) if none exists yet — this is
// how statically-initialized primitives (a sync.Mutex used without an
// explicit MutexCreate call) get a SyncObject on first lock.
func (t *Table) GetOrCreateAndLock(addr uintptr) *SyncObject {
	sh := &t.shards[shardFor(addr)]
	sh.mu.Lock()
	obj := sh.objs[addr]
	if obj == nil {
		obj = &SyncObject{Addr: addr, Kind: KindMutex}
		sh.objs[addr] = obj
	}
	sh.mu.Unlock()
	obj.lockSpin()
	return obj
}

// GetAndRemoveIfExists removes and returns the SyncObject at addr, or nil
// if none exists (MutexDestroy on an address nobody ever locked).
func (t *Table) GetAndRemoveIfExists(addr uintptr) *SyncObject {
	sh := &t.shards[shardFor(addr)]
	sh.mu.Lock()
	obj, ok := sh.objs[addr]
	if ok {
		delete(sh.objs, addr)
	}
	sh.mu.Unlock()
	return obj
}

// Unlock releases the SyncObject's spinlock acquired by GetAndLockIfExists
// or GetOrCreateAndLock.
func (s *SyncObject) Unlock() {
	s.unlockSpin()
}

// AcquireInto absorbs s's clock into thr under s's spinlock: the locking
// thread's clock is raised to reflect everything that happened-before the
// last release of this object. Call with the object's spinlock already
// held (i.e. between GetOrCreateAndLock/GetAndLockIfExists and Unlock).
func (s *SyncObject) AcquireInto(thr *clock.ThreadClock, slab *clock.Slab, tid int, isRead bool) {
	thr.Acquire(&s.clock, slab)
	s.holders = append(s.holders, holder{tid: tid, isRead: isRead})
}

// ReleaseFrom absorbs thr's clock into s, recording that a prior holder
// (matching tid) has released. It returns false if tid was not found among
// recorded holders (user-program misuse: unlocking a mutex this thread
// never locked), in which case the clock is still released defensively.
func (s *SyncObject) ReleaseFrom(thr *clock.ThreadClock, slab *clock.Slab, tid int) (wasRead, ok bool) {
	thr.Release(&s.clock, slab)
	for i := len(s.holders) - 1; i >= 0; i-- {
		if s.holders[i].tid == tid {
			wasRead = s.holders[i].isRead
			s.holders = append(s.holders[:i], s.holders[i+1:]...)
			return wasRead, true
		}
	}
	return false, false
}

// Free returns the object's clock chunks to slab. Called once the object
// has been removed from the table (MutexDestroy); thread teardown never
// frees sync objects.
func (s *SyncObject) Free(slab *clock.Slab) {
	s.clock.Free(slab)
}
