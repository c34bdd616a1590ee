// Package clock implements per-thread vector clocks used for happens-before
// comparisons.
//
// Unlike a flat fixed-size array, a ThreadClock stores its components in
// fixed-size chunks allocated on demand from a process-wide SlabAlloc. A
// clock that has only ever touched a handful of low tids keeps a footprint
// proportional to the highest tid it has touched, not to kMaxTid.
//
// Design (ThreadSanitizer chunked-clock approach):
//   - chunkSize components per chunk (64 epochs, 512 bytes per chunk).
//   - Chunk pointers grow lazily in ThreadClock.chunks.
//   - Chunks are recycled through a per-thread Slab cache first, falling
//     back to the global SlabAlloc free list only when the local cache is
//     empty or overflowing.
//
// Thread Safety: a ThreadClock is owned by exactly one goroutine (or by a
// SyncObject protected by its own spinlock) and is never accessed
// concurrently without external synchronization. Get/Set/Acquire/Release
// assume the caller already holds whatever lock protects this clock.
package clock

import "sync"

const (
	// chunkSize is the number of tid components stored per chunk.
	chunkSize = 64

	// MaxTid bounds the dense tid space a clock can address. It matches
	// the Thread Registry's kMaxTid (see internal/race/thread).
	MaxTid = 8192

	numChunks = MaxTid / chunkSize
)

// chunk holds chunkSize clock components.
type chunk [chunkSize]uint64

// SlabAlloc is the process-wide free list of clock chunks. Threads keep a
// small local cache (Slab) to avoid touching this lock on every allocation;
// the global pool is only consulted when a thread's local cache is empty
// (borrow) or has grown past its cap (return the overflow here).
type SlabAlloc struct {
	mu   sync.Mutex
	free []*chunk
}

// NewSlabAlloc returns an empty process-wide chunk pool.
func NewSlabAlloc() *SlabAlloc {
	return &SlabAlloc{}
}

func (s *SlabAlloc) get() *chunk {
	s.mu.Lock()
	n := len(s.free)
	if n == 0 {
		s.mu.Unlock()
		return &chunk{}
	}
	c := s.free[n-1]
	s.free = s.free[:n-1]
	s.mu.Unlock()
	*c = chunk{}
	return c
}

func (s *SlabAlloc) put(c *chunk) {
	s.mu.Lock()
	s.free = append(s.free, c)
	s.mu.Unlock()
}

// localCap bounds how many spare chunks a per-thread Slab keeps before
// returning the overflow to the global SlabAlloc.
const localCap = 16

// Slab is a per-thread cache of free chunks backed by a process-wide
// SlabAlloc. It is not safe for concurrent use; each live thread owns
// exactly one.
type Slab struct {
	global *SlabAlloc
	free   []*chunk
}

// NewSlab creates a thread-local chunk cache backed by global.
func NewSlab(global *SlabAlloc) *Slab {
	return &Slab{global: global}
}

func (s *Slab) alloc() *chunk {
	if n := len(s.free); n > 0 {
		c := s.free[n-1]
		s.free = s.free[:n-1]
		return c
	}
	return s.global.get()
}

func (s *Slab) recycle(c *chunk) {
	if len(s.free) >= localCap {
		s.global.put(c)
		return
	}
	*c = chunk{}
	s.free = append(s.free, c)
}

// Drain returns every chunk held locally back to the global pool. Called
// when a thread dies and its slab cache is no longer needed.
func (s *Slab) Drain() {
	for _, c := range s.free {
		s.global.put(c)
	}
	s.free = nil
}

// ThreadClock is a mapping from tid to epoch, stored in chunked form.
type ThreadClock struct {
	chunks []*chunk
}

// Get returns the epoch recorded for tid, or 0 if never set.
//
//go:nosplit
func (tc *ThreadClock) Get(tid int) uint64 {
	idx := tid / chunkSize
	if idx >= len(tc.chunks) {
		return 0
	}
	c := tc.chunks[idx]
	if c == nil {
		return 0
	}
	return c[tid%chunkSize]
}

// Set overwrites the component for tid. The caller must ensure e is not
// smaller than the value already stored for tid; Set does not check this
// itself since the hot path already knows it holds the larger value.
//
// Note: This is NOT marked //go:nosplit because ensure can allocate (a
// fresh chunk, or a grown chunks slice) the first time tid's chunk index
// is touched.
func (tc *ThreadClock) Set(tid int, e uint64, slab *Slab) {
	idx := tid / chunkSize
	tc.ensure(idx, slab)
	tc.chunks[idx][tid%chunkSize] = e
}

func (tc *ThreadClock) ensure(idx int, slab *Slab) {
	if idx >= len(tc.chunks) {
		grown := make([]*chunk, idx+1)
		copy(grown, tc.chunks)
		tc.chunks = grown
	}
	if tc.chunks[idx] == nil {
		tc.chunks[idx] = slab.alloc()
	}
}

// Acquire performs a pointwise max of tc with other, recording in tc the
// later of the two clocks' view of every tid either has touched.
//
// Note: This is NOT marked //go:nosplit because ensure can allocate while
// growing tc's chunks to match other's.
func (tc *ThreadClock) Acquire(other *ThreadClock, slab *Slab) {
	for idx, oc := range other.chunks {
		if oc == nil {
			continue
		}
		tc.ensure(idx, slab)
		mc := tc.chunks[idx]
		for i, v := range oc {
			if v > mc[i] {
				mc[i] = v
			}
		}
	}
}

// Release copies tc's view into target, allocating chunks in target from
// slab as needed. Unlike Acquire, components present in target but absent
// from tc are left untouched (Release only ever raises target's
// components, it does not erase ones tc has no opinion about... but since
// tc's absent chunk means "all zero", a pointwise max still leaves target
// unchanged there, so Release and Acquire share the same elementwise-max
// core).
func (tc *ThreadClock) Release(target *ThreadClock, slab *Slab) {
	target.Acquire(tc, slab)
}

// Free returns every chunk this clock holds to slab and clears the clock.
func (tc *ThreadClock) Free(slab *Slab) {
	for _, c := range tc.chunks {
		if c != nil {
			slab.recycle(c)
		}
	}
	tc.chunks = nil
}
