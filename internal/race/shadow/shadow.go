// Package shadow implements the Shadow Memory Engine: the hot-path check
// run on every instrumented memory access.
//
// Every aligned 8-byte application word has an associated Cell of Cnt
// shadow slots. Each slot packs (tid, epoch, byte-range, write-flag) into
// a single 64-bit word, read and written with relaxed atomics — no slot
// is ever locked, and correctness relies only on the claim that a report
// is only ever produced for two accesses that really happened, and were
// unordered by anything this access has already observed.
//
// Performance: Access makes one pass over Cnt slots (8 atomic loads, at
// most a handful of atomic stores) with no allocation on the non-racing
// path. This is the single hottest function in the module.
package shadow

import (
	"sync/atomic"

	"github.com/kolkov/racecore/internal/race/report"
	"github.com/kolkov/racecore/internal/race/thread"
	"github.com/kolkov/racecore/internal/race/trace"
)

// Cnt is the number of shadow slots per 8-byte shadow cell.
const Cnt = 8

// Cell is the per-word array of shadow slots.
type Cell [Cnt]atomic.Uint64

// Projection locates the shadow Cell for an application address and
// classifies addresses as application or shadow memory. The core never
// assumes a particular memory layout; a real deployment would back this
// with an mmap'd shadow region alongside the application's address space.
type Projection interface {
	MemToShadow(addr uintptr) *Cell
	IsAppMem(addr uintptr) bool
	IsShadowMem(addr uintptr) bool
}

const (
	tidBits   = 16
	epochBits = 40
	addrBits  = 3

	writeShift = 0
	addr1Shift = writeShift + 1
	addr0Shift = addr1Shift + addrBits
	epochShift = addr0Shift + addrBits
	tidShift   = epochShift + epochBits

	addrMask  = (uint64(1) << addrBits) - 1
	epochMask = (uint64(1) << epochBits) - 1
	tidMask   = (uint64(1) << tidBits) - 1
)

// slot is the unpacked form of one shadow word.
type slot struct {
	tid   int
	epoch uint64
	addr0 uint8
	addr1 uint8
	write bool
}

func pack(s slot) uint64 {
	v := (uint64(s.tid) & tidMask) << tidShift
	v |= (s.epoch & epochMask) << epochShift
	v |= (uint64(s.addr0) & addrMask) << addr0Shift
	v |= (uint64(s.addr1) & addrMask) << addr1Shift
	if s.write {
		v |= 1 << writeShift
	}
	return v
}

func unpack(v uint64) slot {
	return slot{
		tid:   int((v >> tidShift) & tidMask),
		epoch: (v >> epochShift) & epochMask,
		addr0: uint8((v >> addr0Shift) & addrMask),
		addr1: uint8((v >> addr1Shift) & addrMask),
		write: (v>>writeShift)&1 == 1,
	}
}

// Access is the core race check: records the access described by
// pc/addr/size/isWrite against thr's state, and reports through rep if it
// conflicts with a concurrent, unordered prior access.
//
// size must be 1, 2, 4, or 8, and the access must not cross an 8-byte
// boundary — callers split larger or unaligned accesses before calling
// Access (see engine.MemoryAccessRange).
//
// Note: This is NOT marked //go:nosplit because it calls Trace.Append,
// which takes a mutex.
func Access(thr *thread.State, proj Projection, rep *report.Reporter, pc uintptr, addr uintptr, size int, isWrite bool) {
	thr.Epoch++
	thr.Accesses++
	thr.Trace.Append(thr.Epoch, trace.Pack(trace.EventMop, pc))

	addr0 := uint8(addr & 7)
	addr1 := addr0 + uint8(size) - 1
	if addr1 > 7 {
		addr1 = 7
	}
	s0 := slot{tid: thr.Tid, epoch: thr.Epoch, addr0: addr0, addr1: addr1, write: isWrite}

	var off uint8
	switch size {
	case 1:
		off = addr0
	case 2:
		off = uint8(addr & 6)
	case 4:
		off = uint8(addr & 4)
	default:
		off = 0
	}

	cell := proj.MemToShadow(addr)
	replaced := false
	var racy *slot

	for i := uint8(0); i < Cnt; i++ {
		idx := (i + off) % Cnt
		sp := &cell[idx]
		raw := sp.Load()

		if raw == 0 {
			if !replaced {
				sp.Store(pack(s0))
				replaced = true
			}
			continue
		}

		s := unpack(raw)
		sameRange := s.addr0 == s0.addr0 && s.addr1 == s0.addr1
		if !sameRange {
			lo := max(s.addr0, s0.addr0)
			hi := min(s.addr1, s0.addr1)
			if hi < lo {
				continue // disjoint
			}
		}

		if s.tid == s0.tid {
			if sameRange {
				if s.epoch >= thr.FastSynchEpoch {
					if s.write || !isWrite {
						return // already summarized by this slot; nothing to store or report
					}
					sp.Store(pack(s0))
					replaced = true
					continue
				}
				if !s.write || isWrite {
					sp.Store(pack(s0))
					replaced = true
					continue
				}
			}
			continue
		}

		hb := thr.Clock.Get(s.tid) >= s.epoch
		if hb {
			if sameRange {
				sp.Store(pack(s0))
				replaced = true
			}
			continue
		}
		if !s.write && !isWrite {
			continue // concurrent read-read is benign
		}
		racySlot := s
		racy = &racySlot
	}

	if !replaced {
		cell[thr.Epoch%Cnt].Store(pack(s0))
	}

	if racy != nil {
		rep.Report(
			report.AccessInfo{Tid: s0.tid, Epoch: s0.epoch, Addr: addr&^7 | uintptr(s0.addr0), Size: int(s0.addr1-s0.addr0) + 1, Write: s0.write},
			report.AccessInfo{Tid: racy.tid, Epoch: racy.epoch, Addr: addr&^7 | uintptr(racy.addr0), Size: int(racy.addr1-racy.addr0) + 1, Write: racy.write},
		)
	}
}
