// Package collab provides reference implementations of the external
// collaborators the engine consumes: a shadow-memory projection, a
// symbolizer, a suppression matcher, and a text printer. None of these
// belong to the detector core proper — the core only defines the
// interfaces (see internal/race/shadow.Projection and
// internal/race/report.{Symbolizer,Suppressor,Printer}) — but a detector
// is not runnable without something behind them, so this package supplies
// the simplest faithful implementation of each.
package collab

import (
	"sync"

	"github.com/kolkov/racecore/internal/race/shadow"
)

const numShards = 256

// MapShadowProjection stands in for a real mmap'd shadow memory region: it
// lazily allocates one shadow.Cell per touched 8-byte application word in
// a sharded map. IsAppMem and IsShadowMem are permissive — this module
// never inspects real process memory, so any address the caller passes is
// trusted to be application memory.
type MapShadowProjection struct {
	shards [numShards]shard
}

type shard struct {
	mu    sync.Mutex
	cells map[uintptr]*shadow.Cell
}

// NewMapShadowProjection returns an empty projection.
func NewMapShadowProjection() *MapShadowProjection {
	p := &MapShadowProjection{}
	for i := range p.shards {
		p.shards[i].cells = make(map[uintptr]*shadow.Cell)
	}
	return p
}

func (p *MapShadowProjection) shardFor(word uintptr) *shard {
	h := (uint64(word) * 11400714819323198485) >> 56
	return &p.shards[h%numShards]
}

// MemToShadow returns the Cell for the 8-byte word containing addr,
// allocating it on first touch.
func (p *MapShadowProjection) MemToShadow(addr uintptr) *shadow.Cell {
	word := addr &^ 7
	sh := p.shardFor(word)
	sh.mu.Lock()
	cell, ok := sh.cells[word]
	if !ok {
		cell = &shadow.Cell{}
		sh.cells[word] = cell
	}
	sh.mu.Unlock()
	return cell
}

// IsAppMem reports whether addr belongs to the application's address
// space. This reference projection never maps real application memory
// itself (that is the instrumented caller's job), so it trusts the
// caller and always returns true.
func (p *MapShadowProjection) IsAppMem(addr uintptr) bool { return true }

// IsShadowMem reports whether addr falls inside the shadow region proper.
// This projection never exposes shadow cells at addressable locations, so
// it always returns false.
func (p *MapShadowProjection) IsShadowMem(addr uintptr) bool { return false }
