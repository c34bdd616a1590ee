package shadow

import (
	"sync"
	"testing"

	"github.com/kolkov/racecore/internal/race/clock"
	"github.com/kolkov/racecore/internal/race/report"
	"github.com/kolkov/racecore/internal/race/thread"
)

// mapProjection is a minimal Projection for unit tests: one Cell per
// 8-byte word, allocated lazily, no sharding.
type mapProjection struct {
	mu    sync.Mutex
	cells map[uintptr]*Cell
}

func newMapProjection() *mapProjection {
	return &mapProjection{cells: make(map[uintptr]*Cell)}
}

func (p *mapProjection) MemToShadow(addr uintptr) *Cell {
	word := addr &^ 7
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.cells[word]
	if !ok {
		c = &Cell{}
		p.cells[word] = c
	}
	return c
}

func (p *mapProjection) IsAppMem(addr uintptr) bool    { return true }
func (p *mapProjection) IsShadowMem(addr uintptr) bool { return false }

// capturingPrinter records every report it is given.
type capturingPrinter struct {
	mu      sync.Mutex
	reports []*report.RaceReport
}

func (c *capturingPrinter) Print(r *report.RaceReport) {
	c.mu.Lock()
	c.reports = append(c.reports, r)
	c.mu.Unlock()
}

func (c *capturingPrinter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

func newTestThread(t *testing.T, registry *thread.Registry, uid uint64) *thread.State {
	t.Helper()
	ctx := registry.ThreadCreate(nil, uid, false, func(msg string) { t.Fatalf("fatal: %s", msg) })
	return registry.ThreadStart(ctx)
}

func newTestHarness(t *testing.T) (*mapProjection, *report.Reporter, *capturingPrinter, *thread.Registry) {
	t.Helper()
	global := clock.NewSlabAlloc()
	registry := thread.NewRegistry(global)
	printer := &capturingPrinter{}
	rep := report.New(registry, nil, nil, printer)
	proj := newMapProjection()
	return proj, rep, printer, registry
}

func TestUnsynchronizedWriteWriteIsReported(t *testing.T) {
	proj, rep, printer, registry := newTestHarness(t)
	t0 := newTestThread(t, registry, 1)
	t1 := newTestThread(t, registry, 2)

	addr := uintptr(0x1000)
	Access(t0, proj, rep, 0x100, addr, 4, true)
	Access(t1, proj, rep, 0x200, addr, 4, true)

	if got := printer.count(); got != 1 {
		t.Fatalf("reports = %d, want exactly 1", got)
	}
}

func TestLockProtectedAccessIsNotReported(t *testing.T) {
	proj, rep, printer, registry := newTestHarness(t)
	t0 := newTestThread(t, registry, 1)
	t1 := newTestThread(t, registry, 2)

	addr := uintptr(0x2000)
	Access(t0, proj, rep, 0x100, addr, 4, true)

	// Simulate a mutex hand-off: t0 releases into t1 directly.
	t0.Clock.Set(t0.Tid, t0.Epoch, t0.ClockSlab)
	t1.Clock.Acquire(&t0.Clock, t1.ClockSlab)
	t1.FastSynchEpoch = t1.Epoch

	Access(t1, proj, rep, 0x200, addr, 4, true)

	if got := printer.count(); got != 0 {
		t.Fatalf("reports = %d, want 0 (lock-protected)", got)
	}
	if got := t1.Clock.Get(t0.Tid); got < t0.Epoch {
		t.Errorf("t1.Clock.Get(t0) = %d, want >= %d", got, t0.Epoch)
	}
}

func TestConcurrentReadReadIsNotReported(t *testing.T) {
	proj, rep, printer, registry := newTestHarness(t)
	t0 := newTestThread(t, registry, 1)
	t1 := newTestThread(t, registry, 2)

	addr := uintptr(0x3000)
	Access(t0, proj, rep, 0x100, addr, 4, false)
	Access(t1, proj, rep, 0x200, addr, 4, false)

	if got := printer.count(); got != 0 {
		t.Fatalf("reports = %d, want 0 (read-read is benign)", got)
	}
}

func TestSameThreadWriteWriteLoopIsNotReported(t *testing.T) {
	proj, rep, printer, registry := newTestHarness(t)
	t0 := newTestThread(t, registry, 1)

	addr := uintptr(0x4000)
	for i := 0; i < 100; i++ {
		Access(t0, proj, rep, uintptr(i), addr, 4, true)
	}

	if got := printer.count(); got != 0 {
		t.Fatalf("reports = %d, want 0 (same-thread accesses never race)", got)
	}

	cell := proj.MemToShadow(addr)
	distinct := 0
	for i := range cell {
		if cell[i].Load() != 0 {
			distinct++
		}
	}
	if distinct > Cnt {
		t.Errorf("distinct occupied slots = %d, want <= %d", distinct, Cnt)
	}
	for i := range cell {
		if raw := cell[i].Load(); raw != 0 {
			s := unpack(raw)
			if s.tid != t0.Tid {
				t.Errorf("slot %d tid = %d, want %d", i, s.tid, t0.Tid)
			}
		}
	}
}

func TestReadAfterWriteSameThreadSameEpoch(t *testing.T) {
	proj, rep, printer, registry := newTestHarness(t)
	t0 := newTestThread(t, registry, 1)

	addr := uintptr(0x5000)
	Access(t0, proj, rep, 0x10, addr, 4, true)
	Access(t0, proj, rep, 0x20, addr, 4, false)

	if got := printer.count(); got != 0 {
		t.Fatalf("reports = %d, want 0", got)
	}
}
