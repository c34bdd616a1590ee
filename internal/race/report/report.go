// Package report implements the Race Reporter: turns a detected shadow-
// memory conflict into a structured report, reconstructing both sides'
// call stacks, symbolizing them best-effort, consulting a suppression
// policy, and handing the result to a printer.
//
// All of this happens off the shadow-memory hot path — a race is, by
// construction, rare relative to the number of checked accesses — so
// Reporter is free to allocate and to serialize every report through a
// single mutex, exactly mirroring Go's own race detector's one-report-at-
// a-time behavior.
package report

import (
	"sync"

	"github.com/kolkov/racecore/internal/race/thread"
)

// AccessInfo is everything the shadow engine knows about one side of a
// conflicting pair of accesses.
type AccessInfo struct {
	Tid   int
	Epoch uint64
	Addr  uintptr
	Size  int
	Write bool
}

// Frame is one symbolized call-stack frame.
type Frame struct {
	PC   uintptr
	Func string
	File string
	Line int
}

// AccessDesc is one side of a RaceReport: the access itself plus its
// reconstructed, symbolized call stack (innermost frame first).
type AccessDesc struct {
	Tid   int
	Addr  uintptr
	Size  int
	Write bool
	Stack []Frame
}

// RaceReport describes one detected race between two accesses.
type RaceReport struct {
	Current AccessDesc
	Prior   AccessDesc
}

// Symbolizer resolves a program counter to source-level information on a
// best-effort basis; any field may come back empty.
type Symbolizer interface {
	Symbolize(pc uintptr) (funcName, file string, line int)
}

// Suppressor decides whether a race matching a given stack should be
// dropped instead of printed.
type Suppressor interface {
	IsSuppressed(kind string, stack []Frame) bool
}

// Printer receives reports that were not suppressed.
type Printer interface {
	Print(*RaceReport)
}

// StackMax bounds how many frames a reconstructed stack can carry.
const StackMax = 64

// Reporter serializes race reports and wires the registry (for stack
// reconstruction) to the injected Symbolizer/Suppressor/Printer.
type Reporter struct {
	mu         sync.Mutex
	registry   *thread.Registry
	symbolizer Symbolizer
	suppressor Suppressor
	printer    Printer
}

// New returns a Reporter that reconstructs stacks from registry and
// dispatches through the given collaborators.
func New(registry *thread.Registry, sym Symbolizer, sup Suppressor, pr Printer) *Reporter {
	return &Reporter{registry: registry, symbolizer: sym, suppressor: sup, printer: pr}
}

// Report builds and dispatches a report for a conflict between cur and
// prior. cur is the access that detected the conflict; prior is the
// previously recorded access it conflicts with.
func (r *Reporter) Report(cur, prior AccessInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	desc := &RaceReport{
		Current: r.describe(cur),
		Prior:   r.describe(prior),
	}

	kind := "data race"
	if r.suppressor != nil && r.suppressor.IsSuppressed(kind, desc.Current.Stack) {
		return
	}
	if r.printer != nil {
		r.printer.Print(desc)
	}
}

func (r *Reporter) describe(a AccessInfo) AccessDesc {
	desc := AccessDesc{Tid: a.Tid, Addr: a.Addr, Size: a.Size, Write: a.Write}
	pcs := r.registry.ReconstructStack(a.Tid, a.Epoch)
	if len(pcs) > StackMax {
		pcs = pcs[len(pcs)-StackMax:]
	}
	// ReconstructStack returns the stack innermost-last; AccessDesc.Stack is
	// documented innermost-first, so reverse it here, the one place that
	// needs to know the difference.
	desc.Stack = make([]Frame, len(pcs))
	for i, pc := range pcs {
		f := Frame{PC: pc}
		if r.symbolizer != nil {
			f.Func, f.File, f.Line = r.symbolizer.Symbolize(pc)
		}
		desc.Stack[len(pcs)-1-i] = f
	}
	return desc
}
