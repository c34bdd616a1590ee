package collab

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/kolkov/racecore/internal/race/report"
)

// TextPrinter writes reports in a format matching Go's own race detector
// output, so existing tooling that greps for "WARNING: DATA RACE" keeps
// working unmodified.
type TextPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextPrinter returns a printer writing to w. A nil w defaults to
// os.Stderr.
func NewTextPrinter(w io.Writer) *TextPrinter {
	if w == nil {
		w = os.Stderr
	}
	return &TextPrinter{w: w}
}

// Print writes one formatted report. Safe for concurrent use, though the
// Reporter that calls it already serializes through its own mutex.
func (p *TextPrinter) Print(r *report.RaceReport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.w, "==================")
	fmt.Fprintln(p.w, "WARNING: DATA RACE")
	writeAccess(p.w, "Write", "Read", &r.Current)
	writeAccess(p.w, "Previous write", "Previous read", &r.Prior)
	fmt.Fprintln(p.w, "==================")
}

func writeAccess(w io.Writer, writeLabel, readLabel string, a *report.AccessDesc) {
	label := readLabel
	if a.Write {
		label = writeLabel
	}
	fmt.Fprintf(w, "%s at %#x by goroutine %d:\n", label, a.Addr, a.Tid)
	for _, f := range a.Stack {
		name := f.Func
		if name == "" {
			name = "<unknown>"
		}
		fmt.Fprintf(w, "  %s()\n", name)
		if f.File != "" {
			fmt.Fprintf(w, "      %s:%d\n", f.File, f.Line)
		}
	}
	if len(a.Stack) == 0 {
		fmt.Fprintln(w, "  <stack unavailable>")
	}
}
