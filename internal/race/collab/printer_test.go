package collab

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kolkov/racecore/internal/race/report"
)

func TestTextPrinterFormatsGoRaceCompatibleOutput(t *testing.T) {
	var buf bytes.Buffer
	p := NewTextPrinter(&buf)

	p.Print(&report.RaceReport{
		Current: report.AccessDesc{
			Tid: 1, Addr: 0x1000, Size: 4, Write: true,
			Stack: []report.Frame{{Func: "main.writer", File: "main.go", Line: 10}},
		},
		Prior: report.AccessDesc{
			Tid: 2, Addr: 0x1000, Size: 4, Write: false,
			Stack: []report.Frame{{Func: "main.reader", File: "main.go", Line: 20}},
		},
	})

	out := buf.String()
	if !strings.Contains(out, "WARNING: DATA RACE") {
		t.Errorf("output missing the WARNING header:\n%s", out)
	}
	if !strings.Contains(out, "Write at 0x1000 by goroutine 1") {
		t.Errorf("output missing current write access line:\n%s", out)
	}
	if !strings.Contains(out, "Previous read at 0x1000 by goroutine 2") {
		t.Errorf("output missing prior read access line:\n%s", out)
	}
	if !strings.Contains(out, "main.writer()") || !strings.Contains(out, "main.reader()") {
		t.Errorf("output missing frame function names:\n%s", out)
	}
}

func TestTextPrinterReportsUnavailableStack(t *testing.T) {
	var buf bytes.Buffer
	p := NewTextPrinter(&buf)

	p.Print(&report.RaceReport{
		Current: report.AccessDesc{Tid: 1, Addr: 0x2000, Write: true},
		Prior:   report.AccessDesc{Tid: 2, Addr: 0x2000, Write: true},
	})

	if !strings.Contains(buf.String(), "<stack unavailable>") {
		t.Errorf("expected '<stack unavailable>' for an empty stack:\n%s", buf.String())
	}
}

func TestNewTextPrinterDefaultsToStderr(t *testing.T) {
	p := NewTextPrinter(nil)
	if p.w == nil {
		t.Errorf("NewTextPrinter(nil) should default w to os.Stderr, got nil")
	}
}
