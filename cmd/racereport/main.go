// Command racereport is a standalone post-processor for captured race
// reports: it loads a JSON-encoded report.RaceReport (as a program might
// dump one via its own logging before exiting), applies the same
// suppression rules the detector itself would apply, and prints whatever
// survives in Go-race-compatible text form.
//
// USAGE:
//
//	racereport -report report.json [-suppressions path] [-module-relative]
//
// Without a -suppressions flag, racereport discovers the suppressions
// file the same way the race package does at runtime:
// <nearest go.mod's directory>/.race-suppressions. -module-relative is on
// by default; -module-relative=false turns this discovery off.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kolkov/racecore/internal/race/collab"
	"github.com/kolkov/racecore/internal/race/modroot"
	"github.com/kolkov/racecore/internal/race/report"
)

func main() {
	var (
		reportPath  = flag.String("report", "", "path to a JSON-encoded race report (- for stdin)")
		suppPath    = flag.String("suppressions", "", "path to a suppressions file (default: discovered from the nearest go.mod)")
		modRelative = flag.Bool("module-relative", true, "when -suppressions is unset, discover .race-suppressions from the nearest go.mod")
	)
	flag.Parse()

	if *reportPath == "" {
		fmt.Fprintln(os.Stderr, "racereport: -report is required")
		flag.Usage()
		os.Exit(1)
	}

	r, err := loadReport(*reportPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "racereport: %v\n", err)
		os.Exit(1)
	}

	path := *suppPath
	if path == "" && *modRelative {
		if wd, err := os.Getwd(); err == nil {
			path = modroot.SuppressionsPath(wd)
		}
	}

	suppressor := collab.NewLineSuppressor()
	if path != "" {
		if err := suppressor.LoadFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "racereport: loading suppressions: %v\n", err)
			os.Exit(1)
		}
	}

	if suppressor.IsSuppressed("data race", r.Current.Stack) {
		fmt.Println("racereport: report suppressed, nothing to print")
		return
	}

	collab.NewTextPrinter(os.Stdout).Print(r)
}

func loadReport(path string) (*report.RaceReport, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var r report.RaceReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &r, nil
}
