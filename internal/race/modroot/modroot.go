// Package modroot locates the nearest go.mod above the current working
// directory and parses it, purely so race/ can pick a sensible default
// path for an optional suppressions file (<module root>/.race-suppressions)
// without requiring a caller to specify one explicitly.
//
// This is the module's one use of golang.org/x/mod: parsing the module
// path out of go.mod with modfile.Parse, the same primitive the original
// racedetector build tool used to rewrite replace directives for
// instrumented builds. Here it only reads the module declaration.
package modroot

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/mod/modfile"
)

// Info describes the nearest enclosing Go module.
type Info struct {
	// Dir is the directory containing the go.mod file.
	Dir string
	// Path is the module path declared by go.mod (e.g. "example.com/foo").
	Path string
}

// ErrNotFound is returned when no go.mod is found walking up from start.
var ErrNotFound = errors.New("modroot: no go.mod found above start directory")

// Find walks up from start (a directory) looking for a go.mod file,
// parsing it with modfile.Parse once found.
func Find(start string) (Info, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return Info{}, err
	}

	for {
		candidate := filepath.Join(dir, "go.mod")
		data, err := os.ReadFile(candidate)
		if err == nil {
			f, err := modfile.Parse(candidate, data, nil)
			if err != nil {
				return Info{}, err
			}
			path := ""
			if f.Module != nil {
				path = f.Module.Mod.Path
			}
			return Info{Dir: dir, Path: path}, nil
		}
		if !os.IsNotExist(err) {
			return Info{}, err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Info{}, ErrNotFound
		}
		dir = parent
	}
}

// SuppressionsPath returns the default suppressions file path for the
// module enclosing start, or "" if no module was found (in which case the
// caller should fall back to no suppressions file rather than failing).
func SuppressionsPath(start string) string {
	info, err := Find(start)
	if err != nil {
		return ""
	}
	return filepath.Join(info.Dir, ".race-suppressions")
}
