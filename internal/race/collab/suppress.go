package collab

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/kolkov/racecore/internal/race/report"
)

// LineSuppressor matches a reported race's stack against a list of
// substrings loaded from a suppressions file, one rule per line in the
// form:
//
//	race:<substring>
//
// A race is suppressed if any frame's function name in its current-side
// stack contains <substring>. Blank lines and lines starting with "#" are
// ignored.
type LineSuppressor struct {
	rules []string
}

// NewLineSuppressor returns a suppressor with no rules loaded.
func NewLineSuppressor() *LineSuppressor {
	return &LineSuppressor{}
}

// LoadFile adds every "race:<substring>" rule found in path. A missing
// file is not an error — suppressions are optional, and absence means
// "suppress nothing."
func (s *LineSuppressor) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("collab: reading suppressions file %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule, ok := strings.CutPrefix(line, "race:")
		if !ok {
			continue
		}
		s.rules = append(s.rules, rule)
	}
	return scanner.Err()
}

// IsSuppressed reports whether any frame in stack matches a loaded rule.
// kind is accepted for interface compatibility but unused: this
// suppressor has only one rule kind.
func (s *LineSuppressor) IsSuppressed(kind string, stack []report.Frame) bool {
	for _, frame := range stack {
		for _, rule := range s.rules {
			if strings.Contains(frame.Func, rule) {
				return true
			}
		}
	}
	return false
}
