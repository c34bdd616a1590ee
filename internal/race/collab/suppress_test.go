package collab

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kolkov/racecore/internal/race/report"
)

func TestLoadFileMissingIsNotAnError(t *testing.T) {
	s := NewLineSuppressor()
	if err := s.LoadFile(filepath.Join(t.TempDir(), "does-not-exist")); err != nil {
		t.Fatalf("LoadFile on a missing file returned an error: %v", err)
	}
	if s.IsSuppressed("data race", []report.Frame{{Func: "anything"}}) {
		t.Errorf("a suppressor with no rules should never suppress")
	}
}

func TestLoadFileParsesRulesIgnoringCommentsAndBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "suppressions")
	content := "# comment\n\nrace:noisyPackage.Func\nnot-a-rule-line\nrace:another.Thing\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := NewLineSuppressor()
	if err := s.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if !s.IsSuppressed("data race", []report.Frame{{Func: "pkg.noisyPackage.Func"}}) {
		t.Errorf("expected a frame containing 'noisyPackage.Func' to be suppressed")
	}
	if !s.IsSuppressed("data race", []report.Frame{{Func: "another.Thing"}}) {
		t.Errorf("expected a frame containing 'another.Thing' to be suppressed")
	}
	if s.IsSuppressed("data race", []report.Frame{{Func: "main.unrelated"}}) {
		t.Errorf("unrelated frame should not be suppressed")
	}
}
