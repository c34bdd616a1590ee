package race

import (
	"os"
	"strconv"
	"strings"

	"github.com/kolkov/racecore/internal/race/modroot"
)

// RuntimeConfig mirrors the handful of settings Go's own race detector
// accepts through the GORACE environment variable: a space-separated list
// of key=value pairs.
//
//	GORACE="halt_on_error=1 history_size=256 suppressions=/path/to/file"
//
// Init reads only SuppressionsFile; HaltOnError and HistorySize are
// parsed but have no effect on the detector.
type RuntimeConfig struct {
	HaltOnError      bool
	HistorySize      int
	SuppressionsFile string
}

const defaultHistorySize = 128

// parseRuntimeConfig parses the GORACE-style string env. A config with
// HistorySize 0 after parsing gets defaultHistorySize; unset or malformed
// keys are ignored rather than rejected, matching Go's own forgiving
// GORACE parser.
func parseRuntimeConfig(env string) RuntimeConfig {
	cfg := RuntimeConfig{HistorySize: defaultHistorySize}
	for _, field := range strings.Fields(env) {
		key, val, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "halt_on_error":
			cfg.HaltOnError = val == "1"
		case "history_size":
			if n, err := strconv.Atoi(val); err == nil && n > 0 {
				cfg.HistorySize = n
			}
		case "suppressions":
			cfg.SuppressionsFile = val
		}
	}
	return cfg
}

// defaultSuppressionsFile returns the module-relative default suppression
// file path when none was given via GORACE: <module root>/.race-suppressions,
// discovered by walking up from the working directory for the nearest
// go.mod. If no module is found, suppressions are simply disabled.
func defaultSuppressionsFile() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return modroot.SuppressionsPath(wd)
}
