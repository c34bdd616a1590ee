package collab

import (
	"fmt"
	"os"
)

// StderrDie logs msg to stderr and exits the process with status 2,
// matching Go's own runtime.Fatal convention for unrecoverable internal
// errors. It never returns, so engine.Context's own panic-after-Die
// safety net is unreachable in the normal case — it exists only to
// protect against a caller substituting a Die that mistakenly does.
func StderrDie(msg string) {
	fmt.Fprintln(os.Stderr, "fatal: race detector core:", msg)
	os.Exit(2)
}
