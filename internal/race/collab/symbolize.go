package collab

import "runtime"

// RuntimeSymbolizer resolves program counters using runtime.CallersFrames,
// matching the teacher's stack-depot formatting idiom: best-effort, and
// silent (empty strings, zero line) when the runtime has no information
// for a PC — this is not treated as an error anywhere in this module.
type RuntimeSymbolizer struct{}

// Symbolize resolves pc to a function name, file, and line number. Any
// field comes back empty/zero if the runtime cannot resolve it.
func (RuntimeSymbolizer) Symbolize(pc uintptr) (funcName, file string, line int) {
	frames := runtime.CallersFrames([]uintptr{pc})
	frame, _ := frames.Next()
	if frame.PC == 0 {
		return "", "", 0
	}
	return frame.Function, frame.File, frame.Line
}
