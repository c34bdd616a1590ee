package race_test

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/kolkov/racecore/race"
)

// Example demonstrates basic usage of the race detector API. Normally,
// instrumentation like this is inserted by a build tool.
func Example() {
	race.Init()
	defer race.Fini()

	var counter int

	race.RaceWrite(uintptr(unsafe.Pointer(&counter)))
	counter = 42

	race.RaceRead(uintptr(unsafe.Pointer(&counter)))
	fmt.Println(counter)

	// Output:
	// 42
}

// Example_mutexProtected demonstrates race-free code with mutex
// protection: RaceAcquire/RaceRelease bracket the real lock/unlock so the
// detector learns about the happens-before edge the mutex provides.
func Example_mutexProtected() {
	race.Init()
	defer race.Fini()

	var (
		counter int
		mu      sync.Mutex
	)

	mu.Lock()
	race.RaceAcquire(uintptr(unsafe.Pointer(&mu)))

	race.RaceWrite(uintptr(unsafe.Pointer(&counter)))
	counter = 42

	race.RaceRelease(uintptr(unsafe.Pointer(&mu)))
	mu.Unlock()

	fmt.Println("No race detected")

	// Output:
	// No race detected
}

// Example_goroutineLifecycle shows the two-call protocol around `go`
// statements that lets the detector record a creator-happens-before-
// created edge, and GoJoin's corresponding edge back.
func Example_goroutineLifecycle() {
	race.Init()
	defer race.Fini()

	var counter int
	done := make(chan struct{})

	tid, uid := race.GoCreate()
	go func() {
		race.GoStart(tid)
		defer race.GoEnd()

		race.RaceWrite(uintptr(unsafe.Pointer(&counter)))
		counter = 42
		close(done)
	}()

	<-done
	race.GoJoin(uid)

	race.RaceRead(uintptr(unsafe.Pointer(&counter)))
	fmt.Println(counter)

	// Output:
	// 42
}
