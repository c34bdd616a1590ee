package race

import "testing"

func TestParseGoroutineID(t *testing.T) {
	got := parseGoroutineID([]byte("goroutine 42 [running]:\nmain.main()"))
	if got != 42 {
		t.Errorf("parseGoroutineID = %d, want 42", got)
	}
}

func TestParseGoroutineIDRejectsUnexpectedPrefix(t *testing.T) {
	if got := parseGoroutineID([]byte("not a stack trace")); got != 0 {
		t.Errorf("parseGoroutineID = %d, want 0 for an unrecognized prefix", got)
	}
}

func TestGoroutineIDIsStableWithinACall(t *testing.T) {
	a := goroutineID()
	b := goroutineID()
	if a != b {
		t.Errorf("goroutineID() = %d then %d, want the same value for the same goroutine", a, b)
	}
	if a == 0 {
		t.Errorf("goroutineID() = 0, want a nonzero id")
	}
}

func TestGoroutineIDDiffersAcrossGoroutines(t *testing.T) {
	done := make(chan int64)
	go func() { done <- goroutineID() }()
	other := <-done
	mine := goroutineID()
	if mine == other {
		t.Errorf("two different goroutines reported the same id %d", mine)
	}
}
