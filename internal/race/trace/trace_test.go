package trace

import "testing"

func TestPackUnpackRoundTrip(t *testing.T) {
	ev := Pack(EventFuncEnter, 0xdeadbeef)
	typ, pc := ev.Unpack()
	if typ != EventFuncEnter {
		t.Errorf("type = %v, want EventFuncEnter", typ)
	}
	if pc != 0xdeadbeef {
		t.Errorf("pc = %#x, want 0xdeadbeef", pc)
	}
}

func TestReconstructSimpleCallStack(t *testing.T) {
	tr := New()
	var epoch uint64
	for _, ev := range []Event{
		Pack(EventFuncEnter, 0x1),
		Pack(EventFuncEnter, 0x2),
		Pack(EventMop, 0x3),
	} {
		tr.Append(epoch, ev)
		epoch++
	}
	got := tr.Reconstruct(epoch - 1)
	want := []uintptr{0x1, 0x3}
	if len(got) != len(want) {
		t.Fatalf("stack = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stack[%d] = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestReconstructReturnsEmptyAfterRotationOverwrite(t *testing.T) {
	tr := New()
	tr.Append(0, Pack(EventFuncEnter, 0x1))

	// Advance far enough that partition 0 rotates past the recorded epoch.
	for e := uint64(1); e < Size*3; e++ {
		tr.Append(e, Pack(EventMop, uintptr(e)))
	}

	got := tr.Reconstruct(0)
	if got != nil {
		t.Errorf("expected nil stack for overwritten partition, got %v", got)
	}
}

func TestReconstructSurvivesWithinRetainedPartition(t *testing.T) {
	tr := New()
	tr.Append(0, Pack(EventFuncEnter, 0x1))
	tr.Append(1, Pack(EventMop, 0x2))

	got := tr.Reconstruct(1)
	if len(got) != 2 || got[0] != 0x1 || got[1] != 0x2 {
		t.Fatalf("stack = %v, want [0x1 0x2]", got)
	}
}
