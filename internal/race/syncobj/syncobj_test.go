package syncobj

import (
	"testing"

	"github.com/kolkov/racecore/internal/race/clock"
)

func TestImplicitCreateOnFirstLock(t *testing.T) {
	global := clock.NewSlabAlloc()
	table := NewTable(global)

	addr := uintptr(0x1000)
	obj := table.GetAndLockIfExists(addr)
	if obj != nil {
		t.Fatalf("expected no object before first lock")
	}

	obj = table.GetOrCreateAndLock(addr)
	if obj == nil {
		t.Fatalf("GetOrCreateAndLock returned nil")
	}
	obj.Unlock()

	obj2 := table.GetAndLockIfExists(addr)
	if obj2 != obj {
		t.Fatalf("GetAndLockIfExists did not find the implicitly created object")
	}
	obj2.Unlock()
}

func TestLockUnlockEstablishesHappensBefore(t *testing.T) {
	global := clock.NewSlabAlloc()
	slab0 := clock.NewSlab(global)
	slab1 := clock.NewSlab(global)
	table := NewTable(global)
	addr := uintptr(0x2000)

	var clock0, clock1 clock.ThreadClock
	clock0.Set(0, 10, slab0)

	obj := table.GetOrCreateAndLock(addr)
	obj.AcquireInto(&clock0, slab0, 0, false)
	_, ok := obj.ReleaseFrom(&clock0, slab0, 0)
	obj.Unlock()
	if !ok {
		t.Fatalf("ReleaseFrom reported no matching holder")
	}

	obj = table.GetOrCreateAndLock(addr)
	obj.AcquireInto(&clock1, slab1, 1, false)
	obj.Unlock()

	if got := clock1.Get(0); got != 10 {
		t.Errorf("thread 1's clock.Get(0) = %d, want 10 (acquired from thread 0's release)", got)
	}
}

func TestReleaseFromUnknownHolderIsNotOK(t *testing.T) {
	global := clock.NewSlabAlloc()
	slab := clock.NewSlab(global)
	table := NewTable(global)
	addr := uintptr(0x3000)

	var c clock.ThreadClock
	obj := table.GetOrCreateAndLock(addr)
	_, ok := obj.ReleaseFrom(&c, slab, 99)
	obj.Unlock()
	if ok {
		t.Errorf("expected ok=false releasing a tid that never locked this object")
	}
}

func TestDestroyRemovesFromTable(t *testing.T) {
	global := clock.NewSlabAlloc()
	table := NewTable(global)
	addr := uintptr(0x4000)

	table.Insert(addr, false)
	if table.GetAndRemoveIfExists(addr) == nil {
		t.Fatalf("expected to remove the inserted object")
	}
	if table.GetAndLockIfExists(addr) != nil {
		t.Errorf("object should no longer exist after GetAndRemoveIfExists")
	}
}
