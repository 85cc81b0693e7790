package bytecode

import (
	"strconv"
	"testing"
)

func TestInternStringReturnsSamePointerForEqualContent(t *testing.T) {
	gc := NewGC()
	a := gc.InternString("hello")
	b := gc.InternString("hello")
	if a != b {
		t.Error("interning equal content should return the same *ObjString")
	}

	c := gc.InternString("different")
	if a == c {
		t.Error("interning different content should not collide")
	}
}

func TestCollectGarbageFreesUnreachableObjects(t *testing.T) {
	gc := NewGC()
	vm := NewVMWithOptions(DefaultLimits(), gc)

	reachableObj := gc.InternString("kept")
	vm.push(StringValue(reachableObj))

	// Allocate an object with nothing on the stack, in globals, or in any
	// frame pointing at it, then force a collection directly.
	gc.InternString("orphaned")

	before := countObjects(gc)
	gc.collectGarbage()
	after := countObjects(gc)

	if after >= before {
		t.Errorf("unreachable string was not swept: object count %d -> %d", before, after)
	}

	if vm.stackTop == 0 {
		t.Fatal("expected the pushed value to remain on the stack")
	}
	if vm.stack[0].AsString() != reachableObj {
		t.Error("reachable string should survive collection")
	}
}

func TestCollectGarbageSweepsTrulyUnreachableHeapObject(t *testing.T) {
	gc := NewGC()
	_ = NewVMWithOptions(DefaultLimits(), gc)

	// A function allocated and then dropped (never stored anywhere reachable)
	// must not survive a collection.
	obj, _ := gc.NewFunction()
	_ = obj

	gc.collectGarbage()

	found := false
	for o := gc.objects; o != nil; o = o.Next {
		if o == obj {
			found = true
		}
	}
	if found {
		t.Error("unreachable function should have been swept")
	}
}

func TestCollectGarbageGrowsThresholdByGrowFactor(t *testing.T) {
	gc := NewGCWithOptions(64, 3.0)
	_ = NewVMWithOptions(DefaultLimits(), gc)

	gc.bytesAllocated = 100
	gc.collectGarbage()

	want := int(float64(gc.bytesAllocated) * 3.0)
	if gc.nextGC != want {
		t.Errorf("nextGC = %d, want %d", gc.nextGC, want)
	}
}

func TestGCStressEnvVarCollectsOnEveryAllocation(t *testing.T) {
	t.Setenv("LOX_GC_STRESS", "1")

	gc := NewGC()
	vm := NewVMWithOptions(DefaultLimits(), gc)
	if !gc.stressGC {
		t.Fatal("expected stressGC to be latched from LOX_GC_STRESS")
	}

	reachable := gc.InternString("kept")
	vm.push(StringValue(reachable))

	// Each call interns a distinct, never-reused string, so every one of
	// them allocates; with stressGC set each allocation runs a full
	// collection. The pushed string must survive every single one of them.
	for i := 0; i < 50; i++ {
		gc.InternString("throwaway-" + strconv.Itoa(i))
	}

	if vm.stack[0].AsString() != reachable {
		t.Error("reachable string did not survive repeated stress collections")
	}
}

func TestGCStressEnvVarUnsetLeavesStressModeOff(t *testing.T) {
	t.Setenv("LOX_GC_STRESS", "")

	gc := NewGC()
	_ = NewVMWithOptions(DefaultLimits(), gc)
	if gc.stressGC {
		t.Error("stressGC should stay off when LOX_GC_STRESS is unset")
	}
}

func TestNewGCWithOptionsFallsBackOnNonPositiveValues(t *testing.T) {
	gc := NewGCWithOptions(0, 0)
	if gc.nextGC != initialNextGC {
		t.Errorf("nextGC = %d, want default %d", gc.nextGC, initialNextGC)
	}
	if gc.growFactor != gcHeapGrowFactor {
		t.Errorf("growFactor = %v, want default %v", gc.growFactor, gcHeapGrowFactor)
	}
}

func countObjects(gc *GC) int {
	n := 0
	for o := gc.objects; o != nil; o = o.Next {
		n++
	}
	return n
}
