package bytecode

import (
	"strconv"
	"testing"
)

func internedPair(t *testing.T, a, b string) (*ObjString, *ObjString) {
	t.Helper()
	gc := NewGC()
	return gc.InternString(a), gc.InternString(b)
}

func TestTableSetGetDelete(t *testing.T) {
	gc := NewGC()
	tbl := NewTable()

	key := gc.InternString("foo")
	if _, ok := tbl.Get(key); ok {
		t.Fatal("expected missing key before insert")
	}

	if !tbl.Set(key, NumberValue(42)) {
		t.Error("Set on new key should report true")
	}
	if tbl.Set(key, NumberValue(43)) {
		t.Error("Set on existing key should report false")
	}

	v, ok := tbl.Get(key)
	if !ok || v.AsNumber() != 43 {
		t.Errorf("Get = (%v, %v), want (43, true)", v, ok)
	}

	if !tbl.Delete(key) {
		t.Error("Delete of existing key should report true")
	}
	if _, ok := tbl.Get(key); ok {
		t.Error("key should be gone after Delete")
	}
}

func TestTableGrowsAndRehashes(t *testing.T) {
	gc := NewGC()
	tbl := NewTable()

	const n = 200
	keys := make([]*ObjString, n)
	for i := 0; i < n; i++ {
		keys[i] = gc.InternString("key" + strconv.Itoa(i))
		tbl.Set(keys[i], NumberValue(float64(i)))
	}

	for i, k := range keys {
		v, ok := tbl.Get(k)
		if !ok || v.AsNumber() != float64(i) {
			t.Fatalf("key %d: got (%v, %v), want (%d, true)", i, v, ok, i)
		}
	}

	if tbl.Count() != n {
		t.Errorf("Count() = %d, want %d", tbl.Count(), n)
	}
}

func TestTableTombstoneKeepsProbingCorrect(t *testing.T) {
	gc := NewGC()
	tbl := NewTable()

	a := gc.InternString("a")
	b := gc.InternString("b")
	c := gc.InternString("c")

	tbl.Set(a, NumberValue(1))
	tbl.Set(b, NumberValue(2))
	tbl.Set(c, NumberValue(3))

	tbl.Delete(b)

	if v, ok := tbl.Get(a); !ok || v.AsNumber() != 1 {
		t.Errorf("a lookup after deleting b: got (%v, %v)", v, ok)
	}
	if v, ok := tbl.Get(c); !ok || v.AsNumber() != 3 {
		t.Errorf("c lookup after deleting b: got (%v, %v)", v, ok)
	}
}

func TestTableFindString(t *testing.T) {
	gc := NewGC()
	tbl := NewTable()
	s := gc.InternString("hello")
	tbl.Set(s, NilValue)

	found := tbl.FindString("hello", hashString("hello"))
	if found != s {
		t.Errorf("FindString returned %p, want %p (same interned pointer)", found, s)
	}

	if tbl.FindString("missing", hashString("missing")) != nil {
		t.Error("FindString should return nil for an absent string")
	}
}

func TestTableAddAllCopiesEntries(t *testing.T) {
	from := NewTable()
	to := NewTable()

	k1, k2 := internedPair(t, "m1", "m2")
	from.Set(k1, NumberValue(1))
	from.Set(k2, NumberValue(2))

	to.AddAll(from)

	if v, ok := to.Get(k1); !ok || v.AsNumber() != 1 {
		t.Errorf("to[m1] = (%v, %v)", v, ok)
	}
	if v, ok := to.Get(k2); !ok || v.AsNumber() != 2 {
		t.Errorf("to[m2] = (%v, %v)", v, ok)
	}
}
