package shardmap

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestEntry_OrInsertWithCallsOnce(t *testing.T) {
	m := NewMap[string, int]()
	calls := 0
	f := func() int {
		calls++
		return 7
	}

	r := m.Entry("k").OrInsertWith(f)
	if r.Value() != 7 {
		t.Fatalf("v=%d", r.Value())
	}
	r.Release()

	r = m.Entry("k").OrInsertWith(f)
	if r.Value() != 7 {
		t.Fatalf("v=%d", r.Value())
	}
	r.Release()

	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestEntry_OrInsertWithConcurrent(t *testing.T) {
	m := NewMap[int, int]()
	var calls atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Entry(1).OrInsertWith(func() int {
				calls.Add(1)
				return 1
			}).Release()
		}()
	}
	wg.Wait()
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls=%d", n)
	}
}

func TestEntry_OrInsertWithKey(t *testing.T) {
	m := NewMap[string, int]()
	r := m.Entry("abcd").OrInsertWithKey(func(k string) int { return len(k) })
	if k, v := r.Pair(); k != "abcd" || *v != 4 {
		t.Fatalf("pair=(%q,%d)", k, *v)
	}
	r.Release()
}

func TestEntry_OrDefaultAndAndModify(t *testing.T) {
	m := NewMap[string, int]()
	for range 3 {
		m.Entry("hits").AndModify(func(v *int) { *v++ }).OrInsert(1).Release()
	}
	if v, _ := m.Load("hits"); v != 3 {
		t.Fatalf("hits=%d", v)
	}

	r := m.Entry("zero").OrDefault()
	if r.Value() != 0 {
		t.Fatalf("v=%d", r.Value())
	}
	r.Release()
	if !m.ContainsKey("zero") {
		t.Fatalf("OrDefault did not insert")
	}
}

func TestEntry_OrTryInsertWith(t *testing.T) {
	m := NewMap[string, int]()
	errBad := errors.New("bad")

	r, err := m.Entry("k").OrTryInsertWith(func() (int, error) { return 0, errBad })
	if !errors.Is(err, errBad) || r != nil {
		t.Fatalf("r=%v err=%v", r, err)
	}
	if m.ContainsKey("k") {
		t.Fatalf("failed constructor inserted")
	}

	r, err = m.Entry("k").OrTryInsertWith(func() (int, error) { return 5, nil })
	if err != nil || r.Value() != 5 {
		t.Fatalf("err=%v", err)
	}
	r.Release()

	r, err = m.Entry("k").OrTryInsertWith(func() (int, error) {
		t.Fatalf("called for occupied entry")
		return 0, nil
	})
	if err != nil || r.Value() != 5 {
		t.Fatalf("err=%v", err)
	}
	r.Release()
}

func TestEntry_Insert(t *testing.T) {
	m := NewMap[string, int]()
	m.Entry("a").Insert(1).Release()
	r := m.Entry("a").Insert(2)
	if r.Value() != 2 {
		t.Fatalf("v=%d", r.Value())
	}
	r.Release()
	if v, _ := m.Load("a"); v != 2 {
		t.Fatalf("v=%d", v)
	}
}

func TestEntry_OccupiedVacant(t *testing.T) {
	m := NewMap[string, int]()
	m.Insert("a", 1)

	e := m.Entry("a")
	if !e.IsOccupied() || e.Key() != "a" {
		t.Fatalf("occupied=%v key=%q", e.IsOccupied(), e.Key())
	}
	if _, ok := e.Vacant(); ok {
		t.Fatalf("occupied entry reported vacant")
	}
	o, ok := e.Occupied()
	if !ok || o.Get() != 1 {
		t.Fatalf("occupied view missing")
	}
	*o.GetMut() = 2
	if old := o.Insert(3); old != 2 {
		t.Fatalf("old=%d", old)
	}
	if o.Key() != "a" {
		t.Fatalf("entry not live after Insert")
	}
	o.Release()
	if v, _ := m.Load("a"); v != 3 {
		t.Fatalf("v=%d", v)
	}

	e = m.Entry("b")
	if e.IsOccupied() {
		t.Fatalf("vacant entry reported occupied")
	}
	if _, ok := e.Occupied(); ok {
		t.Fatalf("vacant entry has occupied view")
	}
	v, ok := e.Vacant()
	if !ok || v.Key() != "b" {
		t.Fatalf("vacant view missing")
	}
	r := v.Insert(4)
	if r.Key() != "b" || r.Value() != 4 {
		t.Fatalf("pair=(%q,%d)", r.Key(), r.Value())
	}
	r.Release()
}

func TestEntry_OccupiedRemove(t *testing.T) {
	m := NewMap[string, int]()
	m.Insert("a", 1)
	m.Insert("b", 2)

	o, _ := m.Entry("a").Occupied()
	if v := o.Remove(); v != 1 {
		t.Fatalf("v=%d", v)
	}
	if m.ContainsKey("a") {
		t.Fatalf("a still present")
	}

	o, _ = m.Entry("b").Occupied()
	if k, v := o.RemoveEntry(); k != "b" || v != 2 {
		t.Fatalf("pair=(%q,%d)", k, v)
	}
	if !m.IsEmpty() {
		t.Fatalf("len=%d", m.Len())
	}
}

func TestEntry_OccupiedReplaceEntryAndIntoRef(t *testing.T) {
	m := NewMap[string, int]()
	m.Insert("a", 1)

	o, _ := m.Entry("a").Occupied()
	if k, old := o.ReplaceEntry(2); k != "a" || old != 1 {
		t.Fatalf("pair=(%q,%d)", k, old)
	}
	if v, _ := m.Load("a"); v != 2 {
		t.Fatalf("v=%d", v)
	}

	o, _ = m.Entry("a").Occupied()
	r := o.IntoRef()
	r.Set(10)
	r.Release()
	if v, _ := m.Load("a"); v != 10 {
		t.Fatalf("v=%d", v)
	}
}

func TestEntry_VacantIntoKeyReleases(t *testing.T) {
	m := NewMap[string, int]()
	v, _ := m.Entry("x").Vacant()
	if k := v.IntoKey(); k != "x" {
		t.Fatalf("k=%q", k)
	}
	if m.ContainsKey("x") {
		t.Fatalf("IntoKey inserted")
	}
	m.Insert("x", 1)
}

func TestEntry_HoldsWriteLock(t *testing.T) {
	m := NewMap[int, int](WithShardAmount(4))
	a, b := keysInSameShard(t, m)
	m.Insert(b, 1)

	e := m.Entry(a)
	if _, res := m.TryGet(b); res != TryLocked {
		t.Fatalf("TryGet under entry=%s", res)
	}
	r := e.OrInsert(1)
	if _, res := m.TryGet(b); res != TryLocked {
		t.Fatalf("TryGet under entry guard=%s", res)
	}
	r.Release()
	g, res := m.TryGet(b)
	if res != TryPresent {
		t.Fatalf("TryGet after release=%s", res)
	}
	g.Release()
}

func TestEntry_UseAfterConsumePanics(t *testing.T) {
	m := NewMap[string, int]()
	e := m.Entry("a")
	e.OrInsert(1).Release()

	mustPanic(t, func() { e.Key() })
	mustPanic(t, func() { e.OrInsert(2) })
	mustPanic(t, func() { e.IsOccupied() })
	e.Release() // no-op

	e = m.Entry("a")
	o, _ := e.Occupied()
	o.Remove()
	mustPanic(t, func() { o.Get() })
	mustPanic(t, func() { o.Insert(1) })
}

func TestEntry_OrInsertWithPanicPoisons(t *testing.T) {
	m := NewMap[int, int](WithShardAmount(4))
	e := m.Entry(1)
	r := mustPanic(t, func() {
		e.OrInsertWith(func() int { panic("ctor") })
	})
	if r != "ctor" {
		t.Fatalf("panic=%v", r)
	}
	// consumed by the panic; releasing again must not double-unlock
	e.Release()

	r = mustPanic(t, func() { m.Entry(1) })
	if err, ok := r.(error); !ok || !errors.Is(err, ErrPoisoned) {
		t.Fatalf("panic=%v", r)
	}
}

func TestEntry_AndModifyPanicPoisons(t *testing.T) {
	m := NewMap[int, int](WithShardAmount(4))
	m.Insert(1, 1)
	mustPanic(t, func() {
		m.Entry(1).AndModify(func(*int) { panic("modify") })
	})
	r := mustPanic(t, func() { m.Get(1) })
	var pe *PoisonError
	if err, ok := r.(error); !ok || !errors.As(err, &pe) || pe.Cause != "modify" {
		t.Fatalf("panic=%v", r)
	}
}
