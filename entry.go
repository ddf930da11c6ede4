package shardmap

// Entry is a locked view of a single key, returned by Map.Entry and
// Map.TryEntry. It is occupied if the key was present when the entry was
// created and vacant otherwise; the shard's write lock is held until the
// entry is consumed or released, so that view cannot go stale.
//
// WARNING:
//   - Every method that returns a guard, key or removed value consumes the
//     entry. Any further use panics.
//   - Not safe across goroutines.
//   - Calling back into the map for a key in the same shard deadlocks.
type Entry[K comparable, V any] struct {
	sh   *shard[K, V]
	key  K
	cell *SharedValue[V] // nil when vacant
}

func (e *Entry[K, V]) live() {
	if e.sh == nil {
		misuse("use of consumed Entry")
	}
}

// recoverPoison is deferred around caller code that runs while the entry
// owns the lock. On panic the shard is poisoned and released, and the
// entry is consumed.
func (e *Entry[K, V]) recoverPoison() {
	if r := recover(); r != nil {
		sh := e.sh
		e.sh, e.cell = nil, nil
		sh.poison(r)
		sh.unlock()
		panic(r)
	}
}

// consume hands the lock to a write guard over cell.
func (e *Entry[K, V]) consume(cell *SharedValue[V]) *RefMut[K, V] {
	r := &RefMut[K, V]{sh: e.sh, key: e.key, cell: cell}
	e.sh, e.cell = nil, nil
	return r
}

func (e *Entry[K, V]) insertVacant(value V) *RefMut[K, V] {
	c := NewSharedValue(value)
	e.sh.table[e.key] = c
	e.sh.grew()
	return e.consume(c)
}

// Key returns the entry's key.
func (e *Entry[K, V]) Key() K {
	e.live()
	return e.key
}

// IsOccupied reports whether the key is present.
func (e *Entry[K, V]) IsOccupied() bool {
	e.live()
	return e.cell != nil
}

// Occupied returns the occupied view, or false if the entry is vacant.
// The view shares the entry's lock.
func (e *Entry[K, V]) Occupied() (*OccupiedEntry[K, V], bool) {
	e.live()
	if e.cell == nil {
		return nil, false
	}
	return &OccupiedEntry[K, V]{e: e}, true
}

// Vacant returns the vacant view, or false if the entry is occupied.
func (e *Entry[K, V]) Vacant() (*VacantEntry[K, V], bool) {
	e.live()
	if e.cell != nil {
		return nil, false
	}
	return &VacantEntry[K, V]{e: e}, true
}

// AndModify calls fn on the value if the entry is occupied. It returns the
// entry for chaining. A panic in fn poisons the shard.
func (e *Entry[K, V]) AndModify(fn func(value *V)) *Entry[K, V] {
	e.live()
	if e.cell != nil {
		defer e.recoverPoison()
		fn(&e.cell.value)
	}
	return e
}

// OrInsert inserts value if the entry is vacant and returns a write guard
// over the stored value.
func (e *Entry[K, V]) OrInsert(value V) *RefMut[K, V] {
	e.live()
	if e.cell == nil {
		return e.insertVacant(value)
	}
	return e.consume(e.cell)
}

// OrInsertWith is OrInsert with a lazily computed value. fn is called at
// most once and only if the entry is vacant. A panic in fn poisons the
// shard.
func (e *Entry[K, V]) OrInsertWith(fn func() V) *RefMut[K, V] {
	e.live()
	if e.cell == nil {
		defer e.recoverPoison()
		return e.insertVacant(fn())
	}
	return e.consume(e.cell)
}

// OrInsertWithKey is OrInsertWith with the key passed to fn.
func (e *Entry[K, V]) OrInsertWithKey(fn func(key K) V) *RefMut[K, V] {
	e.live()
	if e.cell == nil {
		defer e.recoverPoison()
		return e.insertVacant(fn(e.key))
	}
	return e.consume(e.cell)
}

// OrDefault inserts the zero value if the entry is vacant.
func (e *Entry[K, V]) OrDefault() *RefMut[K, V] {
	return e.OrInsert(*new(V))
}

// OrTryInsertWith is OrInsertWith for a fallible constructor. If fn fails,
// nothing is inserted, the entry is released and the error is returned.
func (e *Entry[K, V]) OrTryInsertWith(fn func() (V, error)) (*RefMut[K, V], error) {
	e.live()
	if e.cell != nil {
		return e.consume(e.cell), nil
	}
	defer e.recoverPoison()
	v, err := fn()
	if err != nil {
		e.Release()
		return nil, err
	}
	return e.insertVacant(v), nil
}

// Insert stores value whether or not the entry is occupied and returns a
// write guard over it.
func (e *Entry[K, V]) Insert(value V) *RefMut[K, V] {
	e.live()
	if e.cell == nil {
		return e.insertVacant(value)
	}
	e.cell.value = value
	return e.consume(e.cell)
}

// Release unlocks the shard without changing anything. It is a no-op on a
// consumed entry.
func (e *Entry[K, V]) Release() {
	if e == nil || e.sh == nil {
		return
	}
	sh := e.sh
	e.sh, e.cell = nil, nil
	sh.unlock()
}

// OccupiedEntry is the view of an Entry whose key is present.
type OccupiedEntry[K comparable, V any] struct {
	e *Entry[K, V]
}

// Key returns the entry's key.
func (o *OccupiedEntry[K, V]) Key() K {
	return o.e.Key()
}

// Get returns the stored value.
func (o *OccupiedEntry[K, V]) Get() V {
	o.e.live()
	return o.e.cell.value
}

// GetMut returns a pointer to the stored value, valid until the entry is
// consumed.
func (o *OccupiedEntry[K, V]) GetMut() *V {
	o.e.live()
	return &o.e.cell.value
}

// Insert replaces the stored value and returns the old one. The entry
// stays live.
func (o *OccupiedEntry[K, V]) Insert(value V) (old V) {
	o.e.live()
	old, o.e.cell.value = o.e.cell.value, value
	return old
}

// IntoRef converts the entry into a write guard.
func (o *OccupiedEntry[K, V]) IntoRef() *RefMut[K, V] {
	o.e.live()
	return o.e.consume(o.e.cell)
}

// Remove deletes the key, releases the shard and returns the value.
func (o *OccupiedEntry[K, V]) Remove() V {
	_, v := o.RemoveEntry()
	return v
}

// RemoveEntry deletes the key, releases the shard and returns the pair.
func (o *OccupiedEntry[K, V]) RemoveEntry() (K, V) {
	e := o.e
	e.live()
	key, c := e.key, e.cell
	delete(e.sh.table, key)
	e.Release()
	return key, c.IntoInner()
}

// ReplaceEntry stores value in a fresh cell, releases the shard and
// returns the old pair.
func (o *OccupiedEntry[K, V]) ReplaceEntry(value V) (K, V) {
	e := o.e
	e.live()
	key, old := e.key, e.cell.value
	e.sh.table[key] = NewSharedValue(value)
	e.Release()
	return key, old
}

// Release unlocks the shard without changing anything.
func (o *OccupiedEntry[K, V]) Release() {
	o.e.Release()
}

// VacantEntry is the view of an Entry whose key is absent.
type VacantEntry[K comparable, V any] struct {
	e *Entry[K, V]
}

// Key returns the key that would be inserted.
func (v *VacantEntry[K, V]) Key() K {
	return v.e.Key()
}

// IntoKey releases the shard and returns the key.
func (v *VacantEntry[K, V]) IntoKey() K {
	v.e.live()
	key := v.e.key
	v.e.Release()
	return key
}

// Insert stores value and returns a write guard over it.
func (v *VacantEntry[K, V]) Insert(value V) *RefMut[K, V] {
	v.e.live()
	return v.e.insertVacant(value)
}

// Release unlocks the shard without inserting.
func (v *VacantEntry[K, V]) Release() {
	v.e.Release()
}
