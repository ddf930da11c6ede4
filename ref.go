package shardmap

// Ref is a read guard returned by Map.Get and Map.TryGet. It holds the
// owning shard's read lock until Release.
//
// Accessors panic after Release. Release is idempotent and nil-safe, so
//
//	if r := m.Get(k); r != nil {
//		defer r.Release()
//		...
//	}
//
// is the usual shape.
type Ref[K comparable, V any] struct {
	sh   *shard[K, V]
	key  K
	cell *SharedValue[V]
}

func (r *Ref[K, V]) live() {
	if r.sh == nil {
		misuse("use of released Ref")
	}
}

// Key returns the guarded key.
func (r *Ref[K, V]) Key() K {
	r.live()
	return r.key
}

// Value returns the guarded value.
func (r *Ref[K, V]) Value() V {
	r.live()
	return r.cell.value
}

// Pair returns the guarded key and value.
func (r *Ref[K, V]) Pair() (K, V) {
	r.live()
	return r.key, r.cell.value
}

// Release unlocks the shard.
func (r *Ref[K, V]) Release() {
	if r == nil || r.sh == nil {
		return
	}
	sh := r.sh
	r.sh, r.cell = nil, nil
	sh.runlock()
}

// RefMut is a write guard returned by Map.GetMut, Map.AllMut and the entry
// API. It holds the owning shard's write lock until Release.
//
// A panic while a RefMut is held does not poison the shard: there is no
// destructor to observe it. Callers that mutate through ValuePtr and can
// panic should release in a deferred call.
type RefMut[K comparable, V any] struct {
	sh   *shard[K, V]
	key  K
	cell *SharedValue[V]
}

func (r *RefMut[K, V]) live() {
	if r.sh == nil {
		misuse("use of released RefMut")
	}
}

// Key returns the guarded key.
func (r *RefMut[K, V]) Key() K {
	r.live()
	return r.key
}

// Value returns the guarded value.
func (r *RefMut[K, V]) Value() V {
	r.live()
	return r.cell.value
}

// ValuePtr returns a pointer to the stored value. It must not be used
// after Release.
func (r *RefMut[K, V]) ValuePtr() *V {
	r.live()
	return &r.cell.value
}

// Set replaces the stored value and returns the old one.
func (r *RefMut[K, V]) Set(value V) (old V) {
	r.live()
	old, r.cell.value = r.cell.value, value
	return old
}

// Pair returns the guarded key and a pointer to the value.
func (r *RefMut[K, V]) Pair() (K, *V) {
	r.live()
	return r.key, &r.cell.value
}

// Release unlocks the shard.
func (r *RefMut[K, V]) Release() {
	if r == nil || r.sh == nil {
		return
	}
	sh := r.sh
	r.sh, r.cell = nil, nil
	sh.unlock()
}
