package shardmap

import "iter"

// ReadOnlyView is a Map that can no longer be written through. It is
// produced by Map.IntoReadOnly, which moves the shards into the view, and
// turned back into a Map by IntoInner.
//
// Reads take shard read locks exactly like the Map methods of the same
// name, so a view is safe for concurrent use.
type ReadOnlyView[K comparable, V any] struct {
	m *Map[K, V]
}

func (r *ReadOnlyView[K, V]) inner() *Map[K, V] {
	if r.m == nil {
		misuse("use of a ReadOnlyView after IntoInner")
	}
	return r.m
}

// Get returns a copy of the value stored under key.
func (r *ReadOnlyView[K, V]) Get(key K) (V, bool) {
	return r.inner().Load(key)
}

// GetKeyValue returns the stored pair for key.
func (r *ReadOnlyView[K, V]) GetKeyValue(key K) (K, V, bool) {
	v, ok := r.inner().Load(key)
	return key, v, ok
}

// ContainsKey reports whether key is present.
func (r *ReadOnlyView[K, V]) ContainsKey(key K) bool {
	return r.inner().ContainsKey(key)
}

// Len returns the number of entries.
func (r *ReadOnlyView[K, V]) Len() int {
	return r.inner().Len()
}

// IsEmpty reports whether the view holds no entries.
func (r *ReadOnlyView[K, V]) IsEmpty() bool {
	return r.inner().IsEmpty()
}

// Capacity returns the capacity of the underlying shards.
func (r *ReadOnlyView[K, V]) Capacity() int {
	return r.inner().Capacity()
}

// ShardCount returns the number of shards.
func (r *ReadOnlyView[K, V]) ShardCount() int {
	return r.inner().ShardCount()
}

// All returns an iterator over the pairs.
func (r *ReadOnlyView[K, V]) All() iter.Seq2[K, V] {
	return r.inner().All()
}

// Keys returns an iterator over the keys.
func (r *ReadOnlyView[K, V]) Keys() iter.Seq[K] {
	return r.inner().Keys()
}

// Values returns an iterator over the values.
func (r *ReadOnlyView[K, V]) Values() iter.Seq[V] {
	return r.inner().Values()
}

// Range calls fn for each pair until fn returns false.
func (r *ReadOnlyView[K, V]) Range(fn func(key K, value V) bool) {
	r.inner().Range(fn)
}

// IntoInner moves the shards back into a writable Map. The view must not
// be used afterwards.
func (r *ReadOnlyView[K, V]) IntoInner() *Map[K, V] {
	m := r.inner().move()
	r.m = nil
	return m
}
