package shardmap

import "iter"

// ============================================================================
// Iteration
// ============================================================================

// All returns an iterator over the map's pairs.
//
// Each shard is read-locked, copied and released before its pairs are
// yielded, so the loop body may freely call back into the map. The result
// is a per-shard snapshot: a pair inserted into an already visited shard is
// not seen, and the view as a whole never corresponds to a single instant.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	shards := m.table()
	return func(yield func(K, V) bool) {
		var keys []K
		var values []V
		for i := range shards {
			keys, values = shards[i].snapshot(keys[:0], values[:0])
			for j := range keys {
				if !yield(keys[j], values[j]) {
					return
				}
			}
		}
	}
}

// Keys returns an iterator over the map's keys. Same semantics as All.
func (m *Map[K, V]) Keys() iter.Seq[K] {
	all := m.All()
	return func(yield func(K) bool) {
		for k := range all {
			if !yield(k) {
				return
			}
		}
	}
}

// Values returns an iterator over the map's values. Same semantics as All.
func (m *Map[K, V]) Values() iter.Seq[V] {
	all := m.All()
	return func(yield func(V) bool) {
		for _, v := range all {
			if !yield(v) {
				return
			}
		}
	}
}

// Range calls fn for each pair until fn returns false. Same semantics as All.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	m.All()(fn)
}

// AllMut returns an iterator yielding a pointer to every stored value.
//
// Unlike All it is lazy: the shard being visited stays write-locked while
// its pairs are yielded. The loop body must not call into the map for keys
// of that shard, and must not keep the pointers. A panic in the loop body
// poisons the shard.
func (m *Map[K, V]) AllMut() iter.Seq2[K, *V] {
	shards := m.table()
	return func(yield func(K, *V) bool) {
		for i := range shards {
			if !yieldShardMut(&shards[i], yield) {
				return
			}
		}
	}
}

// RangeMut calls fn for each pair until fn returns false. Same semantics
// as AllMut.
func (m *Map[K, V]) RangeMut(fn func(key K, value *V) bool) {
	m.AllMut()(fn)
}

func yieldShardMut[K comparable, V any](s *shard[K, V], yield func(K, *V) bool) bool {
	s.lock()
	defer s.unlockRecover()
	for k, c := range s.table {
		if !yield(k, &c.value) {
			return false
		}
	}
	return true
}
