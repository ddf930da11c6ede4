package shardmap

import (
	"fmt"
	"iter"
	"strings"
)

// Set is a concurrent set built on Map with empty values. It shares the
// Map's sharding, hashing and locking behaviour.
type Set[K comparable] struct {
	m *Map[K, struct{}]
}

// NewSet creates a new Set. It accepts the same options as NewMap.
func NewSet[K comparable](options ...func(*MapConfig)) *Set[K] {
	return &Set[K]{m: NewMap[K, struct{}](options...)}
}

// Insert adds key and reports whether it was absent.
func (s *Set[K]) Insert(key K) bool {
	_, loaded := s.m.Insert(key, struct{}{})
	return !loaded
}

// Remove deletes key and reports whether it was present.
func (s *Set[K]) Remove(key K) (K, bool) {
	k, _, ok := s.m.Remove(key)
	return k, ok
}

// RemoveIf deletes key if fn returns true for it. fn runs under the
// shard's write lock.
func (s *Set[K]) RemoveIf(key K, fn func(key K) bool) (K, bool) {
	k, _, ok := s.m.RemoveIf(key, func(k K, _ struct{}) bool {
		return fn(k)
	})
	return k, ok
}

// Contains reports whether key is present.
func (s *Set[K]) Contains(key K) bool {
	return s.m.ContainsKey(key)
}

// Get returns a read guard over key, or nil if absent. Use Key on the
// guard; its value is always struct{}. The shard stays read-locked until
// the guard is released.
//
// Locking behaviour: may deadlock if called while holding a write guard
// into the same shard.
func (s *Set[K]) Get(key K) *Ref[K, struct{}] {
	return s.m.Get(key)
}

// Len returns the number of keys.
func (s *Set[K]) Len() int {
	return s.m.Len()
}

// IsEmpty reports whether the set holds no keys.
func (s *Set[K]) IsEmpty() bool {
	return s.m.IsEmpty()
}

// Capacity returns the capacity of the underlying shards.
func (s *Set[K]) Capacity() int {
	return s.m.Capacity()
}

// Clear removes every key.
func (s *Set[K]) Clear() {
	s.m.Clear()
}

// ShrinkToFit releases unused capacity.
func (s *Set[K]) ShrinkToFit() {
	s.m.ShrinkToFit()
}

// Retain keeps only the keys for which fn returns true.
func (s *Set[K]) Retain(fn func(key K) bool) {
	s.m.Retain(func(k K, _ *struct{}) bool {
		return fn(k)
	})
}

// All returns an iterator over the keys, with Map.All semantics.
func (s *Set[K]) All() iter.Seq[K] {
	return s.m.Keys()
}

// Range calls fn for each key until fn returns false.
func (s *Set[K]) Range(fn func(key K) bool) {
	for k := range s.m.Keys() {
		if !fn(k) {
			return
		}
	}
}

// Clone returns a copy of the set.
func (s *Set[K]) Clone() *Set[K] {
	return &Set[K]{m: s.m.Clone()}
}

// ShardCount returns the number of shards.
func (s *Set[K]) ShardCount() int {
	return s.m.ShardCount()
}

// HashKey hashes key with the set's hasher.
func (s *Set[K]) HashKey(key K) uint64 {
	return s.m.HashKey(key)
}

// DetermineMap returns the index of the shard that holds key.
func (s *Set[K]) DetermineMap(key K) int {
	return s.m.DetermineMap(key)
}

// DetermineShard maps a hash to a shard index.
func (s *Set[K]) DetermineShard(hash uint64) int {
	return s.m.DetermineShard(hash)
}

// ShardStats reports every shard of the underlying map.
func (s *Set[K]) ShardStats() []ShardStat {
	return s.m.ShardStats()
}

// String formats the keys in iteration order, e.g. "{a b c}".
func (s *Set[K]) String() string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for k := range s.m.Keys() {
		if !first {
			b.WriteByte(' ')
		}
		first = false
		fmt.Fprint(&b, k)
	}
	b.WriteByte('}')
	return b.String()
}
