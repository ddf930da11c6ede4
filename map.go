package shardmap

import (
	"fmt"
	"math/rand/v2"
	"reflect"

	"github.com/phuslu/log"
)

// Map is a sharded concurrent map.
//
// The key space is split into a fixed, power-of-two number of shards. Each
// shard is a Go map guarded by its own sync.RWMutex, so operations on keys
// in different shards never contend. No operation ever holds more than one
// shard lock at a time.
//
// Core properties:
//   - Get/GetMut/Entry return guards that keep the shard locked until Release
//   - Entry performs find-or-insert under a single write lock acquisition
//   - Len/Capacity/iteration visit shards one at a time (best-effort snapshots)
//   - A panic inside a callback run under a write lock poisons the shard
//
// Locking behaviour: holding a Ref, RefMut or Entry and calling any other
// method that touches the same shard from the same goroutine deadlocks.
// Release guards before calling back into the map.
//
// Usage:
//
//	m := NewMap[string, int](WithCapacity(1000))
//	m.Insert("a", 1)
//	if r := m.Get("a"); r != nil {
//		fmt.Println(r.Value())
//		r.Release()
//	}
//
// Notes:
//   - Map must be created with NewMap and must not be copied after first use.
type Map[K comparable, V any] struct {
	_      noCopy
	shards []shard[K, V]
	shift  uint
	seed   uint64
	hash   func(K) uint64
	log    *log.Logger
}

// NewMap creates a new Map instance.
//
// Parameters:
//   - options: configuration options (WithShardAmount, WithCapacity,
//     WithKeyHasher, WithHashAlgorithm, WithSeed, WithLogger)
func NewMap[K comparable, V any](options ...func(*MapConfig)) *Map[K, V] {
	var cfg MapConfig
	for _, o := range options {
		o(&cfg)
	}
	m := &Map[K, V]{}
	m.init(&cfg)
	return m
}

// FromMap creates a Map holding a copy of src. Options given after the
// implied capacity override it.
func FromMap[K comparable, V any](src map[K]V, options ...func(*MapConfig)) *Map[K, V] {
	m := NewMap[K, V](append([]func(*MapConfig){WithCapacity(len(src))}, options...)...)
	for k, v := range src {
		m.Insert(k, v)
	}
	return m
}

func (m *Map[K, V]) init(cfg *MapConfig) {
	shards := cfg.shardAmount
	if shards == 0 {
		shards = DefaultShardAmount()
	}

	var custom func(K, uint64) uint64
	if cfg.keyHash != nil {
		fn, ok := cfg.keyHash.(func(K, uint64) uint64)
		if !ok {
			misuse("key hasher %T does not hash keys of type %v", cfg.keyHash, reflect.TypeFor[K]())
		}
		custom = fn
	}

	m.seed = cfg.seed
	if !cfg.seedSet {
		m.seed = rand.Uint64()
	}
	m.hash = newKeyHasher(custom, cfg.algo, m.seed)
	m.shift = shardShift(shards)
	m.log = cfg.logger

	cps := perShardCapacity(cfg.capacity, shards)
	m.shards = make([]shard[K, V], shards)
	for i := range m.shards {
		m.shards[i].init(i, cps, m.log)
	}

	if m.log != nil {
		m.log.Debug().
			Int("shards", shards).
			Int("capacity", cps*shards).
			Str("hash", cfg.algo.String()).
			Msg("shardmap: map created")
	}
}

// table returns the shards, panicking on a zero or moved-from Map.
func (m *Map[K, V]) table() []shard[K, V] {
	if m.shards == nil {
		misuse("use of a Map that was not created by NewMap or was moved by IntoReadOnly")
	}
	return m.shards
}

func (m *Map[K, V]) shardOf(key K) *shard[K, V] {
	shards := m.table()
	return &shards[m.shardIndex(m.hash(key))]
}

// ShardCount returns the fixed number of shards.
func (m *Map[K, V]) ShardCount() int {
	return len(m.table())
}

// HashKey hashes key with the map's hasher.
func (m *Map[K, V]) HashKey(key K) uint64 {
	m.table()
	return m.hash(key)
}

// DetermineMap returns the index of the shard that holds key.
func (m *Map[K, V]) DetermineMap(key K) int {
	m.table()
	return m.DetermineShard(m.hash(key))
}

// DetermineShard maps a hash to a shard index. It depends on the hash
// and the shard amount only, so a key never changes shards.
func (m *Map[K, V]) DetermineShard(hash uint64) int {
	m.table()
	return m.shardIndex(hash)
}

func (m *Map[K, V]) shardIndex(hash uint64) int {
	return int((hash << shardSkipBits) >> m.shift)
}

// Insert stores value under key and returns the previous value, if any.
//
// Locking behaviour: may deadlock if called while holding a guard into
// the map.
func (m *Map[K, V]) Insert(key K, value V) (previous V, loaded bool) {
	s := m.shardOf(key)
	s.lock()
	defer s.unlock()
	return s.insert(key, value)
}

// Remove deletes key and returns the removed pair.
//
// The returned key is the argument, not the key stored at insertion. The
// two differ only for keys that are == but not identical, such as -0.0 and
// +0.0 or structs holding them.
//
// Locking behaviour: may deadlock if called while holding a guard into
// the map.
func (m *Map[K, V]) Remove(key K) (K, V, bool) {
	s := m.shardOf(key)
	s.lock()
	defer s.unlock()
	c, ok := s.table[key]
	if !ok {
		return key, *new(V), false
	}
	delete(s.table, key)
	return key, c.IntoInner(), true
}

// RemoveIf deletes key if fn returns true for the stored pair. fn runs
// under the shard's write lock, so nothing can change the value between
// the decision and the removal.
func (m *Map[K, V]) RemoveIf(key K, fn func(key K, value V) bool) (K, V, bool) {
	return m.RemoveIfMut(key, func(k K, v *V) bool {
		return fn(k, *v)
	})
}

// RemoveIfMut is RemoveIf with mutable access to the value. Changes made
// by fn persist when it returns false. As with Remove, fn and the result
// see the lookup key.
func (m *Map[K, V]) RemoveIfMut(key K, fn func(key K, value *V) bool) (K, V, bool) {
	s := m.shardOf(key)
	s.lock()
	defer s.unlockRecover()
	c, ok := s.table[key]
	if !ok || !fn(key, &c.value) {
		return key, *new(V), false
	}
	delete(s.table, key)
	return key, c.IntoInner(), true
}

// Get returns a read guard for key, or nil if absent. The shard stays
// read-locked until the guard is released.
//
// Locking behaviour: may deadlock if called while holding a write guard
// (RefMut, Entry) into the same shard.
func (m *Map[K, V]) Get(key K) *Ref[K, V] {
	s := m.shardOf(key)
	s.rlock()
	if c, ok := s.table[key]; ok {
		return &Ref[K, V]{sh: s, key: key, cell: c}
	}
	s.runlock()
	return nil
}

// GetMut returns a write guard for key, or nil if absent. The shard stays
// write-locked until the guard is released.
//
// Locking behaviour: may deadlock if called while holding any guard into
// the same shard.
func (m *Map[K, V]) GetMut(key K) *RefMut[K, V] {
	s := m.shardOf(key)
	s.lock()
	if c, ok := s.table[key]; ok {
		return &RefMut[K, V]{sh: s, key: key, cell: c}
	}
	s.unlock()
	return nil
}

// TryGet is the non-blocking form of Get. The guard is non-nil only when
// the result is TryPresent.
func (m *Map[K, V]) TryGet(key K) (*Ref[K, V], TryResult) {
	s := m.shardOf(key)
	if !s.tryRLock() {
		return nil, TryLocked
	}
	if c, ok := s.table[key]; ok {
		return &Ref[K, V]{sh: s, key: key, cell: c}, TryPresent
	}
	s.runlock()
	return nil, TryAbsent
}

// TryGetMut is the non-blocking form of GetMut.
func (m *Map[K, V]) TryGetMut(key K) (*RefMut[K, V], TryResult) {
	s := m.shardOf(key)
	if !s.tryLock() {
		return nil, TryLocked
	}
	if c, ok := s.table[key]; ok {
		return &RefMut[K, V]{sh: s, key: key, cell: c}, TryPresent
	}
	s.unlock()
	return nil, TryAbsent
}

// Load returns a copy of the value stored under key.
func (m *Map[K, V]) Load(key K) (value V, ok bool) {
	s := m.shardOf(key)
	s.rlock()
	defer s.runlock()
	if c, ok := s.table[key]; ok {
		return c.value, true
	}
	return value, false
}

// View calls fn with the stored pair while holding the shard's read lock
// and reports whether key was present. fn must not call back into the map.
func (m *Map[K, V]) View(key K, fn func(key K, value V)) bool {
	s := m.shardOf(key)
	s.rlock()
	defer s.runlock()
	c, ok := s.table[key]
	if ok {
		fn(key, c.value)
	}
	return ok
}

// ContainsKey reports whether key is present.
func (m *Map[K, V]) ContainsKey(key K) bool {
	s := m.shardOf(key)
	s.rlock()
	defer s.runlock()
	_, ok := s.table[key]
	return ok
}

// Alter replaces the value under key with fn(key, old) and reports whether
// key was present. fn runs under the shard's write lock.
func (m *Map[K, V]) Alter(key K, fn func(key K, value V) V) bool {
	s := m.shardOf(key)
	s.lock()
	defer s.unlockRecover()
	c, ok := s.table[key]
	if ok {
		c.value = fn(key, c.value)
	}
	return ok
}

// AlterAll replaces every value with fn(key, old), one shard at a time.
func (m *Map[K, V]) AlterAll(fn func(key K, value V) V) {
	shards := m.table()
	for i := range shards {
		alterShard(&shards[i], fn)
	}
}

func alterShard[K comparable, V any](s *shard[K, V], fn func(K, V) V) {
	s.lock()
	defer s.unlockRecover()
	for k, c := range s.table {
		c.value = fn(k, c.value)
	}
}

// Retain keeps only the entries for which fn returns true. Shards are
// write-locked one at a time, in index order; fn may modify the value.
func (m *Map[K, V]) Retain(fn func(key K, value *V) bool) {
	shards := m.table()
	for i := range shards {
		retainShard(&shards[i], fn)
	}
}

func retainShard[K comparable, V any](s *shard[K, V], fn func(K, *V) bool) {
	s.lock()
	defer s.unlockRecover()
	for k, c := range s.table {
		if !fn(k, &c.value) {
			delete(s.table, k)
		}
	}
}

// Len returns the number of entries.
//
// Shards are counted one at a time, so under concurrent writers the result
// is a best-effort snapshot: it never corresponds to a single instant.
func (m *Map[K, V]) Len() int {
	shards := m.table()
	n := 0
	for i := range shards {
		s := &shards[i]
		s.rlock()
		n += len(s.table)
		s.runlock()
	}
	return n
}

// IsEmpty reports whether Len is zero. Same consistency caveat as Len.
func (m *Map[K, V]) IsEmpty() bool {
	shards := m.table()
	for i := range shards {
		s := &shards[i]
		s.rlock()
		n := len(s.table)
		s.runlock()
		if n != 0 {
			return false
		}
	}
	return true
}

// Capacity returns the number of entries the shards can hold without
// growing. Same consistency caveat as Len.
func (m *Map[K, V]) Capacity() int {
	shards := m.table()
	n := 0
	for i := range shards {
		s := &shards[i]
		s.rlock()
		n += max(s.peak, len(s.table))
		s.runlock()
	}
	return n
}

// Clear removes all entries, one shard at a time. Capacity is kept.
func (m *Map[K, V]) Clear() {
	shards := m.table()
	for i := range shards {
		s := &shards[i]
		s.lock()
		clear(s.table)
		s.unlock()
	}
}

// ShrinkToFit rebuilds every shard's table at its current length, one
// shard at a time.
func (m *Map[K, V]) ShrinkToFit() {
	shards := m.table()
	before, after := 0, 0
	for i := range shards {
		s := &shards[i]
		s.lock()
		before += s.shrink()
		after += s.peak
		s.unlock()
	}
	if m.log != nil {
		m.log.Debug().Int("before", before).Int("after", after).Msg("shardmap: shrunk to fit")
	}
}

// Entry locks the shard owning key for writing and returns an entry that
// is occupied if key is present and vacant otherwise. The lock is held
// until the entry is consumed or released.
//
// Locking behaviour: may deadlock if called while holding any guard into
// the same shard.
func (m *Map[K, V]) Entry(key K) *Entry[K, V] {
	s := m.shardOf(key)
	s.lock()
	return &Entry[K, V]{sh: s, key: key, cell: s.table[key]}
}

// TryEntry is the non-blocking form of Entry. It returns false if the
// shard is locked elsewhere.
func (m *Map[K, V]) TryEntry(key K) (*Entry[K, V], bool) {
	s := m.shardOf(key)
	if !s.tryLock() {
		return nil, false
	}
	return &Entry[K, V]{sh: s, key: key, cell: s.table[key]}, true
}

// Clone returns a copy with the same shard layout and hasher. Source
// shards are read-locked one at a time.
func (m *Map[K, V]) Clone() *Map[K, V] {
	shards := m.table()
	c := &Map[K, V]{shift: m.shift, seed: m.seed, hash: m.hash, log: m.log}
	c.shards = make([]shard[K, V], len(shards))
	for i := range shards {
		src, dst := &shards[i], &c.shards[i]
		src.rlock()
		dst.init(i, max(src.peak, len(src.table)), m.log)
		for k, v := range src.table {
			dst.table[k] = NewSharedValue(v.value)
		}
		src.runlock()
	}
	return c
}

// Extend inserts every pair produced by seq.
func (m *Map[K, V]) Extend(seq func(yield func(K, V) bool)) {
	for k, v := range seq {
		m.Insert(k, v)
	}
}

// ToMap returns a copy of the contents as a built-in map.
func (m *Map[K, V]) ToMap() map[K]V {
	out := make(map[K]V)
	m.Range(func(k K, v V) bool {
		out[k] = v
		return true
	})
	return out
}

// String formats the contents like a built-in map.
func (m *Map[K, V]) String() string {
	return fmt.Sprint(m.ToMap())
}

// IntoReadOnly moves the map into a ReadOnlyView. The receiver must not be
// used afterwards, and no other goroutine may be using it during the call.
func (m *Map[K, V]) IntoReadOnly() *ReadOnlyView[K, V] {
	return &ReadOnlyView[K, V]{m: m.move()}
}

func (m *Map[K, V]) move() *Map[K, V] {
	n := &Map[K, V]{shards: m.table(), shift: m.shift, seed: m.seed, hash: m.hash, log: m.log}
	m.shards, m.hash = nil, nil
	return n
}
