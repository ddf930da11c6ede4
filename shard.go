package shardmap

import (
	"sync"
	"sync/atomic"

	"github.com/phuslu/log"

	"github.com/llxisdsh/shardmap/internal/opt"
)

// shard is one independently lockable partition of a Map.
//
// All fields except poisoned are guarded by mu. poisoned is atomic so that
// diagnostics can read it without taking the lock.
type shard[K comparable, V any] struct {
	mu       sync.RWMutex
	poisoned atomic.Bool
	cause    any
	idx      int
	// peak approximates the number of allocated slots: Go maps never give
	// buckets back, so the high-water mark of len is what the table holds.
	peak   int
	table  map[K]*SharedValue[V]
	tracer lockTracer
	log    *log.Logger
	_      [opt.CacheLineSize_ * opt.PaddingMult_]byte
}

// lockTracer observes shard lock transitions. Only tests install one.
type lockTracer interface {
	acquired(shard int, write bool)
	released(shard int, write bool)
}

func (s *shard[K, V]) init(idx, capacity int, logger *log.Logger) {
	s.idx = idx
	s.peak = capacity
	s.table = make(map[K]*SharedValue[V], min(capacity, maxPresize))
	s.log = logger
}

// lock acquires the write lock, panicking with *PoisonError if a previous
// holder panicked.
func (s *shard[K, V]) lock() {
	s.mu.Lock()
	if s.poisoned.Load() {
		s.mu.Unlock()
		panic(&PoisonError{Shard: s.idx, Cause: s.cause})
	}
	if s.tracer != nil {
		s.tracer.acquired(s.idx, true)
	}
}

func (s *shard[K, V]) tryLock() bool {
	if !s.mu.TryLock() {
		return false
	}
	if s.poisoned.Load() {
		s.mu.Unlock()
		panic(&PoisonError{Shard: s.idx, Cause: s.cause})
	}
	if s.tracer != nil {
		s.tracer.acquired(s.idx, true)
	}
	return true
}

func (s *shard[K, V]) unlock() {
	if s.tracer != nil {
		s.tracer.released(s.idx, true)
	}
	s.mu.Unlock()
}

// rlock acquires the read lock, panicking with *PoisonError if the shard
// is poisoned.
func (s *shard[K, V]) rlock() {
	s.mu.RLock()
	if s.poisoned.Load() {
		s.mu.RUnlock()
		panic(&PoisonError{Shard: s.idx, Cause: s.cause})
	}
	if s.tracer != nil {
		s.tracer.acquired(s.idx, false)
	}
}

func (s *shard[K, V]) tryRLock() bool {
	if !s.mu.TryRLock() {
		return false
	}
	if s.poisoned.Load() {
		s.mu.RUnlock()
		panic(&PoisonError{Shard: s.idx, Cause: s.cause})
	}
	if s.tracer != nil {
		s.tracer.acquired(s.idx, false)
	}
	return true
}

func (s *shard[K, V]) runlock() {
	if s.tracer != nil {
		s.tracer.released(s.idx, false)
	}
	s.mu.RUnlock()
}

// unlockRecover is deferred by write-locked sections that run caller code
// and release the lock on return. A panic poisons the shard first.
func (s *shard[K, V]) unlockRecover() {
	if r := recover(); r != nil {
		s.poison(r)
		s.unlock()
		panic(r)
	}
	s.unlock()
}

// poison must be called with the write lock held.
func (s *shard[K, V]) poison(cause any) {
	s.cause = cause
	s.poisoned.Store(true)
	if s.log != nil {
		s.log.Error().Int("shard", s.idx).Interface("panic", cause).Msg("shardmap: shard poisoned")
	}
}

// insert must be called with the write lock held.
func (s *shard[K, V]) insert(key K, value V) (previous V, loaded bool) {
	if c, ok := s.table[key]; ok {
		previous = c.value
		c.value = value
		return previous, true
	}
	s.table[key] = NewSharedValue(value)
	s.grew()
	return previous, false
}

// grew records table growth; must be called with the write lock held.
func (s *shard[K, V]) grew() {
	if n := len(s.table); n > s.peak {
		s.peak = n
	}
}

// shrink rebuilds the table at its current length, releasing the
// buckets Go keeps after deletes. Must be called with the write lock held.
func (s *shard[K, V]) shrink() (before int) {
	before = s.peak
	t := make(map[K]*SharedValue[V], len(s.table))
	for k, c := range s.table {
		t[k] = c
	}
	s.table = t
	s.peak = len(t)
	return before
}

// snapshot copies the shard's entries under the read lock.
func (s *shard[K, V]) snapshot(keys []K, values []V) ([]K, []V) {
	s.rlock()
	defer s.runlock()
	for k, c := range s.table {
		keys = append(keys, k)
		values = append(values, c.value)
	}
	return keys, values
}
