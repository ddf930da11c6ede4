package shardmap

// ShardStat describes one shard at the moment it was read.
type ShardStat struct {
	Index    int
	Len      int
	Capacity int
	Poisoned bool
}

func (m *Map[K, V]) rawShard(i int) *shard[K, V] {
	shards := m.table()
	if i < 0 || i >= len(shards) {
		misuse("shard index %d out of range [0, %d)", i, len(shards))
	}
	return &shards[i]
}

// ReadShard calls fn with shard i's table while holding its read lock.
// fn must not modify the table or the cells, nor keep them after returning.
func (m *Map[K, V]) ReadShard(i int, fn func(table map[K]*SharedValue[V])) {
	s := m.rawShard(i)
	s.rlock()
	defer s.runlock()
	fn(s.table)
}

// WriteShard calls fn with shard i's table while holding its write lock.
// Entries fn adds must land in shard i (see DetermineMap), otherwise they
// become unreachable through key lookups. A panic in fn poisons the shard.
func (m *Map[K, V]) WriteShard(i int, fn func(table map[K]*SharedValue[V])) {
	s := m.rawShard(i)
	s.lock()
	defer s.unlockRecover()
	fn(s.table)
	s.grew()
}

// ShardStats reports every shard, one at a time. Poisoned shards are
// reported without taking their lock.
func (m *Map[K, V]) ShardStats() []ShardStat {
	shards := m.table()
	stats := make([]ShardStat, len(shards))
	for i := range shards {
		s := &shards[i]
		stats[i].Index = i
		if s.poisoned.Load() {
			stats[i].Poisoned = true
			continue
		}
		s.mu.RLock()
		stats[i].Len = len(s.table)
		stats[i].Capacity = max(s.peak, len(s.table))
		stats[i].Poisoned = s.poisoned.Load()
		s.mu.RUnlock()
	}
	return stats
}
