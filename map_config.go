package shardmap

import (
	"runtime"

	"github.com/phuslu/log"
)

// ============================================================================
// Configuration
// ============================================================================

// MapConfig defines configurable options for Map initialization.
// It is only ever populated through the With* option functions.
type MapConfig struct {
	// shardAmount is the number of shards. Must be a power of two.
	// If zero, DefaultShardAmount is used.
	shardAmount int

	// capacity provides an estimate of the expected number of entries.
	// It is rounded up to a multiple of the shard amount and split evenly
	// across the shards' tables.
	capacity int

	// keyHash holds a func(K, uint64) uint64 set by WithKeyHasher. It is
	// type-checked against the map's key type at construction.
	keyHash any

	// algo selects the built-in hasher when keyHash is nil.
	algo HashAlgorithm

	// seed feeds the key hasher. Random unless WithSeed is given.
	seed    uint64
	seedSet bool

	// logger receives construction, shrink and poisoning events.
	logger *log.Logger
}

// DefaultShardAmount returns the shard amount used when WithShardAmount is
// not given: four shards per available CPU, rounded up to a power of two.
func DefaultShardAmount() int {
	return max(2, nextPowOf2(runtime.GOMAXPROCS(0)*4))
}

// WithShardAmount fixes the number of shards. n must be a power of two
// greater than zero; anything else panics.
//
// The shard amount never changes after construction.
func WithShardAmount(n int) func(*MapConfig) {
	if n <= 0 || n&(n-1) != 0 {
		misuse("shard amount %d is not a positive power of two", n)
	}
	return func(c *MapConfig) {
		c.shardAmount = n
	}
}

// WithCapacity configures the map with room for at least capacity entries
// before any shard's table has to grow. Zero or negative values are ignored.
func WithCapacity(capacity int) func(*MapConfig) {
	return func(c *MapConfig) {
		c.capacity = capacity
	}
}

// WithKeyHasher sets a custom key hashing function.
//
// The seed passed to keyHash is the map's seed (see WithSeed). The function
// must be deterministic for equal keys: it decides both the shard and, via
// DetermineShard, the result of HashKey.
//
// Usage:
//
//	m := NewMap[string, int](WithKeyHasher(func(k string, seed uint64) uint64 {
//		return xxh3.HashStringSeed(strings.ToLower(k), seed)
//	}))
//
// Passing a hasher whose key type differs from the map's panics at NewMap.
func WithKeyHasher[K comparable](keyHash func(key K, seed uint64) uint64) func(*MapConfig) {
	return func(c *MapConfig) {
		if keyHash != nil {
			c.keyHash = keyHash
		}
	}
}

// WithHashAlgorithm selects one of the built-in key hashers.
func WithHashAlgorithm(algo HashAlgorithm) func(*MapConfig) {
	return func(c *MapConfig) {
		c.algo = algo
	}
}

// WithSeed fixes the hash seed, making shard placement of string and
// integer keys reproducible across processes. Keys hashed with maphash
// always use a per-map random seed.
func WithSeed(seed uint64) func(*MapConfig) {
	return func(c *MapConfig) {
		c.seed = seed
		c.seedSet = true
	}
}

// WithLogger attaches a logger. A nil logger disables logging (the default).
func WithLogger(logger *log.Logger) func(*MapConfig) {
	return func(c *MapConfig) {
		c.logger = logger
	}
}
