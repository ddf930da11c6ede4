package shardmap

import (
	"math"
	"math/bits"
)

const (
	intSize = 32 << (^uint(0) >> 63) // 32 or 64

	// shardSkipBits is the number of top hash bits ignored by shard
	// selection; the bits right below them pick the shard.
	shardSkipBits = 7

	// maxPresize bounds the table allocated up front for one shard.
	// Capacity still reports the full hint.
	maxPresize = 1 << 16
)

// nextPowOf2 calculates the smallest power of 2 that is greater than or equal
// to n.
// Compatible with both 32-bit and 64-bit systems.
//
//go:nosplit
func nextPowOf2(n int) int {
	if n <= 0 {
		return 1
	}
	v := n - 1
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	if intSize == 64 {
		v |= v >> 32
	}
	return v + 1
}

// shardShift returns the right shift that maps a hash (after dropping the
// top shardSkipBits) to a shard index in [0, shards).
// shards must be a power of two.
func shardShift(shards int) uint {
	return 64 - uint(bits.TrailingZeros(uint(shards)))
}

// perShardCapacity rounds capacity up to a multiple of shards and returns
// each shard's share.
func perShardCapacity(capacity, shards int) int {
	if capacity <= 0 {
		return 0
	}
	capacity = min(capacity, math.MaxInt-shards+1)
	capacity = (capacity + shards - 1) &^ (shards - 1)
	return capacity / shards
}

// noCopy may be added to structs which must not be copied
// after the first use.
//
// See https://golang.org/issues/8005#issuecomment-190753527
// for details.
//
// Note that it must not be embedded, due to the Lock and Unlock methods.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
