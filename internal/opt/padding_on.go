//go:build !shardmap_disable_padding

package opt

// PaddingMult_ scales the trailing pad of every shard.
// Each shard is followed by one full cache line so the lock words of two
// neighbouring shards never land on the same line.
//
// Disable with: go build -tags=shardmap_disable_padding
const PaddingMult_ = 1
