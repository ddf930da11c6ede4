//go:build shardmap_disable_padding

package opt

// PaddingMult_ is zero when padding is force-disabled via the
// shardmap_disable_padding build tag, trading false sharing for memory.
const PaddingMult_ = 0
