// Package main provides shardmap-stress, a load generator for shardmap.
//
// The run command drives a mixed read/write workload against a
// shardmap.Map (or a pb.MapOf baseline) from many goroutines, optionally
// rate limited, and can expose per-shard Prometheus metrics while it runs.
// The shards command prints how a key set distributes over the shards.
package main
