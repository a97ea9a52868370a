// Package cache memoizes Estimate results behind a ristretto cache keyed
// by (shard, predicate), since repeated identical queries against a large
// finalized sketch are common and Estimate's cost scales with C*D.
package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// EstimateCache caches Estimate(columnHashes) results for any number of
// shards, keyed by shard ID.
type EstimateCache struct {
	rc     *ristretto.Cache
	hits   metric.Int64Counter
	misses metric.Int64Counter
}

// New constructs an EstimateCache sized for roughly maxEntries cached
// estimates (ristretto sizes internally off cost, which this package
// always reports as 1 per entry).
func New(maxEntries int64) (*EstimateCache, error) {
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("omnisketch: constructing estimate cache: %w", err)
	}
	m := otel.Meter("omnisketch")
	hits, _ := m.Int64Counter("omnisketch_cache_hits_total")
	misses, _ := m.Int64Counter("omnisketch_cache_misses_total")
	return &EstimateCache{rc: rc, hits: hits, misses: misses}, nil
}

// key derives a cache key from a shard ID and the query's column hashes;
// the hashes are already the sketch's own hashed representation, so no
// further hashing is needed beyond concatenation.
func key(shardID string, columnHashes []uint32) string {
	buf := make([]byte, 4*len(columnHashes))
	for i, h := range columnHashes {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], h)
	}
	return shardID + ":" + string(buf)
}

// Get returns a cached estimate for (shardID, columnHashes), if present.
func (c *EstimateCache) Get(ctx context.Context, shardID string, columnHashes []uint32) (int64, bool) {
	v, ok := c.rc.Get(key(shardID, columnHashes))
	if !ok {
		c.misses.Add(ctx, 1)
		return 0, false
	}
	c.hits.Add(ctx, 1)
	return v.(int64), true
}

// Set stores an estimate for (shardID, columnHashes), valid for ttl.
func (c *EstimateCache) Set(shardID string, columnHashes []uint32, estimate int64, ttl time.Duration) {
	c.rc.SetWithTTL(key(shardID, columnHashes), estimate, 1, ttl)
}

// Invalidate drops the cached estimate for (shardID, columnHashes) only;
// other predicates cached for the same shard stay cached. Ristretto has no
// prefix-delete, so callers that need a hard
// invalidation (e.g. after a shard's sketch is recombined) should instead
// fold a monotonically increasing generation number into shardID.
func (c *EstimateCache) Invalidate(shardID string, columnHashes []uint32) {
	c.rc.Del(key(shardID, columnHashes))
}

// Wait blocks until ristretto's internal buffers have drained, useful in
// tests that assert on Get immediately after Set.
func (c *EstimateCache) Wait() { c.rc.Wait() }
