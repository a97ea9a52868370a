package cache

import (
	"context"
	"testing"
	"time"
)

func TestSetThenGetHits(t *testing.T) {
	c, err := New(1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	cols := []uint32{1, 2, 3}

	if _, ok := c.Get(ctx, "shard-a", cols); ok {
		t.Fatalf("expected a miss before any Set")
	}

	c.Set("shard-a", cols, 42, time.Minute)
	c.Wait()

	got, ok := c.Get(ctx, "shard-a", cols)
	if !ok {
		t.Fatalf("expected a hit after Set")
	}
	if got != 42 {
		t.Fatalf("Get = %d, want 42", got)
	}
}

func TestDifferentShardsDoNotCollide(t *testing.T) {
	c, err := New(1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	cols := []uint32{5, 6}

	c.Set("shard-a", cols, 1, time.Minute)
	c.Set("shard-b", cols, 2, time.Minute)
	c.Wait()

	a, _ := c.Get(ctx, "shard-a", cols)
	b, _ := c.Get(ctx, "shard-b", cols)
	if a == b {
		t.Fatalf("distinct shards must not share a cache entry: got %d and %d", a, b)
	}
}
