package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tvondra/omnisketch/sketch"
)

func TestSaveAndLoadShardRoundTrip(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "badger"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	sk, err := sketch.New(0.1, 0.1, 2)
	if err != nil {
		t.Fatalf("sketch.New: %v", err)
	}
	for i := uint32(0); i < 10; i++ {
		if err := sk.Add([]uint32{i, i + 1}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	sk.Finalize()

	ctx := context.Background()
	if err := st.SaveShard(ctx, "shard-a", sk); err != nil {
		t.Fatalf("SaveShard: %v", err)
	}

	back, err := st.LoadShard(ctx, "shard-a")
	if err != nil {
		t.Fatalf("LoadShard: %v", err)
	}
	if back.Count() != sk.Count() {
		t.Fatalf("LoadShard count = %d, want %d", back.Count(), sk.Count())
	}
}

func TestLoadMissingShardReturnsErrNotFound(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "badger"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	_, err = st.LoadShard(context.Background(), "does-not-exist")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListShardsReturnsAllSaved(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "badger"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	sk, err := sketch.New(0.2, 0.2, 1)
	if err != nil {
		t.Fatalf("sketch.New: %v", err)
	}
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := st.SaveShard(ctx, id, sk); err != nil {
			t.Fatalf("SaveShard(%s): %v", id, err)
		}
	}

	ids, err := st.ListShards()
	if err != nil {
		t.Fatalf("ListShards: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("ListShards returned %d ids, want 3: %v", len(ids), ids)
	}
}
