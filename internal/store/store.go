// Package store persists shard sketches to a local BadgerDB, keyed by a
// shard ID. This is host infrastructure, not part of the sketch core: the
// core never does I/O, so something has to own "where do the bytes live
// between Add calls" — here, that's badger.
package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tvondra/omnisketch/internal/resilience"
	"github.com/tvondra/omnisketch/sketch"
)

// ErrNotFound is returned when a shard ID has no stored sketch.
var ErrNotFound = errors.New("omnisketch: shard not found")

// Store wraps BadgerDB with shard-keyed sketch persistence and otel
// counters, guarded by a circuit breaker so a wedged disk degrades to
// errors instead of blocking every caller behind badger's own retries.
type Store struct {
	mu      sync.RWMutex
	db      *badger.DB
	writes  metric.Int64Counter
	reads   metric.Int64Counter
	bytesIn metric.Int64Histogram
	breaker *resilience.CircuitBreaker
}

// Open returns a store rooted at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(filepath.Clean(path)).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	m := otel.Meter("omnisketch")
	writes, _ := m.Int64Counter("omnisketch_store_writes_total")
	reads, _ := m.Int64Counter("omnisketch_store_reads_total")
	bytesIn, _ := m.Int64Histogram("omnisketch_store_sketch_bytes")
	return &Store{
		db:      db,
		writes:  writes,
		reads:   reads,
		bytesIn: bytesIn,
		breaker: resilience.NewBadgerTransactionBreaker(),
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func shardKey(shardID string) []byte {
	return append([]byte("shard:"), []byte(shardID)...)
}

// SaveShard serializes sketch and writes it under shardID, overwriting any
// prior value.
func (s *Store) SaveShard(ctx context.Context, shardID string, sk *sketch.Sketch) error {
	if !s.breaker.Allow() {
		return errors.New("omnisketch: store circuit open, rejecting write")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	raw := sk.ToBytes()
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(shardKey(shardID), raw)
	})
	s.breaker.RecordResult(err == nil)
	if err != nil {
		return err
	}
	s.writes.Add(ctx, 1, metric.WithAttributes(attribute.String("shard", shardID)))
	s.bytesIn.Record(ctx, int64(len(raw)))
	return nil
}

// LoadShard reads and deserializes the sketch stored under shardID.
func (s *Store) LoadShard(ctx context.Context, shardID string) (*sketch.Sketch, error) {
	if !s.breaker.Allow() {
		return nil, errors.New("omnisketch: store circuit open, rejecting read")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(shardKey(shardID))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	s.breaker.RecordResult(err == nil || errors.Is(err, badger.ErrKeyNotFound))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.reads.Add(ctx, 1, metric.WithAttributes(attribute.String("shard", shardID)))
	return sketch.FromBytes(raw)
}

// DeleteShard removes a shard's stored sketch, if present.
func (s *Store) DeleteShard(shardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(shardKey(shardID))
	})
}

// ListShards returns every shard ID currently stored, in key order.
func (s *Store) ListShards() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opt := badger.DefaultIteratorOptions
		opt.PrefetchValues = false
		it := txn.NewIterator(opt)
		defer it.Close()
		prefix := []byte("shard:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			ids = append(ids, string(k[len(prefix):]))
		}
		return nil
	})
	return ids, err
}
