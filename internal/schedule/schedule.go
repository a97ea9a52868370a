// Package schedule runs periodic maintenance over stored shard sketches:
// compacting every shard's samples into canonical sorted order so queries
// never pay Finalize's cost inline, on a cron schedule.
package schedule

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/tvondra/omnisketch/internal/obs"
	"github.com/tvondra/omnisketch/internal/store"
)

// Compactor finalizes every stored shard on a cron schedule.
type Compactor struct {
	cron    *cron.Cron
	store   *store.Store
	runs    metric.Int64Counter
	fails   metric.Int64Counter
	entryID cron.EntryID
}

// NewCompactor constructs a Compactor backed by st. Call AddSchedule then
// Start.
func NewCompactor(st *store.Store) *Compactor {
	m := otel.Meter("omnisketch")
	runs, _ := m.Int64Counter("omnisketch_compaction_runs_total")
	fails, _ := m.Int64Counter("omnisketch_compaction_failures_total")
	return &Compactor{
		cron:  cron.New(cron.WithSeconds()),
		store: st,
		runs:  runs,
		fails: fails,
	}
}

// AddSchedule registers the compaction job under a standard 6-field cron
// expression (seconds precision, matching the teacher's scheduler
// convention).
func (c *Compactor) AddSchedule(ctx context.Context, cronExpr string) error {
	id, err := c.cron.AddFunc(cronExpr, func() {
		c.compactAll(ctx)
	})
	if err != nil {
		return err
	}
	c.entryID = id
	return nil
}

// Start begins running scheduled compactions.
func (c *Compactor) Start() { c.cron.Start() }

// Stop stops the scheduler, then blocks until any in-flight compaction
// finishes or ctx is done, whichever comes first.
func (c *Compactor) Stop(ctx context.Context) error {
	stopCtx := c.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Compactor) compactAll(ctx context.Context) {
	ids, err := c.store.ListShards()
	if err != nil {
		slog.Warn("compaction: listing shards failed", "error", err)
		c.fails.Add(ctx, 1)
		return
	}
	for _, id := range ids {
		if err := c.compactOne(ctx, id); err != nil {
			obs.WithShard(slog.Default(), id).Warn("compaction: shard failed", "error", err)
			c.fails.Add(ctx, 1)
			continue
		}
		c.runs.Add(ctx, 1)
	}
}

func (c *Compactor) compactOne(ctx context.Context, shardID string) error {
	sk, err := c.store.LoadShard(ctx, shardID)
	if err != nil {
		return err
	}
	sk.Finalize()
	return c.store.SaveShard(ctx, shardID, sk)
}
