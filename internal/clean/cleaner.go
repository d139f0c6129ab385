// Package clean enforces the retention policy on feed content snapshots.
// Every podcast keeps its most recent snapshots; older rows are removed in
// bounded batches so a large backlog never turns into one giant delete.
package clean

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/podhaven/crawler/internal/metrics"
	"github.com/podhaven/crawler/internal/store"
)

// Defaults mirror the service configuration fallbacks.
const (
	DefaultRetentionLimit   = 10
	DefaultDeleteBatchLimit = 1000
)

const sqlDeleteExcessContent = `
DELETE FROM podcast_feed_content
WHERE id IN (
    SELECT id
    FROM (
        SELECT id,
               rank() OVER (
                   PARTITION BY podcast_id
                   ORDER BY retrieved_at DESC
               ) AS retrieval_rank
        FROM podcast_feed_content
    ) ranked
    WHERE retrieval_rank > $1
    LIMIT $2
)`

// Cleaner deletes feed content snapshots beyond the per-podcast retention
// limit.
type Cleaner struct {
	DB store.Querier
	// RetentionLimit is how many snapshots each podcast keeps.
	RetentionLimit int
	// DeleteBatchLimit caps the rows removed per statement.
	DeleteBatchLimit int
	// PollInterval is how long Run sleeps between passes.
	PollInterval time.Duration
	Log          *zap.Logger
}

// Clean runs delete batches until a batch comes back short, meaning no
// excess rows remain. It returns the total number of rows removed.
func (c *Cleaner) Clean(ctx context.Context) (int64, error) {
	retention := c.RetentionLimit
	if retention <= 0 {
		retention = DefaultRetentionLimit
	}
	batch := c.DeleteBatchLimit
	if batch <= 0 {
		batch = DefaultDeleteBatchLimit
	}

	var total int64
	for {
		tag, err := c.DB.Exec(ctx, sqlDeleteExcessContent, retention, batch)
		if err != nil {
			return total, err
		}
		deleted := tag.RowsAffected()
		total += deleted
		if deleted < int64(batch) {
			break
		}
	}

	if total > 0 {
		metrics.ContentRowsCleaned(total)
		c.Log.Info("removed excess feed content snapshots",
			zap.Int64("num_deleted", total))
	}
	return total, nil
}

// Run cleans in a loop until the context is canceled, sleeping PollInterval
// between passes. It is meant to run on its own goroutine alongside the
// crawl loop.
func (c *Cleaner) Run(ctx context.Context) error {
	for {
		if _, err := c.Clean(ctx); err != nil {
			c.Log.Error("clean pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.PollInterval):
		}
	}
}
