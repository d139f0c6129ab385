package ingest

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/podhaven/crawler/internal/dispatch"
	"github.com/podhaven/crawler/internal/store"
)

const sqlSelectPendingDirectoryPodcasts = `
SELECT id, directory_id, feed_url, podcast_id, vendor_id, title
FROM directory_podcast
WHERE feed_url IS NOT NULL
ORDER BY id
LIMIT $1`

// SelectPendingDirectoryPodcasts returns directory entries still awaiting
// ingestion, oldest first.
func SelectPendingDirectoryPodcasts(ctx context.Context, q store.Querier, limit int) ([]store.DirectoryPodcast, error) {
	rows, err := q.Query(ctx, sqlSelectPendingDirectoryPodcasts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []store.DirectoryPodcast
	for rows.Next() {
		var dp store.DirectoryPodcast
		if err := rows.Scan(&dp.ID, &dp.DirectoryID, &dp.FeedURL, &dp.PodcastID, &dp.VendorID, &dp.Title); err != nil {
			return nil, err
		}
		pending = append(pending, dp)
	}
	return pending, rows.Err()
}

type crawlResult struct {
	dp  store.DirectoryPodcast
	res Result
	err error
}

// Crawler drains pending directory entries through the ingestion pipeline.
type Crawler struct {
	Pool    *pgxpool.Pool
	Updater *DirectoryPodcastUpdater
	Cfg     dispatch.Config
	Log     *zap.Logger
}

// Run dispatches pending entries until none remain (one-shot) or the context
// is canceled (continuous). It returns the number of entries processed.
func (c *Crawler) Run(ctx context.Context) (int64, error) {
	hooks := dispatch.Hooks[store.DirectoryPodcast, crawlResult]{
		Source: func(ctx context.Context) ([]store.DirectoryPodcast, error) {
			return SelectPendingDirectoryPodcasts(ctx, c.Pool, c.Cfg.BatchSize)
		},
		Start: func(ctx context.Context, _ int) (dispatch.WorkFunc[store.DirectoryPodcast, crawlResult], func(), error) {
			conn, err := c.Pool.Acquire(ctx)
			if err != nil {
				return nil, nil, err
			}
			fn := func(ctx context.Context, dp store.DirectoryPodcast) crawlResult {
				res, err := c.Updater.Update(ctx, conn, dp)
				return crawlResult{dp: dp, res: res, err: err}
			}
			return fn, conn.Release, nil
		},
		Failed: func(dp store.DirectoryPodcast, err error) crawlResult {
			return crawlResult{dp: dp, err: err}
		},
		Report: func(_ context.Context, results []crawlResult) error {
			for _, r := range results {
				if r.err != nil {
					c.Log.Error("directory podcast ingestion failed",
						zap.Int64("directory_podcast_id", r.dp.ID),
						zap.Error(r.err))
				}
			}
			return nil
		},
	}

	d, err := dispatch.New(c.Cfg, hooks, c.Log.Named("crawl"))
	if err != nil {
		return 0, err
	}
	return d.Run(ctx)
}
