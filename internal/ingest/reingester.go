package ingest

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/podhaven/crawler/internal/dispatch"
	"github.com/podhaven/crawler/internal/fetch"
	"github.com/podhaven/crawler/internal/hash/sha256"
	"github.com/podhaven/crawler/internal/store"
)

// ReingestUnit is one podcast's most recent stored snapshot, replayed through
// the pipeline without touching the network.
type ReingestUnit struct {
	PodcastID int64
	FeedURL   string
	Content   string
}

const sqlSelectReingestBatch = `
SELECT p.id, l.feed_url, c.content
FROM podcast p
JOIN LATERAL (
    SELECT feed_url
    FROM podcast_feed_location
    WHERE podcast_id = p.id
    ORDER BY last_retrieved_at DESC
    LIMIT 1
) l ON true
JOIN LATERAL (
    SELECT content
    FROM podcast_feed_content
    WHERE podcast_id = p.id
    ORDER BY retrieved_at DESC
    LIMIT 1
) c ON true
WHERE p.id > $1
ORDER BY p.id
LIMIT $2`

// SelectReingestBatch pages through all podcasts by id, pairing each with its
// latest feed location and content snapshot.
func SelectReingestBatch(ctx context.Context, q store.Querier, afterID int64, limit int) ([]ReingestUnit, error) {
	rows, err := q.Query(ctx, sqlSelectReingestBatch, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []ReingestUnit
	for rows.Next() {
		var u ReingestUnit
		if err := rows.Scan(&u.PodcastID, &u.FeedURL, &u.Content); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

type reingestResult struct {
	unit ReingestUnit
	err  error
}

// Reingester replays every podcast's stored feed content through the parse,
// validate and upsert stages. It always bypasses the content-hash shortcut,
// which makes it the recovery path after parser or validation fixes.
type Reingester struct {
	Pool   *pgxpool.Pool
	Hasher *sha256.Hasher
	Clock  Clock
	Cfg    dispatch.Config
	Log    *zap.Logger
}

// Run pages through all podcasts exactly once and returns the number
// reingested.
func (r *Reingester) Run(ctx context.Context) (int64, error) {
	cfg := r.Cfg
	cfg.RunForever = false

	// Keyset cursor; only the control loop touches it.
	var afterID int64

	hooks := dispatch.Hooks[ReingestUnit, reingestResult]{
		Source: func(ctx context.Context) ([]ReingestUnit, error) {
			units, err := SelectReingestBatch(ctx, r.Pool, afterID, cfg.BatchSize)
			if err != nil {
				return nil, err
			}
			if len(units) > 0 {
				afterID = units[len(units)-1].PodcastID
			}
			return units, nil
		},
		Start: func(ctx context.Context, _ int) (dispatch.WorkFunc[ReingestUnit, reingestResult], func(), error) {
			conn, err := r.Pool.Acquire(ctx)
			if err != nil {
				return nil, nil, err
			}
			fn := func(ctx context.Context, unit ReingestUnit) reingestResult {
				updater := &PodcastUpdater{
					Fetcher:         &fetch.PassThrough{Data: []byte(unit.Content)},
					Hasher:          r.Hasher,
					Clock:           r.Clock,
					Log:             r.Log,
					DisableShortcut: true,
				}
				_, err := updater.Update(ctx, conn, unit.FeedURL)
				return reingestResult{unit: unit, err: err}
			}
			return fn, conn.Release, nil
		},
		Failed: func(unit ReingestUnit, err error) reingestResult {
			return reingestResult{unit: unit, err: err}
		},
		Report: func(_ context.Context, results []reingestResult) error {
			for _, res := range results {
				if res.err != nil {
					r.Log.Error("podcast reingestion failed",
						zap.Int64("podcast_id", res.unit.PodcastID),
						zap.Error(res.err))
				}
			}
			return nil
		},
	}

	d, err := dispatch.New(cfg, hooks, r.Log.Named("reingest"))
	if err != nil {
		return 0, err
	}
	return d.Run(ctx)
}
