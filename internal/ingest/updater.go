// Package ingest implements the feed ingestion pipeline: fetch a feed,
// fingerprint it, parse and validate it, and upsert the results in one
// transaction. The crawl and reingest mediators drive this pipeline through
// the shared dispatcher.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/podhaven/crawler/internal/feed"
	"github.com/podhaven/crawler/internal/fetch"
	"github.com/podhaven/crawler/internal/hash/sha256"
	"github.com/podhaven/crawler/internal/logging"
	"github.com/podhaven/crawler/internal/metrics"
	"github.com/podhaven/crawler/internal/store"
)

// Clock abstracts time.Now so tests can pin timestamps.
type Clock interface {
	Now() time.Time
}

// Result reports the outcome of one feed ingestion.
type Result struct {
	PodcastID   int64
	NumEpisodes int
	NumSkipped  int

	// Skipped is set when the fetched content hashed identically to the
	// last stored snapshot and nothing was written.
	Skipped bool
}

// PodcastUpdater ingests a single feed URL end to end.
type PodcastUpdater struct {
	Fetcher fetch.Fetcher
	Hasher  *sha256.Hasher
	Clock   Clock
	Log     *zap.Logger

	// DisableShortcut forces a full reingestion even when the content
	// hash is unchanged, used after parser or validation fixes.
	DisableShortcut bool
}

const sqlLatestContent = `
SELECT l.podcast_id, c.sha256_hash
FROM podcast_feed_location l
LEFT JOIN LATERAL (
    SELECT sha256_hash
    FROM podcast_feed_content
    WHERE podcast_id = l.podcast_id
    ORDER BY retrieved_at DESC
    LIMIT 1
) c ON true
WHERE l.feed_url = $1
ORDER BY l.last_retrieved_at DESC
LIMIT 1`

const sqlInsertPodcast = `
INSERT INTO podcast (title, link_url, image_url, language, last_retrieved_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`

const sqlUpdatePodcast = `
UPDATE podcast
SET title = $2, link_url = $3, image_url = $4, language = $5, last_retrieved_at = $6
WHERE id = $1`

const sqlUpsertLocation = `
INSERT INTO podcast_feed_location (podcast_id, feed_url, first_retrieved_at, last_retrieved_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (podcast_id, feed_url)
DO UPDATE SET last_retrieved_at = EXCLUDED.last_retrieved_at`

const sqlInsertContent = `
INSERT INTO podcast_feed_content (podcast_id, content, sha256_hash, retrieved_at)
VALUES ($1, $2, $3, $4)`

const sqlUpsertEpisode = `
INSERT INTO episode
    (podcast_id, guid, title, media_url, media_type, link_url, description, explicit, published_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (podcast_id, guid)
DO UPDATE SET
    title = EXCLUDED.title,
    media_url = EXCLUDED.media_url,
    media_type = EXCLUDED.media_type,
    link_url = EXCLUDED.link_url,
    description = EXCLUDED.description,
    explicit = EXCLUDED.explicit,
    published_at = EXCLUDED.published_at`

// Update fetches the feed and runs the full ingestion transaction against
// db, which is typically a pooled connection pinned by a dispatcher worker.
func (u *PodcastUpdater) Update(ctx context.Context, db store.DB, feedURL string) (Result, error) {
	return u.run(ctx, db, feedURL, nil)
}

// run is the shared body of Update and DirectoryPodcastUpdater.Update. The
// optional after hook runs inside the same transaction once the feed rows
// are written.
func (u *PodcastUpdater) run(
	ctx context.Context,
	db store.DB,
	feedURL string,
	after func(ctx context.Context, tx store.Querier, res Result) error,
) (Result, error) {
	log := u.Log.With(zap.String("feed_url", feedURL))
	defer logging.Timed(log, "update_podcast")()

	body, err := u.Fetcher.Fetch(ctx, feedURL)
	if err != nil {
		metrics.FeedIngested("fetch_error")
		return Result{}, err
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("beginning ingest transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := u.updateInTx(ctx, tx, log, feedURL, body)
	if err != nil {
		metrics.FeedIngested("error")
		return Result{}, err
	}
	// The after hook runs even on a shortcut skip: a directory entry whose
	// feed is already known still has to be linked, or it would be
	// selected again on the next poll.
	if after != nil {
		if err := after(ctx, tx, res); err != nil {
			metrics.FeedIngested("error")
			return Result{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("committing ingest transaction: %w", err)
	}

	if res.Skipped {
		metrics.FeedIngested("skipped")
		log.Info("feed content unchanged, skipping update",
			zap.Int64("podcast_id", res.PodcastID))
	} else {
		metrics.FeedIngested("ingested")
		metrics.EpisodesUpserted(res.NumEpisodes)
		metrics.EpisodesSkipped(res.NumSkipped)
		log.Info("ingested feed",
			zap.Int64("podcast_id", res.PodcastID),
			zap.Int("num_episodes", res.NumEpisodes))
	}
	return res, nil
}

func (u *PodcastUpdater) updateInTx(
	ctx context.Context,
	tx store.Querier,
	log *zap.Logger,
	feedURL string,
	body []byte,
) (Result, error) {
	// Serializes concurrent ingestion of the same feed URL across
	// processes, so crawl and reingest runs cannot interleave writes for
	// one podcast.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, feedURL); err != nil {
		return Result{}, fmt.Errorf("taking feed advisory lock: %w", err)
	}

	digest := u.Hasher.Hash(body)
	now := u.Clock.Now()

	var existingID *int64
	var lastHash *string
	err := tx.QueryRow(ctx, sqlLatestContent, feedURL).Scan(&existingID, &lastHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Result{}, fmt.Errorf("looking up last feed content: %w", err)
	}

	if !u.DisableShortcut && existingID != nil && lastHash != nil && *lastHash == digest {
		return Result{PodcastID: *existingID, Skipped: true}, nil
	}

	rawPodcast, rawEpisodes, err := feed.Parse(body)
	if err != nil {
		return Result{}, fmt.Errorf("parsing feed: %w", err)
	}
	podcast, err := feed.ValidatePodcast(rawPodcast)
	if err != nil {
		return Result{}, err
	}
	episodes, err := feed.ValidateEpisodes(log, rawEpisodes)
	if err != nil {
		return Result{}, err
	}

	var podcastID int64
	if existingID != nil {
		podcastID = *existingID
		_, err = tx.Exec(ctx, sqlUpdatePodcast, podcastID,
			podcast.Title, nullable(podcast.LinkURL), nullable(podcast.ImageURL),
			nullable(podcast.Language), now)
		if err != nil {
			return Result{}, fmt.Errorf("updating podcast %d: %w", podcastID, err)
		}
	} else {
		err = tx.QueryRow(ctx, sqlInsertPodcast,
			podcast.Title, nullable(podcast.LinkURL), nullable(podcast.ImageURL),
			nullable(podcast.Language), now).Scan(&podcastID)
		if err != nil {
			return Result{}, fmt.Errorf("inserting podcast: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, sqlUpsertLocation, podcastID, feedURL, now); err != nil {
		return Result{}, fmt.Errorf("upserting feed location: %w", err)
	}
	if _, err := tx.Exec(ctx, sqlInsertContent, podcastID, string(body), digest, now); err != nil {
		return Result{}, fmt.Errorf("inserting feed content: %w", err)
	}

	for _, ep := range episodes {
		_, err := tx.Exec(ctx, sqlUpsertEpisode, podcastID,
			ep.GUID, ep.Title, ep.MediaURL, nullable(ep.MediaType),
			nullable(ep.LinkURL), nullable(ep.Description), ep.Explicit, ep.PublishedAt)
		if err != nil {
			return Result{}, fmt.Errorf("upserting episode %q: %w", ep.GUID, err)
		}
	}

	return Result{
		PodcastID:   podcastID,
		NumEpisodes: len(episodes),
		NumSkipped:  len(rawEpisodes) - len(episodes),
	}, nil
}

// DirectoryPodcastUpdater ingests the feed behind a pending directory entry
// and, in the same transaction, links the entry to its podcast and clears the
// pending marker.
type DirectoryPodcastUpdater struct {
	Updater *PodcastUpdater
}

const sqlLinkDirectoryPodcast = `
UPDATE directory_podcast
SET podcast_id = $2, feed_url = NULL
WHERE id = $1`

// Update runs the ingestion pipeline for one directory entry.
func (u *DirectoryPodcastUpdater) Update(ctx context.Context, db store.DB, dp store.DirectoryPodcast) (Result, error) {
	if dp.FeedURL == nil {
		return Result{}, fmt.Errorf("directory podcast %d has no feed url to ingest", dp.ID)
	}
	return u.Updater.run(ctx, db, *dp.FeedURL,
		func(ctx context.Context, tx store.Querier, res Result) error {
			if _, err := tx.Exec(ctx, sqlLinkDirectoryPodcast, dp.ID, res.PodcastID); err != nil {
				return fmt.Errorf("linking directory podcast %d: %w", dp.ID, err)
			}
			return nil
		})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
