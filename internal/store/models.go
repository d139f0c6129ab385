package store

import (
	"encoding/json"
	"time"
)

// Podcast is one row per distinct feed subscription.
type Podcast struct {
	ID              int64
	Title           string
	LinkURL         *string
	ImageURL        *string
	Language        *string
	LastRetrievedAt time.Time
}

// Episode belongs to a podcast; unique per (podcast_id, guid).
type Episode struct {
	ID          int64
	PodcastID   int64
	GUID        string
	Title       string
	MediaURL    string
	MediaType   *string
	LinkURL     *string
	Description *string
	Explicit    *bool
	PublishedAt time.Time
}

// PodcastFeedContent is an append-only snapshot of a fetched feed body.
type PodcastFeedContent struct {
	ID          int64
	PodcastID   int64
	Content     string
	SHA256Hash  string
	RetrievedAt time.Time
}

// PodcastFeedLocation tracks the feed URLs a podcast has been fetched from.
type PodcastFeedLocation struct {
	ID               int64
	PodcastID        int64
	FeedURL          string
	FirstRetrievedAt time.Time
	LastRetrievedAt  time.Time
}

// Directory is an external podcast index, e.g. Apple iTunes.
type Directory struct {
	ID   int64
	Name string
}

// DirectoryPodcast bridges a directory entry to an internal podcast. A
// non-nil FeedURL marks the entry as awaiting ingestion; it is cleared in the
// same transaction that links PodcastID.
type DirectoryPodcast struct {
	ID          int64
	DirectoryID int64
	FeedURL     *string
	PodcastID   *int64
	VendorID    string
	Title       string
}

// Job is one durable unit of queued work. Deletion is the completion signal;
// a failed run pushes TryAt into the future and bumps NumErrors.
type Job struct {
	ID        int64
	Name      string
	Args      json.RawMessage
	TryAt     time.Time
	Live      bool
	NumErrors int32
}

// Account is an authentication identity, consumed read-only here.
type Account struct {
	ID         int64
	Email      string
	LastSeenAt time.Time
}

// Key carries an account's bearer secret.
type Key struct {
	ID        int64
	AccountID int64
	Secret    string
}
