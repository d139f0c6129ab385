// Package feed parses and validates podcast RSS documents.
//
// The parser is deliberately tolerant: real-world feeds carry unescaped
// ampersands, duplicate elements, unknown extensions and arbitrary element
// ordering, and the scan degrades to best effort instead of aborting. Only a
// document with no rss or channel element at all is rejected.
package feed

import "time"

// PodcastRaw holds channel-level fields exactly as found in the document.
// Empty means the element was absent.
type PodcastRaw struct {
	Title    string
	Language string
	LinkURL  string
	ImageURL string
}

// EpisodeRaw holds item-level fields exactly as found in the document.
type EpisodeRaw struct {
	GUID        string
	Title       string
	Description string
	LinkURL     string
	MediaURL    string
	MediaType   string
	PublishedAt string
	Explicit    *bool
}

// PodcastIns is a validated podcast ready for insertion.
type PodcastIns struct {
	Title    string
	Language string
	LinkURL  string
	ImageURL string
}

// EpisodeIns is a validated episode ready for insertion.
type EpisodeIns struct {
	GUID        string
	Title       string
	Description string
	LinkURL     string
	MediaURL    string
	MediaType   string
	PublishedAt time.Time
	Explicit    *bool
}
