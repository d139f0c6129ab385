package feed

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrMissingTitle fails validation for the entire feed: a podcast without a
// title is not worth storing.
var ErrMissingTitle = errors.New("missing title from podcast feed")

// ValidatePodcast converts a raw channel record into an insertable one.
func ValidatePodcast(raw PodcastRaw) (PodcastIns, error) {
	if raw.Title == "" {
		return PodcastIns{}, ErrMissingTitle
	}
	return PodcastIns{
		Title:    raw.Title,
		Language: raw.Language,
		LinkURL:  raw.LinkURL,
		ImageURL: raw.ImageURL,
	}, nil
}

// ValidateEpisodes converts raw items into insertable episodes. Items missing
// a required field are logged and dropped without failing the feed; a publish
// date that is present but unparseable fails the whole feed (see DateError).
func ValidateEpisodes(log *zap.Logger, raws []EpisodeRaw) ([]EpisodeIns, error) {
	episodes := make([]EpisodeIns, 0, len(raws))

	for _, raw := range raws {
		ins, reason, err := validateEpisode(raw)
		if err != nil {
			return nil, fmt.Errorf("converting feed item %q: %w", raw.GUID, err)
		}
		if reason != "" {
			log.Error("invalid episode in feed",
				zap.String("reason", reason),
				zap.String("episode_guid", raw.GUID),
			)
			continue
		}
		episodes = append(episodes, ins)
	}

	log.Info("converted episodes",
		zap.Int("num_valid", len(episodes)),
		zap.Int("num_invalid", len(raws)-len(episodes)),
	)
	return episodes, nil
}

// validateEpisode returns either an insertable episode, a non-empty skip
// reason, or a fatal error.
func validateEpisode(raw EpisodeRaw) (EpisodeIns, string, error) {
	if raw.GUID == "" {
		return EpisodeIns{}, "missing GUID from feed item", nil
	}
	if raw.MediaURL == "" {
		return EpisodeIns{}, "missing media URL from feed item", nil
	}
	if raw.PublishedAt == "" {
		return EpisodeIns{}, "missing publishing date from feed item", nil
	}
	if raw.Title == "" {
		return EpisodeIns{}, "missing title from feed item", nil
	}

	publishedAt, err := ParseDateTime(raw.PublishedAt)
	if err != nil {
		return EpisodeIns{}, "", err
	}

	return EpisodeIns{
		GUID:        raw.GUID,
		Title:       raw.Title,
		Description: raw.Description,
		LinkURL:     raw.LinkURL,
		MediaURL:    raw.MediaURL,
		MediaType:   raw.MediaType,
		PublishedAt: publishedAt,
		Explicit:    raw.Explicit,
	}, "", nil
}
