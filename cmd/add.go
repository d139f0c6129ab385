package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/podhaven/crawler/internal/clock/system"
	"github.com/podhaven/crawler/internal/hash/sha256"
	"github.com/podhaven/crawler/internal/ingest"
)

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <feed-url> [feed-url...]",
		Short: "Ingest one or more feed URLs immediately",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			updater := &ingest.PodcastUpdater{
				Fetcher: a.Fetcher(),
				Hasher:  sha256.New(),
				Clock:   system.New(),
				Log:     a.Log,
			}
			for _, feedURL := range args {
				res, err := updater.Update(ctx, a.Pool, feedURL)
				if err != nil {
					return err
				}
				a.Log.Info("added podcast",
					zap.String("feed_url", feedURL),
					zap.Int64("podcast_id", res.PodcastID),
					zap.Int("num_episodes", res.NumEpisodes))
			}
			return nil
		},
	}
}
