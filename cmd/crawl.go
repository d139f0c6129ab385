package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/podhaven/crawler/internal/clock/system"
	"github.com/podhaven/crawler/internal/dispatch"
	"github.com/podhaven/crawler/internal/hash/sha256"
	"github.com/podhaven/crawler/internal/ingest"
	"github.com/podhaven/crawler/internal/store"
)

func newCrawlCmd() *cobra.Command {
	var runOnce bool
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Ingest feeds for pending directory entries",
		Long: `Selects directory entries that still carry a feed URL, fetches and
parses each feed, and upserts the podcast and its episodes. By default the
command polls forever; --run-once drains the pending set and exits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			workers := a.Cfg.Crawl
			if err := store.CheckPoolSize(a.Pool.Config().MaxConns, workers.NumWorkers); err != nil {
				return err
			}

			crawler := &ingest.Crawler{
				Pool: a.Pool,
				Updater: &ingest.DirectoryPodcastUpdater{
					Updater: &ingest.PodcastUpdater{
						Fetcher: a.Fetcher(),
						Hasher:  sha256.New(),
						Clock:   system.New(),
						Log:     a.Log,
					},
				},
				Cfg: dispatch.Config{
					NumWorkers:   workers.NumWorkers,
					BatchSize:    workers.BatchSize,
					PollInterval: workers.PollInterval(),
					RunForever:   !runOnce,
				},
				Log: a.Log,
			}

			total, err := crawler.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			a.Log.Info("crawl finished", zap.Int64("num_processed", total))
			return nil
		},
	}
	cmd.Flags().BoolVar(&runOnce, "run-once", false, "drain pending entries once and exit")
	return cmd
}
