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

func newReingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reingest",
		Short: "Replay stored feed content through the pipeline",
		Long: `Pages through every podcast and runs its most recent stored feed
snapshot back through parsing, validation, and the episode upsert. The
content-hash shortcut is bypassed, so this picks up data missed by earlier
parser versions without refetching anything.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			workers := a.Cfg.Reingest
			if err := store.CheckPoolSize(a.Pool.Config().MaxConns, workers.NumWorkers); err != nil {
				return err
			}

			reingester := &ingest.Reingester{
				Pool:   a.Pool,
				Hasher: sha256.New(),
				Clock:  system.New(),
				Cfg: dispatch.Config{
					NumWorkers: workers.NumWorkers,
					BatchSize:  workers.BatchSize,
				},
				Log: a.Log,
			}

			total, err := reingester.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			a.Log.Info("reingest finished", zap.Int64("num_podcasts", total))
			return nil
		},
	}
}
