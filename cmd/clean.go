package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/podhaven/crawler/internal/clean"
)

func newCleanCmd() *cobra.Command {
	var runOnce bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove feed content snapshots beyond the retention limit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			cleaner := &clean.Cleaner{
				DB:               a.Pool,
				RetentionLimit:   int(a.Cfg.Clean.RetentionLimit),
				DeleteBatchLimit: int(a.Cfg.Clean.DeleteBatchLimit),
				PollInterval:     a.Cfg.Clean.PollInterval(),
				Log:              a.Log,
			}

			if runOnce {
				total, err := cleaner.Clean(ctx)
				if err != nil {
					return err
				}
				a.Log.Info("clean finished", zap.Int64("num_deleted", total))
				return nil
			}

			if err := cleaner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&runOnce, "run-once", false, "run a single clean pass and exit")
	return cmd
}
