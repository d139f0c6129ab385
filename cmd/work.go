package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/podhaven/crawler/internal/clock/system"
	"github.com/podhaven/crawler/internal/dispatch"
	"github.com/podhaven/crawler/internal/jobs"
)

func newWorkCmd() *cobra.Command {
	var runOnce bool
	cmd := &cobra.Command{
		Use:   "work",
		Short: "Work the durable job queue",
		Long: `Selects live jobs whose try time has passed and runs their handlers.
Completed jobs are deleted; failed jobs are retried with an escalating
backoff; jobs with no registered handler are parked dead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			workers := a.Cfg.Jobs
			worker := &jobs.Worker{
				DB:       a.Pool,
				Registry: jobs.DefaultRegistry(a.Log),
				Clock:    system.New(),
				Cfg: dispatch.Config{
					NumWorkers:   workers.NumWorkers,
					BatchSize:    workers.BatchSize,
					PollInterval: workers.PollInterval(),
					RunForever:   !runOnce,
				},
				Log: a.Log,
			}

			total, err := worker.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			a.Log.Info("job worker finished", zap.Int64("num_worked", total))
			return nil
		},
	}
	cmd.Flags().BoolVar(&runOnce, "run-once", false, "drain due jobs once and exit")
	return cmd
}
