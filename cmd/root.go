// Package cmd defines the CLI commands for the podhaven crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/podhaven/crawler/internal/app"
)

var rootOpts app.Options

// appKeyType keys the App in the command context.
type appKeyType struct{}

// newApp builds the application container. Tests replace it with a factory
// returning a stub.
var newApp = func(ctx context.Context) (*app.App, error) {
	return app.New(ctx, rootOpts)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "podhaven-crawler",
		Short: "Podcast feed crawler and catalog service",
		Long: `podhaven-crawler ingests podcast RSS feeds into Postgres. It follows
pending directory entries, fetches and parses their feeds, and keeps the
podcast and episode catalog up to date. Companion commands serve the catalog
over HTTP, work the durable job queue, and enforce snapshot retention.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initializing application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKeyType{}, a))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKeyType{}).(*app.App); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&rootOpts.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&rootOpts.Quiet, "quiet", false, "log warnings and errors only")
	cmd.PersistentFlags().BoolVar(&rootOpts.LogAsync, "log-async", false, "buffer log writes")
	cmd.PersistentFlags().Int32Var(&rootOpts.NumConnections, "num-connections", 0,
		"override the database connection pool size")

	cmd.AddCommand(
		newAddCmd(),
		newAPICmd(),
		newCleanCmd(),
		newCrawlCmd(),
		newMigrateCmd(),
		newReingestCmd(),
		newWorkCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKeyType{}).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// signalContext returns a context canceled by SIGINT or SIGTERM.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// Execute is the entry point called by main.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
