package cmd

import (
	"github.com/spf13/cobra"

	"github.com/podhaven/crawler/internal/store/migrations"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply any pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := migrations.Run(a.Cfg.DB.URL); err != nil {
				return err
			}
			a.Log.Info("database schema up to date")
			return nil
		},
	}
}
