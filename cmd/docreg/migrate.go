package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Logging, cmd.ErrOrStderr())

			// Opening the database applies pending migrations
			db, err := a.openDB(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("ping database: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date\n", cfg.Database.Path)
			return nil
		},
	}
}
