package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/username/threadline/internal/adapters/storage/sqlite"
	"github.com/username/threadline/internal/pkg/factory"
	"github.com/username/threadline/internal/pkg/logutil"
	"github.com/username/threadline/pkg/config"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "threadline-migrate",
		Short:         "Apply the execution ledger migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return errors.Wrap(err, "failed to load configuration")
			}
			logger := factory.NewLogger(cfg.Logging)

			logger.Info("Running database migrations", logutil.Fields{"database": cfg.Database.Path})

			ledger, err := sqlite.NewAdapter(cfg.Database.Path, logger)
			if err != nil {
				return errors.Wrap(err, "failed to open ledger")
			}
			defer ledger.Close()

			if err := ledger.Migrate(cmd.Context()); err != nil {
				return errors.Wrap(err, "migration failed")
			}

			applied, err := ledger.AppliedMigrations(cmd.Context())
			if err != nil {
				return err
			}
			for _, version := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			}

			logger.Info("Migrations completed successfully", logutil.Fields{"applied": len(applied)})
			return nil
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to configuration file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
