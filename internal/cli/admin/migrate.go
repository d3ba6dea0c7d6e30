package admin

import (
	"fmt"

	"github.com/cloo-solutions/supportkb/internal/config"
	"github.com/cloo-solutions/supportkb/internal/database"
	"github.com/cloo-solutions/supportkb/internal/logging"
	"github.com/spf13/cobra"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger := logging.New(logging.Config{Debug: cfg.Debug, File: cfg.LogFile})
			defer func() { _ = logger.Sync() }()

			return database.Migrate(cfg.DatabaseURL, logger)
		},
	}
}
