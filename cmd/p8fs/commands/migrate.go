package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/p8fs/p8fs/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Apply pending schema migrations to the configured database.

Required after upgrading p8fs when schema changes have been made, and before
the first worker run against a fresh database.

Examples:
  # Run migrations with default config
  p8fs migrate

  # Run migrations with custom config
  p8fs migrate --config /etc/p8fs/config.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger.Info("Running database migrations", "provider", cfg.Database.Provider)

	ctx := context.Background()
	prov, err := newStorageProvider(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = prov.Close() }()

	if err := prov.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Printf("Migrations completed successfully (provider: %s)\n", cfg.Database.Provider)
	return nil
}
