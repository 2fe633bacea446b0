package cmd

import (
	"fmt"

	"github.com/mselser95/arena-settle/internal/app"
	"github.com/mselser95/arena-settle/internal/storage"
	"github.com/mselser95/arena-settle/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the Postgres schema",
}

//nolint:gochecknoglobals // Cobra boilerplate
var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *storage.Migrator, _ *zap.Logger) error {
			return m.Up()
		})
	},
}

//nolint:gochecknoglobals // Cobra boilerplate
var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		return withMigrator(func(m *storage.Migrator, _ *zap.Logger) error {
			return m.Down(steps)
		})
	},
}

//nolint:gochecknoglobals // Cobra boilerplate
var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *storage.Migrator, _ *zap.Logger) error {
			status, err := m.Status()
			if err != nil {
				return err
			}
			if !status.Applied {
				fmt.Println("No migrations applied")
				return nil
			}
			fmt.Printf("Version: %d\nDirty:   %t\n", status.Version, status.Dirty)
			return nil
		})
	},
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	migrateDownCmd.Flags().Int("steps", 1, "Number of migrations to roll back")
}

func withMigrator(fn func(m *storage.Migrator, logger *zap.Logger) error) error {
	cfg := config.Load()
	err := cfg.ValidateStorage()
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if cfg.StorageMode != string(storage.ModePostgres) {
		return fmt.Errorf("migrations need STORAGE_MODE=postgres, got %q", cfg.StorageMode)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	migrator, err := storage.NewMigrator(app.PostgresDSN(cfg), logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		_ = migrator.Close()
	}()

	return fn(migrator, logger)
}
