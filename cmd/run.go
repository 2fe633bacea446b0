package cmd

import (
	"fmt"

	"github.com/mselser95/arena-settle/internal/app"
	"github.com/mselser95/arena-settle/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the settlement service",
	Long: `Starts the settlement service, which will:
1. Accept signed payment webhooks and credit wallets idempotently
2. Poll venues for resolutions of markets with open bets
3. Settle or cancel markets exactly once
4. Serve admin, health and metrics endpoints

Use --migrate to apply schema migrations before starting.`,
	RunE: runService,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("migrate", false, "Apply pending schema migrations before starting (postgres only)")
	runCmd.Flags().Bool("no-poller", false, "Do not poll venues; serve webhooks and admin routes only")
}

func runService(cmd *cobra.Command, args []string) error {
	// Load config
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create logger
	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Get flags
	migrate, _ := cmd.Flags().GetBool("migrate")
	noPoller, _ := cmd.Flags().GetBool("no-poller")

	application, err := app.New(cfg, logger, &app.Options{
		Migrate:       migrate,
		DisablePoller: noPoller,
	})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	// Run app
	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
