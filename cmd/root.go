package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "arena-settle",
	Short: "Wallet ledger and market settlement service",
	Long: `Wallet ledger and market settlement service for the prediction arena.

It credits wallets from signed payment-gateway webhooks, polls Polymarket
and Kalshi for market resolutions, and settles locked bets exactly once.`,
	PersistentPreRun: loadDotEnv,
	SilenceUsage:     true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadDotEnv lets local runs keep their settings in a .env file. Real
// environment variables always win.
func loadDotEnv(cmd *cobra.Command, _ []string) {
	envFile, _ := cmd.Flags().GetString("env-file")
	err := godotenv.Load(envFile)
	if err != nil && cmd.Flags().Changed("env-file") {
		fmt.Fprintf(os.Stderr, "Warning: could not load %s: %v\n", envFile, err)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to a dotenv file")
}
