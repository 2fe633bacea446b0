package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mselser95/arena-settle/internal/settlement"
	"github.com/mselser95/arena-settle/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Manually settle or cancel a market",
	Long: `Settles a market with the given winning outcome, or cancels it with --cancel.

Both operations are idempotent: a market that already has a resolution
is reported and left untouched.

--remaining pays bets left open on an already resolved market, using the
recorded winning outcome. The poller reports such markets as needing
attention and stops polling them.`,
	Example: `  arena-settle resolve --source kalshi --market KXRAIN-26 --outcome yes
  arena-settle resolve --source internal --market comp-42 --cancel
  arena-settle resolve --source polymarket --market 521947 --remaining`,
	RunE: runResolve,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().String("source", "", "Market source: polymarket, kalshi or internal")
	resolveCmd.Flags().String("market", "", "Venue market id")
	resolveCmd.Flags().String("outcome", "", "Winning outcome")
	resolveCmd.Flags().Bool("cancel", false, "Cancel the market and refund stakes instead of settling")
	resolveCmd.Flags().Bool("remaining", false, "Settle bets still open on a resolved market with its recorded outcome")
	_ = resolveCmd.MarkFlagRequired("source")
	_ = resolveCmd.MarkFlagRequired("market")
	resolveCmd.MarkFlagsMutuallyExclusive("outcome", "cancel", "remaining")
	resolveCmd.MarkFlagsOneRequired("outcome", "cancel", "remaining")
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Get flags
	sourceFlag, _ := cmd.Flags().GetString("source")
	marketID, _ := cmd.Flags().GetString("market")
	outcome, _ := cmd.Flags().GetString("outcome")
	cancelMarket, _ := cmd.Flags().GetBool("cancel")
	remaining, _ := cmd.Flags().GetBool("remaining")

	source, err := types.ParseSource(sourceFlag)
	if err != nil {
		return err
	}
	key := types.MarketKey{Source: source, MarketID: marketID}

	core, _, cleanup, err := openCore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var res *settlement.Result
	switch {
	case cancelMarket:
		res, err = core.Engine.CancelMarket(ctx, key)
	case remaining:
		res, err = core.Engine.SettleRemaining(ctx, key)
	default:
		res, err = core.Engine.ManualResolve(ctx, key, outcome)
	}
	if err != nil {
		return fmt.Errorf("resolve %s: %w", key, err)
	}

	printResult(res)
	return nil
}

func printResult(res *settlement.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "Market:\t%s\n", res.Market)
	switch {
	case res.AlreadyResolved:
		fmt.Fprintf(w, "Status:\talready resolved, nothing paid\n")
		return
	case res.AlreadyCancelled:
		fmt.Fprintf(w, "Status:\talready cancelled\n")
		return
	case res.WinningOutcome == "":
		fmt.Fprintf(w, "Status:\tcancelled\n")
	default:
		fmt.Fprintf(w, "Status:\tsettled\n")
		fmt.Fprintf(w, "Winning outcome:\t%s\n", res.WinningOutcome)
	}
	fmt.Fprintf(w, "Bets settled:\t%d\n", res.BetsSettled)
	fmt.Fprintf(w, "Bets failed:\t%d\n", res.BetsFailed)
	fmt.Fprintf(w, "Paper bets settled:\t%d\n", res.PaperBetsSettled)
	fmt.Fprintf(w, "Total payout:\t%s\n", formatCents(res.TotalPayoutCents))
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
