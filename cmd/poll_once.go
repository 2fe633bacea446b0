package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var pollOnceCmd = &cobra.Command{
	Use:   "poll-once",
	Short: "Run a single resolution poll and exit",
	Long: `Runs one poller tick: checks every market with unresolved bets against
its venue, settles the resolved ones, and reconciles stale competition markets.`,
	RunE: runPollOnce,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(pollOnceCmd)
	pollOnceCmd.Flags().Duration("timeout", 5*time.Minute, "Maximum time for the tick")
}

func runPollOnce(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	core, _, cleanup, err := openCore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	res := core.Poller.Tick(ctx)
	if res.LockSkipped {
		fmt.Println("Another instance holds the poller lock; nothing done")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "Markets with open bets:\t%d\n", res.Markets)
	fmt.Fprintf(w, "Checked:\t%d\n", res.Checked)
	fmt.Fprintf(w, "Settled:\t%d\n", res.Settled)
	fmt.Fprintf(w, "Unresolved:\t%d\n", res.Unresolved)
	fmt.Fprintf(w, "Skipped:\t%d\n", res.Skipped)
	fmt.Fprintf(w, "Failed:\t%d\n", res.Failed)
	fmt.Fprintf(w, "Needs attention:\t%d\n", res.NeedsAttention)
	fmt.Fprintf(w, "Stale checked:\t%d\n", res.StaleChecked)
	fmt.Fprintf(w, "Stale settled:\t%d\n", res.StaleSettled)
	fmt.Fprintf(w, "Cancelled:\t%d\n", res.Cancelled)

	return nil
}
