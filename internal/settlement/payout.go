package settlement

import (
	"strings"

	"github.com/mselser95/arena-settle/pkg/types"
	"github.com/shopspring/decimal"
)

// PayoutMultiplier is the fixed-odds return on a winning real-money stake.
// It assumes two-sided, equal-stake matching; odds and partial fills are not modelled.
const PayoutMultiplier = 2

// Wins reports whether outcome matches the winning outcome. Venue casing varies.
func Wins(outcome, winningOutcome string) bool {
	return strings.EqualFold(strings.TrimSpace(outcome), strings.TrimSpace(winningOutcome))
}

// Payout returns the cents credited for a real-money bet.
func Payout(bet *types.Bet, winningOutcome string) int64 {
	if !Wins(bet.Outcome, winningOutcome) {
		return 0
	}
	return bet.AmountCents * PayoutMultiplier
}

// PaperPayout returns payout, profit and resolution label for a paper bet.
// A winning share is worth one unit.
func PaperPayout(bet *types.PaperBet, winningOutcome string) (payout, profit decimal.Decimal, resolution string) {
	if Wins(bet.Outcome, winningOutcome) {
		payout = bet.Shares
		resolution = types.PaperWon
	} else {
		payout = decimal.Zero
		resolution = types.PaperLost
	}
	return payout, payout.Sub(bet.Amount), resolution
}
