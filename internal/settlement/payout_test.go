package settlement

import (
	"testing"

	"github.com/mselser95/arena-settle/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPayout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		outcome string
		winner  string
		amount  int64
		want    int64
	}{
		{name: "win-doubles-stake", outcome: "YES", winner: "YES", amount: 5000, want: 10000},
		{name: "loss-pays-zero", outcome: "NO", winner: "YES", amount: 5000, want: 0},
		{name: "case-insensitive", outcome: "Yes", winner: "YES", amount: 1, want: 2},
		{name: "agent-id-outcome", outcome: "agent-42", winner: "agent-42", amount: 300, want: 600},
		{name: "whitespace-ignored", outcome: " NO ", winner: "NO", amount: 10, want: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			bet := &types.Bet{Outcome: tt.outcome, AmountCents: tt.amount}
			assert.Equal(t, tt.want, Payout(bet, tt.winner))
		})
	}
}

func TestPaperPayout(t *testing.T) {
	t.Parallel()

	bet := &types.PaperBet{
		Outcome: "YES",
		Amount:  decimal.RequireFromString("12.50"),
		Shares:  decimal.RequireFromString("25.000001"),
	}

	payout, profit, resolution := PaperPayout(bet, "YES")
	assert.Equal(t, types.PaperWon, resolution)
	assert.Equal(t, "25.000001", payout.String())
	assert.Equal(t, "12.500001", profit.String())

	payout, profit, resolution = PaperPayout(bet, "NO")
	assert.Equal(t, types.PaperLost, resolution)
	assert.True(t, payout.IsZero())
	assert.Equal(t, "-12.5", profit.String())
}
