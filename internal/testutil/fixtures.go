// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/mselser95/arena-settle/internal/storage"
	"github.com/mselser95/arena-settle/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// FundWallet creates userID's wallet and deposits cents into it.
func FundWallet(t *testing.T, store storage.Store, userID string, cents int64) *types.Wallet {
	t.Helper()
	ctx := context.Background()

	w, err := store.GetOrCreateWallet(ctx, userID)
	require.NoError(t, err)

	w, err = store.ApplyTransaction(ctx, &types.Transaction{
		WalletID:       w.ID,
		Type:           types.TxDeposit,
		AmountCents:    cents,
		Provider:       types.ProviderGateway,
		ProviderRef:    "cs_seed_" + userID,
		IdempotencyKey: "seed-" + userID,
		Status:         types.TxStatusCompleted,
	})
	require.NoError(t, err)
	return w
}

// NewBet returns an unsaved bet of cents on outcome.
func NewBet(w *types.Wallet, key types.MarketKey, outcome string, cents int64) *types.Bet {
	return &types.Bet{
		WalletID:    w.ID,
		UserID:      w.UserID,
		Source:      key.Source,
		MarketID:    key.MarketID,
		Outcome:     outcome,
		AmountCents: cents,
	}
}

// NewPaperBet returns an unsaved paper bet. amount and shares are decimal strings.
func NewPaperBet(userID string, key types.MarketKey, outcome, amount, shares string) *types.PaperBet {
	return &types.PaperBet{
		UserID:   userID,
		Source:   key.Source,
		MarketID: key.MarketID,
		Outcome:  outcome,
		Amount:   decimal.RequireFromString(amount),
		Shares:   decimal.RequireFromString(shares),
	}
}

// PlaceFundedBet funds a fresh wallet with fundCents and places a bet of betCents.
func PlaceFundedBet(t *testing.T, store storage.Store, userID string, key types.MarketKey, outcome string, fundCents, betCents int64) (*types.Wallet, *types.Bet) {
	t.Helper()

	w := FundWallet(t, store, userID, fundCents)
	bet := NewBet(w, key, outcome, betCents)
	w, err := store.PlaceBet(context.Background(), bet)
	require.NoError(t, err)
	return w, bet
}
