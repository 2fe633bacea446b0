//go:build integration

package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mselser95/arena-settle/internal/ledger"
	"github.com/mselser95/arena-settle/internal/settlement"
	"github.com/mselser95/arena-settle/internal/testutil"
	"github.com/mselser95/arena-settle/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPostgresIntegration(t *testing.T) {
	td := testutil.SetupTestDatabase(t)
	store := td.Store
	ctx := context.Background()

	t.Run("duplicate-deposit-is-rejected", func(t *testing.T) {
		w := testutil.FundWallet(t, store, "dup-user", 10000)
		assert.Equal(t, int64(10000), w.BalanceCents)

		_, err := store.ApplyTransaction(ctx, &types.Transaction{
			WalletID:       w.ID,
			Type:           types.TxDeposit,
			AmountCents:    10000,
			Provider:       types.ProviderGateway,
			IdempotencyKey: "seed-dup-user",
		})
		require.ErrorIs(t, err, types.ErrDuplicateIdempotencyKey)

		got, err := store.GetWallet(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), got.BalanceCents)
	})

	t.Run("concurrent-deposits-same-key", func(t *testing.T) {
		w, err := store.GetOrCreateWallet(ctx, "race-user")
		require.NoError(t, err)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			applied int
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.ApplyTransaction(ctx, &types.Transaction{
					WalletID:       w.ID,
					Type:           types.TxDeposit,
					AmountCents:    500,
					Provider:       types.ProviderGateway,
					IdempotencyKey: "race-key",
				})
				if err == nil {
					mu.Lock()
					applied++
					mu.Unlock()
					return
				}
				assert.True(t, errors.Is(err, types.ErrDuplicateIdempotencyKey), "unexpected error: %v", err)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, applied)
		got, err := store.GetWallet(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(500), got.BalanceCents)
	})

	t.Run("lock-beyond-available", func(t *testing.T) {
		w := testutil.FundWallet(t, store, "lock-user", 1000)
		_, err := store.LockFunds(ctx, w.ID, 1001)
		require.ErrorIs(t, err, types.ErrInsufficientAvailableFunds)

		_, err = store.ApplyTransaction(ctx, &types.Transaction{
			WalletID: w.ID, Type: types.TxWithdrawal, AmountCents: 1, Provider: types.ProviderGateway, IdempotencyKey: "wd-1",
		})
		require.NoError(t, err)
	})

	t.Run("settle-market-exactly-once", func(t *testing.T) {
		key := types.MarketKey{Source: types.SourcePolymarket, MarketID: "pg-521947"}
		winner, _ := testutil.PlaceFundedBet(t, store, "pg-alice", key, "Yes", 10000, 5000)
		loser, _ := testutil.PlaceFundedBet(t, store, "pg-bob", key, "No", 10000, 2500)
		require.NoError(t, store.InsertPaperBet(ctx, testutil.NewPaperBet("pg-carol", key, "YES", "10", "20")))

		l, err := ledger.New(&ledger.Config{Store: store, Logger: zaptest.NewLogger(t)})
		require.NoError(t, err)
		engine, err := settlement.New(&settlement.Config{Store: store, Ledger: l, Logger: zaptest.NewLogger(t)})
		require.NoError(t, err)

		var wg sync.WaitGroup
		results := make(chan *settlement.Result, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := engine.Settle(ctx, key, "yes")
				assert.NoError(t, err)
				results <- res
			}()
		}
		wg.Wait()
		close(results)

		fresh := 0
		for res := range results {
			if !res.AlreadyResolved {
				fresh++
				assert.Equal(t, 2, res.BetsSettled)
				assert.Equal(t, 1, res.PaperBetsSettled)
			}
		}
		assert.Equal(t, 1, fresh)

		w, err := store.GetWallet(ctx, winner.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(20000), w.BalanceCents)
		assert.Equal(t, int64(0), w.PendingCents)

		b, err := store.GetWallet(ctx, loser.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), b.BalanceCents)
		assert.Equal(t, int64(0), b.PendingCents)

		open, err := store.ListUnresolvedBetsForMarket(ctx, key)
		require.NoError(t, err)
		assert.Empty(t, open)

		market, err := store.GetMarket(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, types.MarketStatusSettled, market.Status)
	})

	t.Run("conflicting-outcomes-across-engines", func(t *testing.T) {
		key := types.MarketKey{Source: types.SourceKalshi, MarketID: "pg-KXRAIN"}
		yes, _ := testutil.PlaceFundedBet(t, store, "pg-yes", key, "YES", 10000, 4000)
		no, _ := testutil.PlaceFundedBet(t, store, "pg-no", key, "NO", 10000, 4000)

		outcomes := []string{"YES", "NO"}
		engines := make([]*settlement.Engine, len(outcomes))
		for i := range engines {
			l, err := ledger.New(&ledger.Config{Store: store, Logger: zaptest.NewLogger(t)})
			require.NoError(t, err)
			engines[i], err = settlement.New(&settlement.Config{Store: store, Ledger: l, Logger: zaptest.NewLogger(t)})
			require.NoError(t, err)
		}

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := engines[i%2].ManualResolve(ctx, key, outcomes[i%2])
				if err != nil {
					assert.ErrorIs(t, err, types.ErrResolutionConflict)
				}
			}(i)
		}
		wg.Wait()

		res, err := store.GetResolution(ctx, key)
		require.NoError(t, err)

		winner, loser := yes, no
		if res.WinningOutcome == "NO" {
			winner, loser = no, yes
		}
		w, err := store.GetWallet(ctx, winner.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(18000), w.BalanceCents)
		l, err := store.GetWallet(ctx, loser.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), l.BalanceCents)
		assert.Equal(t, int64(0), l.PendingCents)
	})

	t.Run("cancelled-competition-market", func(t *testing.T) {
		ended := time.Now().Add(-48 * time.Hour)
		require.NoError(t, store.UpsertCompetition(ctx, &types.Competition{
			ID: "comp-9", Status: types.CompetitionCancelled, EndedAt: &ended,
		}))
		require.NoError(t, store.UpsertMarket(ctx, &types.Market{
			Source: types.SourceInternal, ExternalID: "comp-9-winner", CompetitionID: "comp-9",
		}))

		open, err := store.ListOpenCompetitionMarkets(ctx)
		require.NoError(t, err)
		require.Len(t, open, 1)

		comp, err := store.GetCompetition(ctx, "comp-9")
		require.NoError(t, err)
		assert.Equal(t, types.CompetitionCancelled, comp.Status)

		require.NoError(t, store.SetMarketStatus(ctx, open[0].Key(), types.MarketStatusCancelled))
		require.NoError(t, store.SetMarketStatus(ctx, open[0].Key(), types.MarketStatusOpen))

		m, err := store.GetMarket(ctx, open[0].Key())
		require.NoError(t, err)
		assert.Equal(t, types.MarketStatusCancelled, m.Status)
	})
}
