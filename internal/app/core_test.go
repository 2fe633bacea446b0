package app

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mselser95/arena-settle/internal/webhook"
	"github.com/mselser95/arena-settle/pkg/config"
	"github.com/mselser95/arena-settle/pkg/healthprobe"
	"github.com/mselser95/arena-settle/pkg/httpserver"
	"github.com/mselser95/arena-settle/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSecret = "whsec_test"

func memoryConfig(gammaURL string) *config.Config {
	cfg := config.Load()
	cfg.StorageMode = "memory"
	cfg.EventsMode = "log"
	cfg.RedisAddr = ""
	cfg.PolymarketGammaURL = gammaURL
	cfg.PaymentWebhookSecret = testSecret
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

func TestBuildCore_Validation(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)

	tests := []struct {
		name    string
		cfg     func() *config.Config
		wantErr string
	}{
		{name: "nil-config", cfg: func() *config.Config { return nil }, wantErr: "config cannot be nil"},
		{
			name: "unknown-storage-mode",
			cfg: func() *config.Config {
				c := memoryConfig("http://127.0.0.1:0")
				c.StorageMode = "sqlite"
				return c
			},
			wantErr: "unknown storage mode",
		},
		{
			name: "unknown-events-mode",
			cfg: func() *config.Config {
				c := memoryConfig("http://127.0.0.1:0")
				c.EventsMode = "carrier-pigeon"
				return c
			},
			wantErr: "unknown events mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, err := BuildCore(context.Background(), tt.cfg(), logger)
			require.Error(t, err)
			assert.Nil(t, core)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuildCore_Memory(t *testing.T) {
	t.Parallel()

	core, err := BuildCore(context.Background(), memoryConfig("http://127.0.0.1:0"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close(context.Background()) })

	require.Len(t, core.Clients, 2)
	assert.Equal(t, types.SourcePolymarket, core.Clients[0].Source())
	assert.Equal(t, types.SourceKalshi, core.Clients[1].Source())

	statuses := core.Breakers.Statuses()
	require.Len(t, statuses, 2)
	for _, s := range statuses {
		assert.Equal(t, "CLOSED", s.State)
	}

	assert.NoError(t, core.RedisPing(context.Background()))
	assert.NoError(t, core.Store.Ping(context.Background()))
}

// Deposit through the signed webhook, stake half of it, let the poller see the
// venue resolve the market in the user's favour, then replay the deposit.
func TestDepositBetSettleReplay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var venueCalls atomic.Int32
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		venueCalls.Add(1)
		if r.URL.Path != "/markets/521947" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"521947","question":"Will it rain?","closed":true,"archived":true,"outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"1\",\"0\"]"}`)
	}))
	t.Cleanup(gamma.Close)

	logger := zaptest.NewLogger(t)
	cfg := memoryConfig(gamma.URL)

	core, err := BuildCore(ctx, cfg, logger)
	require.NoError(t, err)
	core.Events.Start(ctx)
	t.Cleanup(func() { _ = core.Close(context.Background()) })

	handler, dedup, err := setupWebhook(cfg, logger, core)
	require.NoError(t, err)
	t.Cleanup(dedup.Close)

	router := httpserver.NewRouter(&httpserver.Config{
		Logger:        logger,
		HealthChecker: healthprobe.New(),
		Webhook:       handler,
		Wallets:       core.Store,
	})

	deposit := func() *httptest.ResponseRecorder {
		payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{` +
			`"id":"cs_test_1","amount_total":10000,"currency":"usd",` +
			`"metadata":{"userId":"alice","idempotencyKey":"K1"}}}}`)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(payload))
		req.Header.Set(webhook.SignatureHeader, webhook.Sign(payload, testSecret, time.Now()))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	first := deposit()
	require.Equal(t, http.StatusOK, first.Code)
	assert.Contains(t, first.Body.String(), `"credited"`)

	wallet, err := core.Ledger.GetWalletByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), wallet.BalanceCents)

	bet := &types.Bet{
		WalletID:    wallet.ID,
		UserID:      "alice",
		Source:      types.SourcePolymarket,
		MarketID:    "521947",
		Outcome:     "Yes",
		AmountCents: 5000,
	}
	locked, err := core.Ledger.PlaceBet(ctx, bet)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), locked.BalanceCents)
	assert.Equal(t, int64(5000), locked.PendingCents)

	res := core.Poller.Tick(ctx)
	assert.Equal(t, 1, res.Markets)
	assert.Equal(t, 1, res.Settled)
	assert.Equal(t, 0, res.Failed)

	settled, err := core.Ledger.GetWalletByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(20000), settled.BalanceCents)
	assert.Equal(t, int64(0), settled.PendingCents)

	got, err := core.Store.GetBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BetResolved, got.Status)
	assert.Equal(t, int64(10000), got.PayoutCents)

	// A second tick finds nothing to do and a replayed deposit is absorbed.
	res = core.Poller.Tick(ctx)
	assert.Equal(t, 0, res.Markets)

	replay := deposit()
	require.Equal(t, http.StatusOK, replay.Code)
	assert.Contains(t, replay.Body.String(), `"duplicate"`)

	final, err := core.Ledger.GetWalletByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(20000), final.BalanceCents)
	assert.Equal(t, int64(0), final.PendingCents)

	market, err := core.Store.GetMarket(ctx, bet.Key())
	require.NoError(t, err)
	assert.Equal(t, types.MarketStatusSettled, market.Status)
	assert.Equal(t, int32(1), venueCalls.Load())
}

func TestManualResolveThroughAdminAPI(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	logger := zaptest.NewLogger(t)
	core, err := BuildCore(ctx, memoryConfig("http://127.0.0.1:0"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close(context.Background()) })

	wallet, err := core.Ledger.GetOrCreateWallet(ctx, "bob")
	require.NoError(t, err)
	_, err = core.Store.ApplyTransaction(ctx, &types.Transaction{
		WalletID:       wallet.ID,
		Type:           types.TxDeposit,
		AmountCents:    4000,
		Provider:       types.ProviderGateway,
		IdempotencyKey: "seed-bob",
	})
	require.NoError(t, err)

	bet := &types.Bet{WalletID: wallet.ID, UserID: "bob", Source: types.SourceKalshi, MarketID: "KXRAIN-26", Outcome: "no", AmountCents: 1000}
	_, err = core.Ledger.PlaceBet(ctx, bet)
	require.NoError(t, err)

	router := httpserver.NewRouter(&httpserver.Config{
		Logger:        logger,
		HealthChecker: healthprobe.New(),
		Resolver:      core.Engine,
		AdminToken:    "tok",
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/markets/kalshi/KXRAIN-26/resolve",
			bytes.NewBufferString(`{"winning_outcome":"yes"}`))
		req.Header.Set("Authorization", "Bearer tok")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		if i == 1 {
			assert.Contains(t, w.Body.String(), `"already_resolved":true`)
		}
	}

	// Loss: stake leaves pending, balance keeps the deposit.
	got, err := core.Ledger.GetWalletByUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(4000), got.BalanceCents)
	assert.Equal(t, int64(0), got.PendingCents)
}
