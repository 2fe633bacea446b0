package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mselser95/arena-settle/internal/ledger"
	"github.com/mselser95/arena-settle/internal/storage"
	"github.com/mselser95/arena-settle/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSecret = "whsec_arena"

var testNow = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)

// mapCache is a synchronous cache; ristretto admission is asynchronous.
type mapCache struct {
	mu sync.Mutex
	m  map[string]interface{}
}

func newMapCache() *mapCache { return &mapCache{m: make(map[string]interface{})} }

func (c *mapCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *mapCache) Set(key string, value interface{}, _ time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return true
}

func (c *mapCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}

func (c *mapCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[string]interface{})
}

func (c *mapCache) Close() {}

// countingLedger counts credit calls reaching the ledger.
type countingLedger struct {
	*ledger.Ledger
	mu      sync.Mutex
	credits int
	err     error
}

func (l *countingLedger) Credit(ctx context.Context, req ledger.EntryRequest) (*ledger.EntryResult, error) {
	l.mu.Lock()
	l.credits++
	err := l.err
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return l.Ledger.Credit(ctx, req)
}

func checkoutPayload(userID, key string, amount any) []byte {
	amountJSON := "null"
	if amount != nil {
		amountJSON = fmt.Sprint(amount)
	}
	return []byte(fmt.Sprintf(`{
		"id": "evt_%s",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_%s",
			"amount_total": %s,
			"currency": "usd",
			"metadata": {"userId": %q, "idempotencyKey": %q}
		}}
	}`, key, key, amountJSON, userID, key))
}

type harness struct {
	store   *storage.MemoryStore
	ledger  *countingLedger
	handler *Handler
	dedup   *mapCache
}

func newHarness(t *testing.T, withDedup bool) *harness {
	t.Helper()

	store := storage.NewMemoryStore()
	l, err := ledger.New(&ledger.Config{Store: store, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	counting := &countingLedger{Ledger: l}

	cfg := &Config{
		Secret: testSecret,
		Ledger: counting,
		Now:    func() time.Time { return testNow },
		Logger: zaptest.NewLogger(t),
	}
	var dedup *mapCache
	if withDedup {
		dedup = newMapCache()
		cfg.Dedup = dedup
	}

	h, err := New(cfg)
	require.NoError(t, err)
	return &harness{store: store, ledger: counting, handler: h, dedup: dedup}
}

func (h *harness) balance(t *testing.T, userID string) int64 {
	t.Helper()
	w, err := h.store.GetWalletByUser(context.Background(), userID)
	if errors.Is(err, types.ErrWalletNotFound) {
		return 0
	}
	require.NoError(t, err)
	return w.BalanceCents
}

func TestNew(t *testing.T) {
	t.Parallel()

	l, err := ledger.New(&ledger.Config{Store: storage.NewMemoryStore(), Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{name: "nil-config", wantErr: "config cannot be nil"},
		{name: "empty-secret", cfg: &Config{Ledger: l, Logger: zaptest.NewLogger(t)}, wantErr: "secret cannot be empty"},
		{name: "nil-ledger", cfg: &Config{Secret: "s", Logger: zaptest.NewLogger(t)}, wantErr: "ledger cannot be nil"},
		{name: "nil-logger", cfg: &Config{Secret: "s", Ledger: l}, wantErr: "logger cannot be nil"},
		{name: "valid", cfg: &Config{Secret: "s", Ledger: l, Logger: zaptest.NewLogger(t)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, err := New(tt.cfg)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultTolerance, h.tolerance)
		})
	}
}

func TestHandle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		payload     []byte
		sign        bool
		wantOutcome Outcome
		wantErr     error
		wantBalance int64
	}{
		{
			name:        "checkout-completed-credits",
			payload:     checkoutPayload("user-1", "K1", 10000),
			sign:        true,
			wantOutcome: OutcomeCredited,
			wantBalance: 10000,
		},
		{
			name:    "invalid-signature-no-mutation",
			payload: checkoutPayload("user-1", "K1", 10000),
			wantErr: types.ErrInvalidSignature,
		},
		{
			name:        "other-event-type-ignored",
			payload:     []byte(`{"id":"evt_9","type":"payment_intent.created","data":{"object":{"id":"pi_1"}}}`),
			sign:        true,
			wantOutcome: OutcomeIgnored,
		},
		{
			name:        "missing-user-dropped",
			payload:     checkoutPayload("", "K1", 10000),
			sign:        true,
			wantOutcome: OutcomeMalformed,
		},
		{
			name:        "missing-idempotency-key-dropped",
			payload:     checkoutPayload("user-1", "", 10000),
			sign:        true,
			wantOutcome: OutcomeMalformed,
		},
		{
			name:        "missing-amount-dropped",
			payload:     checkoutPayload("user-1", "K1", nil),
			sign:        true,
			wantOutcome: OutcomeMalformed,
		},
		{
			name:        "zero-amount-dropped",
			payload:     checkoutPayload("user-1", "K1", 0),
			sign:        true,
			wantOutcome: OutcomeMalformed,
		},
		{
			name:        "negative-amount-dropped",
			payload:     checkoutPayload("user-1", "K1", -500),
			sign:        true,
			wantOutcome: OutcomeMalformed,
		},
		{
			name:        "undecodable-dropped",
			payload:     []byte(`{"id":`),
			sign:        true,
			wantOutcome: OutcomeMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, false)
			sig := "t=1,v1=00"
			if tt.sign {
				sig = Sign(tt.payload, testSecret, testNow)
			}

			outcome, err := h.handler.Handle(context.Background(), tt.payload, sig)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 0, h.ledger.credits)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOutcome, outcome)
			assert.Equal(t, tt.wantBalance, h.balance(t, "user-1"))
		})
	}
}

func TestHandle_ReplayDoesNotDoubleCredit(t *testing.T) {
	t.Parallel()

	for _, withDedup := range []bool{false, true} {
		t.Run(fmt.Sprintf("dedup-%t", withDedup), func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, withDedup)
			payload := checkoutPayload("user-1", "K1", 10000)
			sig := Sign(payload, testSecret, testNow)

			outcome, err := h.handler.Handle(context.Background(), payload, sig)
			require.NoError(t, err)
			assert.Equal(t, OutcomeCredited, outcome)

			outcome, err = h.handler.Handle(context.Background(), payload, sig)
			require.NoError(t, err)
			assert.Equal(t, OutcomeDuplicate, outcome)
			assert.Equal(t, int64(10000), h.balance(t, "user-1"))

			if withDedup {
				assert.Equal(t, 1, h.ledger.credits, "cached key must short-circuit the ledger")
			} else {
				assert.Equal(t, 2, h.ledger.credits)
			}
		})
	}
}

func TestHandle_ConcurrentDeliveries(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false)
	payload := checkoutPayload("user-1", "K1", 2500)
	sig := Sign(payload, testSecret, testNow)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.handler.Handle(context.Background(), payload, sig)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(2500), h.balance(t, "user-1"))
}

func TestHandle_LedgerErrorPropagates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.ledger.err = errors.New("store unavailable")
	payload := checkoutPayload("user-1", "K1", 10000)

	_, err := h.handler.Handle(context.Background(), payload, Sign(payload, testSecret, testNow))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credit deposit K1")

	// A failed credit is not remembered, so the gateway retry goes through.
	h.ledger.err = nil
	outcome, err := h.handler.Handle(context.Background(), payload, Sign(payload, testSecret, testNow))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, outcome)
}

func TestServeHTTP(t *testing.T) {
	t.Parallel()

	good := checkoutPayload("user-1", "K1", 10000)

	tests := []struct {
		name       string
		payload    []byte
		signature  string
		ledgerErr  error
		wantStatus int
	}{
		{name: "credited", payload: good, signature: Sign(good, testSecret, testNow), wantStatus: http.StatusOK},
		{name: "bad-signature", payload: good, signature: "t=1,v1=00", wantStatus: http.StatusBadRequest},
		{name: "malformed-acked", payload: checkoutPayload("", "K1", 1), signature: Sign(checkoutPayload("", "K1", 1), testSecret, testNow), wantStatus: http.StatusOK},
		{name: "ledger-failure", payload: good, signature: Sign(good, testSecret, testNow), ledgerErr: errors.New("down"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, false)
			h.ledger.err = tt.ledgerErr

			req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(tt.payload))
			req.Header.Set(SignatureHeader, tt.signature)
			rec := httptest.NewRecorder()

			h.handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
