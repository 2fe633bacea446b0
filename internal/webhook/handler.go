// Package webhook credits wallets from signed payment gateway notifications.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mselser95/arena-settle/internal/ledger"
	"github.com/mselser95/arena-settle/pkg/cache"
	"github.com/mselser95/arena-settle/pkg/types"
	"go.uber.org/zap"
)

const (
	maxPayloadBytes = 1 << 20
	dedupTTL        = 24 * time.Hour
)

// Outcome classifies a handled delivery.
type Outcome string

const (
	OutcomeCredited  Outcome = "credited"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"   // event type with no ledger action
	OutcomeMalformed Outcome = "malformed" // acknowledged and dropped
)

// Ledger is the wallet surface the handler credits through.
type Ledger interface {
	GetOrCreateWallet(ctx context.Context, userID string) (*types.Wallet, error)
	Credit(ctx context.Context, req ledger.EntryRequest) (*ledger.EntryResult, error)
}

// Config holds handler configuration.
type Config struct {
	Secret    string
	Tolerance time.Duration // defaults to DefaultTolerance
	Ledger    Ledger
	Dedup     cache.Cache // optional first-tier dedup in front of the ledger's unique key
	Now       func() time.Time
	Logger    *zap.Logger
}

// Handler verifies and applies gateway events.
type Handler struct {
	secret    string
	tolerance time.Duration
	ledger    Ledger
	dedup     cache.Cache
	now       func() time.Time
	logger    *zap.Logger
}

// New creates a handler.
func New(cfg *Config) (*Handler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("secret cannot be empty")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	h := &Handler{
		secret:    cfg.Secret,
		tolerance: cfg.Tolerance,
		ledger:    cfg.Ledger,
		dedup:     cfg.Dedup,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}
	if h.tolerance <= 0 {
		h.tolerance = DefaultTolerance
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h, nil
}

// Handle verifies signature and applies the event. Only ledger failures and an
// invalid signature are returned as errors; everything else is acknowledged.
func (h *Handler) Handle(ctx context.Context, payload []byte, signature string) (outcome Outcome, err error) {
	defer func() {
		label := string(outcome)
		switch {
		case errors.Is(err, types.ErrInvalidSignature):
			label = "invalid-signature"
		case err != nil:
			label = "error"
		}
		EventsTotal.WithLabelValues(label).Inc()
	}()

	if err := Verify(payload, signature, h.secret, h.now(), h.tolerance); err != nil {
		h.logger.Warn("webhook-signature-invalid", zap.Error(err))
		return "", err
	}

	evt, err := parseEvent(payload)
	if err != nil {
		h.logger.Warn("webhook-event-dropped", zap.String("reason", "undecodable payload"), zap.Error(err))
		return OutcomeMalformed, nil
	}

	if evt.Type != EventCheckoutCompleted {
		h.logger.Debug("webhook-event-ignored",
			zap.String("event-id", evt.ID),
			zap.String("event-type", evt.Type))
		return OutcomeIgnored, nil
	}

	dep, reason := evt.deposit()
	if reason != "" {
		h.logger.Warn("webhook-event-dropped",
			zap.String("event-id", evt.ID),
			zap.String("session-id", evt.Data.Object.ID),
			zap.String("reason", reason))
		return OutcomeMalformed, nil
	}

	dedupKey := "webhook:" + types.ProviderGateway + ":" + dep.IdempotencyKey
	if h.dedup != nil {
		if _, seen := h.dedup.Get(dedupKey); seen {
			h.logger.Info("webhook-duplicate-cached",
				zap.String("event-id", dep.EventID),
				zap.String("idempotency-key", dep.IdempotencyKey))
			return OutcomeDuplicate, nil
		}
	}

	wallet, err := h.ledger.GetOrCreateWallet(ctx, dep.UserID)
	if err != nil {
		h.logger.Error("webhook-wallet-failed",
			zap.String("event-id", dep.EventID),
			zap.String("user-id", dep.UserID),
			zap.Error(err))
		return "", fmt.Errorf("get wallet for %s: %w", dep.UserID, err)
	}

	res, err := h.ledger.Credit(ctx, ledger.EntryRequest{
		WalletID:       wallet.ID,
		AmountCents:    dep.AmountCents,
		Provider:       types.ProviderGateway,
		ProviderRef:    dep.SessionID,
		IdempotencyKey: dep.IdempotencyKey,
	})
	if err != nil {
		h.logger.Error("webhook-credit-failed",
			zap.String("event-id", dep.EventID),
			zap.String("wallet-id", wallet.ID),
			zap.Int64("amount-cents", dep.AmountCents),
			zap.String("idempotency-key", dep.IdempotencyKey),
			zap.Error(err))
		return "", fmt.Errorf("credit deposit %s: %w", dep.IdempotencyKey, err)
	}

	if h.dedup != nil {
		h.dedup.Set(dedupKey, dep.SessionID, dedupTTL)
	}

	if !res.Applied {
		return OutcomeDuplicate, nil
	}

	CreditedCentsTotal.Add(float64(dep.AmountCents))
	h.logger.Info("webhook-deposit-credited",
		zap.String("event-id", dep.EventID),
		zap.String("session-id", dep.SessionID),
		zap.String("user-id", dep.UserID),
		zap.String("wallet-id", wallet.ID),
		zap.Int64("amount-cents", dep.AmountCents),
		zap.Int64("balance-cents", res.Wallet.BalanceCents))
	return OutcomeCredited, nil
}

// ServeHTTP maps Handle onto the gateway's retry contract: 400 for a bad
// signature, 500 when the ledger failed (gateway retries), 200 otherwise.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	outcome, err := h.Handle(r.Context(), payload, r.Header.Get(SignatureHeader))
	switch {
	case errors.Is(err, types.ErrInvalidSignature):
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"received":true,"outcome":%q}`, outcome)
}
