package httpserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/mselser95/arena-settle/internal/circuitbreaker"
	"github.com/mselser95/arena-settle/internal/settlement"
	"github.com/mselser95/arena-settle/pkg/types"
	"go.uber.org/zap"
)

// MarketResolver is the operator surface of the settlement engine.
type MarketResolver interface {
	ManualResolve(ctx context.Context, key types.MarketKey, winningOutcome string) (*settlement.Result, error)
	CancelMarket(ctx context.Context, key types.MarketKey) (*settlement.Result, error)
}

// WalletReader looks up a user's wallet.
type WalletReader interface {
	GetWalletByUser(ctx context.Context, userID string) (*types.Wallet, error)
}

// BreakerLister reports breaker state.
type BreakerLister interface {
	Statuses() []circuitbreaker.Status
}

type apiHandler struct {
	resolver MarketResolver
	wallets  WalletReader
	breakers BreakerLister
	logger   *zap.Logger
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ResolveRequest is the body of POST /api/markets/{source}/{marketID}/resolve.
type ResolveRequest struct {
	WinningOutcome string `json:"winning_outcome"`
}

// SettlementResponse reports what a resolve or cancel call did.
type SettlementResponse struct {
	Source           string `json:"source"`
	MarketID         string `json:"market_id"`
	WinningOutcome   string `json:"winning_outcome,omitempty"`
	AlreadyResolved  bool   `json:"already_resolved"`
	AlreadyCancelled bool   `json:"already_cancelled"`
	BetsSettled      int    `json:"bets_settled"`
	BetsFailed       int    `json:"bets_failed"`
	PaperBetsSettled int    `json:"paper_bets_settled"`
	TotalPayoutCents int64  `json:"total_payout_cents"`
}

// WalletResponse is the public view of a wallet.
type WalletResponse struct {
	WalletID       string `json:"wallet_id"`
	UserID         string `json:"user_id"`
	BalanceCents   int64  `json:"balance_cents"`
	PendingCents   int64  `json:"pending_cents"`
	AvailableCents int64  `json:"available_cents"`
}

func (h *apiHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	key, ok := h.marketKey(w, r)
	if !ok {
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.WinningOutcome) == "" {
		h.writeError(w, "winning_outcome is required", http.StatusBadRequest)
		return
	}

	h.logger.Info("manual-resolve-requested",
		zap.String("market", key.String()),
		zap.String("winning-outcome", req.WinningOutcome),
		zap.String("request-id", requestID(r)))

	res, err := h.resolver.ManualResolve(r.Context(), key, req.WinningOutcome)
	if err != nil {
		h.logger.Error("manual-resolve-failed", zap.String("market", key.String()), zap.Error(err))
		h.writeError(w, "resolve failed", statusFor(err))
		return
	}
	h.writeJSON(w, http.StatusOK, toSettlementResponse(res))
}

func (h *apiHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	key, ok := h.marketKey(w, r)
	if !ok {
		return
	}

	h.logger.Info("manual-cancel-requested",
		zap.String("market", key.String()),
		zap.String("request-id", requestID(r)))

	res, err := h.resolver.CancelMarket(r.Context(), key)
	if err != nil {
		h.logger.Error("manual-cancel-failed", zap.String("market", key.String()), zap.Error(err))
		h.writeError(w, "cancel failed", statusFor(err))
		return
	}
	h.writeJSON(w, http.StatusOK, toSettlementResponse(res))
}

func (h *apiHandler) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	wallet, err := h.wallets.GetWalletByUser(r.Context(), userID)
	if errors.Is(err, types.ErrWalletNotFound) {
		h.writeError(w, "wallet not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("wallet-lookup-failed", zap.String("user-id", userID), zap.Error(err))
		h.writeError(w, "wallet lookup failed", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, WalletResponse{
		WalletID:       wallet.ID,
		UserID:         wallet.UserID,
		BalanceCents:   wallet.BalanceCents,
		PendingCents:   wallet.PendingCents,
		AvailableCents: wallet.AvailableCents(),
	})
}

func (h *apiHandler) handleBreakers(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.breakers.Statuses())
}

func (h *apiHandler) marketKey(w http.ResponseWriter, r *http.Request) (types.MarketKey, bool) {
	source, err := types.ParseSource(chi.URLParam(r, "source"))
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return types.MarketKey{}, false
	}
	return types.MarketKey{Source: source, MarketID: chi.URLParam(r, "marketID")}, true
}

func toSettlementResponse(res *settlement.Result) SettlementResponse {
	return SettlementResponse{
		Source:           string(res.Market.Source),
		MarketID:         res.Market.MarketID,
		WinningOutcome:   res.WinningOutcome,
		AlreadyResolved:  res.AlreadyResolved,
		AlreadyCancelled: res.AlreadyCancelled,
		BetsSettled:      res.BetsSettled,
		BetsFailed:       res.BetsFailed,
		PaperBetsSettled: res.PaperBetsSettled,
		TotalPayoutCents: res.TotalPayoutCents,
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrEmptyOutcome), errors.Is(err, types.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrInsufficientFunds), errors.Is(err, types.ErrInsufficientAvailableFunds),
		errors.Is(err, types.ErrResolutionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// requireToken guards admin routes with a static bearer token.
func requireToken(token string) func(http.Handler) http.Handler {
	expected := []byte("Bearer " + token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare(got, expected) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

func (h *apiHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func (h *apiHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
