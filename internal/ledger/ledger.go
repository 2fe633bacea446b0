// Package ledger is the wallet ledger: the only path through which balances change.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/mselser95/arena-settle/internal/events"
	"github.com/mselser95/arena-settle/pkg/types"
	"go.uber.org/zap"
)

// Store is the atomic persistence the ledger relies on. Each method is one transaction.
type Store interface {
	GetOrCreateWallet(ctx context.Context, userID string) (*types.Wallet, error)
	GetWallet(ctx context.Context, walletID string) (*types.Wallet, error)
	GetWalletByUser(ctx context.Context, userID string) (*types.Wallet, error)
	ApplyTransaction(ctx context.Context, entry *types.Transaction) (*types.Wallet, error)
	LockFunds(ctx context.Context, walletID string, amountCents int64) (*types.Wallet, error)
	PlaceBet(ctx context.Context, bet *types.Bet) (*types.Wallet, error)
	SettleBet(ctx context.Context, betID string, payoutCents int64) (bool, error)
	ReleaseBet(ctx context.Context, betID string) (bool, error)
}

// Ledger validates requests and applies them through Store.
type Ledger struct {
	store  Store
	events events.Sink
	logger *zap.Logger
}

// Config holds ledger configuration.
type Config struct {
	Store  Store
	Events events.Sink // optional
	Logger *zap.Logger
}

// EntryRequest describes a credit or debit.
type EntryRequest struct {
	WalletID       string
	AmountCents    int64
	Provider       string
	ProviderRef    string
	IdempotencyKey string
}

// EntryResult is the outcome of a credit or debit. Applied is false when the
// idempotency key had already been recorded; Wallet is then the current state.
type EntryResult struct {
	Wallet  *types.Wallet
	Applied bool
}

// New creates a ledger.
func New(cfg *Config) (*Ledger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	sink := cfg.Events
	if sink == nil {
		sink = events.Discard{}
	}

	return &Ledger{
		store:  cfg.Store,
		events: sink,
		logger: cfg.Logger,
	}, nil
}

// GetOrCreateWallet returns the user's wallet, creating it with zero balances on first access.
func (l *Ledger) GetOrCreateWallet(ctx context.Context, userID string) (*types.Wallet, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}

	w, err := l.store.GetOrCreateWallet(ctx, userID)
	if err != nil {
		observe("get-or-create-wallet", err)
		return nil, fmt.Errorf("get or create wallet: %w", err)
	}
	observe("get-or-create-wallet", nil)
	return w, nil
}

// GetWalletByUser returns types.ErrWalletNotFound for unknown users.
func (l *Ledger) GetWalletByUser(ctx context.Context, userID string) (*types.Wallet, error) {
	return l.store.GetWalletByUser(ctx, userID)
}

// Credit increases the balance. Replaying the same (provider, idempotency key) is a successful no-op.
func (l *Ledger) Credit(ctx context.Context, req EntryRequest) (*EntryResult, error) {
	return l.applyEntry(ctx, "credit", types.TxDeposit, req)
}

// Debit decreases the balance. It fails with types.ErrInsufficientFunds when the
// balance would drop below what is locked for open bets.
func (l *Ledger) Debit(ctx context.Context, req EntryRequest) (*EntryResult, error) {
	return l.applyEntry(ctx, "debit", types.TxWithdrawal, req)
}

func (l *Ledger) applyEntry(ctx context.Context, op string, txType types.TransactionType, req EntryRequest) (*EntryResult, error) {
	if err := validateEntry(req); err != nil {
		observe(op, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	w, err := l.store.ApplyTransaction(ctx, &types.Transaction{
		WalletID:       req.WalletID,
		Type:           txType,
		AmountCents:    req.AmountCents,
		Provider:       req.Provider,
		ProviderRef:    req.ProviderRef,
		IdempotencyKey: req.IdempotencyKey,
	})
	if errors.Is(err, types.ErrDuplicateIdempotencyKey) {
		observe(op, err)
		l.logger.Info("ledger-entry-duplicate",
			zap.String("op", op),
			zap.String("wallet-id", req.WalletID),
			zap.String("provider", req.Provider),
			zap.String("idempotency-key", req.IdempotencyKey))

		current, getErr := l.store.GetWallet(ctx, req.WalletID)
		if getErr != nil {
			return nil, fmt.Errorf("%s: load wallet after duplicate: %w", op, getErr)
		}
		return &EntryResult{Wallet: current, Applied: false}, nil
	}
	if err != nil {
		observe(op, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	observe(op, nil)
	l.logger.Info("ledger-entry-applied",
		zap.String("op", op),
		zap.String("wallet-id", w.ID),
		zap.Int64("amount-cents", req.AmountCents),
		zap.Int64("balance-cents", w.BalanceCents),
		zap.String("provider", req.Provider),
		zap.String("provider-ref", req.ProviderRef))

	eventType := events.TypeWalletCredited
	if txType == types.TxWithdrawal {
		eventType = events.TypeWalletDebited
	}
	l.events.Enqueue(events.New(eventType, w.ID, map[string]any{
		"wallet_id":       w.ID,
		"user_id":         w.UserID,
		"amount_cents":    req.AmountCents,
		"balance_cents":   w.BalanceCents,
		"provider":        req.Provider,
		"provider_ref":    req.ProviderRef,
		"idempotency_key": req.IdempotencyKey,
	}))

	return &EntryResult{Wallet: w, Applied: true}, nil
}

func validateEntry(req EntryRequest) error {
	if req.WalletID == "" {
		return fmt.Errorf("wallet id cannot be empty")
	}
	if req.AmountCents <= 0 {
		return types.ErrInvalidAmount
	}
	if req.Provider == "" {
		return fmt.Errorf("provider cannot be empty")
	}
	if req.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key cannot be empty")
	}
	return nil
}

// LockForBet moves amount from available into pending.
func (l *Ledger) LockForBet(ctx context.Context, walletID string, amountCents int64) (*types.Wallet, error) {
	if amountCents <= 0 {
		observe("lock", types.ErrInvalidAmount)
		return nil, fmt.Errorf("lock for bet: %w", types.ErrInvalidAmount)
	}

	w, err := l.store.LockFunds(ctx, walletID, amountCents)
	observe("lock", err)
	if err != nil {
		return nil, fmt.Errorf("lock for bet: %w", err)
	}
	return w, nil
}

// PlaceBet locks the stake and records a filled bet atomically.
func (l *Ledger) PlaceBet(ctx context.Context, bet *types.Bet) (*types.Wallet, error) {
	if bet == nil {
		return nil, fmt.Errorf("bet cannot be nil")
	}
	if bet.AmountCents <= 0 {
		observe("place-bet", types.ErrInvalidAmount)
		return nil, fmt.Errorf("place bet: %w", types.ErrInvalidAmount)
	}
	if bet.Source == "" || bet.MarketID == "" || bet.Outcome == "" {
		return nil, fmt.Errorf("place bet: source, market id and outcome are required")
	}

	w, err := l.store.PlaceBet(ctx, bet)
	observe("place-bet", err)
	if err != nil {
		return nil, fmt.Errorf("place bet: %w", err)
	}

	l.logger.Info("bet-placed",
		zap.String("bet-id", bet.ID),
		zap.String("wallet-id", w.ID),
		zap.String("market", bet.Key().String()),
		zap.String("outcome", bet.Outcome),
		zap.Int64("amount-cents", bet.AmountCents))
	return w, nil
}

// SettleBet releases the bet's stake from pending and credits payout (0 for a loss).
// Settling a bet that is no longer filled returns false and changes nothing.
func (l *Ledger) SettleBet(ctx context.Context, betID string, payoutCents int64) (bool, error) {
	if payoutCents < 0 {
		observe("settle-bet", types.ErrInvalidAmount)
		return false, fmt.Errorf("settle bet %s: %w", betID, types.ErrInvalidAmount)
	}

	settled, err := l.store.SettleBet(ctx, betID, payoutCents)
	observe("settle-bet", err)
	if err != nil {
		return false, fmt.Errorf("settle bet %s: %w", betID, err)
	}
	if !settled {
		l.logger.Debug("bet-already-settled", zap.String("bet-id", betID))
	}
	return settled, nil
}

// ReleaseBet cancels a filled bet and returns its stake to available without payout.
func (l *Ledger) ReleaseBet(ctx context.Context, betID string) (bool, error) {
	released, err := l.store.ReleaseBet(ctx, betID)
	observe("release-bet", err)
	if err != nil {
		return false, fmt.Errorf("release bet %s: %w", betID, err)
	}
	return released, nil
}
