// Package storage persists wallets, bets, markets and resolutions.
//
// Every wallet mutation is a single atomic unit: the balance change and its
// transaction row are written together or not at all.
package storage

import (
	"context"
	"fmt"

	"github.com/mselser95/arena-settle/pkg/types"
)

// Store is the full persistence surface used by the service.
type Store interface {
	// GetOrCreateWallet returns the user's wallet, creating an empty one on first access.
	GetOrCreateWallet(ctx context.Context, userID string) (*types.Wallet, error)
	GetWallet(ctx context.Context, walletID string) (*types.Wallet, error)
	GetWalletByUser(ctx context.Context, userID string) (*types.Wallet, error)

	// ApplyTransaction records a deposit or withdrawal and moves the balance by its amount.
	// Returns types.ErrDuplicateIdempotencyKey without mutation when (provider, key) exists.
	ApplyTransaction(ctx context.Context, entry *types.Transaction) (*types.Wallet, error)

	// LockFunds moves amount from available into pending.
	LockFunds(ctx context.Context, walletID string, amountCents int64) (*types.Wallet, error)

	// PlaceBet locks the stake and records the bet in one unit.
	PlaceBet(ctx context.Context, bet *types.Bet) (*types.Wallet, error)

	// SettleBet releases the stake from pending and credits payout. It reports false
	// and changes nothing when the bet is no longer filled.
	SettleBet(ctx context.Context, betID string, payoutCents int64) (bool, error)

	// ReleaseBet cancels a filled bet and releases its stake without payout.
	ReleaseBet(ctx context.Context, betID string) (bool, error)

	GetBet(ctx context.Context, betID string) (*types.Bet, error)
	ListUnresolvedBets(ctx context.Context) ([]types.Bet, error)
	ListUnresolvedBetsForMarket(ctx context.Context, key types.MarketKey) ([]types.Bet, error)

	InsertPaperBet(ctx context.Context, bet *types.PaperBet) error
	ListUnresolvedPaperBets(ctx context.Context) ([]types.PaperBet, error)
	ListUnresolvedPaperBetsForMarket(ctx context.Context, key types.MarketKey) ([]types.PaperBet, error)

	// ResolvePaperBet writes the resolution fields only if the paper bet is still unresolved.
	ResolvePaperBet(ctx context.Context, bet *types.PaperBet) (bool, error)

	// UpsertMarket registers a market; an existing row keeps its status.
	UpsertMarket(ctx context.Context, market *types.Market) error
	GetMarket(ctx context.Context, key types.MarketKey) (*types.Market, error)

	// SetMarketStatus never moves a market out of a final status.
	SetMarketStatus(ctx context.Context, key types.MarketKey, status types.MarketStatus) error

	// ListOpenCompetitionMarkets returns non-final markets linked to a competition.
	ListOpenCompetitionMarkets(ctx context.Context) ([]types.Market, error)

	GetCompetition(ctx context.Context, competitionID string) (*types.Competition, error)
	UpsertCompetition(ctx context.Context, competition *types.Competition) error

	HasResolution(ctx context.Context, key types.MarketKey) (bool, error)
	GetResolution(ctx context.Context, key types.MarketKey) (*types.MarketResolution, error)

	// ClaimSettlement records claim unless the market is already claimed, and
	// returns whichever claim holds the market afterwards.
	ClaimSettlement(ctx context.Context, claim *types.SettlementClaim) (*types.SettlementClaim, error)

	// InsertResolution reports false when a resolution for the market already exists.
	InsertResolution(ctx context.Context, resolution *types.MarketResolution) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// Mode selects the Store implementation.
type Mode string

const (
	ModePostgres Mode = "postgres"
	ModeMemory   Mode = "memory"
)

// ParseMode validates a configured storage mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePostgres, ModeMemory:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown storage mode %q", s)
	}
}

// Idempotency keys for internally generated transactions.
func betLockKey(betID string) string   { return "bet-lock:" + betID }
func betSettleKey(betID string) string { return "bet-settle:" + betID }
func betCancelKey(betID string) string { return "bet-cancel:" + betID }

func errUnsupportedType(t types.TransactionType) error {
	return fmt.Errorf("apply transaction: unsupported type %q", t)
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
