package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetStatus is the lifecycle state of a real-money bet.
type BetStatus string

const (
	BetFilled    BetStatus = "filled"
	BetResolved  BetStatus = "resolved"
	BetCancelled BetStatus = "cancelled"
)

// Bet is a real-money stake locked in a wallet.
type Bet struct {
	ID          string
	WalletID    string
	UserID      string
	Source      Source
	MarketID    string
	Outcome     string
	AmountCents int64
	Status      BetStatus
	PayoutCents int64
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

// Key returns the market the bet was placed on.
func (b *Bet) Key() MarketKey {
	return MarketKey{Source: b.Source, MarketID: b.MarketID}
}

// Paper bet resolutions.
const (
	PaperWon       = "won"
	PaperLost      = "lost"
	PaperCancelled = "cancelled"
)

// PaperBet is a simulated bet with no wallet interaction.
type PaperBet struct {
	ID         string
	UserID     string
	Source     Source
	MarketID   string
	Outcome    string
	Amount     decimal.Decimal
	Shares     decimal.Decimal
	Resolved   bool
	Resolution string
	Payout     decimal.Decimal
	Profit     decimal.Decimal
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// Key returns the market the paper bet was placed on.
func (b *PaperBet) Key() MarketKey {
	return MarketKey{Source: b.Source, MarketID: b.MarketID}
}
