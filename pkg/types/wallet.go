package types

import "time"

// Wallet holds a user's funds. PendingCents is the part of BalanceCents
// earmarked for open bets; 0 <= PendingCents <= BalanceCents always holds.
type Wallet struct {
	ID           string
	UserID       string
	BalanceCents int64
	PendingCents int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AvailableCents is the spendable part of the balance.
func (w *Wallet) AvailableCents() int64 {
	return w.BalanceCents - w.PendingCents
}

// TransactionType classifies a ledger mutation.
type TransactionType string

const (
	TxDeposit    TransactionType = "deposit"
	TxWithdrawal TransactionType = "withdrawal"
	TxBetLock    TransactionType = "bet-lock"
	TxBetSettle  TransactionType = "bet-settle"
)

// TransactionStatus is the recorded status of a ledger mutation.
type TransactionStatus string

const (
	TxStatusCompleted TransactionStatus = "completed"
	TxStatusCancelled TransactionStatus = "cancelled"
)

// Providers used for internally generated transactions.
const (
	ProviderGateway    = "gateway"
	ProviderLedger     = "ledger"
	ProviderSettlement = "settlement"
)

// Transaction is the immutable record of a single ledger mutation.
// (Provider, IdempotencyKey) is unique across all transactions.
type Transaction struct {
	ID             string
	WalletID       string
	Type           TransactionType
	AmountCents    int64
	Provider       string
	ProviderRef    string
	IdempotencyKey string
	Status         TransactionStatus
	CreatedAt      time.Time
}
