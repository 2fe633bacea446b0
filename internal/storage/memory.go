package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/arena-settle/pkg/types"
)

// MemoryStore is an in-process Store. One mutex linearizes every mutation,
// which gives the same atomicity as a row-locked transaction within a single process.
type MemoryStore struct {
	mu sync.Mutex

	wallets      map[string]*types.Wallet
	walletByUser map[string]string
	transactions map[string]*types.Transaction // provider + "\x00" + idempotency key
	bets         map[string]*types.Bet
	paperBets    map[string]*types.PaperBet
	markets      map[types.MarketKey]*types.Market
	competitions map[string]*types.Competition
	resolutions  map[types.MarketKey]*types.MarketResolution
	claims       map[types.MarketKey]*types.SettlementClaim

	now func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:      make(map[string]*types.Wallet),
		walletByUser: make(map[string]string),
		transactions: make(map[string]*types.Transaction),
		bets:         make(map[string]*types.Bet),
		paperBets:    make(map[string]*types.PaperBet),
		markets:      make(map[types.MarketKey]*types.Market),
		competitions: make(map[string]*types.Competition),
		resolutions:  make(map[types.MarketKey]*types.MarketResolution),
		claims:       make(map[types.MarketKey]*types.SettlementClaim),
		now:          time.Now,
	}
}

func txKey(provider, idempotencyKey string) string {
	return provider + "\x00" + idempotencyKey
}

func copyWallet(w *types.Wallet) *types.Wallet {
	c := *w
	return &c
}

func (s *MemoryStore) GetOrCreateWallet(_ context.Context, userID string) (*types.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.walletByUser[userID]; ok {
		return copyWallet(s.wallets[id]), nil
	}

	now := s.now()
	w := &types.Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.wallets[w.ID] = w
	s.walletByUser[userID] = w.ID
	return copyWallet(w), nil
}

func (s *MemoryStore) GetWallet(_ context.Context, walletID string) (*types.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[walletID]
	if !ok {
		return nil, types.ErrWalletNotFound
	}
	return copyWallet(w), nil
}

func (s *MemoryStore) GetWalletByUser(_ context.Context, userID string) (*types.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.walletByUser[userID]
	if !ok {
		return nil, types.ErrWalletNotFound
	}
	return copyWallet(s.wallets[id]), nil
}

// recordLocked stores entry unless its key is taken. Caller holds mu.
func (s *MemoryStore) recordLocked(entry *types.Transaction) bool {
	key := txKey(entry.Provider, entry.IdempotencyKey)
	if _, exists := s.transactions[key]; exists {
		return false
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = types.TxStatusCompleted
	}
	entry.CreatedAt = s.now()
	c := *entry
	s.transactions[key] = &c
	return true
}

func (s *MemoryStore) ApplyTransaction(_ context.Context, entry *types.Transaction) (*types.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[entry.WalletID]
	if !ok {
		return nil, types.ErrWalletNotFound
	}
	if _, exists := s.transactions[txKey(entry.Provider, entry.IdempotencyKey)]; exists {
		return nil, types.ErrDuplicateIdempotencyKey
	}

	var delta int64
	switch entry.Type {
	case types.TxDeposit:
		delta = entry.AmountCents
	case types.TxWithdrawal:
		delta = -entry.AmountCents
		if w.BalanceCents+delta < w.PendingCents {
			return nil, types.ErrInsufficientFunds
		}
	default:
		return nil, errUnsupportedType(entry.Type)
	}

	s.recordLocked(entry)
	w.BalanceCents += delta
	w.UpdatedAt = s.now()
	return copyWallet(w), nil
}

func (s *MemoryStore) LockFunds(_ context.Context, walletID string, amountCents int64) (*types.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[walletID]
	if !ok {
		return nil, types.ErrWalletNotFound
	}
	if amountCents > w.AvailableCents() {
		return nil, types.ErrInsufficientAvailableFunds
	}
	w.PendingCents += amountCents
	w.UpdatedAt = s.now()
	return copyWallet(w), nil
}

func (s *MemoryStore) PlaceBet(_ context.Context, bet *types.Bet) (*types.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[bet.WalletID]
	if !ok {
		return nil, types.ErrWalletNotFound
	}
	if bet.AmountCents > w.AvailableCents() {
		return nil, types.ErrInsufficientAvailableFunds
	}
	if bet.ID == "" {
		bet.ID = uuid.NewString()
	}
	if _, exists := s.transactions[txKey(types.ProviderLedger, betLockKey(bet.ID))]; exists {
		return nil, types.ErrDuplicateIdempotencyKey
	}

	bet.UserID = w.UserID
	bet.Status = types.BetFilled
	bet.CreatedAt = s.now()
	stored := *bet
	s.bets[bet.ID] = &stored

	s.recordLocked(&types.Transaction{
		WalletID:       w.ID,
		Type:           types.TxBetLock,
		AmountCents:    bet.AmountCents,
		Provider:       types.ProviderLedger,
		ProviderRef:    bet.ID,
		IdempotencyKey: betLockKey(bet.ID),
	})

	w.PendingCents += bet.AmountCents
	w.UpdatedAt = s.now()
	return copyWallet(w), nil
}

func (s *MemoryStore) SettleBet(_ context.Context, betID string, payoutCents int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bets[betID]
	if !ok {
		return false, types.ErrBetNotFound
	}
	if b.Status != types.BetFilled {
		return false, nil
	}

	recorded := s.recordLocked(&types.Transaction{
		WalletID:       b.WalletID,
		Type:           types.TxBetSettle,
		AmountCents:    payoutCents,
		Provider:       types.ProviderSettlement,
		ProviderRef:    betID,
		IdempotencyKey: betSettleKey(betID),
	})
	if !recorded {
		return false, nil
	}

	now := s.now()
	w := s.wallets[b.WalletID]
	w.PendingCents -= b.AmountCents
	w.BalanceCents += payoutCents
	w.UpdatedAt = now

	b.Status = types.BetResolved
	b.PayoutCents = payoutCents
	b.ResolvedAt = &now
	return true, nil
}

func (s *MemoryStore) ReleaseBet(_ context.Context, betID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bets[betID]
	if !ok {
		return false, types.ErrBetNotFound
	}
	if b.Status != types.BetFilled {
		return false, nil
	}

	recorded := s.recordLocked(&types.Transaction{
		WalletID:       b.WalletID,
		Type:           types.TxBetSettle,
		Provider:       types.ProviderSettlement,
		ProviderRef:    betID,
		IdempotencyKey: betCancelKey(betID),
		Status:         types.TxStatusCancelled,
	})
	if !recorded {
		return false, nil
	}

	now := s.now()
	w := s.wallets[b.WalletID]
	w.PendingCents -= b.AmountCents
	w.UpdatedAt = now

	b.Status = types.BetCancelled
	b.ResolvedAt = &now
	return true, nil
}

func (s *MemoryStore) GetBet(_ context.Context, betID string) (*types.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bets[betID]
	if !ok {
		return nil, types.ErrBetNotFound
	}
	c := *b
	return &c, nil
}

func (s *MemoryStore) ListUnresolvedBets(ctx context.Context) ([]types.Bet, error) {
	return s.filterBets(func(b *types.Bet) bool { return true }), nil
}

func (s *MemoryStore) ListUnresolvedBetsForMarket(_ context.Context, key types.MarketKey) ([]types.Bet, error) {
	return s.filterBets(func(b *types.Bet) bool { return b.Key() == key }), nil
}

func (s *MemoryStore) filterBets(match func(*types.Bet) bool) []types.Bet {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Bet
	for _, b := range s.bets {
		if b.Status == types.BetFilled && match(b) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) InsertPaperBet(_ context.Context, bet *types.PaperBet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bet.ID == "" {
		bet.ID = uuid.NewString()
	}
	bet.CreatedAt = s.now()
	c := *bet
	s.paperBets[bet.ID] = &c
	return nil
}

func (s *MemoryStore) ListUnresolvedPaperBets(_ context.Context) ([]types.PaperBet, error) {
	return s.filterPaperBets(func(*types.PaperBet) bool { return true }), nil
}

func (s *MemoryStore) ListUnresolvedPaperBetsForMarket(_ context.Context, key types.MarketKey) ([]types.PaperBet, error) {
	return s.filterPaperBets(func(b *types.PaperBet) bool { return b.Key() == key }), nil
}

func (s *MemoryStore) filterPaperBets(match func(*types.PaperBet) bool) []types.PaperBet {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.PaperBet
	for _, b := range s.paperBets {
		if !b.Resolved && match(b) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// GetPaperBet is used by tests to inspect resolution fields.
func (s *MemoryStore) GetPaperBet(id string) (types.PaperBet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.paperBets[id]
	if !ok {
		return types.PaperBet{}, false
	}
	return *b, true
}

func (s *MemoryStore) ResolvePaperBet(_ context.Context, bet *types.PaperBet) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.paperBets[bet.ID]
	if !ok || stored.Resolved {
		return false, nil
	}
	stored.Resolved = true
	stored.Resolution = bet.Resolution
	stored.Payout = bet.Payout
	stored.Profit = bet.Profit
	stored.ResolvedAt = bet.ResolvedAt
	return true, nil
}

func (s *MemoryStore) UpsertMarket(_ context.Context, market *types.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := market.Key()
	now := s.now()
	if existing, ok := s.markets[key]; ok {
		if market.CompetitionID != "" {
			existing.CompetitionID = market.CompetitionID
		}
		if market.Question != "" {
			existing.Question = market.Question
		}
		existing.UpdatedAt = now
		return nil
	}

	c := *market
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = types.MarketStatusOpen
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	s.markets[key] = &c
	market.ID = c.ID
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, key types.MarketKey) (*types.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[key]
	if !ok {
		return nil, types.ErrMarketNotFound
	}
	c := *m
	return &c, nil
}

func (s *MemoryStore) SetMarketStatus(_ context.Context, key types.MarketKey, status types.MarketStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	m, ok := s.markets[key]
	if !ok {
		s.markets[key] = &types.Market{
			ID:         uuid.NewString(),
			Source:     key.Source,
			ExternalID: key.MarketID,
			Status:     status,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return nil
	}
	if m.Status.IsFinal() {
		return nil
	}
	m.Status = status
	m.UpdatedAt = now
	return nil
}

func (s *MemoryStore) ListOpenCompetitionMarkets(_ context.Context) ([]types.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Market
	for _, m := range s.markets {
		if m.CompetitionID != "" && !m.Status.IsFinal() {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetCompetition(_ context.Context, competitionID string) (*types.Competition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.competitions[competitionID]
	if !ok {
		return nil, types.ErrCompetitionNotFound
	}
	cc := *c
	return &cc, nil
}

func (s *MemoryStore) UpsertCompetition(_ context.Context, competition *types.Competition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *competition
	s.competitions[c.ID] = &c
	return nil
}

func (s *MemoryStore) HasResolution(_ context.Context, key types.MarketKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.resolutions[key]
	return ok, nil
}

func (s *MemoryStore) InsertResolution(_ context.Context, r *types.MarketResolution) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := types.MarketKey{Source: r.Source, MarketID: r.MarketID}
	if _, exists := s.resolutions[key]; exists {
		return false, nil
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	c := *r
	s.resolutions[key] = &c
	return true, nil
}

func (s *MemoryStore) GetResolution(_ context.Context, key types.MarketKey) (*types.MarketResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resolutions[key]
	if !ok {
		return nil, types.ErrResolutionNotFound
	}
	c := *r
	return &c, nil
}

func (s *MemoryStore) ClaimSettlement(_ context.Context, claim *types.SettlementClaim) (*types.SettlementClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := types.MarketKey{Source: claim.Source, MarketID: claim.MarketID}
	held, ok := s.claims[key]
	if !ok {
		c := *claim
		held = &c
		s.claims[key] = held
	}
	out := *held
	return &out, nil
}

// Resolutions returns every stored resolution. Tests use it to assert exactly-once insertion.
func (s *MemoryStore) Resolutions() []types.MarketResolution {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.MarketResolution, 0, len(s.resolutions))
	for _, r := range s.resolutions {
		out = append(out, *r)
	}
	return out
}

// Transactions returns the recorded transactions of a wallet.
func (s *MemoryStore) Transactions(walletID string) []types.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Transaction
	for _, t := range s.transactions {
		if t.WalletID == walletID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
