// Package settlement pays out every bet on a market exactly once.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mselser95/arena-settle/internal/events"
	"github.com/mselser95/arena-settle/pkg/types"
	"go.uber.org/zap"
)

// Store is the persistence the engine needs.
type Store interface {
	GetMarket(ctx context.Context, key types.MarketKey) (*types.Market, error)
	HasResolution(ctx context.Context, key types.MarketKey) (bool, error)
	GetResolution(ctx context.Context, key types.MarketKey) (*types.MarketResolution, error)
	ClaimSettlement(ctx context.Context, claim *types.SettlementClaim) (*types.SettlementClaim, error)
	ListUnresolvedBetsForMarket(ctx context.Context, key types.MarketKey) ([]types.Bet, error)
	ListUnresolvedPaperBetsForMarket(ctx context.Context, key types.MarketKey) ([]types.PaperBet, error)
	ResolvePaperBet(ctx context.Context, bet *types.PaperBet) (bool, error)
	InsertResolution(ctx context.Context, resolution *types.MarketResolution) (bool, error)
	SetMarketStatus(ctx context.Context, key types.MarketKey, status types.MarketStatus) error
}

// Ledger applies the wallet side of a bet settlement.
type Ledger interface {
	SettleBet(ctx context.Context, betID string, payoutCents int64) (bool, error)
	ReleaseBet(ctx context.Context, betID string) (bool, error)
}

// Config holds engine configuration.
type Config struct {
	Store  Store
	Ledger Ledger
	Events events.Sink // optional
	Logger *zap.Logger
	Now    func() time.Time // optional, defaults to time.Now
}

// Result summarizes one settlement or cancellation call.
type Result struct {
	Market           types.MarketKey
	WinningOutcome   string
	Manual           bool
	AlreadyResolved  bool // a resolution existed, nothing was paid by this call
	AlreadyCancelled bool
	BetsSettled      int
	BetsFailed       int
	PaperBetsSettled int
	PaperBetsFailed  int
	TotalPayoutCents int64
}

// Engine settles and cancels markets.
type Engine struct {
	store  Store
	ledger Ledger
	events events.Sink
	logger *zap.Logger
	now    func() time.Time

	locks *keyedMutex
}

// New creates a settlement engine.
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	sink := cfg.Events
	if sink == nil {
		sink = events.Discard{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		store:  cfg.Store,
		ledger: cfg.Ledger,
		events: sink,
		logger: cfg.Logger,
		now:    now,
		locks:  newKeyedMutex(),
	}, nil
}

// Settle pays out every unresolved bet on the market and records the resolution.
// It returns immediately when the market has already been resolved.
func (e *Engine) Settle(ctx context.Context, key types.MarketKey, winningOutcome string) (*Result, error) {
	return e.settle(ctx, key, winningOutcome, false)
}

// ManualResolve is the operator entry point. It follows Settle exactly and marks
// the resolution as manual.
func (e *Engine) ManualResolve(ctx context.Context, key types.MarketKey, winningOutcome string) (*Result, error) {
	return e.settle(ctx, key, winningOutcome, true)
}

func (e *Engine) settle(ctx context.Context, key types.MarketKey, winningOutcome string, manual bool) (result *Result, err error) {
	winningOutcome = strings.TrimSpace(winningOutcome)
	if winningOutcome == "" {
		return nil, fmt.Errorf("settle %s: %w", key, types.ErrEmptyOutcome)
	}
	if key.Source == "" || key.MarketID == "" {
		return nil, fmt.Errorf("settle: source and market id are required")
	}

	unlock := e.locks.lock(key.String())
	defer unlock()

	start := time.Now()
	defer func() {
		SettlementDuration.Observe(time.Since(start).Seconds())
		SettlementsTotal.WithLabelValues(string(key.Source), settleLabel(result, err)).Inc()
	}()

	result = &Result{Market: key, WinningOutcome: winningOutcome, Manual: manual}

	resolved, err := e.store.HasResolution(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check resolution %s: %w", key, err)
	}
	if resolved {
		result.AlreadyResolved = true
		e.logger.Debug("settlement-skipped-already-resolved", zap.String("market", key.String()))
		return result, nil
	}

	cancelled, err := e.isCancelled(ctx, key)
	if err != nil {
		return nil, err
	}
	if cancelled {
		result.AlreadyCancelled = true
		e.logger.Warn("settlement-skipped-market-cancelled",
			zap.String("market", key.String()),
			zap.String("winning-outcome", winningOutcome))
		return result, nil
	}

	held, err := e.claim(ctx, &types.SettlementClaim{
		MarketID:       key.MarketID,
		Source:         key.Source,
		WinningOutcome: winningOutcome,
		Manual:         manual,
	})
	if err != nil {
		return nil, err
	}
	if held.Cancel {
		result.AlreadyCancelled = true
		e.logger.Warn("settlement-skipped-cancel-in-progress",
			zap.String("market", key.String()),
			zap.String("winning-outcome", winningOutcome))
		return result, nil
	}

	bets, err := e.store.ListUnresolvedBetsForMarket(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list bets %s: %w", key, err)
	}
	paperBets, err := e.store.ListUnresolvedPaperBetsForMarket(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list paper bets %s: %w", key, err)
	}

	for i := range bets {
		e.settleBet(ctx, &bets[i], winningOutcome, result)
	}

	resolvedAt := e.now().UTC()
	for i := range paperBets {
		pb := &paperBets[i]
		pb.Payout, pb.Profit, pb.Resolution = PaperPayout(pb, winningOutcome)
		pb.ResolvedAt = &resolvedAt
		e.resolvePaperBet(ctx, pb, result)
	}

	inserted, err := e.store.InsertResolution(ctx, &types.MarketResolution{
		MarketID:       key.MarketID,
		Source:         key.Source,
		WinningOutcome: winningOutcome,
		ResolvedAt:     resolvedAt,
		Manual:         manual,
	})
	if err != nil {
		return nil, fmt.Errorf("insert resolution %s: %w", key, err)
	}
	if !inserted {
		// Another instance recorded the resolution while this one was paying out.
		// Bet-level settlement is itself idempotent, so nothing was paid twice.
		result.AlreadyResolved = true
		e.logger.Info("settlement-resolution-raced", zap.String("market", key.String()))
		return result, nil
	}

	if err := e.store.SetMarketStatus(ctx, key, types.MarketStatusSettled); err != nil {
		e.logger.Warn("market-status-update-failed",
			zap.String("market", key.String()),
			zap.String("status", string(types.MarketStatusSettled)),
			zap.Error(err))
	}

	e.events.Enqueue(events.New(events.TypeMarketSettled, key.String(), map[string]any{
		"source":             string(key.Source),
		"market_id":          key.MarketID,
		"winning_outcome":    winningOutcome,
		"manual":             manual,
		"bets_settled":       result.BetsSettled,
		"bets_failed":        result.BetsFailed,
		"paper_bets_settled": result.PaperBetsSettled,
		"total_payout_cents": result.TotalPayoutCents,
	}))

	fields := []zap.Field{
		zap.String("market", key.String()),
		zap.String("winning-outcome", winningOutcome),
		zap.Bool("manual", manual),
		zap.Int("bets-settled", result.BetsSettled),
		zap.Int("bets-failed", result.BetsFailed),
		zap.Int("paper-bets-settled", result.PaperBetsSettled),
		zap.Int64("total-payout-cents", result.TotalPayoutCents),
	}
	if result.BetsFailed > 0 || result.PaperBetsFailed > 0 {
		e.logger.Error("market-settled-with-failures", fields...)
	} else {
		e.logger.Info("market-settled", fields...)
	}
	return result, nil
}

// settleBet applies one real-money payout. Failures are logged and counted, never returned.
func (e *Engine) settleBet(ctx context.Context, bet *types.Bet, winningOutcome string, result *Result) {
	payout := Payout(bet, winningOutcome)

	settled, err := e.ledger.SettleBet(ctx, bet.ID, payout)
	if err != nil {
		result.BetsFailed++
		BetSettlementsTotal.WithLabelValues("failed").Inc()
		e.logger.Error("bet-settlement-failed",
			zap.String("bet-id", bet.ID),
			zap.String("wallet-id", bet.WalletID),
			zap.String("user-id", bet.UserID),
			zap.String("market", bet.Key().String()),
			zap.String("outcome", bet.Outcome),
			zap.String("winning-outcome", winningOutcome),
			zap.Int64("amount-cents", bet.AmountCents),
			zap.Int64("payout-cents", payout),
			zap.Error(err))
		return
	}
	if !settled {
		BetSettlementsTotal.WithLabelValues("skipped").Inc()
		return
	}

	result.BetsSettled++
	result.TotalPayoutCents += payout
	BetSettlementsTotal.WithLabelValues("settled").Inc()

	e.events.Enqueue(events.New(events.TypeBetSettled, bet.WalletID, map[string]any{
		"bet_id":       bet.ID,
		"wallet_id":    bet.WalletID,
		"user_id":      bet.UserID,
		"market":       bet.Key().String(),
		"outcome":      bet.Outcome,
		"amount_cents": bet.AmountCents,
		"payout_cents": payout,
		"won":          payout > 0,
	}))
}

func (e *Engine) resolvePaperBet(ctx context.Context, pb *types.PaperBet, result *Result) {
	ok, err := e.store.ResolvePaperBet(ctx, pb)
	if err != nil {
		result.PaperBetsFailed++
		e.logger.Error("paper-bet-resolution-failed",
			zap.String("paper-bet-id", pb.ID),
			zap.String("user-id", pb.UserID),
			zap.String("market", pb.Key().String()),
			zap.String("resolution", pb.Resolution),
			zap.Error(err))
		return
	}
	if ok {
		result.PaperBetsSettled++
	}
}

// CancelMarket releases every open bet on the market without payout and marks
// the market cancelled. No resolution is recorded. A resolved market is left untouched.
func (e *Engine) CancelMarket(ctx context.Context, key types.MarketKey) (result *Result, err error) {
	if key.Source == "" || key.MarketID == "" {
		return nil, fmt.Errorf("cancel: source and market id are required")
	}

	unlock := e.locks.lock(key.String())
	defer unlock()

	defer func() {
		CancellationsTotal.WithLabelValues(string(key.Source), settleLabel(result, err)).Inc()
	}()

	result = &Result{Market: key}

	resolved, err := e.store.HasResolution(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check resolution %s: %w", key, err)
	}
	if resolved {
		result.AlreadyResolved = true
		e.logger.Warn("cancel-skipped-already-resolved", zap.String("market", key.String()))
		return result, nil
	}

	held, err := e.claim(ctx, &types.SettlementClaim{MarketID: key.MarketID, Source: key.Source, Cancel: true})
	if err != nil {
		return nil, err
	}
	if !held.Cancel {
		return nil, fmt.Errorf("cancel %s: settlement as %q in progress: %w", key, held.WinningOutcome, types.ErrResolutionConflict)
	}

	bets, err := e.store.ListUnresolvedBetsForMarket(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list bets %s: %w", key, err)
	}
	paperBets, err := e.store.ListUnresolvedPaperBetsForMarket(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list paper bets %s: %w", key, err)
	}

	for i := range bets {
		bet := &bets[i]
		released, relErr := e.ledger.ReleaseBet(ctx, bet.ID)
		if relErr != nil {
			result.BetsFailed++
			e.logger.Error("bet-release-failed",
				zap.String("bet-id", bet.ID),
				zap.String("wallet-id", bet.WalletID),
				zap.String("market", key.String()),
				zap.Int64("amount-cents", bet.AmountCents),
				zap.Error(relErr))
			continue
		}
		if released {
			result.BetsSettled++
		}
	}

	cancelledAt := e.now().UTC()
	for i := range paperBets {
		pb := &paperBets[i]
		pb.Resolution = types.PaperCancelled
		pb.Payout = pb.Amount
		pb.Profit = pb.Payout.Sub(pb.Amount)
		pb.ResolvedAt = &cancelledAt
		e.resolvePaperBet(ctx, pb, result)
	}

	if err := e.store.SetMarketStatus(ctx, key, types.MarketStatusCancelled); err != nil {
		return nil, fmt.Errorf("mark market cancelled %s: %w", key, err)
	}

	e.events.Enqueue(events.New(events.TypeMarketCancelled, key.String(), map[string]any{
		"source":              string(key.Source),
		"market_id":           key.MarketID,
		"bets_released":       result.BetsSettled,
		"bets_failed":         result.BetsFailed,
		"paper_bets_released": result.PaperBetsSettled,
	}))

	e.logger.Info("market-cancelled",
		zap.String("market", key.String()),
		zap.Int("bets-released", result.BetsSettled),
		zap.Int("bets-failed", result.BetsFailed),
		zap.Int("paper-bets-released", result.PaperBetsSettled))
	return result, nil
}

// claim reserves the market in the store before any wallet is touched. A claim
// for the same outcome is shared, so a crashed settlement can be finished by a
// retry. A settle claim for another outcome is a conflict. A cancel claim is
// returned to the caller to decide.
func (e *Engine) claim(ctx context.Context, want *types.SettlementClaim) (*types.SettlementClaim, error) {
	key := types.MarketKey{Source: want.Source, MarketID: want.MarketID}
	want.ClaimedAt = e.now().UTC()

	held, err := e.store.ClaimSettlement(ctx, want)
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", key, err)
	}
	if held.Cancel || want.Cancel || held.Matches(want) {
		return held, nil
	}

	e.logger.Error("settlement-claim-conflict",
		zap.String("market", key.String()),
		zap.String("winning-outcome", want.WinningOutcome),
		zap.String("claimed-outcome", held.WinningOutcome),
		zap.Bool("claimed-manual", held.Manual),
		zap.Time("claimed-at", held.ClaimedAt))
	return nil, fmt.Errorf("settle %s as %q: claimed for %q: %w",
		key, want.WinningOutcome, held.WinningOutcome, types.ErrResolutionConflict)
}

// SettleRemaining pays bets still open on a market that already has a
// resolution, using the recorded winning outcome. It covers bets whose
// settlement failed during the original fan-out. No new resolution is written.
func (e *Engine) SettleRemaining(ctx context.Context, key types.MarketKey) (result *Result, err error) {
	if key.Source == "" || key.MarketID == "" {
		return nil, fmt.Errorf("settle remaining: source and market id are required")
	}

	unlock := e.locks.lock(key.String())
	defer unlock()

	defer func() {
		SettlementsTotal.WithLabelValues(string(key.Source), "remaining-"+settleLabel(result, err)).Inc()
	}()

	resolution, err := e.store.GetResolution(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get resolution %s: %w", key, err)
	}
	result = &Result{Market: key, WinningOutcome: resolution.WinningOutcome, Manual: resolution.Manual}

	bets, err := e.store.ListUnresolvedBetsForMarket(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list bets %s: %w", key, err)
	}
	paperBets, err := e.store.ListUnresolvedPaperBetsForMarket(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list paper bets %s: %w", key, err)
	}

	for i := range bets {
		e.settleBet(ctx, &bets[i], resolution.WinningOutcome, result)
	}
	resolvedAt := e.now().UTC()
	for i := range paperBets {
		pb := &paperBets[i]
		pb.Payout, pb.Profit, pb.Resolution = PaperPayout(pb, resolution.WinningOutcome)
		pb.ResolvedAt = &resolvedAt
		e.resolvePaperBet(ctx, pb, result)
	}

	if err := e.store.SetMarketStatus(ctx, key, types.MarketStatusSettled); err != nil {
		e.logger.Warn("market-status-update-failed",
			zap.String("market", key.String()),
			zap.String("status", string(types.MarketStatusSettled)),
			zap.Error(err))
	}

	e.logger.Info("market-remaining-bets-settled",
		zap.String("market", key.String()),
		zap.String("winning-outcome", resolution.WinningOutcome),
		zap.Int("bets-settled", result.BetsSettled),
		zap.Int("bets-failed", result.BetsFailed),
		zap.Int("paper-bets-settled", result.PaperBetsSettled),
		zap.Int64("total-payout-cents", result.TotalPayoutCents))
	return result, nil
}

func (e *Engine) isCancelled(ctx context.Context, key types.MarketKey) (bool, error) {
	m, err := e.store.GetMarket(ctx, key)
	if errors.Is(err, types.ErrMarketNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get market %s: %w", key, err)
	}
	return m.Status == types.MarketStatusCancelled, nil
}

func settleLabel(result *Result, err error) string {
	switch {
	case errors.Is(err, types.ErrResolutionConflict):
		return "conflict"
	case err != nil:
		return "error"
	case result.AlreadyResolved:
		return "already-resolved"
	case result.AlreadyCancelled:
		return "already-cancelled"
	case result.BetsFailed > 0 || result.PaperBetsFailed > 0:
		return "partial"
	default:
		return "ok"
	}
}

// keyedMutex serializes work per market within this process. Across processes
// the settlement claim pins the outcome and bet status guards each payout.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
