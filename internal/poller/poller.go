// Package poller detects venue-side market resolution and hands resolved markets to settlement.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mselser95/arena-settle/internal/circuitbreaker"
	"github.com/mselser95/arena-settle/internal/exchange"
	"github.com/mselser95/arena-settle/internal/settlement"
	"github.com/mselser95/arena-settle/pkg/types"
	"go.uber.org/zap"
)

// Defaults.
const (
	DefaultInterval    = 5 * time.Minute
	DefaultStaleGrace  = 25 * time.Hour
	DefaultConcurrency = 4
)

// Store is the read side the poller scans plus the market registry it maintains.
type Store interface {
	ListUnresolvedBets(ctx context.Context) ([]types.Bet, error)
	ListUnresolvedPaperBets(ctx context.Context) ([]types.PaperBet, error)
	UpsertMarket(ctx context.Context, market *types.Market) error
	SetMarketStatus(ctx context.Context, key types.MarketKey, status types.MarketStatus) error
	ListOpenCompetitionMarkets(ctx context.Context) ([]types.Market, error)
	GetCompetition(ctx context.Context, competitionID string) (*types.Competition, error)
	HasResolution(ctx context.Context, key types.MarketKey) (bool, error)
}

// Settler is the settlement entry points the poller drives.
type Settler interface {
	Settle(ctx context.Context, key types.MarketKey, winningOutcome string) (*settlement.Result, error)
	CancelMarket(ctx context.Context, key types.MarketKey) (*settlement.Result, error)
}

// Config holds poller configuration.
type Config struct {
	Store       Store
	Settler     Settler
	Clients     []exchange.Client // one per venue, normally breaker-wrapped
	Interval    time.Duration
	StaleGrace  time.Duration
	Concurrency int      // parallel venue checks per tick
	Lock        TickLock // optional
	Clock       Clock    // optional
	Logger      *zap.Logger
}

// TickResult summarizes one tick.
type TickResult struct {
	Markets        int // market groups with unresolved bets
	Checked        int
	Settled        int
	Unresolved     int
	Skipped        int // no client, circuit open or unparseable
	Failed         int
	NeedsAttention int // resolution recorded but bets still open, not re-polled
	StaleChecked   int
	StaleSettled   int
	Cancelled      int
	LockSkipped    bool
}

// Poller runs ticks on a fixed interval. Start and Stop are safe to call repeatedly.
type Poller struct {
	store       Store
	settler     Settler
	clients     map[types.Source]exchange.Client
	interval    time.Duration
	staleGrace  time.Duration
	concurrency int
	lock        TickLock
	clock       Clock
	logger      *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	tickMu  sync.Mutex
	running bool
}

// New creates a poller.
func New(cfg *Config) (*Poller, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Settler == nil {
		return nil, fmt.Errorf("settler cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	clients := make(map[types.Source]exchange.Client, len(cfg.Clients))
	for _, c := range cfg.Clients {
		if c == nil {
			return nil, fmt.Errorf("client cannot be nil")
		}
		if _, dup := clients[c.Source()]; dup {
			return nil, fmt.Errorf("duplicate client for source %q", c.Source())
		}
		clients[c.Source()] = c
	}

	p := &Poller{
		store:       cfg.Store,
		settler:     cfg.Settler,
		clients:     clients,
		interval:    cfg.Interval,
		staleGrace:  cfg.StaleGrace,
		concurrency: cfg.Concurrency,
		lock:        cfg.Lock,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.staleGrace <= 0 {
		p.staleGrace = DefaultStaleGrace
	}
	if p.concurrency <= 0 {
		p.concurrency = DefaultConcurrency
	}
	if p.lock == nil {
		p.lock = NoopLock{}
	}
	if p.clock == nil {
		p.clock = realClock{}
	}
	return p, nil
}

// Start launches the loop: one tick immediately, then one per interval.
// Calling Start while running is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Debug("poller-already-running")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	ticker := p.clock.NewTicker(p.interval)
	go p.run(loopCtx, ticker, p.done)

	p.logger.Info("poller-started",
		zap.Duration("interval", p.interval),
		zap.Duration("stale-grace", p.staleGrace),
		zap.Int("concurrency", p.concurrency))
}

// Stop cancels the loop and waits for an in-flight tick to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.running = false
	p.mu.Unlock()

	cancel()
	<-done
	p.logger.Info("poller-stopped")
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) run(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	defer p.markStopped(done)

	p.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.Tick(ctx)
		}
	}
}

// markStopped clears running when the loop exits on its own, for example when
// the parent context of Start is cancelled. A newer loop's state is left alone.
func (p *Poller) markStopped(done chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == done {
		p.running = false
	}
}

// Tick runs one pass. It never returns an error: failures are logged per market.
func (p *Poller) Tick(ctx context.Context) TickResult {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	var result TickResult

	release, acquired, err := p.lock.Acquire(ctx)
	if err != nil {
		p.logger.Warn("tick-lock-unavailable", zap.Error(err))
	} else if !acquired {
		TicksTotal.WithLabelValues("skipped-locked").Inc()
		p.logger.Debug("tick-skipped-lock-held")
		result.LockSkipped = true
		return result
	} else {
		defer release()
	}

	start := time.Now()
	defer func() {
		TickDurationSeconds.Observe(time.Since(start).Seconds())
	}()
	TicksTotal.WithLabelValues("ran").Inc()

	p.checkVenues(ctx, &result)
	p.reconcileStale(ctx, &result)

	p.logger.Info("poller-tick-complete",
		zap.Int("markets", result.Markets),
		zap.Int("checked", result.Checked),
		zap.Int("settled", result.Settled),
		zap.Int("unresolved", result.Unresolved),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Int("needs-attention", result.NeedsAttention),
		zap.Int("stale-settled", result.StaleSettled),
		zap.Int("cancelled", result.Cancelled),
		zap.Duration("duration", time.Since(start)))
	return result
}

// openMarkets groups unresolved real and paper bets by market.
func (p *Poller) openMarkets(ctx context.Context) ([]types.MarketKey, error) {
	bets, err := p.store.ListUnresolvedBets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unresolved bets: %w", err)
	}
	paperBets, err := p.store.ListUnresolvedPaperBets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unresolved paper bets: %w", err)
	}

	seen := make(map[types.MarketKey]struct{}, len(bets)+len(paperBets))
	for i := range bets {
		seen[bets[i].Key()] = struct{}{}
	}
	for i := range paperBets {
		seen[paperBets[i].Key()] = struct{}{}
	}

	keys := make([]types.MarketKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

func (p *Poller) checkVenues(ctx context.Context, result *TickResult) {
	keys, err := p.openMarkets(ctx)
	if err != nil {
		p.logger.Error("poller-load-bets-failed", zap.Error(err))
		return
	}
	result.Markets = len(keys)
	OpenMarkets.Set(float64(len(keys)))

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, p.concurrency)
	)

	for _, key := range keys {
		client, ok := p.clients[key.Source]
		if !ok {
			// Internal markets are settled by the stale pass or by an operator.
			mu.Lock()
			result.Skipped++
			mu.Unlock()
			MarketChecksTotal.WithLabelValues(string(key.Source), "no-client").Inc()
			continue
		}

		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(key types.MarketKey, client exchange.Client) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := p.checkMarket(ctx, key, client)
			MarketChecksTotal.WithLabelValues(string(key.Source), outcome).Inc()

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case "settled", "already-resolved":
				result.Checked++
				result.Settled++
			case "unresolved":
				result.Checked++
				result.Unresolved++
			case "circuit-open", "unparseable":
				result.Skipped++
			case "needs-attention":
				result.NeedsAttention++
			default:
				result.Failed++
			}
		}(key, client)
	}

	wg.Wait()
}

// checkMarket queries one venue and settles the market if it has resolved.
// The returned label classifies the result; no error escapes.
func (p *Poller) checkMarket(ctx context.Context, key types.MarketKey, client exchange.Client) string {
	resolved, err := p.store.HasResolution(ctx, key)
	if err != nil {
		p.logger.Error("market-check-failed",
			zap.String("market", key.String()),
			zap.Error(err))
		return "error"
	}
	if resolved {
		p.logger.Warn("resolved-market-has-open-bets",
			zap.String("market", key.String()),
			zap.String("action", "arena-settle resolve --remaining"))
		return "needs-attention"
	}

	if err := p.store.UpsertMarket(ctx, &types.Market{
		Source:     key.Source,
		ExternalID: key.MarketID,
		Status:     types.MarketStatusOpen,
	}); err != nil {
		p.logger.Warn("market-upsert-failed", zap.String("market", key.String()), zap.Error(err))
	}

	state, err := client.FetchMarketState(ctx, key.MarketID)
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		p.logger.Warn("market-check-skipped-circuit-open",
			zap.String("market", key.String()),
			zap.Error(err))
		return "circuit-open"
	case errors.Is(err, types.ErrUnparseableResolution):
		p.logger.Warn("market-resolution-unparseable",
			zap.String("market", key.String()),
			zap.Error(err))
		return "unparseable"
	case err != nil:
		p.logger.Error("market-check-failed",
			zap.String("market", key.String()),
			zap.Error(err))
		return "error"
	}

	if !state.Resolved {
		if state.Status == exchange.StatusClosed {
			if err := p.store.SetMarketStatus(ctx, key, types.MarketStatusClosed); err != nil {
				p.logger.Warn("market-status-update-failed", zap.String("market", key.String()), zap.Error(err))
			}
		}
		return "unresolved"
	}

	if state.WinningOutcome == "" {
		p.logger.Warn("market-resolution-unparseable",
			zap.String("market", key.String()),
			zap.String("reason", "resolved without winning outcome"))
		return "unparseable"
	}

	res, err := p.settler.Settle(ctx, key, state.WinningOutcome)
	if err != nil {
		p.logger.Error("market-settlement-failed",
			zap.String("market", key.String()),
			zap.String("winning-outcome", state.WinningOutcome),
			zap.Error(err))
		return "error"
	}
	if res.AlreadyResolved {
		return "already-resolved"
	}
	return "settled"
}

// reconcileStale settles or cancels competition markets whose competition ended
// more than the grace period ago while the market is still open.
func (p *Poller) reconcileStale(ctx context.Context, result *TickResult) {
	markets, err := p.store.ListOpenCompetitionMarkets(ctx)
	if err != nil {
		p.logger.Error("stale-market-scan-failed", zap.Error(err))
		return
	}

	now := p.clock.Now()
	for i := range markets {
		if ctx.Err() != nil {
			return
		}
		m := &markets[i]
		result.StaleChecked++

		comp, err := p.store.GetCompetition(ctx, m.CompetitionID)
		if errors.Is(err, types.ErrCompetitionNotFound) {
			p.logger.Debug("stale-market-competition-missing",
				zap.String("market", m.Key().String()),
				zap.String("competition-id", m.CompetitionID))
			continue
		}
		if err != nil {
			result.Failed++
			p.logger.Error("stale-market-competition-load-failed",
				zap.String("market", m.Key().String()),
				zap.String("competition-id", m.CompetitionID),
				zap.Error(err))
			continue
		}

		if comp.EndedAt == nil || now.Sub(*comp.EndedAt) < p.staleGrace {
			continue
		}

		switch comp.Status {
		case types.CompetitionCancelled:
			if _, err := p.settler.CancelMarket(ctx, m.Key()); err != nil {
				result.Failed++
				p.logger.Error("stale-market-cancel-failed",
					zap.String("market", m.Key().String()),
					zap.String("competition-id", comp.ID),
					zap.Error(err))
				continue
			}
			result.Cancelled++
			StaleMarketsTotal.WithLabelValues("cancelled").Inc()

		case types.CompetitionCompleted:
			if comp.WinnerAgentID == "" {
				StaleMarketsTotal.WithLabelValues("no-winner").Inc()
				p.logger.Warn("stale-market-no-winner",
					zap.String("market", m.Key().String()),
					zap.String("competition-id", comp.ID))
				continue
			}
			if _, err := p.settler.Settle(ctx, m.Key(), comp.WinnerAgentID); err != nil {
				result.Failed++
				p.logger.Error("stale-market-settle-failed",
					zap.String("market", m.Key().String()),
					zap.String("competition-id", comp.ID),
					zap.Error(err))
				continue
			}
			result.StaleSettled++
			StaleMarketsTotal.WithLabelValues("settled").Inc()

		default:
			StaleMarketsTotal.WithLabelValues("still-running").Inc()
		}
	}
}
