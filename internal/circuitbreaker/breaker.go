package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned without calling the wrapped function while the circuit is open.
var ErrCircuitOpen = errors.New("circuit open")

// ErrTimeout is recorded as a failure when a call exceeds the configured timeout.
var ErrTimeout = errors.New("circuit breaker call timed out")

// State is the breaker state.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Clock supplies the current time for cooldown bookkeeping.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Breaker isolates calls to one external service.
// State is process-local and is not shared across instances.
type Breaker struct {
	name             string
	failureThreshold int
	cooldown         time.Duration
	timeout          time.Duration
	clock            Clock
	logger           *zap.Logger

	mu            sync.Mutex
	state         State
	failureCount  int
	lastFailure   time.Time
	probeInFlight bool

	isFailure func(error) bool
}

// Config holds breaker configuration for a single service.
type Config struct {
	Name             string
	FailureThreshold int
	Cooldown         time.Duration
	Timeout          time.Duration
	Clock            Clock // defaults to wall clock
	Logger           *zap.Logger

	// IsFailure decides whether a returned error counts against the service.
	// Errors it rejects are returned to the caller but recorded as successes.
	// Nil counts every error. Timeouts always count.
	IsFailure func(error) bool
}

// Status is a point-in-time snapshot of a breaker.
type Status struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	LastFailure  time.Time `json:"last_failure"`
}

// New creates a breaker in the CLOSED state.
func New(cfg *Config) (breaker *Breaker, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("name cannot be empty")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.FailureThreshold < 1 {
		return nil, fmt.Errorf("failure threshold must be at least 1")
	}
	if cfg.Cooldown <= 0 {
		return nil, fmt.Errorf("cooldown must be positive")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}

	breaker = &Breaker{
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		cooldown:         cfg.Cooldown,
		timeout:          cfg.Timeout,
		clock:            clock,
		logger:           cfg.Logger.With(zap.String("breaker", cfg.Name)),
		state:            StateClosed,
		isFailure:        cfg.IsFailure,
	}

	BreakerState.WithLabelValues(cfg.Name).Set(float64(StateClosed))

	return breaker, nil
}

// Name returns the service name the breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Status returns a snapshot for debugging endpoints.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Status{
		Name:         b.name,
		State:        b.state.String(),
		FailureCount: b.failureCount,
		LastFailure:  b.lastFailure,
	}
}

// Do runs fn through the breaker. While OPEN it returns ErrCircuitOpen without calling fn.
// A call that outlives the timeout counts as a failure and its late result is discarded.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	probe, err := b.allow()
	if err != nil {
		BreakerCallsTotal.WithLabelValues(b.name, "rejected").Inc()
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	select {
	case err = <-done:
	case <-callCtx.Done():
		err = fmt.Errorf("%s after %s: %w", b.name, b.timeout, ErrTimeout)
	}

	// Caller gave up; that says nothing about the service.
	if ctx.Err() != nil {
		b.release(probe)
		return ctx.Err()
	}

	b.record(probe, err)
	return err
}

// Execute runs fn through b and returns its typed result.
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := b.Do(ctx, func(callCtx context.Context) error {
		value, fnErr := fn(callCtx)
		if fnErr != nil {
			return fnErr
		}
		result = value
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// allow decides whether a call may proceed and whether it is the HALF_OPEN probe.
func (b *Breaker) allow() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		if b.clock.Now().Sub(b.lastFailure) < b.cooldown {
			return false, fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
		}
		b.transition(StateHalfOpen)
		b.probeInFlight = true
		return true, nil
	case StateHalfOpen:
		if b.probeInFlight {
			return false, fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
		}
		b.probeInFlight = true
		return true, nil
	}

	return false, fmt.Errorf("%s: unknown state %d", b.name, b.state)
}

// release frees the probe slot without recording an outcome.
func (b *Breaker) release(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probeInFlight = false
}

func (b *Breaker) record(probe bool, callErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := b.countsAsFailure(callErr)
	switch {
	case callErr == nil:
		BreakerCallsTotal.WithLabelValues(b.name, "success").Inc()
	case errors.Is(callErr, ErrTimeout):
		BreakerCallsTotal.WithLabelValues(b.name, "timeout").Inc()
	case !failed:
		BreakerCallsTotal.WithLabelValues(b.name, "tolerated").Inc()
	default:
		BreakerCallsTotal.WithLabelValues(b.name, "failure").Inc()
	}

	switch b.state {
	case StateClosed:
		if !failed {
			b.failureCount = 0
			return
		}
		b.failureCount++
		b.lastFailure = b.clock.Now()
		if b.failureCount >= b.failureThreshold {
			b.logger.Warn("circuit-opened",
				zap.Int("failure-count", b.failureCount),
				zap.Duration("cooldown", b.cooldown),
				zap.Error(callErr))
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		// Stragglers admitted before the circuit opened don't decide the probe.
		if !probe {
			return
		}
		b.probeInFlight = false
		if !failed {
			b.failureCount = 0
			b.logger.Info("circuit-closed")
			b.transition(StateClosed)
			return
		}
		b.lastFailure = b.clock.Now()
		b.logger.Warn("circuit-reopened", zap.Error(callErr))
		b.transition(StateOpen)
	case StateOpen:
		// Late results from calls admitted while CLOSED.
	}
}

func (b *Breaker) countsAsFailure(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrTimeout), b.isFailure == nil:
		return true
	default:
		return b.isFailure(err)
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.logger.Debug("circuit-state-change",
		zap.String("from", b.state.String()),
		zap.String("to", to.String()))
	b.state = to
	BreakerState.WithLabelValues(b.name).Set(float64(to))
	BreakerStateChanges.WithLabelValues(b.name, to.String()).Inc()
}
