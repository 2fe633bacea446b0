// Package exchange defines the read-only view of external venues used to detect market resolution.
package exchange

import (
	"context"

	"github.com/mselser95/arena-settle/pkg/types"
)

// Status is the venue-reported lifecycle of a market.
type Status string

const (
	StatusOpen    Status = "open"
	StatusClosed  Status = "closed"
	StatusSettled Status = "settled"
	StatusUnknown Status = "unknown"
)

// MarketState is a venue's answer to "has this market settled, and to what".
type MarketState struct {
	Source         types.Source
	MarketID       string
	Status         Status
	Resolved       bool
	WinningOutcome string // set only when Resolved
}

// Client queries a single venue. Implementations have no side effects.
type Client interface {
	Source() types.Source
	FetchMarketState(ctx context.Context, marketID string) (*MarketState, error)
}
