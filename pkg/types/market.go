package types

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies the venue a market is sourced from.
type Source string

// Known market sources.
const (
	SourcePolymarket Source = "polymarket"
	SourceKalshi     Source = "kalshi"
	SourceInternal   Source = "internal" // markets backed by an internal competition
)

// ParseSource validates a source name.
func ParseSource(s string) (Source, error) {
	switch src := Source(s); src {
	case SourcePolymarket, SourceKalshi, SourceInternal:
		return src, nil
	default:
		return "", fmt.Errorf("unknown source %q", s)
	}
}

// MarketKey identifies a market by venue and the venue's own market id.
type MarketKey struct {
	Source   Source
	MarketID string
}

func (k MarketKey) String() string {
	return fmt.Sprintf("%s:%s", k.Source, k.MarketID)
}

// MarketStatus is the last observed state of a market.
type MarketStatus string

const (
	MarketStatusOpen      MarketStatus = "open"
	MarketStatusClosed    MarketStatus = "closed"
	MarketStatusSettled   MarketStatus = "settled"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// IsFinal reports whether no further transitions are allowed from this status.
func (s MarketStatus) IsFinal() bool {
	return s == MarketStatusSettled || s == MarketStatusCancelled
}

// Market is a trackable proposition sourced from exactly one venue.
// The outcome is not stored here; see MarketResolution.
type Market struct {
	ID            string
	Source        Source
	ExternalID    string
	CompetitionID string // empty when the market is not tied to a competition
	Question      string
	Status        MarketStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Key returns the market's venue key.
func (m *Market) Key() MarketKey {
	return MarketKey{Source: m.Source, MarketID: m.ExternalID}
}

// MarketResolution is the append-only settlement record of a market.
// Its existence for (MarketID, Source) means the market has been settled.
type MarketResolution struct {
	ID             string
	MarketID       string
	Source         Source
	WinningOutcome string
	ResolvedAt     time.Time
	Manual         bool
}

// SettlementClaim reserves a market for one outcome (or for cancellation)
// before any wallet is touched. The first claim for (MarketID, Source) wins
// and is never replaced.
type SettlementClaim struct {
	MarketID       string
	Source         Source
	WinningOutcome string // empty for a cancel claim
	Cancel         bool
	Manual         bool
	ClaimedAt      time.Time
}

// Matches reports whether other asks for the same settlement as c.
func (c *SettlementClaim) Matches(other *SettlementClaim) bool {
	if c.Cancel || other.Cancel {
		return c.Cancel == other.Cancel
	}
	return strings.EqualFold(strings.TrimSpace(c.WinningOutcome), strings.TrimSpace(other.WinningOutcome))
}

// CompetitionStatus is the lifecycle state reported by the competition module.
type CompetitionStatus string

const (
	CompetitionRunning   CompetitionStatus = "running"
	CompetitionCompleted CompetitionStatus = "completed"
	CompetitionCancelled CompetitionStatus = "cancelled"
)

// Competition is the read-only view of a tournament/match that backs internal markets.
type Competition struct {
	ID            string
	Status        CompetitionStatus
	EndedAt       *time.Time
	WinnerAgentID string
}

// CompetitionMarket links an open market to the competition it depends on.
type CompetitionMarket struct {
	Key           MarketKey
	CompetitionID string
}
