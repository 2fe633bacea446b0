package polymarket

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/mselser95/arena-settle/internal/exchange"
	"github.com/mselser95/arena-settle/pkg/types"
	"github.com/shopspring/decimal"
)

// stringList accepts both a JSON array and a JSON string holding an encoded array.
// Gamma returns outcomes and outcomePrices in the second form.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var encoded string
		if err := json.Unmarshal(data, &encoded); err != nil {
			return fmt.Errorf("decode string-encoded list: %w", err)
		}
		if encoded == "" {
			*l = nil
			return nil
		}
		data = []byte(encoded)
	}

	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	*l = values
	return nil
}

// parseMarketState applies the Gamma resolution rule: a market is resolved only when it is both
// closed and archived, and the winner is the outcome with the highest last price (first wins ties).
func parseMarketState(marketID string, m *gammaMarket) (*exchange.MarketState, error) {
	state := &exchange.MarketState{
		Source:   types.SourcePolymarket,
		MarketID: marketID,
		Status:   exchange.StatusOpen,
	}

	if m.Closed {
		state.Status = exchange.StatusClosed
	}
	if !m.Closed || !m.Archived {
		return state, nil
	}

	winner, err := winningOutcome(m.Outcomes, m.OutcomePrices)
	if err != nil {
		return nil, &types.UnparseableResolutionError{
			Source:   types.SourcePolymarket,
			MarketID: marketID,
			Reason:   err.Error(),
		}
	}

	state.Status = exchange.StatusSettled
	state.Resolved = true
	state.WinningOutcome = winner
	return state, nil
}

func winningOutcome(outcomes, prices []string) (string, error) {
	if len(outcomes) == 0 {
		return "", fmt.Errorf("no outcomes")
	}
	if len(outcomes) != len(prices) {
		return "", fmt.Errorf("%d outcomes but %d prices", len(outcomes), len(prices))
	}

	best := -1
	var bestPrice decimal.Decimal
	for i, raw := range prices {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return "", fmt.Errorf("parse price %q: %w", raw, err)
		}
		if best < 0 || price.GreaterThan(bestPrice) {
			best = i
			bestPrice = price
		}
	}

	if !bestPrice.IsPositive() {
		return "", fmt.Errorf("no outcome has a positive price")
	}
	if outcomes[best] == "" {
		return "", fmt.Errorf("winning outcome label is empty")
	}

	return outcomes[best], nil
}
