// Package kalshi reads settlement results from the Kalshi trade API.
package kalshi

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/mselser95/arena-settle/internal/exchange"
	"github.com/mselser95/arena-settle/pkg/types"
	"go.uber.org/zap"
)

// DefaultBaseURL is the public Kalshi trade API host.
const DefaultBaseURL = "https://api.elections.kalshi.com"

// Client reads market status over REST. Retries are left to the poller's next tick.
type Client struct {
	client *resty.Client
	logger *zap.Logger
}

// NewClient creates a Kalshi client rooted at baseURL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "arena-settle/1.0").
		SetJSONUnmarshaler(json.Unmarshal)

	return &Client{
		client: rc,
		logger: logger,
	}
}

func (c *Client) Source() types.Source {
	return types.SourceKalshi
}

type marketEnvelope struct {
	Market marketPayload `json:"market"`
}

type marketPayload struct {
	Ticker string `json:"ticker"`
	Status string `json:"status"`
	Result string `json:"result"`
}

// FetchMarketState fetches /trade-api/v2/markets/{ticker}.
func (c *Client) FetchMarketState(ctx context.Context, ticker string) (*exchange.MarketState, error) {
	var envelope marketEnvelope

	c.logger.Debug("fetching-market-state",
		zap.String("source", string(types.SourceKalshi)),
		zap.String("market-id", ticker))

	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&envelope).
		Get("/trade-api/v2/markets/" + url.PathEscape(ticker))
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode(), resp.String())
	}

	return parseMarketState(ticker, &envelope.Market)
}

// parseMarketState treats "settled" (and the later "finalized") as resolved; the result names the winner.
func parseMarketState(ticker string, m *marketPayload) (*exchange.MarketState, error) {
	state := &exchange.MarketState{
		Source:   types.SourceKalshi,
		MarketID: ticker,
	}

	switch strings.ToLower(m.Status) {
	case "settled", "finalized":
		result := strings.ToUpper(strings.TrimSpace(m.Result))
		if result == "" {
			return nil, &types.UnparseableResolutionError{
				Source:   types.SourceKalshi,
				MarketID: ticker,
				Reason:   fmt.Sprintf("status %q without result", m.Status),
			}
		}
		state.Status = exchange.StatusSettled
		state.Resolved = true
		state.WinningOutcome = result
	case "closed", "determined":
		state.Status = exchange.StatusClosed
	case "open", "active", "initialized", "unopened", "paused":
		state.Status = exchange.StatusOpen
	default:
		state.Status = exchange.StatusUnknown
	}

	return state, nil
}
