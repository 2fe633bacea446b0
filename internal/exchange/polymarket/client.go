// Package polymarket reads market resolution state from the Polymarket Gamma API.
package polymarket

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/arena-settle/internal/exchange"
	"github.com/mselser95/arena-settle/pkg/types"
	"go.uber.org/zap"
)

// DefaultBaseURL is the public Gamma API.
const DefaultBaseURL = "https://gamma-api.polymarket.com"

// Client is an HTTP client for the Gamma markets endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new Gamma API client. Per-call deadlines come from the caller's context.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (c *Client) Source() types.Source {
	return types.SourcePolymarket
}

// gammaMarket is the subset of the Gamma market payload needed for settlement.
type gammaMarket struct {
	ID            string     `json:"id"`
	Question      string     `json:"question"`
	Closed        bool       `json:"closed"`
	Archived      bool       `json:"archived"`
	Outcomes      stringList `json:"outcomes"`
	OutcomePrices stringList `json:"outcomePrices"`
}

// FetchMarketState fetches /markets/{id} and derives its resolution.
func (c *Client) FetchMarketState(ctx context.Context, marketID string) (*exchange.MarketState, error) {
	requestURL := fmt.Sprintf("%s/markets/%s", c.baseURL, url.PathEscape(marketID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "arena-settle/1.0")

	c.logger.Debug("fetching-market-state",
		zap.String("source", string(types.SourcePolymarket)),
		zap.String("market-id", marketID))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var market gammaMarket
	err = json.Unmarshal(body, &market)
	if err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return parseMarketState(marketID, &market)
}
