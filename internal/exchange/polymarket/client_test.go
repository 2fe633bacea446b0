package polymarket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mselser95/arena-settle/internal/exchange"
	"github.com/mselser95/arena-settle/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestClient_FetchMarketState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		status         int
		body           string
		wantErr        bool
		wantUnparsable bool
		wantResolved   bool
		wantStatus     exchange.Status
		wantOutcome    string
	}{
		{
			name:         "closed-and-archived-string-encoded",
			status:       http.StatusOK,
			body:         `{"id":"123","closed":true,"archived":true,"outcomes":"[\"NO\",\"YES\"]","outcomePrices":"[\"0.02\",\"0.98\"]"}`,
			wantResolved: true,
			wantStatus:   exchange.StatusSettled,
			wantOutcome:  "YES",
		},
		{
			name:         "closed-and-archived-plain-arrays",
			status:       http.StatusOK,
			body:         `{"id":"123","closed":true,"archived":true,"outcomes":["Yes","No"],"outcomePrices":["1","0"]}`,
			wantResolved: true,
			wantStatus:   exchange.StatusSettled,
			wantOutcome:  "Yes",
		},
		{
			name:       "closed-not-archived",
			status:     http.StatusOK,
			body:       `{"id":"123","closed":true,"archived":false,"outcomes":"[\"NO\",\"YES\"]","outcomePrices":"[\"0.02\",\"0.98\"]"}`,
			wantStatus: exchange.StatusClosed,
		},
		{
			name:       "open",
			status:     http.StatusOK,
			body:       `{"id":"123","closed":false,"archived":false,"outcomes":"[\"NO\",\"YES\"]","outcomePrices":"[\"0.40\",\"0.60\"]"}`,
			wantStatus: exchange.StatusOpen,
		},
		{
			name:           "resolved-with-mismatched-prices",
			status:         http.StatusOK,
			body:           `{"id":"123","closed":true,"archived":true,"outcomes":"[\"NO\",\"YES\"]","outcomePrices":"[\"1\"]"}`,
			wantErr:        true,
			wantUnparsable: true,
		},
		{
			name:           "resolved-with-garbage-price",
			status:         http.StatusOK,
			body:           `{"id":"123","closed":true,"archived":true,"outcomes":["NO","YES"],"outcomePrices":["x","1"]}`,
			wantErr:        true,
			wantUnparsable: true,
		},
		{
			name:    "server-error",
			status:  http.StatusServiceUnavailable,
			body:    `upstream down`,
			wantErr: true,
		},
		{
			name:    "invalid-json",
			status:  http.StatusOK,
			body:    `{not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/markets/123", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, zaptest.NewLogger(t))
			state, err := client.FetchMarketState(context.Background(), "123")

			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantUnparsable, errors.Is(err, types.ErrUnparseableResolution))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, types.SourcePolymarket, state.Source)
			assert.Equal(t, "123", state.MarketID)
			assert.Equal(t, tt.wantStatus, state.Status)
			assert.Equal(t, tt.wantResolved, state.Resolved)
			assert.Equal(t, tt.wantOutcome, state.WinningOutcome)
		})
	}
}

func TestWinningOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		outcomes []string
		prices   []string
		want     string
		wantErr  bool
	}{
		{name: "max-price-wins", outcomes: []string{"NO", "YES"}, prices: []string{"0.02", "0.98"}, want: "YES"},
		{name: "tie-goes-to-first", outcomes: []string{"A", "B", "C"}, prices: []string{"0.5", "0.5", "0"}, want: "A"},
		{name: "multi-outcome", outcomes: []string{"A", "B", "C"}, prices: []string{"0.1", "0.2", "0.7"}, want: "C"},
		{name: "empty-outcomes", outcomes: nil, prices: nil, wantErr: true},
		{name: "all-zero", outcomes: []string{"NO", "YES"}, prices: []string{"0", "0"}, wantErr: true},
		{name: "length-mismatch", outcomes: []string{"NO", "YES"}, prices: []string{"1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := winningOutcome(tt.outcomes, tt.prices)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
