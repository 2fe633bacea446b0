package kalshi

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
			name:         "settled-no",
			status:       http.StatusOK,
			body:         `{"market":{"ticker":"KXTEST-1","status":"settled","result":"no"}}`,
			wantResolved: true,
			wantStatus:   exchange.StatusSettled,
			wantOutcome:  "NO",
		},
		{
			name:         "finalized-yes",
			status:       http.StatusOK,
			body:         `{"market":{"ticker":"KXTEST-1","status":"finalized","result":"yes"}}`,
			wantResolved: true,
			wantStatus:   exchange.StatusSettled,
			wantOutcome:  "YES",
		},
		{
			name:       "active",
			status:     http.StatusOK,
			body:       `{"market":{"ticker":"KXTEST-1","status":"active","result":""}}`,
			wantStatus: exchange.StatusOpen,
		},
		{
			name:       "closed-awaiting-determination",
			status:     http.StatusOK,
			body:       `{"market":{"ticker":"KXTEST-1","status":"closed","result":""}}`,
			wantStatus: exchange.StatusClosed,
		},
		{
			name:           "settled-without-result",
			status:         http.StatusOK,
			body:           `{"market":{"ticker":"KXTEST-1","status":"settled","result":""}}`,
			wantErr:        true,
			wantUnparsable: true,
		},
		{
			name:    "not-found",
			status:  http.StatusNotFound,
			body:    `{"error":{"code":"not_found"}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/trade-api/v2/markets/KXTEST-1", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, zaptest.NewLogger(t))
			state, err := client.FetchMarketState(context.Background(), "KXTEST-1")

			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantUnparsable, errors.Is(err, types.ErrUnparseableResolution))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, types.SourceKalshi, state.Source)
			assert.Equal(t, tt.wantStatus, state.Status)
			assert.Equal(t, tt.wantResolved, state.Resolved)
			assert.Equal(t, tt.wantOutcome, state.WinningOutcome)
		})
	}
}
