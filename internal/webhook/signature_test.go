package webhook

import (
	"testing"
	"time"

	"github.com/mselser95/arena-settle/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	t.Parallel()

	const secret = "whsec_test"
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	signedAt := time.Unix(1767225600, 0)
	valid := Sign(payload, secret, signedAt)

	tests := []struct {
		name    string
		payload []byte
		header  string
		now     time.Time
		wantErr bool
	}{
		{name: "valid", payload: payload, header: valid, now: signedAt},
		{name: "valid-within-tolerance", payload: payload, header: valid, now: signedAt.Add(4 * time.Minute)},
		{name: "expired", payload: payload, header: valid, now: signedAt.Add(6 * time.Minute), wantErr: true},
		{name: "future", payload: payload, header: valid, now: signedAt.Add(-6 * time.Minute), wantErr: true},
		{name: "wrong-secret", payload: payload, header: Sign(payload, "other", signedAt), now: signedAt, wantErr: true},
		{name: "tampered-payload", payload: []byte(`{"id":"evt_2"}`), header: valid, now: signedAt, wantErr: true},
		{name: "missing-header", payload: payload, header: "", now: signedAt, wantErr: true},
		{name: "no-v1", payload: payload, header: "t=1767225600", now: signedAt, wantErr: true},
		{name: "bad-timestamp", payload: payload, header: "t=abc,v1=00", now: signedAt, wantErr: true},
		{name: "garbage", payload: payload, header: "not-a-signature", now: signedAt, wantErr: true},
		{
			name:    "rotated-secret-second-v1-matches",
			payload: payload,
			header:  "t=1767225600,v1=deadbeef," + valid[len("t=1767225600,"):],
			now:     signedAt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := Verify(tt.payload, tt.header, secret, tt.now, DefaultTolerance)
			if tt.wantErr {
				require.ErrorIs(t, err, types.ErrInvalidSignature)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSign(t *testing.T) {
	t.Parallel()

	header := Sign([]byte("{}"), "secret", time.Unix(100, 0))
	assert.Regexp(t, `^t=100,v1=[0-9a-f]{64}$`, header)
}
