package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mselser95/arena-settle/pkg/types"
)

// SignatureHeader carries "t=<unix seconds>,v1=<hex hmac>".
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance is the accepted clock skew between signing and verification.
const DefaultTolerance = 5 * time.Minute

// Sign returns the signature header value for payload signed at ts.
func Sign(payload []byte, secret string, ts time.Time) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + unix + ",v1=" + computeMAC(unix, payload, secret)
}

func computeMAC(unix string, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(unix))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks header against payload. Any v1 entry may match, which allows secret rotation
// on the gateway side. A timestamp outside tolerance is rejected as a replay.
func Verify(payload []byte, header, secret string, now time.Time, tolerance time.Duration) error {
	if header == "" {
		return fmt.Errorf("%w: missing header", types.ErrInvalidSignature)
	}

	var (
		unix       string
		signatures []string
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			unix = v
		case "v1":
			signatures = append(signatures, v)
		}
	}
	if unix == "" || len(signatures) == 0 {
		return fmt.Errorf("%w: malformed header", types.ErrInvalidSignature)
	}

	sec, err := strconv.ParseInt(unix, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", types.ErrInvalidSignature)
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(sec, 0))
		if age > tolerance || age < -tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", types.ErrInvalidSignature)
		}
	}

	expected := []byte(computeMAC(unix, payload, secret))
	for _, sig := range signatures {
		if hmac.Equal(expected, []byte(sig)) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching signature", types.ErrInvalidSignature)
}
