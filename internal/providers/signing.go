package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
)

// DefaultSignatureTolerance bounds the age of a timestamped signature.
const DefaultSignatureTolerance = 5 * time.Minute

// SignHMAC returns the hex HMAC-SHA256 of payload under secret.
func SignHMAC(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyHMAC compares a hex signature in constant time.
func verifyHMAC(secret string, payload []byte, signature string) bool {
	expected, err := hex.DecodeString(SignHMAC(secret, payload))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

// TimestampedSignature builds a "t=<unix>,v1=<hex>" header over "<t>.<body>".
func TimestampedSignature(secret string, body []byte, ts time.Time) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + t + ",v1=" + SignHMAC(secret, append([]byte(t+"."), body...))
}

// verifyTimestampedSignature checks a header produced by TimestampedSignature.
func verifyTimestampedSignature(secret string, body []byte, header string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return fmt.Errorf("missing signature header: %w", domainErrors.ErrInvalidSignature)
	}
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return fmt.Errorf("malformed signature header: %w", domainErrors.ErrInvalidSignature)
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed signature timestamp: %w", domainErrors.ErrInvalidSignature)
	}
	if tolerance > 0 && math.Abs(now.Sub(time.Unix(unix, 0)).Seconds()) > tolerance.Seconds() {
		return fmt.Errorf("signature timestamp outside tolerance: %w", domainErrors.ErrInvalidSignature)
	}
	payload := append([]byte(ts+"."), body...)
	for _, sig := range sigs {
		if verifyHMAC(secret, payload, sig) {
			return nil
		}
	}
	return fmt.Errorf("signature mismatch: %w", domainErrors.ErrInvalidSignature)
}

// CanonicalQuery encodes query parameters sorted by key, skipping exclude.
func CanonicalQuery(query url.Values, exclude string) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		if k != exclude {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range query[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// SignQuery returns the HMAC of the canonical query without the signature param.
func SignQuery(secret string, query url.Values, signatureParam string) string {
	return SignHMAC(secret, []byte(CanonicalQuery(query, signatureParam)))
}

func secretsEqual(a, b string) bool {
	return a != "" && hmac.Equal([]byte(a), []byte(b))
}
