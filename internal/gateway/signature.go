package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/wellness-storefront/order-ledger/internal/domain"
)

// WebhookVerifier checks webhook authenticity over the raw request bytes.
// The body must never be re-serialized before verification.
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewWebhookVerifier builds a verifier. A zero tolerance disables the
// timestamp freshness window; the timestamp is still part of the signed
// message.
func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	return &WebhookVerifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// ComputeSignature returns base64(HMAC-SHA256(secret, timestamp+rawBody)).
func ComputeSignature(secret, timestamp string, rawBody []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(rawBody)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (v *WebhookVerifier) VerifySignature(signature string, rawBody []byte, timestamp string) error {
	signature = strings.TrimSpace(signature)
	timestamp = strings.TrimSpace(timestamp)
	if signature == "" || timestamp == "" {
		return domain.AuthError("missing webhook signature or timestamp")
	}
	if len(v.secret) == 0 {
		return domain.AuthError("webhook secret is not configured")
	}

	if v.tolerance > 0 {
		sentAt, err := parseEpoch(timestamp)
		if err != nil {
			return domain.AuthError("malformed webhook timestamp")
		}
		skew := v.now().Sub(sentAt)
		if skew < 0 {
			skew = -skew
		}
		if skew > v.tolerance {
			return domain.AuthError("webhook timestamp outside tolerance")
		}
	}

	given, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return domain.AuthError("invalid webhook signature")
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(timestamp))
	mac.Write(rawBody)
	if !hmac.Equal(given, mac.Sum(nil)) {
		return domain.AuthError("invalid webhook signature")
	}
	return nil
}

// parseEpoch accepts seconds or milliseconds since the epoch.
func parseEpoch(raw string) (time.Time, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if n > 1e12 {
		return time.UnixMilli(n), nil
	}
	return time.Unix(n, 0), nil
}
