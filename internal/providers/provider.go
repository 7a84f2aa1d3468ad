package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/shopspring/decimal"
)

// Callback statuses reported by adapters.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusPending   = "pending"
)

// Config binds credentials and settings to an adapter.
type Config struct {
	Provider    string
	Credentials json.RawMessage
	Settings    map[string]any
	TestMode    bool
}

// CallbackResult is the gateway-neutral view of one webhook or redirect.
type CallbackResult struct {
	Success               bool
	Status                string
	EventType             string
	ProviderTransactionID string
	CorrelationID         string
	OrderReference        string
	Amount                decimal.NullDecimal // major units
	Currency              string
	ApprovalNumber        string
	CardBrand             string
	CardLastFour          string
	ErrorCode             string
	ErrorMessage          string
	Raw                   []byte
}

type RefundRequest struct {
	ProviderTransactionID string
	Amount                decimal.Decimal
	Currency              string
	IdempotencyKey        string
	Reason                string
}

type RefundResult struct {
	Success          bool
	ProviderRefundID string
	Status           string
	ErrorCode        string
	ErrorMessage     string
	Raw              []byte
}

// Adapter is the contract every payment gateway implements. After Configure
// an adapter holds no per-call state and is safe for concurrent use.
type Adapter interface {
	// Name returns the provider name.
	Name() string
	// Configure binds credentials and settings.
	Configure(cfg Config) error
	// ValidateWebhook checks the authenticity proof of a webhook. It makes no
	// network calls.
	ValidateWebhook(body []byte, headers http.Header) error
	// ParseCallback extracts what it can; missing values are left empty.
	ParseCallback(body []byte) CallbackResult
	// Refund refunds a charge through the gateway.
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

// RedirectAdapter is implemented by gateways that complete payments through a
// signed browser redirect.
type RedirectAdapter interface {
	ValidateRedirect(query url.Values) error
	ParseRedirect(query url.Values) CallbackResult
}

// Acknowledger is implemented by gateways that expect a specific 2xx body.
type Acknowledger interface {
	Acknowledge(result CallbackResult) (contentType string, body []byte)
}

// decodeCredentials unmarshals the credential blob into dst.
func decodeCredentials(provider string, raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%s: credentials are required: %w", provider, domainErrors.ErrInvalidCredentials)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%s: decode credentials: %w", provider, err)
	}
	return nil
}

func settingString(settings map[string]any, key, fallback string) string {
	if v, ok := settings[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
