package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const (
	ProviderMock       = "mock"
	MockSecretHeader   = "X-Mock-Secret"
	MockSecretParam    = "secret"
	defaultMockLatency = 50 * time.Millisecond
)

// MockAdapter is a development gateway. Callbacks are authenticated with a
// shared secret and refunds are simulated.
type MockAdapter struct {
	secret      string
	failureRate float64 // 0.0 to 1.0
	latency     time.Duration
	timeoutRate float64 // 0.0 to 1.0
}

type MockAdapterOption func(*MockAdapter)

func WithFailureRate(rate float64) MockAdapterOption {
	return func(p *MockAdapter) { p.failureRate = rate }
}

func WithLatency(d time.Duration) MockAdapterOption {
	return func(p *MockAdapter) { p.latency = d }
}

func WithTimeoutRate(rate float64) MockAdapterOption {
	return func(p *MockAdapter) { p.timeoutRate = rate }
}

func NewMockAdapter(opts ...MockAdapterOption) *MockAdapter {
	p := &MockAdapter{latency: defaultMockLatency}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *MockAdapter) Name() string { return ProviderMock }

func (p *MockAdapter) Configure(cfg Config) error {
	var creds struct {
		Secret string `json:"secret"`
	}
	if err := decodeCredentials(ProviderMock, cfg.Credentials, &creds); err != nil {
		return err
	}
	if creds.Secret == "" {
		return fmt.Errorf("mock: secret is required: %w", domainErrors.ErrInvalidCredentials)
	}
	p.secret = creds.Secret
	if v, ok := cfg.Settings["failure_rate"].(float64); ok {
		p.failureRate = v
	}
	if v, ok := cfg.Settings["latency_ms"].(float64); ok {
		p.latency = time.Duration(v) * time.Millisecond
	}
	return nil
}

func (p *MockAdapter) ValidateWebhook(_ []byte, headers http.Header) error {
	if !secretsEqual(p.secret, headers.Get(MockSecretHeader)) {
		return fmt.Errorf("mock: shared secret mismatch: %w", domainErrors.ErrInvalidSignature)
	}
	return nil
}

func (p *MockAdapter) ParseCallback(body []byte) CallbackResult {
	get := mockFieldReader(body)
	res := p.parse(get)
	res.EventType = firstNonEmpty(get("event"), "payment")
	res.Raw = body
	return res
}

func (p *MockAdapter) ValidateRedirect(query url.Values) error {
	if !secretsEqual(p.secret, query.Get(MockSecretParam)) {
		return fmt.Errorf("mock: shared secret mismatch: %w", domainErrors.ErrInvalidSignature)
	}
	return nil
}

func (p *MockAdapter) ParseRedirect(query url.Values) CallbackResult {
	res := p.parse(query.Get)
	res.EventType = "redirect"
	clean := url.Values{}
	for k, v := range query {
		if k != MockSecretParam {
			clean[k] = v
		}
	}
	res.Raw = []byte(clean.Encode())
	return res
}

func (p *MockAdapter) parse(get func(string) string) CallbackResult {
	res := CallbackResult{
		ProviderTransactionID: get("transaction_id"),
		CorrelationID:         get("correlation_id"),
		OrderReference:        get("order_ref"),
		Amount:                parseMajorAmount(get("amount")),
		Currency:              get("currency"),
		ApprovalNumber:        get("approval_code"),
		CardBrand:             get("card_brand"),
		CardLastFour:          get("card_last4"),
		ErrorCode:             get("error_code"),
		ErrorMessage:          get("error_message"),
	}
	switch strings.ToLower(get("status")) {
	case "success", "succeeded", "paid":
		res.Status = StatusSucceeded
	case "failed", "declined":
		res.Status = StatusFailed
		res.ErrorCode = firstNonEmpty(res.ErrorCode, "declined")
	default:
		res.Status = StatusPending
	}
	res.Success = res.Status == StatusSucceeded
	return res
}

// mockFieldReader reads fields from a JSON object or, failing that, a form body.
func mockFieldReader(body []byte) func(string) string {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") && json.Valid(body) {
		root := gjson.ParseBytes(body)
		return func(key string) string { return root.Get(key).String() }
	}
	form, err := url.ParseQuery(trimmed)
	if err != nil {
		return func(string) string { return "" }
	}
	return form.Get
}

func (p *MockAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	select {
	case <-time.After(p.latency):
	case <-ctx.Done():
		return nil, fmt.Errorf("mock: %w: %w", domainErrors.ErrGatewayFailure, ctx.Err())
	}

	if rand.Float64() < p.timeoutRate {
		return &RefundResult{Status: StatusFailed, ErrorCode: "timeout", ErrorMessage: "simulated gateway timeout"},
			fmt.Errorf("mock: simulated timeout: %w", domainErrors.ErrGatewayFailure)
	}

	if rand.Float64() < p.failureRate {
		return &RefundResult{
			Status:       StatusFailed,
			ErrorCode:    "refund_declined",
			ErrorMessage: fmt.Sprintf("mock: simulated refund failure for %s", req.ProviderTransactionID),
		}, nil
	}

	id := fmt.Sprintf("mock_refund_%s", uuid.New().String()[:8])
	return &RefundResult{
		Success:          true,
		ProviderRefundID: id,
		Status:           StatusSucceeded,
		Raw:              []byte(fmt.Sprintf(`{"id":%q,"amount":%q}`, id, req.Amount.String())),
	}, nil
}
