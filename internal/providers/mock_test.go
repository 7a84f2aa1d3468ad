package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configuredMock(t *testing.T, opts ...MockAdapterOption) *MockAdapter {
	t.Helper()
	p := NewMockAdapter(append([]MockAdapterOption{WithLatency(time.Millisecond)}, opts...)...)
	require.NoError(t, p.Configure(Config{Credentials: json.RawMessage(`{"secret":"s3cret"}`)}))
	return p
}

func TestMockAdapter_Configure(t *testing.T) {
	p := NewMockAdapter()
	assert.Equal(t, "mock", p.Name())

	err := p.Configure(Config{})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidCredentials)

	err = p.Configure(Config{Credentials: json.RawMessage(`{"secret":""}`)})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidCredentials)

	err = p.Configure(Config{
		Credentials: json.RawMessage(`{"secret":"x"}`),
		Settings:    map[string]any{"failure_rate": 0.25, "latency_ms": 5.0},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.25, p.failureRate)
	assert.Equal(t, 5*time.Millisecond, p.latency)
}

func TestMockAdapter_ValidateWebhook(t *testing.T) {
	p := configuredMock(t)

	h := http.Header{}
	assert.ErrorIs(t, p.ValidateWebhook(nil, h), domainErrors.ErrInvalidSignature)

	h.Set(MockSecretHeader, "wrong")
	assert.ErrorIs(t, p.ValidateWebhook(nil, h), domainErrors.ErrInvalidSignature)

	h.Set(MockSecretHeader, "s3cret")
	assert.NoError(t, p.ValidateWebhook(nil, h))
}

func TestMockAdapter_ParseCallback_JSON(t *testing.T) {
	p := configuredMock(t)
	body := []byte(`{"transaction_id":"tx-1","correlation_id":"c-1","order_ref":"ORD-1","status":"success","amount":"150.00","currency":"usd","approval_code":"A1"}`)

	res := p.ParseCallback(body)
	assert.True(t, res.Success)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, "tx-1", res.ProviderTransactionID)
	assert.Equal(t, "c-1", res.CorrelationID)
	assert.Equal(t, "ORD-1", res.OrderReference)
	require.True(t, res.Amount.Valid)
	assert.True(t, res.Amount.Decimal.Equal(decimal.RequireFromString("150")))
	assert.Equal(t, "A1", res.ApprovalNumber)
	assert.Equal(t, body, res.Raw)
}

func TestMockAdapter_ParseCallback_Form(t *testing.T) {
	p := configuredMock(t)
	body := []byte("transaction_id=tx-2&status=declined&amount=10")

	res := p.ParseCallback(body)
	assert.False(t, res.Success)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "declined", res.ErrorCode)
	assert.Equal(t, "tx-2", res.ProviderTransactionID)
}

func TestMockAdapter_ParseCallback_Garbage(t *testing.T) {
	p := configuredMock(t)

	res := p.ParseCallback([]byte("%%%not a form"))
	assert.False(t, res.Success)
	assert.Empty(t, res.ProviderTransactionID)
	assert.False(t, res.Amount.Valid)
}

func TestMockAdapter_Redirect(t *testing.T) {
	p := configuredMock(t)
	q := url.Values{"transaction_id": {"tx-3"}, "status": {"paid"}, "secret": {"s3cret"}}

	require.NoError(t, p.ValidateRedirect(q))
	res := p.ParseRedirect(q)
	assert.True(t, res.Success)
	assert.NotContains(t, string(res.Raw), "s3cret")

	q.Set("secret", "nope")
	assert.ErrorIs(t, p.ValidateRedirect(q), domainErrors.ErrInvalidSignature)
}

func TestMockAdapter_Refund_Success(t *testing.T) {
	p := configuredMock(t, WithFailureRate(0.0))

	res, err := p.Refund(context.Background(), RefundRequest{
		ProviderTransactionID: "tx-1",
		Amount:                decimal.NewFromInt(10),
		Currency:              "USD",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.ProviderRefundID, "mock_refund_")
}

func TestMockAdapter_Refund_Declined(t *testing.T) {
	p := configuredMock(t, WithFailureRate(1.0))

	res, err := p.Refund(context.Background(), RefundRequest{ProviderTransactionID: "tx-1", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "refund_declined", res.ErrorCode)
}

func TestMockAdapter_Refund_Timeout(t *testing.T) {
	p := configuredMock(t, WithTimeoutRate(1.0))

	res, err := p.Refund(context.Background(), RefundRequest{ProviderTransactionID: "tx-1", Amount: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, domainErrors.ErrGatewayFailure)
	require.NotNil(t, res)
	assert.False(t, res.Success)
}

func TestMockAdapter_Refund_ContextCancelled(t *testing.T) {
	p := configuredMock(t, WithLatency(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Refund(ctx, RefundRequest{ProviderTransactionID: "tx-1", Amount: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, context.Canceled)
}
