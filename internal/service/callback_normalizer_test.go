package service

import (
	"testing"

	"github.com/cassiomorais/storepay/internal/providers"
	"github.com/cassiomorais/storepay/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type panickyAdapter struct {
	testutil.StubAdapter
}

func (a *panickyAdapter) ParseCallback([]byte) providers.CallbackResult {
	panic("unexpected shape")
}

func TestNormalize(t *testing.T) {
	n := NewCallbackNormalizer(zerolog.Nop())

	tests := []struct {
		name string
		in   providers.CallbackResult
		want providers.CallbackResult
	}{
		{
			name: "canonicalizes fields",
			in: providers.CallbackResult{
				Status:                "SUCCEEDED",
				ProviderTransactionID: " pi_1 ",
				OrderReference:        "#ord-9 ",
				Currency:              "usd",
				CardBrand:             " Visa",
				CardLastFour:          "4242 4242 4242 1234",
				Amount:                decimal.NewNullDecimal(decimal.NewFromInt(5)),
			},
			want: providers.CallbackResult{
				Success:               true,
				Status:                providers.StatusSucceeded,
				ProviderTransactionID: "pi_1",
				OrderReference:        "ORD-9",
				Currency:              "USD",
				CardBrand:             "visa",
				CardLastFour:          "1234",
				Amount:                decimal.NewNullDecimal(decimal.NewFromInt(5)),
			},
		},
		{
			name: "success flag without status",
			in:   providers.CallbackResult{Success: true, ProviderTransactionID: "pi_2"},
			want: providers.CallbackResult{Success: true, Status: providers.StatusSucceeded, ProviderTransactionID: "pi_2"},
		},
		{
			name: "error code wins over success",
			in:   providers.CallbackResult{Status: providers.StatusSucceeded, ProviderTransactionID: "pi_3", ErrorCode: "fraud"},
			want: providers.CallbackResult{Status: providers.StatusFailed, ProviderTransactionID: "pi_3", ErrorCode: "fraud"},
		},
		{
			name: "success without transaction id fails",
			in:   providers.CallbackResult{Status: providers.StatusSucceeded},
			want: providers.CallbackResult{Status: providers.StatusFailed, ErrorCode: "missing_transaction_id"},
		},
		{
			name: "unknown status defaults to pending",
			in:   providers.CallbackResult{Status: "requires_action", ProviderTransactionID: "pi_4"},
			want: providers.CallbackResult{Status: providers.StatusPending, ProviderTransactionID: "pi_4"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(tt.in))
		})
	}
}

func TestParseWebhook_RecoversFromParserPanic(t *testing.T) {
	n := NewCallbackNormalizer(zerolog.Nop())

	res := n.ParseWebhook(&panickyAdapter{}, []byte(`{"x":1}`))
	assert.False(t, res.Success)
	assert.Equal(t, providers.StatusFailed, res.Status)
	assert.Equal(t, ParseErrorCode, res.ErrorCode)
	assert.Equal(t, []byte(`{"x":1}`), res.Raw)
}

func TestParseWebhook_UsesAdapter(t *testing.T) {
	n := NewCallbackNormalizer(zerolog.Nop())
	adapter := providers.NewMockAdapter()

	res := n.ParseWebhook(adapter, []byte(`{"transaction_id":"t1","status":"paid","amount":"9.99","currency":"eur"}`))
	assert.True(t, res.Success)
	assert.Equal(t, "EUR", res.Currency)
	assert.True(t, res.Amount.Decimal.Equal(decimal.RequireFromString("9.99")))
}
