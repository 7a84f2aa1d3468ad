package service

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/cassiomorais/storepay/internal/domain/pendingpayment"
	"github.com/cassiomorais/storepay/internal/providers"
	"github.com/rs/zerolog"
)

// ParseErrorCode marks a callback the adapter could not parse.
const ParseErrorCode = "parse_error"

// CallbackNormalizer turns adapter output into the canonical CallbackResult.
// No gateway-specific shape survives past it.
type CallbackNormalizer struct {
	logger zerolog.Logger
}

func NewCallbackNormalizer(logger zerolog.Logger) *CallbackNormalizer {
	return &CallbackNormalizer{logger: logger}
}

// ParseWebhook runs the adapter parser and normalizes its output. A parser
// panic becomes a failed result.
func (n *CallbackNormalizer) ParseWebhook(adapter providers.Adapter, body []byte) (res providers.CallbackResult) {
	defer n.guard(adapter.Name(), body, &res)
	return n.Normalize(adapter.ParseCallback(body))
}

// ParseRedirect is ParseWebhook for the browser redirect channel.
func (n *CallbackNormalizer) ParseRedirect(adapter providers.RedirectAdapter, name string, query url.Values) (res providers.CallbackResult) {
	defer n.guard(name, []byte(query.Encode()), &res)
	return n.Normalize(adapter.ParseRedirect(query))
}

func (n *CallbackNormalizer) guard(provider string, raw []byte, res *providers.CallbackResult) {
	if r := recover(); r != nil {
		n.logger.Error().Str("provider", provider).Str("panic", fmt.Sprint(r)).Msg("callback parser panicked")
		*res = providers.CallbackResult{
			Status:       providers.StatusFailed,
			ErrorCode:    ParseErrorCode,
			ErrorMessage: "callback could not be parsed",
			Raw:          raw,
		}
	}
}

// Normalize canonicalizes identifiers, currency, card details and status.
func (n *CallbackNormalizer) Normalize(r providers.CallbackResult) providers.CallbackResult {
	r.EventType = strings.TrimSpace(r.EventType)
	r.ProviderTransactionID = strings.TrimSpace(r.ProviderTransactionID)
	r.CorrelationID = strings.TrimSpace(r.CorrelationID)
	r.OrderReference = pendingpayment.NormalizeOrderReference(r.OrderReference)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	r.ApprovalNumber = strings.TrimSpace(r.ApprovalNumber)
	r.CardBrand = strings.ToLower(strings.TrimSpace(r.CardBrand))
	r.CardLastFour = lastFourDigits(r.CardLastFour)
	r.ErrorCode = strings.TrimSpace(r.ErrorCode)
	r.ErrorMessage = strings.TrimSpace(r.ErrorMessage)

	switch strings.ToLower(strings.TrimSpace(r.Status)) {
	case providers.StatusSucceeded:
		r.Status = providers.StatusSucceeded
	case providers.StatusFailed:
		r.Status = providers.StatusFailed
	case providers.StatusPending:
		r.Status = providers.StatusPending
	default:
		switch {
		case r.Success:
			r.Status = providers.StatusSucceeded
		case r.ErrorCode != "":
			r.Status = providers.StatusFailed
		default:
			r.Status = providers.StatusPending
		}
	}

	if r.Status == providers.StatusSucceeded && r.ErrorCode != "" {
		r.Status = providers.StatusFailed
	}
	r.Success = r.Status == providers.StatusSucceeded && r.ProviderTransactionID != ""
	if !r.Success && r.Status == providers.StatusSucceeded {
		r.Status = providers.StatusFailed
		if r.ErrorCode == "" {
			r.ErrorCode = "missing_transaction_id"
		}
	}
	return r
}

// lastFourDigits keeps the final four digits of a card number or mask.
func lastFourDigits(s string) string {
	digits := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	return string(digits)
}
