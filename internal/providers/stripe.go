package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/domain/money"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/tidwall/gjson"
)

const ProviderStripe = "stripe"

type stripeCredentials struct {
	SecretKey     string `json:"secret_key"`
	WebhookSecret string `json:"webhook_secret"`
}

// StripeAdapter verifies Stripe webhooks and refunds payment intents.
type StripeAdapter struct {
	creds     stripeCredentials
	tolerance time.Duration
	client    *stripe.Client
}

func NewStripeAdapter() *StripeAdapter {
	return &StripeAdapter{tolerance: webhook.DefaultTolerance}
}

func (a *StripeAdapter) Name() string { return ProviderStripe }

func (a *StripeAdapter) Configure(cfg Config) error {
	if err := decodeCredentials(ProviderStripe, cfg.Credentials, &a.creds); err != nil {
		return err
	}
	if a.creds.WebhookSecret == "" {
		return fmt.Errorf("stripe: webhook_secret is required: %w", domainErrors.ErrInvalidCredentials)
	}
	if a.creds.SecretKey != "" {
		a.client = stripe.NewClient(a.creds.SecretKey)
	}
	return nil
}

func (a *StripeAdapter) ValidateWebhook(body []byte, headers http.Header) error {
	sig := headers.Get("Stripe-Signature")
	if sig == "" {
		return fmt.Errorf("stripe: missing Stripe-Signature header: %w", domainErrors.ErrInvalidSignature)
	}
	if err := webhook.ValidatePayloadWithTolerance(body, sig, a.creds.WebhookSecret, a.tolerance); err != nil {
		return fmt.Errorf("stripe: %v: %w", err, domainErrors.ErrInvalidSignature)
	}
	return nil
}

func (a *StripeAdapter) ParseCallback(body []byte) CallbackResult {
	res := CallbackResult{Status: StatusPending, Raw: body}
	if !gjson.ValidBytes(body) {
		res.Status = StatusFailed
		res.ErrorCode = "malformed_payload"
		return res
	}

	event := gjson.ParseBytes(body)
	obj := event.Get("data.object")
	res.EventType = event.Get("type").String()
	res.Currency = obj.Get("currency").String()
	res.OrderReference = firstString(obj, "metadata.order_ref", "client_reference_id")

	switch res.EventType {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		res.ProviderTransactionID = obj.Get("id").String()
		res.CorrelationID = firstString(obj, "metadata.correlation_id", "id")
		amount := obj.Get("amount_received").Int()
		if amount == 0 {
			amount = obj.Get("amount").Int()
		}
		res.Amount = minorAmount(amount, obj.Get("amount").Exists(), res.Currency)
		charge := obj.Get("latest_charge")
		if charge.IsObject() {
			stripeCardDetails(&res, charge)
		}
		switch res.EventType {
		case "payment_intent.succeeded":
			res.Status = StatusSucceeded
		case "payment_intent.payment_failed":
			// A declined attempt leaves the intent open for another payment
			// method, so the ledger row must stay claimable.
			res.Status = StatusPending
			res.ErrorCode = obj.Get("last_payment_error.code").String()
			res.ErrorMessage = obj.Get("last_payment_error.message").String()
			if res.ErrorCode == "" {
				res.ErrorCode = "payment_failed"
			}
		default:
			res.Status = StatusFailed
			res.ErrorCode = "canceled"
			res.ErrorMessage = obj.Get("cancellation_reason").String()
		}

	case "charge.succeeded", "charge.failed":
		// the intent id keeps charge and intent events on one ledger row
		intentID := obj.Get("payment_intent").String()
		res.ProviderTransactionID = firstString(obj, "payment_intent", "id")
		res.CorrelationID = firstString(obj, "metadata.correlation_id", "payment_intent")
		res.Amount = minorAmount(obj.Get("amount").Int(), obj.Get("amount").Exists(), res.Currency)
		stripeCardDetails(&res, obj)
		if res.EventType == "charge.succeeded" {
			res.Status = StatusSucceeded
		} else {
			res.ErrorCode = obj.Get("failure_code").String()
			res.ErrorMessage = obj.Get("failure_message").String()
			if res.ErrorCode == "" {
				res.ErrorCode = "charge_failed"
			}
			// a failed charge on an intent is one attempt; only a bare charge is final
			res.Status = StatusFailed
			if intentID != "" {
				res.Status = StatusPending
			}
		}

	case "checkout.session.completed":
		res.ProviderTransactionID = obj.Get("payment_intent").String()
		res.CorrelationID = firstString(obj, "metadata.correlation_id", "id")
		res.Amount = minorAmount(obj.Get("amount_total").Int(), obj.Get("amount_total").Exists(), res.Currency)
		if obj.Get("payment_status").String() == "paid" {
			res.Status = StatusSucceeded
		}
	}

	res.Success = res.Status == StatusSucceeded
	return res
}

func (a *StripeAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if a.client == nil {
		return &RefundResult{ErrorCode: "not_configured", ErrorMessage: "stripe secret key missing"},
			fmt.Errorf("stripe: secret_key not configured: %w", domainErrors.ErrGatewayFailure)
	}

	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(req.ProviderTransactionID),
		Amount:        stripe.Int64(money.ToMinorUnits(req.Amount, req.Currency)),
	}
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	refund, err := a.client.V1Refunds.Create(ctx, params)
	if err != nil {
		res := &RefundResult{Status: StatusFailed, ErrorCode: "gateway_error", ErrorMessage: err.Error()}
		var serr *stripe.Error
		if errors.As(err, &serr) {
			if serr.Code != "" {
				res.ErrorCode = string(serr.Code)
			}
			res.ErrorMessage = serr.Msg
		}
		return res, fmt.Errorf("stripe: create refund: %w: %w", domainErrors.ErrGatewayFailure, err)
	}

	res := &RefundResult{ProviderRefundID: refund.ID, Status: string(refund.Status)}
	if refund.LastResponse != nil {
		res.Raw = refund.LastResponse.RawJSON
	}
	switch refund.Status {
	case stripe.RefundStatusSucceeded, stripe.RefundStatusPending:
		res.Success = true
	default:
		res.ErrorCode = "refund_" + string(refund.Status)
		if refund.FailureReason != "" {
			res.ErrorMessage = string(refund.FailureReason)
		}
	}
	return res, nil
}

func stripeCardDetails(res *CallbackResult, charge gjson.Result) {
	card := charge.Get("payment_method_details.card")
	res.CardBrand = card.Get("brand").String()
	res.CardLastFour = card.Get("last4").String()
	res.ApprovalNumber = charge.Get("authorization_code").String()
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p).String(); v != "" {
			return v
		}
	}
	return ""
}

func minorAmount(minor int64, present bool, currency string) decimal.NullDecimal {
	if !present {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(money.FromMinorUnits(minor, currency))
}
