package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/pkg/retry"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	ProviderPaygate        = "paygate"
	PaygateSignatureHeader = "X-Paygate-Signature"
	paygateDefaultBaseURL  = "https://api.paygate.example"
)

type paygateCredentials struct {
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	WebhookSecret string `json:"webhook_secret"`
}

// PaygateAdapter handles a JSON gateway that signs webhooks with a
// timestamped HMAC and refunds over an OAuth2-protected REST API.
type PaygateAdapter struct {
	creds     paygateCredentials
	baseURL   string
	tolerance time.Duration
	http      *http.Client
	retryCfg  retry.Config
	now       func() time.Time
}

func NewPaygateAdapter() *PaygateAdapter {
	return &PaygateAdapter{
		baseURL:   paygateDefaultBaseURL,
		tolerance: DefaultSignatureTolerance,
		retryCfg:  retry.GatewayConfig(),
		now:       time.Now,
	}
}

func (a *PaygateAdapter) Name() string { return ProviderPaygate }

func (a *PaygateAdapter) Configure(cfg Config) error {
	if err := decodeCredentials(ProviderPaygate, cfg.Credentials, &a.creds); err != nil {
		return err
	}
	if a.creds.WebhookSecret == "" {
		return fmt.Errorf("paygate: webhook_secret is required: %w", domainErrors.ErrInvalidCredentials)
	}
	a.baseURL = strings.TrimRight(settingString(cfg.Settings, "base_url", paygateDefaultBaseURL), "/")

	cc := clientcredentials.Config{
		ClientID:     a.creds.ClientID,
		ClientSecret: a.creds.ClientSecret,
		TokenURL:     settingString(cfg.Settings, "token_url", a.baseURL+"/oauth/token"),
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	base := &http.Client{Timeout: 15 * time.Second}
	tctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	a.http = oauth2.NewClient(tctx, cc.TokenSource(tctx))
	return nil
}

func (a *PaygateAdapter) ValidateWebhook(body []byte, headers http.Header) error {
	if err := verifyTimestampedSignature(a.creds.WebhookSecret, body, headers.Get(PaygateSignatureHeader), a.tolerance, a.now()); err != nil {
		return fmt.Errorf("paygate: %w", err)
	}
	return nil
}

func (a *PaygateAdapter) ParseCallback(body []byte) CallbackResult {
	res := CallbackResult{Status: StatusPending, Raw: body}
	if !gjson.ValidBytes(body) {
		res.Status = StatusFailed
		res.ErrorCode = "malformed_payload"
		return res
	}

	root := gjson.ParseBytes(body)
	data := root.Get("data")
	res.EventType = root.Get("event").String()
	res.ProviderTransactionID = data.Get("transaction_id").String()
	res.CorrelationID = data.Get("checkout_id").String()
	res.OrderReference = data.Get("custom_fields.order_ref").String()
	res.Currency = data.Get("currency").String()
	res.Amount = parseMajorAmount(data.Get("amount").String())
	res.ApprovalNumber = data.Get("approval_code").String()
	res.CardBrand = data.Get("card.brand").String()
	res.CardLastFour = data.Get("card.number").String()
	res.ErrorCode = data.Get("error.code").String()
	res.ErrorMessage = data.Get("error.message").String()
	res.Status = paygateStatus(data.Get("status").String())
	if res.Status == StatusFailed && res.ErrorCode == "" {
		res.ErrorCode = "declined"
	}
	res.Success = res.Status == StatusSucceeded
	return res
}

// ValidateRedirect checks the signature over the canonical return query.
func (a *PaygateAdapter) ValidateRedirect(query url.Values) error {
	sig := query.Get("signature")
	if sig == "" {
		return fmt.Errorf("paygate: missing redirect signature: %w", domainErrors.ErrInvalidSignature)
	}
	if !verifyHMAC(a.creds.WebhookSecret, []byte(CanonicalQuery(query, "signature")), sig) {
		return fmt.Errorf("paygate: redirect signature mismatch: %w", domainErrors.ErrInvalidSignature)
	}
	return nil
}

func (a *PaygateAdapter) ParseRedirect(query url.Values) CallbackResult {
	res := CallbackResult{
		EventType:             "redirect",
		ProviderTransactionID: query.Get("transaction_id"),
		CorrelationID:         query.Get("checkout_id"),
		OrderReference:        query.Get("order_ref"),
		Currency:              query.Get("currency"),
		Amount:                parseMajorAmount(query.Get("amount")),
		ApprovalNumber:        query.Get("approval_code"),
		Status:                paygateStatus(query.Get("status")),
		Raw:                   []byte(query.Encode()),
	}
	if res.Status == StatusFailed {
		res.ErrorCode = "declined"
	}
	res.Success = res.Status == StatusSucceeded
	return res
}

func (a *PaygateAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if a.http == nil {
		return &RefundResult{ErrorCode: "not_configured"},
			fmt.Errorf("paygate: adapter not configured: %w", domainErrors.ErrGatewayFailure)
	}

	payload, err := json.Marshal(map[string]string{
		"amount":   req.Amount.StringFixed(2),
		"currency": req.Currency,
		"reason":   req.Reason,
	})
	if err != nil {
		return nil, fmt.Errorf("paygate: encode refund: %w", err)
	}
	endpoint := a.baseURL + "/v1/transactions/" + url.PathEscape(req.ProviderTransactionID) + "/refunds"

	raw, err := retry.DoWithResult(ctx, a.retryCfg, func() ([]byte, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, retry.Unrecoverable(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if req.IdempotencyKey != "" {
			httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
		}
		return doGatewayRequest(a.http, httpReq)
	})
	if err != nil {
		return &RefundResult{Status: StatusFailed, ErrorCode: "gateway_error", ErrorMessage: err.Error()},
			fmt.Errorf("paygate: refund: %w: %w", domainErrors.ErrGatewayFailure, err)
	}

	if !gjson.ValidBytes(raw) {
		return &RefundResult{Status: StatusFailed, ErrorCode: "malformed_response", Raw: raw},
			fmt.Errorf("paygate: malformed refund response: %w", domainErrors.ErrGatewayFailure)
	}
	body := gjson.ParseBytes(raw)
	res := &RefundResult{
		ProviderRefundID: body.Get("id").String(),
		Status:           body.Get("status").String(),
		ErrorCode:        body.Get("error.code").String(),
		ErrorMessage:     body.Get("error.message").String(),
		Raw:              raw,
	}
	switch res.Status {
	case "succeeded", "approved", "pending":
		res.Success = res.ProviderRefundID != ""
	}
	if !res.Success && res.ErrorCode == "" {
		res.ErrorCode = "refund_declined"
	}
	return res, nil
}

func paygateStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approved", "captured", "succeeded", "paid":
		return StatusSucceeded
	case "declined", "failed", "cancelled", "canceled", "voided":
		return StatusFailed
	default:
		return StatusPending
	}
}

func parseMajorAmount(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// doGatewayRequest executes a request; 4xx responses are not retried.
func doGatewayRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return nil, retry.Unrecoverable(fmt.Errorf("gateway returned %d: %s", resp.StatusCode, truncate(body, 256)))
	default:
		return nil, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
