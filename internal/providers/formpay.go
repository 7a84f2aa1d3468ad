package providers

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/pkg/retry"
	"github.com/tidwall/gjson"
)

const (
	ProviderFormpay       = "formpay"
	formpayDefaultBaseURL = "https://merchant.formpay.example"
)

type formpayCredentials struct {
	MerchantLogin string `json:"merchant_login"`
	Password1     string `json:"password1"`
	Password2     string `json:"password2"`
}

// FormpayAdapter handles a form-encoded gateway that signs result callbacks
// with a digest over the payment fields and a merchant password.
type FormpayAdapter struct {
	creds    formpayCredentials
	baseURL  string
	http     *http.Client
	retryCfg retry.Config
}

func NewFormpayAdapter() *FormpayAdapter {
	return &FormpayAdapter{
		baseURL:  formpayDefaultBaseURL,
		http:     &http.Client{Timeout: 15 * time.Second},
		retryCfg: retry.GatewayConfig(),
	}
}

func (a *FormpayAdapter) Name() string { return ProviderFormpay }

func (a *FormpayAdapter) Configure(cfg Config) error {
	if err := decodeCredentials(ProviderFormpay, cfg.Credentials, &a.creds); err != nil {
		return err
	}
	if a.creds.Password2 == "" {
		return fmt.Errorf("formpay: password2 is required: %w", domainErrors.ErrInvalidCredentials)
	}
	a.baseURL = strings.TrimRight(settingString(cfg.Settings, "base_url", formpayDefaultBaseURL), "/")
	return nil
}

// formpaySignedFields are the result fields covered by SignatureValue, in
// signing order. Every field parseForm reads is listed here or is a Shp_ field.
var formpaySignedFields = []string{
	"OutSum", "InvId", "TxnId", "Status", "Currency",
	"ApprovalCode", "CardMask", "CardType", "ErrorCode",
}

// FormpaySignature computes the result signature of a callback form: the
// signed fields, then every Shp_ field as key=value sorted by key, then
// password2, joined by ':'.
func FormpaySignature(form url.Values, password2 string) string {
	parts := make([]string, 0, len(formpaySignedFields)+len(form)+1)
	for _, k := range formpaySignedFields {
		parts = append(parts, form.Get(k))
	}
	var shp []string
	for k := range form {
		if strings.HasPrefix(k, "Shp_") {
			shp = append(shp, k)
		}
	}
	sort.Strings(shp)
	for _, k := range shp {
		parts = append(parts, k+"="+form.Get(k))
	}
	parts = append(parts, password2)
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

func (a *FormpayAdapter) ValidateWebhook(body []byte, _ http.Header) error {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return fmt.Errorf("formpay: malformed form body: %w", domainErrors.ErrInvalidSignature)
	}
	return a.verify(form)
}

func (a *FormpayAdapter) verify(form url.Values) error {
	got := strings.ToLower(strings.TrimSpace(form.Get("SignatureValue")))
	if got == "" {
		return fmt.Errorf("formpay: missing SignatureValue: %w", domainErrors.ErrInvalidSignature)
	}
	want := FormpaySignature(form, a.creds.Password2)
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return fmt.Errorf("formpay: signature mismatch: %w", domainErrors.ErrInvalidSignature)
	}
	return nil
}

func (a *FormpayAdapter) ParseCallback(body []byte) CallbackResult {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return CallbackResult{Status: StatusFailed, ErrorCode: "malformed_payload", Raw: body}
	}
	res := a.parseForm(form)
	res.EventType = "result"
	res.Raw = body
	return res
}

func (a *FormpayAdapter) ValidateRedirect(query url.Values) error {
	return a.verify(query)
}

func (a *FormpayAdapter) ParseRedirect(query url.Values) CallbackResult {
	res := a.parseForm(query)
	res.EventType = "redirect"
	res.Raw = []byte(query.Encode())
	return res
}

// Acknowledge answers the result URL the way the gateway expects.
func (a *FormpayAdapter) Acknowledge(result CallbackResult) (string, []byte) {
	return "text/plain; charset=utf-8", []byte("OK" + result.CorrelationID)
}

func (a *FormpayAdapter) parseForm(form url.Values) CallbackResult {
	res := CallbackResult{
		ProviderTransactionID: form.Get("TxnId"),
		CorrelationID:         form.Get("InvId"),
		OrderReference:        form.Get("Shp_order"),
		Amount:                parseMajorAmount(form.Get("OutSum")),
		Currency:              form.Get("Currency"),
		ApprovalNumber:        form.Get("ApprovalCode"),
		CardLastFour:          form.Get("CardMask"),
		CardBrand:             form.Get("CardType"),
	}
	switch strings.ToLower(form.Get("Status")) {
	case "success", "paid", "completed":
		res.Status = StatusSucceeded
	case "fail", "failed", "declined", "cancelled":
		res.Status = StatusFailed
		res.ErrorCode = firstNonEmpty(form.Get("ErrorCode"), "declined")
		res.ErrorMessage = form.Get("ErrorMessage")
	default:
		res.Status = StatusPending
	}
	res.Success = res.Status == StatusSucceeded
	return res
}

func (a *FormpayAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	outSum := req.Amount.StringFixed(2)
	sum := sha256.Sum256([]byte(strings.Join([]string{a.creds.MerchantLogin, req.ProviderTransactionID, outSum, a.creds.Password1}, ":")))
	form := url.Values{
		"MerchantLogin":  {a.creds.MerchantLogin},
		"TxnId":          {req.ProviderTransactionID},
		"OutSum":         {outSum},
		"Currency":       {req.Currency},
		"RequestId":      {req.IdempotencyKey},
		"SignatureValue": {hex.EncodeToString(sum[:])},
	}

	raw, err := retry.DoWithResult(ctx, a.retryCfg, func() ([]byte, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/refund", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, retry.Unrecoverable(err)
		}
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return doGatewayRequest(a.http, httpReq)
	})
	if err != nil {
		return &RefundResult{Status: StatusFailed, ErrorCode: "gateway_error", ErrorMessage: err.Error()},
			fmt.Errorf("formpay: refund: %w: %w", domainErrors.ErrGatewayFailure, err)
	}
	if !gjson.ValidBytes(raw) {
		return &RefundResult{Status: StatusFailed, ErrorCode: "malformed_response", Raw: raw},
			fmt.Errorf("formpay: malformed refund response: %w", domainErrors.ErrGatewayFailure)
	}

	body := gjson.ParseBytes(raw)
	res := &RefundResult{
		ProviderRefundID: body.Get("refund_id").String(),
		Status:           body.Get("result").String(),
		ErrorCode:        body.Get("error_code").String(),
		ErrorMessage:     body.Get("error_message").String(),
		Raw:              raw,
	}
	res.Success = strings.EqualFold(res.Status, "ok") && res.ProviderRefundID != ""
	if !res.Success && res.ErrorCode == "" {
		res.ErrorCode = "refund_declined"
	}
	return res, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
