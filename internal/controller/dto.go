package controller

import (
	"encoding/json"
	"time"

	"github.com/cassiomorais/storepay/internal/domain/pendingpayment"
	"github.com/cassiomorais/storepay/internal/domain/providerconfig"
	"github.com/cassiomorais/storepay/internal/domain/transaction"
	"github.com/cassiomorais/storepay/internal/service"
	"github.com/shopspring/decimal"
)

// --- Request DTOs ---
// Money travels as decimal strings. Controllers convert these to service
// requests; business validation stays in the services.

// CustomerRequest is the buyer part of a checkout snapshot.
type CustomerRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=40"`
}

// LineItemRequest is one cart line.
type LineItemRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	Variant   string          `json:"variant,omitempty"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ImageURL  string          `json:"image_url,omitempty" validate:"omitempty,url"`
}

// CreatePendingPaymentRequest is the checkout intake body.
type CreatePendingPaymentRequest struct {
	Provider       string            `json:"provider,omitempty" validate:"omitempty,max=32"`
	CorrelationID  string            `json:"correlation_id,omitempty" validate:"omitempty,max=255"`
	TTLSeconds     int               `json:"ttl_seconds,omitempty" validate:"gte=0,lte=86400"`
	OrderReference string            `json:"order_reference,omitempty" validate:"omitempty,max=100"`
	Customer       CustomerRequest   `json:"customer"`
	Items          []LineItemRequest `json:"items" validate:"required,min=1,dive"`
	Discount       decimal.Decimal   `json:"discount"`
	Shipping       decimal.Decimal   `json:"shipping"`
	CreditUsed     decimal.Decimal   `json:"credit_used"`
	Currency       string            `json:"currency" validate:"required,len=3"`
}

// AttachCorrelationRequest sets the gateway's checkout/session id.
type AttachCorrelationRequest struct {
	CorrelationID string `json:"correlation_id" validate:"required,max=255"`
}

// CreateProviderConfigRequest configures a gateway for a store.
type CreateProviderConfigRequest struct {
	Provider    string          `json:"provider" validate:"required,max=32"`
	DisplayName string          `json:"display_name,omitempty" validate:"omitempty,max=100"`
	Credentials json.RawMessage `json:"credentials" validate:"required"`
	Settings    map[string]any  `json:"settings,omitempty"`
	TestMode    bool            `json:"test_mode"`
	IsDefault   bool            `json:"is_default"`
}

// UpdateProviderConfigRequest patches a provider configuration; absent
// fields are left unchanged.
type UpdateProviderConfigRequest struct {
	DisplayName *string         `json:"display_name,omitempty" validate:"omitempty,max=100"`
	Credentials json.RawMessage `json:"credentials,omitempty"`
	Settings    map[string]any  `json:"settings,omitempty"`
	IsActive    *bool           `json:"is_active,omitempty"`
	TestMode    *bool           `json:"test_mode,omitempty"`
}

// RefundRequest refunds an order. A missing amount refunds the remainder.
type RefundRequest struct {
	Amount decimal.NullDecimal `json:"amount"`
	Reason string              `json:"reason,omitempty" validate:"max=500"`
}

// --- Response DTOs ---

// PendingPaymentResponse represents a pending payment in API responses.
type PendingPaymentResponse struct {
	ID             string                         `json:"id"`
	StoreID        string                         `json:"store_id"`
	Provider       string                         `json:"provider,omitempty"`
	CorrelationID  *string                        `json:"correlation_id,omitempty"`
	Status         string                         `json:"status"`
	Snapshot       pendingpayment.Snapshot        `json:"snapshot"`
	PaymentDetails *pendingpayment.PaymentDetails `json:"payment_details,omitempty"`
	ExpiresAt      time.Time                      `json:"expires_at"`
	ConsumedAt     *time.Time                     `json:"consumed_at,omitempty"`
	CreatedAt      time.Time                      `json:"created_at"`
	UpdatedAt      time.Time                      `json:"updated_at"`
}

// ProviderConfigResponse never includes credentials.
type ProviderConfigResponse struct {
	ID                string          `json:"id"`
	StoreID           string          `json:"store_id"`
	Provider          string          `json:"provider"`
	DisplayName       string          `json:"display_name"`
	Settings          map[string]any  `json:"settings,omitempty"`
	HasCredentials    bool            `json:"has_credentials"`
	IsActive          bool            `json:"is_active"`
	IsDefault         bool            `json:"is_default"`
	TestMode          bool            `json:"test_mode"`
	TotalTransactions int64           `json:"total_transactions"`
	TotalVolume       decimal.Decimal `json:"total_volume"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TransactionResponse represents a ledger row.
type TransactionResponse struct {
	ID                    string          `json:"id"`
	Type                  string          `json:"type"`
	Status                string          `json:"status"`
	Provider              string          `json:"provider"`
	ProviderTransactionID string          `json:"provider_transaction_id"`
	ParentTransactionID   *string         `json:"parent_transaction_id,omitempty"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	ErrorMessage          *string         `json:"error_message,omitempty"`
	ProcessedAt           *time.Time      `json:"processed_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}

// RefundResponse is the result of a successful refund.
type RefundResponse struct {
	Refund          *TransactionResponse `json:"refund"`
	FinancialStatus string               `json:"financial_status"`
	RefundedTotal   decimal.Decimal      `json:"refunded_total"`
	Remaining       decimal.Decimal      `json:"remaining"`
}

// CallbackResponse acknowledges a webhook delivery.
type CallbackResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

func (r *CreatePendingPaymentRequest) snapshot() pendingpayment.Snapshot {
	items := make([]pendingpayment.LineItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, pendingpayment.LineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Variant:   it.Variant,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			ImageURL:  it.ImageURL,
		})
	}
	return pendingpayment.Snapshot{
		OrderReference: r.OrderReference,
		Customer: pendingpayment.Customer{
			Name:  r.Customer.Name,
			Email: r.Customer.Email,
			Phone: r.Customer.Phone,
		},
		Items:      items,
		Discount:   r.Discount,
		Shipping:   r.Shipping,
		CreditUsed: r.CreditUsed,
		Currency:   r.Currency,
	}
}

func (r *UpdateProviderConfigRequest) update() providerconfig.Update {
	return providerconfig.Update{
		DisplayName: r.DisplayName,
		Credentials: r.Credentials,
		Settings:    r.Settings,
		IsActive:    r.IsActive,
		TestMode:    r.TestMode,
	}
}

// FromPendingPayment converts a domain pending payment to API response.
func FromPendingPayment(p *pendingpayment.PendingPayment) *PendingPaymentResponse {
	return &PendingPaymentResponse{
		ID:             p.ID.String(),
		StoreID:        p.StoreID.String(),
		Provider:       p.Provider,
		CorrelationID:  p.CorrelationID,
		Status:         string(p.Status),
		Snapshot:       p.Snapshot,
		PaymentDetails: p.PaymentDetails,
		ExpiresAt:      p.ExpiresAt,
		ConsumedAt:     p.ConsumedAt,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func FromPendingPayments(ps []*pendingpayment.PendingPayment) []*PendingPaymentResponse {
	out := make([]*PendingPaymentResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, FromPendingPayment(p))
	}
	return out
}

// FromProviderConfig converts a provider configuration to API response.
func FromProviderConfig(c *providerconfig.Config) *ProviderConfigResponse {
	return &ProviderConfigResponse{
		ID:                c.ID.String(),
		StoreID:           c.StoreID.String(),
		Provider:          c.Provider,
		DisplayName:       c.DisplayName,
		Settings:          c.Settings,
		HasCredentials:    len(c.Credentials) > 0,
		IsActive:          c.IsActive,
		IsDefault:         c.IsDefault,
		TestMode:          c.TestMode,
		TotalTransactions: c.TotalTransactions,
		TotalVolume:       c.TotalVolume,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

// FromTransaction converts a ledger row to API response.
func FromTransaction(t *transaction.Transaction) *TransactionResponse {
	resp := &TransactionResponse{
		ID:                    t.ID.String(),
		Type:                  string(t.Type),
		Status:                string(t.Status),
		Provider:              t.Provider,
		ProviderTransactionID: t.ProviderTransactionID,
		Amount:                t.Amount,
		Currency:              t.Currency,
		ErrorMessage:          t.ErrorMessage,
		ProcessedAt:           t.ProcessedAt,
		CreatedAt:             t.CreatedAt,
	}
	if t.ParentTransactionID != nil {
		pid := t.ParentTransactionID.String()
		resp.ParentTransactionID = &pid
	}
	return resp
}

// FromRefund converts a refund result to API response.
func FromRefund(r *service.RefundResponse) *RefundResponse {
	return &RefundResponse{
		Refund:          FromTransaction(r.Refund),
		FinancialStatus: string(r.FinancialStatus),
		RefundedTotal:   r.RefundedTotal,
		Remaining:       r.Remaining,
	}
}
