package pendingpayment

import (
	"strings"
	"time"

	"github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/domain/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the checkout attempt status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// PendingPayment is a checkout attempt awaiting payment confirmation.
type PendingPayment struct {
	ID             uuid.UUID
	StoreID        uuid.UUID
	Provider       string
	CorrelationID  *string
	Snapshot       Snapshot
	Status         Status
	ExpiresAt      time.Time
	PaymentDetails *PaymentDetails
	ConsumedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Customer is the contact captured at checkout.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// LineItem is one cart line captured at checkout.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Variant   string          `json:"variant,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ImageURL  string          `json:"image_url,omitempty"`
}

// Snapshot is the immutable cart captured when the checkout attempt started.
// The expected charge is always recomputed from it.
type Snapshot struct {
	OrderReference string          `json:"order_reference,omitempty"`
	Customer       Customer        `json:"customer"`
	Items          []LineItem      `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	Shipping       decimal.Decimal `json:"shipping"`
	CreditUsed     decimal.Decimal `json:"credit_used"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
}

// PaymentDetails is the gateway metadata attached on confirmation.
type PaymentDetails struct {
	Provider              string    `json:"provider"`
	ProviderTransactionID string    `json:"provider_transaction_id"`
	ApprovalNumber        string    `json:"approval_number,omitempty"`
	CardBrand             string    `json:"card_brand,omitempty"`
	CardLastFour          string    `json:"card_last_four,omitempty"`
	ConfirmedAt           time.Time `json:"confirmed_at"`
}

// ItemsTotal returns the sum of unit price times quantity over all lines.
func (s Snapshot) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// ExpectedTotal is what the gateway must have charged:
// items + shipping - discount - credit used.
func (s Snapshot) ExpectedTotal() decimal.Decimal {
	return s.ItemsTotal().
		Add(s.Shipping).
		Sub(s.Discount).
		Sub(s.CreditUsed)
}

// Validate checks the snapshot is internally consistent.
func (s Snapshot) Validate() error {
	if len(s.Items) == 0 {
		return errors.NewValidationError("items", "at least one line item is required")
	}
	for _, item := range s.Items {
		if item.ProductID == "" {
			return errors.NewValidationError("items.product_id", "cannot be empty")
		}
		if item.Quantity <= 0 {
			return errors.NewValidationError("items.quantity", "must be greater than 0")
		}
		if item.UnitPrice.IsNegative() {
			return errors.NewValidationError("items.unit_price", "cannot be negative")
		}
	}
	for field, v := range map[string]decimal.Decimal{
		"discount":    s.Discount,
		"shipping":    s.Shipping,
		"credit_used": s.CreditUsed,
	} {
		if v.IsNegative() {
			return errors.NewValidationError(field, "cannot be negative")
		}
	}
	if err := money.ValidateCurrency(s.Currency); err != nil {
		return err
	}
	if !s.ExpectedTotal().IsPositive() {
		return errors.NewValidationError("total", "must be greater than 0")
	}
	return nil
}

// NormalizeOrderReference canonicalizes a human-entered order reference so
// that "#ord-1001 " and "ORD-1001" compare equal.
func NormalizeOrderReference(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimLeft(ref, "#")
	ref = strings.ReplaceAll(ref, " ", "")
	return strings.ToUpper(ref)
}

// New creates a pending payment expiring after ttl.
func New(storeID uuid.UUID, provider string, snapshot Snapshot, ttl time.Duration) (*PendingPayment, error) {
	if storeID == uuid.Nil {
		return nil, errors.NewValidationError("store_id", "cannot be empty")
	}
	if ttl <= 0 {
		return nil, errors.NewValidationError("ttl", "must be positive")
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	snapshot.Subtotal = snapshot.ItemsTotal()
	snapshot.Total = snapshot.ExpectedTotal()

	now := time.Now().UTC()
	return &PendingPayment{
		ID:        uuid.New(),
		StoreID:   storeID,
		Provider:  provider,
		Snapshot:  snapshot,
		Status:    StatusPending,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanTransitionTo checks if the pending payment can move to the given status.
// Only pending may change; every other status is terminal.
func (p *PendingPayment) CanTransitionTo(newStatus Status) bool {
	if p.Status != StatusPending {
		return false
	}
	switch newStatus {
	case StatusConfirmed, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}

// IsExpired reports whether the confirmation deadline has passed.
func (p *PendingPayment) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// IsConfirmable reports whether a successful charge may still confirm it.
func (p *PendingPayment) IsConfirmable(now time.Time) bool {
	return p.Status == StatusPending && !p.IsExpired(now)
}

// TransitionTo moves the pending payment to a new status.
func (p *PendingPayment) TransitionTo(newStatus Status, now time.Time) error {
	if !p.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(p.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}
	p.Status = newStatus
	p.UpdatedAt = now
	return nil
}

// Confirm marks the pending payment confirmed and attaches payment details.
func (p *PendingPayment) Confirm(details PaymentDetails, now time.Time) error {
	if p.Status == StatusPending && p.IsExpired(now) {
		return errors.ErrPaymentExpired
	}
	if err := p.TransitionTo(StatusConfirmed, now); err != nil {
		return err
	}
	details.ConfirmedAt = now
	p.PaymentDetails = &details
	return nil
}

// EnrichDetails fills payment detail fields that were empty. It never
// overwrites a value already attached.
func (p *PendingPayment) EnrichDetails(details PaymentDetails) bool {
	if p.Status != StatusConfirmed || p.PaymentDetails == nil {
		return false
	}
	changed := false
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
			changed = true
		}
	}
	fill(&p.PaymentDetails.ApprovalNumber, details.ApprovalNumber)
	fill(&p.PaymentDetails.CardBrand, details.CardBrand)
	fill(&p.PaymentDetails.CardLastFour, details.CardLastFour)
	return changed
}

// MatchesOrderReference compares against the snapshot's order reference.
func (p *PendingPayment) MatchesOrderReference(ref string) bool {
	if ref == "" || p.Snapshot.OrderReference == "" {
		return false
	}
	return NormalizeOrderReference(p.Snapshot.OrderReference) == NormalizeOrderReference(ref)
}
