package transaction

import (
	"time"

	"github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/domain/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type represents the gateway operation recorded by a ledger entry
type Type string

const (
	TypeCharge Type = "charge"
	TypeRefund Type = "refund"
)

// Status represents the ledger entry status
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Transaction is one attempted gateway operation. Entries are append-mostly:
// the only mutation is the single pending -> success|failed transition, plus
// filling gateway-only fields that were still empty.
type Transaction struct {
	ID                    uuid.UUID
	StoreID               uuid.UUID
	PendingPaymentID      *uuid.UUID
	ParentTransactionID   *uuid.UUID
	ProviderConfigID      uuid.UUID
	Provider              string
	Type                  Type
	Status                Status
	ProviderTransactionID string
	Amount                decimal.Decimal
	Currency              string
	ApprovalNumber        *string
	CardBrand             *string
	CardLastFour          *string
	RawResponse           []byte
	ErrorCode             *string
	ErrorMessage          *string
	ProcessedAt           *time.Time
	CountedAt             *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// GatewayFields are the values only the gateway can supply.
type GatewayFields struct {
	ApprovalNumber string
	CardBrand      string
	CardLastFour   string
}

// Finalization is the terminal outcome written by the single legal transition.
type Finalization struct {
	Status       Status
	Amount       decimal.Decimal
	Gateway      GatewayFields
	ErrorCode    string
	ErrorMessage string
	RawResponse  []byte
	ProcessedAt  time.Time
}

// NewCharge creates a pending charge entry for a gateway transaction id.
func NewCharge(
	storeID uuid.UUID,
	pendingPaymentID uuid.UUID,
	providerConfigID uuid.UUID,
	provider string,
	providerTransactionID string,
	amount decimal.Decimal,
	currency string,
	raw []byte,
) (*Transaction, error) {
	if providerTransactionID == "" {
		return nil, errors.NewValidationError("provider_transaction_id", "cannot be empty")
	}
	if provider == "" {
		return nil, errors.NewValidationError("provider", "cannot be empty")
	}
	if amount.IsNegative() {
		return nil, errors.NewValidationError("amount", "cannot be negative")
	}

	now := time.Now().UTC()
	ppID := pendingPaymentID
	return &Transaction{
		ID:                    uuid.New(),
		StoreID:               storeID,
		PendingPaymentID:      &ppID,
		ProviderConfigID:      providerConfigID,
		Provider:              provider,
		Type:                  TypeCharge,
		Status:                StatusPending,
		ProviderTransactionID: providerTransactionID,
		Amount:                amount,
		Currency:              currency,
		RawResponse:           raw,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

// NewRefund creates a successful refund entry referencing its charge.
// A refund can only exist for a successful charge.
func NewRefund(parent *Transaction, providerRefundID string, amount decimal.Decimal, raw []byte) (*Transaction, error) {
	if parent == nil || parent.Type != TypeCharge || parent.Status != StatusSuccess {
		return nil, errors.NewDomainError(
			"refund_without_charge",
			"refund requires a successful charge",
			errors.ErrRefundNotAllowed,
		)
	}
	if providerRefundID == "" {
		return nil, errors.NewValidationError("provider_transaction_id", "cannot be empty")
	}
	if err := money.ValidatePositive("amount", amount); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	parentID := parent.ID
	return &Transaction{
		ID:                    uuid.New(),
		StoreID:               parent.StoreID,
		PendingPaymentID:      parent.PendingPaymentID,
		ParentTransactionID:   &parentID,
		ProviderConfigID:      parent.ProviderConfigID,
		Provider:              parent.Provider,
		Type:                  TypeRefund,
		Status:                StatusSuccess,
		ProviderTransactionID: providerRefundID,
		Amount:                amount,
		Currency:              parent.Currency,
		RawResponse:           raw,
		ProcessedAt:           &now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

// IsTerminal reports whether the entry has reached success or failed.
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusSuccess || t.Status == StatusFailed
}

// CanTransitionTo checks the single legal transition.
func (t *Transaction) CanTransitionTo(newStatus Status) bool {
	return t.Status == StatusPending && (newStatus == StatusSuccess || newStatus == StatusFailed)
}

// Finalize applies a terminal outcome to a pending entry.
func (t *Transaction) Finalize(f Finalization) error {
	if !t.CanTransitionTo(f.Status) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(t.Status)+" to "+string(f.Status),
			errors.ErrInvalidStateTransition,
		)
	}
	t.Status = f.Status
	if !f.Amount.IsZero() {
		t.Amount = f.Amount
	}
	t.MergeGatewayFields(f.Gateway)
	if f.ErrorCode != "" {
		t.ErrorCode = &f.ErrorCode
	}
	if f.ErrorMessage != "" {
		t.ErrorMessage = &f.ErrorMessage
	}
	if len(f.RawResponse) > 0 {
		t.RawResponse = f.RawResponse
	}
	processed := f.ProcessedAt
	t.ProcessedAt = &processed
	t.UpdatedAt = processed
	return nil
}

// MergeGatewayFields fills gateway-only fields that are still empty and
// reports whether anything changed.
func (t *Transaction) MergeGatewayFields(g GatewayFields) bool {
	changed := false
	fill := func(dst **string, src string) {
		if src == "" || (*dst != nil && **dst != "") {
			return
		}
		v := src
		*dst = &v
		changed = true
	}
	fill(&t.ApprovalNumber, g.ApprovalNumber)
	fill(&t.CardBrand, g.CardBrand)
	fill(&t.CardLastFour, g.CardLastFour)
	return changed
}
