package order

import (
	"time"

	"github.com/google/uuid"
)

// FinancialStatus is the payment state of an order.
type FinancialStatus string

const (
	FinancialPending           FinancialStatus = "pending"
	FinancialPaid              FinancialStatus = "paid"
	FinancialPartiallyRefunded FinancialStatus = "partially_refunded"
	FinancialRefunded          FinancialStatus = "refunded"
	FinancialVoided            FinancialStatus = "voided"
)

// Order is created by the order service from a confirmed pending payment.
// Only its financial status is written here, and only after a refund.
type Order struct {
	ID               uuid.UUID
	StoreID          uuid.UUID
	PendingPaymentID uuid.UUID
	FinancialStatus  FinancialStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Refundable reports whether the order may receive a refund.
func (o *Order) Refundable() bool {
	return o.FinancialStatus == FinancialPaid || o.FinancialStatus == FinancialPartiallyRefunded
}

// StatusAfterRefund returns the financial status once a refund is applied.
func StatusAfterRefund(fullyRefunded bool) FinancialStatus {
	if fullyRefunded {
		return FinancialRefunded
	}
	return FinancialPartiallyRefunded
}
