package pendingpayment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for pending payment persistence.
// Status changes are conditional updates: the boolean result reports whether
// this call performed the transition.
type Repository interface {
	// Create inserts a new pending payment
	Create(ctx context.Context, p *PendingPayment) error

	// GetByID retrieves a pending payment scoped to a store
	GetByID(ctx context.Context, storeID, id uuid.UUID) (*PendingPayment, error)

	// GetByCorrelationID retrieves a pending payment by gateway correlation id
	GetByCorrelationID(ctx context.Context, storeID uuid.UUID, correlationID string) (*PendingPayment, error)

	// ListRecentPending lists the newest pending payments of a store
	ListRecentPending(ctx context.Context, storeID uuid.UUID, limit int) ([]*PendingPayment, error)

	// AttachCorrelationID sets the correlation id while it is still unset
	AttachCorrelationID(ctx context.Context, storeID, id uuid.UUID, correlationID string) error

	// Confirm moves pending -> confirmed if the payment has not expired at now
	Confirm(ctx context.Context, id uuid.UUID, details PaymentDetails, now time.Time) (bool, error)

	// MarkFailed moves pending -> failed
	MarkFailed(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// EnrichDetails fills empty payment detail fields of a confirmed payment
	EnrichDetails(ctx context.Context, id uuid.UUID, details PaymentDetails) error

	// ExpireDue moves pending payments past their deadline to expired
	ExpireDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)

	// ListConfirmed lists confirmed payments not yet consumed by order creation
	ListConfirmed(ctx context.Context, storeID uuid.UUID, limit int) ([]*PendingPayment, error)

	// MarkConsumed records that order creation consumed a confirmed payment
	MarkConsumed(ctx context.Context, storeID, id uuid.UUID, now time.Time) (bool, error)
}
