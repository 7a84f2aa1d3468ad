package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository defines the ledger persistence interface.
type Repository interface {
	// Create inserts an entry. It returns errors.ErrDuplicateTransaction when
	// (store_id, provider, provider_transaction_id) is already recorded.
	Create(ctx context.Context, t *Transaction) error

	// GetByID retrieves an entry by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// GetByProviderTransactionID retrieves the entry a store recorded for a
	// gateway id. Gateways number transactions per merchant account, so the
	// same id may exist under another store.
	GetByProviderTransactionID(ctx context.Context, storeID uuid.UUID, provider, providerTransactionID string) (*Transaction, error)

	// Finalize moves a pending entry to its terminal status. It reports false
	// when the entry was no longer pending.
	Finalize(ctx context.Context, id uuid.UUID, f Finalization) (bool, error)

	// MergeGatewayFields fills gateway-only fields that are still NULL
	MergeGatewayFields(ctx context.Context, id uuid.UUID, g GatewayFields) error

	// GetSuccessfulCharge retrieves the newest successful charge for a pending
	// payment, ignoring failed or pending attempts recorded around it
	GetSuccessfulCharge(ctx context.Context, pendingPaymentID uuid.UUID) (*Transaction, error)

	// SumSuccessfulRefunds totals the successful refunds of a charge
	SumSuccessfulRefunds(ctx context.Context, chargeID uuid.UUID) (decimal.Decimal, error)

	// ListByPendingPayment lists all entries for a pending payment, oldest first
	ListByPendingPayment(ctx context.Context, pendingPaymentID uuid.UUID) ([]*Transaction, error)

	// MarkCounted stamps counted_at once; false means it was already counted
	MarkCounted(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}
