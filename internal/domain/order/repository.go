package order

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// GetByID retrieves an order scoped to a store
	GetByID(ctx context.Context, storeID, id uuid.UUID) (*Order, error)

	// TransitionFinancialStatus moves from -> to; false if the order was no
	// longer in the from status
	TransitionFinancialStatus(ctx context.Context, id uuid.UUID, from, to FinancialStatus) (bool, error)
}
