package providerconfig

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository defines the interface for provider configuration persistence
type Repository interface {
	// Create inserts a configuration; ErrDuplicateProviderConfig when the
	// store already has one for the provider
	Create(ctx context.Context, c *Config) error

	// GetByID retrieves a configuration scoped to a store
	GetByID(ctx context.Context, storeID, id uuid.UUID) (*Config, error)

	// GetActive retrieves the active configuration of a store for a provider
	GetActive(ctx context.Context, storeID uuid.UUID, provider string) (*Config, error)

	// ListByStore lists all configurations of a store
	ListByStore(ctx context.Context, storeID uuid.UUID) ([]*Config, error)

	// Update persists the mutable fields
	Update(ctx context.Context, c *Config) error

	// SetDefault makes one configuration the store default, clearing the rest
	SetDefault(ctx context.Context, storeID, id uuid.UUID) error

	// Delete removes a configuration
	Delete(ctx context.Context, storeID, id uuid.UUID) error

	// IncrementCounters adds one transaction and the amount to the totals
	IncrementCounters(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
}
