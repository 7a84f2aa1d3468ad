package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is a tenant of the platform. Stores are owned by the catalog service;
// this service only reads them to route callbacks.
type Store struct {
	ID                uuid.UUID
	Slug              string
	Name              string
	NotificationEmail string
	IsActive          bool
	CreatedAt         time.Time
}

type Repository interface {
	// GetBySlug retrieves a store by its public slug
	GetBySlug(ctx context.Context, slug string) (*Store, error)

	// GetByID retrieves a store by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Store, error)
}
