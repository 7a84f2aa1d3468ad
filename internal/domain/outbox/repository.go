package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Insert creates a new outbox entry (typically inside a transaction)
	Insert(ctx context.Context, entry *Entry) error

	// GetPending returns pending outbox entries up to the given limit
	GetPending(ctx context.Context, limit int) ([]*Entry, error)

	// MarkPublished marks an outbox entry as published
	MarkPublished(ctx context.Context, id uuid.UUID) error

	// MarkFailed increments the retry count; the entry becomes failed once
	// max retries is reached
	MarkFailed(ctx context.Context, id uuid.UUID) error

	// DeletePublishedBefore removes relayed entries older than the cutoff
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
