package service

import (
	"context"
	"time"

	"github.com/cassiomorais/storepay/internal/domain/outbox"
	"github.com/rs/zerolog"
)

// TaskPublisher hands a detached task to the task stream.
type TaskPublisher interface {
	Publish(ctx context.Context, task DetachedTask) error
}

// OutboxRelay moves committed outbox entries onto the detached task stream.
type OutboxRelay struct {
	repo      outbox.Repository
	publisher TaskPublisher
	txManager TransactionManager
	logger    zerolog.Logger
}

func NewOutboxRelay(repo outbox.Repository, publisher TaskPublisher, txManager TransactionManager, logger zerolog.Logger) *OutboxRelay {
	return &OutboxRelay{repo: repo, publisher: publisher, txManager: txManager, logger: logger}
}

// RelayOnce publishes up to batchSize pending entries and returns how many
// were published. Entries are locked for the duration of the batch, so
// concurrent relays never publish the same entry.
func (r *OutboxRelay) RelayOnce(ctx context.Context, batchSize int) (int, error) {
	published := 0
	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := r.repo.GetPending(txCtx, batchSize)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			task := DetachedTask{
				EventID:     entry.ID,
				EventType:   entry.EventType,
				AggregateID: entry.AggregateID,
				Payload:     entry.Payload,
			}
			if err := r.publisher.Publish(ctx, task); err != nil {
				r.logger.Error().Err(err).Str("outbox_id", entry.ID.String()).Msg("failed to publish outbox entry")
				if err := r.repo.MarkFailed(txCtx, entry.ID); err != nil {
					return err
				}
				continue
			}
			if err := r.repo.MarkPublished(txCtx, entry.ID); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	return published, err
}

// Cleanup deletes entries published before now minus retention.
func (r *OutboxRelay) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	return r.repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(-retention))
}
