package postgres

import (
	"context"
	"fmt"

	"github.com/cassiomorais/storepay/internal/domain/callbacklog"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CallbackLogRepository struct {
	pool *pgxpool.Pool
}

func NewCallbackLogRepository(pool *pgxpool.Pool) *CallbackLogRepository {
	return &CallbackLogRepository{pool: pool}
}

func (r *CallbackLogRepository) Insert(ctx context.Context, e *callbacklog.Entry) error {
	_, err := ConnFromCtx(ctx, r.pool).Exec(ctx,
		`INSERT INTO callback_logs
		 (id, store_slug, provider, channel, outcome, reason, provider_transaction_id, pending_payment_id, raw, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.StoreSlug, e.Provider, string(e.Channel), e.Outcome, e.Reason, e.ProviderTransactionID,
		e.PendingPaymentID, string(e.Raw), e.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert callback log: %w", err)
	}
	return nil
}
