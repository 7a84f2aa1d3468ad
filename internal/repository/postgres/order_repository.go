package postgres

import (
	"context"
	"fmt"

	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/domain/order"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *OrderRepository) GetByID(ctx context.Context, storeID, id uuid.UUID) (*order.Order, error) {
	o := &order.Order{}
	var status string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, store_id, pending_payment_id, financial_status, created_at, updated_at
		 FROM orders WHERE id = $1 AND store_id = $2`, id, storeID,
	).Scan(&o.ID, &o.StoreID, &o.PendingPaymentID, &status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	o.FinancialStatus = order.FinancialStatus(status)
	return o, nil
}

func (r *OrderRepository) TransitionFinancialStatus(ctx context.Context, id uuid.UUID, from, to order.FinancialStatus) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE orders SET financial_status = $1, updated_at = NOW()
		 WHERE id = $2 AND financial_status = $3`, string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("transition order financial status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
