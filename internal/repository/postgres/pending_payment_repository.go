package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/domain/pendingpayment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pendingPaymentColumns = `id, store_id, provider, correlation_id, snapshot, status, expires_at,
	payment_details, consumed_at, created_at, updated_at`

// PendingPaymentRepository implements pendingpayment.Repository using PostgreSQL.
// Every status change is a conditional UPDATE on status = 'pending'.
type PendingPaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPendingPaymentRepository(pool *pgxpool.Pool) *PendingPaymentRepository {
	return &PendingPaymentRepository{pool: pool}
}

func (r *PendingPaymentRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *PendingPaymentRepository) Create(ctx context.Context, p *pendingpayment.PendingPayment) error {
	snapshot, err := json.Marshal(p.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO pending_payments (id, store_id, provider, correlation_id, snapshot, status, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.StoreID, p.Provider, p.CorrelationID, snapshot, string(p.Status), p.ExpiresAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domainErrors.ErrCorrelationConflict
		}
		return fmt.Errorf("insert pending payment: %w", err)
	}
	return nil
}

func (r *PendingPaymentRepository) GetByID(ctx context.Context, storeID, id uuid.UUID) (*pendingpayment.PendingPayment, error) {
	return r.scanOne(r.db(ctx).QueryRow(ctx,
		`SELECT `+pendingPaymentColumns+` FROM pending_payments WHERE id = $1 AND store_id = $2`, id, storeID))
}

func (r *PendingPaymentRepository) GetByCorrelationID(ctx context.Context, storeID uuid.UUID, correlationID string) (*pendingpayment.PendingPayment, error) {
	return r.scanOne(r.db(ctx).QueryRow(ctx,
		`SELECT `+pendingPaymentColumns+` FROM pending_payments WHERE store_id = $1 AND correlation_id = $2`,
		storeID, correlationID))
}

func (r *PendingPaymentRepository) ListRecentPending(ctx context.Context, storeID uuid.UUID, limit int) ([]*pendingpayment.PendingPayment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+pendingPaymentColumns+` FROM pending_payments
		 WHERE store_id = $1 AND status = 'pending'
		 ORDER BY created_at DESC
		 LIMIT $2`, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	defer rows.Close()

	var out []*pendingpayment.PendingPayment
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PendingPaymentRepository) AttachCorrelationID(ctx context.Context, storeID, id uuid.UUID, correlationID string) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE pending_payments SET correlation_id = $1, updated_at = NOW()
		 WHERE id = $2 AND store_id = $3 AND (correlation_id IS NULL OR correlation_id = $1)`,
		correlationID, id, storeID)
	if err != nil {
		if isUniqueViolation(err) {
			return domainErrors.ErrCorrelationConflict
		}
		return fmt.Errorf("attach correlation id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// either missing or already bound to a different id
		if _, err := r.GetByID(ctx, storeID, id); err != nil {
			return err
		}
		return domainErrors.ErrCorrelationConflict
	}
	return nil
}

func (r *PendingPaymentRepository) Confirm(ctx context.Context, id uuid.UUID, details pendingpayment.PaymentDetails, now time.Time) (bool, error) {
	details.ConfirmedAt = now
	raw, err := json.Marshal(details)
	if err != nil {
		return false, fmt.Errorf("marshal payment details: %w", err)
	}
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE pending_payments SET status = 'confirmed', payment_details = $1, updated_at = $2
		 WHERE id = $3 AND status = 'pending' AND expires_at > $2`,
		raw, now, id)
	if err != nil {
		return false, fmt.Errorf("confirm pending payment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PendingPaymentRepository) MarkFailed(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE pending_payments SET status = 'failed', updated_at = $1
		 WHERE id = $2 AND status = 'pending'`, now, id)
	if err != nil {
		return false, fmt.Errorf("fail pending payment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// EnrichDetails fills empty detail fields. jsonb || keeps the right-hand
// value, so existing non-empty values are placed on the right.
func (r *PendingPaymentRepository) EnrichDetails(ctx context.Context, id uuid.UUID, details pendingpayment.PaymentDetails) error {
	patch := map[string]string{}
	if details.ApprovalNumber != "" {
		patch["approval_number"] = details.ApprovalNumber
	}
	if details.CardBrand != "" {
		patch["card_brand"] = details.CardBrand
	}
	if details.CardLastFour != "" {
		patch["card_last_four"] = details.CardLastFour
	}
	if len(patch) == 0 {
		return nil
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal details patch: %w", err)
	}
	_, err = r.db(ctx).Exec(ctx,
		`UPDATE pending_payments
		 SET payment_details = $1::jsonb || jsonb_strip_nulls(jsonb_build_object(
		         'approval_number', NULLIF(payment_details->>'approval_number', ''),
		         'card_brand', NULLIF(payment_details->>'card_brand', ''),
		         'card_last_four', NULLIF(payment_details->>'card_last_four', '')
		     )) || (payment_details - 'approval_number' - 'card_brand' - 'card_last_four'),
		     updated_at = NOW()
		 WHERE id = $2 AND status = 'confirmed' AND payment_details IS NOT NULL`,
		raw, id)
	if err != nil {
		return fmt.Errorf("enrich payment details: %w", err)
	}
	return nil
}

func (r *PendingPaymentRepository) ExpireDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db(ctx).Query(ctx,
		`UPDATE pending_payments SET status = 'expired', updated_at = $1
		 WHERE id IN (
		     SELECT id FROM pending_payments
		     WHERE status = 'pending' AND expires_at <= $1
		     ORDER BY expires_at
		     LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 ) AND status = 'pending'
		 RETURNING id`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("expire pending payments: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PendingPaymentRepository) ListConfirmed(ctx context.Context, storeID uuid.UUID, limit int) ([]*pendingpayment.PendingPayment, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+pendingPaymentColumns+` FROM pending_payments
		 WHERE store_id = $1 AND status = 'confirmed' AND consumed_at IS NULL
		 ORDER BY updated_at ASC
		 LIMIT $2`, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list confirmed payments: %w", err)
	}
	defer rows.Close()

	var out []*pendingpayment.PendingPayment
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PendingPaymentRepository) MarkConsumed(ctx context.Context, storeID, id uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE pending_payments SET consumed_at = $1, updated_at = $1
		 WHERE id = $2 AND store_id = $3 AND status = 'confirmed' AND consumed_at IS NULL`,
		now, id, storeID)
	if err != nil {
		return false, fmt.Errorf("consume pending payment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PendingPaymentRepository) scanOne(row scanner) (*pendingpayment.PendingPayment, error) {
	p, err := r.scan(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domainErrors.ErrPendingPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *PendingPaymentRepository) scan(row scanner) (*pendingpayment.PendingPayment, error) {
	p := &pendingpayment.PendingPayment{}
	var snapshot, details []byte
	var status string
	if err := row.Scan(&p.ID, &p.StoreID, &p.Provider, &p.CorrelationID, &snapshot, &status, &p.ExpiresAt,
		&details, &p.ConsumedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan pending payment: %w", err)
	}
	p.Status = pendingpayment.Status(status)
	if err := json.Unmarshal(snapshot, &p.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if len(details) > 0 {
		p.PaymentDetails = &pendingpayment.PaymentDetails{}
		if err := json.Unmarshal(details, p.PaymentDetails); err != nil {
			return nil, fmt.Errorf("unmarshal payment details: %w", err)
		}
	}
	return p, nil
}
