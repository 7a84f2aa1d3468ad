package postgres

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, store_id, pending_payment_id, parent_transaction_id, provider_config_id, provider,
	type, status, provider_transaction_id, amount::text, currency, provider_approval_num, card_brand,
	card_last_four, raw_response, error_code, error_message, processed_at, counted_at, created_at, updated_at`

// TransactionRepository implements transaction.Repository using PostgreSQL.
// UNIQUE(store_id, provider, provider_transaction_id) is the idempotency gate.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func (r *TransactionRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *TransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payment_transactions
		 (id, store_id, pending_payment_id, parent_transaction_id, provider_config_id, provider,
		  type, status, provider_transaction_id, amount, currency, provider_approval_num, card_brand,
		  card_last_four, raw_response, error_code, error_message, processed_at, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		t.ID, t.StoreID, t.PendingPaymentID, t.ParentTransactionID, t.ProviderConfigID, t.Provider,
		string(t.Type), string(t.Status), t.ProviderTransactionID, decimalToNumeric(t.Amount), t.Currency,
		t.ApprovalNumber, t.CardBrand, t.CardLastFour, jsonOrNil(t.RawResponse), t.ErrorCode, t.ErrorMessage,
		t.ProcessedAt, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domainErrors.ErrDuplicateTransaction
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return r.scanOne(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE id = $1`, id))
}

func (r *TransactionRepository) GetByProviderTransactionID(ctx context.Context, storeID uuid.UUID, provider, providerTransactionID string) (*transaction.Transaction, error) {
	return r.scanOne(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions
		 WHERE store_id = $1 AND provider = $2 AND provider_transaction_id = $3`,
		storeID, provider, providerTransactionID))
}

func (r *TransactionRepository) Finalize(ctx context.Context, id uuid.UUID, f transaction.Finalization) (bool, error) {
	var amount *string
	if !f.Amount.IsZero() {
		s := decimalToNumeric(f.Amount)
		amount = &s
	}
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payment_transactions SET
		   status = $1,
		   amount = COALESCE($2::numeric, amount),
		   provider_approval_num = COALESCE(provider_approval_num, NULLIF($3, '')),
		   card_brand = COALESCE(card_brand, NULLIF($4, '')),
		   card_last_four = COALESCE(card_last_four, NULLIF($5, '')),
		   error_code = NULLIF($6, ''),
		   error_message = NULLIF($7, ''),
		   raw_response = COALESCE($8::jsonb, raw_response),
		   processed_at = $9,
		   updated_at = $9
		 WHERE id = $10 AND status = 'pending'`,
		string(f.Status), amount, f.Gateway.ApprovalNumber, f.Gateway.CardBrand, f.Gateway.CardLastFour,
		f.ErrorCode, f.ErrorMessage, jsonOrNil(f.RawResponse), f.ProcessedAt, id,
	)
	if err != nil {
		return false, fmt.Errorf("finalize transaction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *TransactionRepository) MergeGatewayFields(ctx context.Context, id uuid.UUID, g transaction.GatewayFields) error {
	if g == (transaction.GatewayFields{}) {
		return nil
	}
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE payment_transactions SET
		   provider_approval_num = COALESCE(provider_approval_num, NULLIF($1, '')),
		   card_brand = COALESCE(card_brand, NULLIF($2, '')),
		   card_last_four = COALESCE(card_last_four, NULLIF($3, '')),
		   updated_at = NOW()
		 WHERE id = $4
		   AND ((provider_approval_num IS NULL AND $1 <> '')
		     OR (card_brand IS NULL AND $2 <> '')
		     OR (card_last_four IS NULL AND $3 <> ''))`,
		g.ApprovalNumber, g.CardBrand, g.CardLastFour, id)
	if err != nil {
		return fmt.Errorf("merge gateway fields: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetSuccessfulCharge(ctx context.Context, pendingPaymentID uuid.UUID) (*transaction.Transaction, error) {
	return r.scanOne(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions
		 WHERE pending_payment_id = $1 AND type = 'charge' AND status = 'success'
		 ORDER BY created_at DESC
		 LIMIT 1`, pendingPaymentID))
}

func (r *TransactionRepository) SumSuccessfulRefunds(ctx context.Context, chargeID uuid.UUID) (decimal.Decimal, error) {
	var total string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM payment_transactions
		 WHERE parent_transaction_id = $1 AND type = 'refund' AND status = 'success'`, chargeID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum refunds: %w", err)
	}
	return numericToDecimal(total)
}

func (r *TransactionRepository) ListByPendingPayment(ctx context.Context, pendingPaymentID uuid.UUID) ([]*transaction.Transaction, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions
		 WHERE pending_payment_id = $1
		 ORDER BY created_at ASC`, pendingPaymentID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*transaction.Transaction
	for rows.Next() {
		t, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TransactionRepository) MarkCounted(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payment_transactions SET counted_at = $1
		 WHERE id = $2 AND counted_at IS NULL AND status = 'success'`, now, id)
	if err != nil {
		return false, fmt.Errorf("mark transaction counted: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *TransactionRepository) scanOne(row scanner) (*transaction.Transaction, error) {
	t, err := r.scan(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domainErrors.ErrTransactionNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *TransactionRepository) scan(row scanner) (*transaction.Transaction, error) {
	t := &transaction.Transaction{}
	var typ, status, amount string
	if err := row.Scan(&t.ID, &t.StoreID, &t.PendingPaymentID, &t.ParentTransactionID, &t.ProviderConfigID, &t.Provider,
		&typ, &status, &t.ProviderTransactionID, &amount, &t.Currency, &t.ApprovalNumber, &t.CardBrand,
		&t.CardLastFour, &t.RawResponse, &t.ErrorCode, &t.ErrorMessage, &t.ProcessedAt, &t.CountedAt,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	t.Type = transaction.Type(typ)
	t.Status = transaction.Status(status)
	d, err := numericToDecimal(amount)
	if err != nil {
		return nil, err
	}
	t.Amount = d
	return t, nil
}
