package postgres

import (
	"context"
	"fmt"

	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/domain/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StoreRepository reads tenants owned by the catalog service.
type StoreRepository struct {
	pool *pgxpool.Pool
}

func NewStoreRepository(pool *pgxpool.Pool) *StoreRepository {
	return &StoreRepository{pool: pool}
}

func (r *StoreRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *StoreRepository) GetBySlug(ctx context.Context, slug string) (*store.Store, error) {
	return r.scan(r.db(ctx).QueryRow(ctx,
		`SELECT id, slug, name, notification_email, is_active, created_at FROM stores WHERE slug = $1`, slug))
}

func (r *StoreRepository) GetByID(ctx context.Context, id uuid.UUID) (*store.Store, error) {
	return r.scan(r.db(ctx).QueryRow(ctx,
		`SELECT id, slug, name, notification_email, is_active, created_at FROM stores WHERE id = $1`, id))
}

func (r *StoreRepository) scan(row scanner) (*store.Store, error) {
	s := &store.Store{}
	if err := row.Scan(&s.ID, &s.Slug, &s.Name, &s.NotificationEmail, &s.IsActive, &s.CreatedAt); err != nil {
		if isNoRows(err) {
			return nil, domainErrors.ErrStoreNotFound
		}
		return nil, fmt.Errorf("scan store: %w", err)
	}
	return s, nil
}
