package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/domain/providerconfig"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const providerConfigColumns = `id, store_id, provider, display_name, credentials, settings, is_active, is_default,
	test_mode, total_transactions, total_volume::text, created_at, updated_at`

// ProviderConfigRepository implements providerconfig.Repository using PostgreSQL.
type ProviderConfigRepository struct {
	pool *pgxpool.Pool
}

func NewProviderConfigRepository(pool *pgxpool.Pool) *ProviderConfigRepository {
	return &ProviderConfigRepository{pool: pool}
}

func (r *ProviderConfigRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *ProviderConfigRepository) Create(ctx context.Context, c *providerconfig.Config) error {
	settings, err := json.Marshal(c.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO payment_provider_configs
		 (id, store_id, provider, display_name, credentials, settings, is_active, is_default, test_mode, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.StoreID, c.Provider, c.DisplayName, credentialsOrEmpty(c.Credentials), string(settings),
		c.IsActive, c.IsDefault, c.TestMode, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domainErrors.ErrDuplicateProviderConfig
		}
		return fmt.Errorf("insert provider config: %w", err)
	}
	return nil
}

func (r *ProviderConfigRepository) GetByID(ctx context.Context, storeID, id uuid.UUID) (*providerconfig.Config, error) {
	return r.scanOne(r.db(ctx).QueryRow(ctx,
		`SELECT `+providerConfigColumns+` FROM payment_provider_configs WHERE id = $1 AND store_id = $2`, id, storeID))
}

func (r *ProviderConfigRepository) GetActive(ctx context.Context, storeID uuid.UUID, provider string) (*providerconfig.Config, error) {
	return r.scanOne(r.db(ctx).QueryRow(ctx,
		`SELECT `+providerConfigColumns+` FROM payment_provider_configs
		 WHERE store_id = $1 AND provider = $2 AND is_active`, storeID, provider))
}

func (r *ProviderConfigRepository) ListByStore(ctx context.Context, storeID uuid.UUID) ([]*providerconfig.Config, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+providerConfigColumns+` FROM payment_provider_configs
		 WHERE store_id = $1 ORDER BY is_default DESC, created_at ASC`, storeID)
	if err != nil {
		return nil, fmt.Errorf("list provider configs: %w", err)
	}
	defer rows.Close()

	var out []*providerconfig.Config
	for rows.Next() {
		c, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ProviderConfigRepository) Update(ctx context.Context, c *providerconfig.Config) error {
	settings, err := json.Marshal(c.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payment_provider_configs SET
		   display_name = $1, credentials = $2, settings = $3, is_active = $4, is_default = $5,
		   test_mode = $6, updated_at = $7
		 WHERE id = $8 AND store_id = $9`,
		c.DisplayName, credentialsOrEmpty(c.Credentials), string(settings), c.IsActive, c.IsDefault,
		c.TestMode, c.UpdatedAt, c.ID, c.StoreID,
	)
	if err != nil {
		return fmt.Errorf("update provider config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrProviderConfigNotFound
	}
	return nil
}

// SetDefault must run inside a transaction: the partial unique index allows
// only one active default per store, so the old default is cleared first.
func (r *ProviderConfigRepository) SetDefault(ctx context.Context, storeID, id uuid.UUID) error {
	if _, err := r.db(ctx).Exec(ctx,
		`UPDATE payment_provider_configs SET is_default = FALSE, updated_at = NOW()
		 WHERE store_id = $1 AND is_default AND id <> $2`, storeID, id); err != nil {
		return fmt.Errorf("clear default provider config: %w", err)
	}
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payment_provider_configs SET is_default = TRUE, updated_at = NOW()
		 WHERE id = $1 AND store_id = $2 AND is_active`, id, storeID)
	if err != nil {
		return fmt.Errorf("set default provider config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrProviderConfigNotFound
	}
	return nil
}

func (r *ProviderConfigRepository) Delete(ctx context.Context, storeID, id uuid.UUID) error {
	tag, err := r.db(ctx).Exec(ctx,
		`DELETE FROM payment_provider_configs WHERE id = $1 AND store_id = $2`, id, storeID)
	if err != nil {
		return fmt.Errorf("delete provider config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrProviderConfigNotFound
	}
	return nil
}

func (r *ProviderConfigRepository) IncrementCounters(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payment_provider_configs
		 SET total_transactions = total_transactions + 1,
		     total_volume = total_volume + $1::numeric,
		     updated_at = NOW()
		 WHERE id = $2`, decimalToNumeric(amount), id)
	if err != nil {
		return fmt.Errorf("increment provider counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrProviderConfigNotFound
	}
	return nil
}

func (r *ProviderConfigRepository) scanOne(row scanner) (*providerconfig.Config, error) {
	c, err := r.scan(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domainErrors.ErrProviderConfigNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *ProviderConfigRepository) scan(row scanner) (*providerconfig.Config, error) {
	c := &providerconfig.Config{}
	var credentials, settings []byte
	var volume string
	if err := row.Scan(&c.ID, &c.StoreID, &c.Provider, &c.DisplayName, &credentials, &settings, &c.IsActive,
		&c.IsDefault, &c.TestMode, &c.TotalTransactions, &volume, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan provider config: %w", err)
	}
	c.Credentials = json.RawMessage(credentials)
	c.Settings = map[string]any{}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &c.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	d, err := numericToDecimal(volume)
	if err != nil {
		return nil, err
	}
	c.TotalVolume = d
	return c, nil
}

func credentialsOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
