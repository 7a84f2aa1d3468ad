package service

import (
	"context"
	"encoding/json"

	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/domain/providerconfig"
	"github.com/cassiomorais/storepay/internal/domain/store"
	"github.com/cassiomorais/storepay/internal/providers"
	"github.com/google/uuid"
)

// ProviderConfigService manages the gateway accounts bound to each store.
type ProviderConfigService struct {
	repo      providerconfig.Repository
	stores    store.Repository
	registry  *providers.Registry
	txManager TransactionManager
}

func NewProviderConfigService(
	repo providerconfig.Repository,
	stores store.Repository,
	registry *providers.Registry,
	txManager TransactionManager,
) *ProviderConfigService {
	return &ProviderConfigService{
		repo:      repo,
		stores:    stores,
		registry:  registry,
		txManager: txManager,
	}
}

type CreateProviderConfigRequest struct {
	StoreID     uuid.UUID
	Provider    string
	DisplayName string
	Credentials json.RawMessage
	Settings    map[string]any
	TestMode    bool
	IsDefault   bool
}

// Create stores a new configuration after checking that the adapter accepts
// its credentials.
func (s *ProviderConfigService) Create(ctx context.Context, req CreateProviderConfigRequest) (*providerconfig.Config, error) {
	if _, err := s.stores.GetByID(ctx, req.StoreID); err != nil {
		return nil, err
	}

	cfg, err := providerconfig.New(req.StoreID, req.Provider, req.DisplayName, req.Credentials, req.Settings)
	if err != nil {
		return nil, err
	}
	if !s.registry.Known(cfg.Provider) {
		return nil, domainErrors.NewDomainError("unknown_provider", "unsupported provider "+cfg.Provider, domainErrors.ErrProviderNotFound)
	}
	cfg.TestMode = req.TestMode
	if err := s.checkAdapter(cfg); err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, cfg); err != nil {
			return err
		}
		if req.IsDefault {
			if err := s.repo.SetDefault(txCtx, cfg.StoreID, cfg.ID); err != nil {
				return err
			}
			cfg.IsDefault = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *ProviderConfigService) Get(ctx context.Context, storeID, id uuid.UUID) (*providerconfig.Config, error) {
	return s.repo.GetByID(ctx, storeID, id)
}

func (s *ProviderConfigService) List(ctx context.Context, storeID uuid.UUID) ([]*providerconfig.Config, error) {
	return s.repo.ListByStore(ctx, storeID)
}

// Update applies a partial update. Deactivating a configuration also drops
// its default flag.
func (s *ProviderConfigService) Update(ctx context.Context, storeID, id uuid.UUID, u providerconfig.Update) (*providerconfig.Config, error) {
	cfg, err := s.repo.GetByID(ctx, storeID, id)
	if err != nil {
		return nil, err
	}
	if err := cfg.Apply(u); err != nil {
		return nil, err
	}
	if len(u.Credentials) > 0 || u.Settings != nil || u.TestMode != nil {
		if err := s.checkAdapter(cfg); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Update(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetDefault makes an active configuration the store default.
func (s *ProviderConfigService) SetDefault(ctx context.Context, storeID, id uuid.UUID) (*providerconfig.Config, error) {
	cfg, err := s.repo.GetByID(ctx, storeID, id)
	if err != nil {
		return nil, err
	}
	if !cfg.IsActive {
		return nil, domainErrors.NewValidationError("is_active", "an inactive configuration cannot be the default")
	}
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.repo.SetDefault(txCtx, storeID, id)
	})
	if err != nil {
		return nil, err
	}
	cfg.IsDefault = true
	return cfg, nil
}

func (s *ProviderConfigService) Delete(ctx context.Context, storeID, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, storeID, id); err != nil {
		return err
	}
	s.registry.Forget(id)
	return nil
}

// SupportedProviders lists the provider ids a configuration may use.
func (s *ProviderConfigService) SupportedProviders() []string {
	return s.registry.Names()
}

func (s *ProviderConfigService) checkAdapter(cfg *providerconfig.Config) error {
	if _, err := s.registry.Adapter(cfg); err != nil {
		return domainErrors.NewValidationError("credentials", err.Error())
	}
	return nil
}
