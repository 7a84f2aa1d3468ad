package service

import (
	"context"

	"github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/domain/store"
	"github.com/cassiomorais/storepay/internal/middleware"
	"github.com/google/uuid"
)

// AuthzService checks that the operator behind a request may act on a store.
// When API authentication is disabled every request is allowed.
type AuthzService struct {
	stores  store.Repository
	enabled bool
}

func NewAuthzService(stores store.Repository, enabled bool) *AuthzService {
	return &AuthzService{stores: stores, enabled: enabled}
}

func (s *AuthzService) VerifyStoreAccess(ctx context.Context, storeID uuid.UUID) error {
	if !s.enabled {
		return nil
	}
	claims, ok := middleware.GetClaims(ctx)
	if !ok {
		return errors.ErrUnauthorized
	}

	if _, err := s.stores.GetByID(ctx, storeID); err != nil {
		return err
	}

	if claims.Role == middleware.RoleAdmin {
		return nil
	}
	for _, id := range claims.StoreIDs {
		if id == storeID.String() {
			return nil
		}
	}
	return errors.ErrForbidden
}
