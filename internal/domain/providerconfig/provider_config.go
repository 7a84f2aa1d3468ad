package providerconfig

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Config binds a store to one payment gateway account.
type Config struct {
	ID                uuid.UUID
	StoreID           uuid.UUID
	Provider          string
	DisplayName       string
	Credentials       json.RawMessage // never serialized to API responses
	Settings          map[string]any
	IsActive          bool
	IsDefault         bool
	TestMode          bool
	TotalTransactions int64
	TotalVolume       decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Update carries the mutable fields of a configuration. Nil means unchanged.
type Update struct {
	DisplayName *string
	Credentials json.RawMessage
	Settings    map[string]any
	IsActive    *bool
	TestMode    *bool
}

func New(storeID uuid.UUID, provider, displayName string, credentials json.RawMessage, settings map[string]any) (*Config, error) {
	if storeID == uuid.Nil {
		return nil, errors.NewValidationError("store_id", "cannot be empty")
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return nil, errors.NewValidationError("provider", "cannot be empty")
	}
	if len(credentials) > 0 && !json.Valid(credentials) {
		return nil, errors.NewValidationError("credentials", "must be a JSON object")
	}
	if displayName == "" {
		displayName = provider
	}
	if settings == nil {
		settings = map[string]any{}
	}

	now := time.Now().UTC()
	return &Config{
		ID:          uuid.New(),
		StoreID:     storeID,
		Provider:    provider,
		DisplayName: displayName,
		Credentials: credentials,
		Settings:    settings,
		IsActive:    true,
		TotalVolume: decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Apply merges an update into the configuration.
func (c *Config) Apply(u Update) error {
	if u.DisplayName != nil {
		if strings.TrimSpace(*u.DisplayName) == "" {
			return errors.NewValidationError("display_name", "cannot be empty")
		}
		c.DisplayName = *u.DisplayName
	}
	if len(u.Credentials) > 0 {
		if !json.Valid(u.Credentials) {
			return errors.NewValidationError("credentials", "must be a JSON object")
		}
		c.Credentials = u.Credentials
	}
	if u.Settings != nil {
		c.Settings = u.Settings
	}
	if u.IsActive != nil {
		c.IsActive = *u.IsActive
		if !c.IsActive {
			c.IsDefault = false
		}
	}
	if u.TestMode != nil {
		c.TestMode = *u.TestMode
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// SettingString reads a string setting, returning "" when absent.
func (c *Config) SettingString(key string) string {
	if v, ok := c.Settings[key].(string); ok {
		return v
	}
	return ""
}
