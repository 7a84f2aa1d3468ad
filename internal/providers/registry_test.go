package providers

import (
	"encoding/json"
	"testing"

	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/domain/providerconfig"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_DefaultProviders(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, []string{"formpay", "mock", "paygate", "stripe"}, r.Names())
	assert.Len(t, r.circuitBreakers, 4)
	assert.True(t, r.Known("stripe"))
	assert.False(t, r.Known("paypal"))
}

func TestRegistry_Adapter(t *testing.T) {
	r := NewRegistry()
	cfg := &providerconfig.Config{
		ID:          uuid.New(),
		Provider:    "mock",
		Credentials: json.RawMessage(`{"secret":"x"}`),
	}

	a, err := r.Adapter(cfg)
	require.NoError(t, err)
	assert.Equal(t, "mock", a.Name())
}

func TestRegistry_AdapterReusedUntilConfigChanges(t *testing.T) {
	r := NewRegistry()
	cfg := &providerconfig.Config{
		ID:          uuid.New(),
		Provider:    "paygate",
		Credentials: json.RawMessage(`{"client_id":"c","client_secret":"s","webhook_secret":"w"}`),
		Settings:    map[string]any{"base_url": "https://gw.test"},
	}

	first, err := r.Adapter(cfg)
	require.NoError(t, err)
	again, err := r.Adapter(cfg)
	require.NoError(t, err)
	assert.Same(t, first, again)

	rotated := *cfg
	rotated.Credentials = json.RawMessage(`{"client_id":"c","client_secret":"s2","webhook_secret":"w"}`)
	changed, err := r.Adapter(&rotated)
	require.NoError(t, err)
	assert.NotSame(t, first, changed)

	other := *cfg
	other.ID = uuid.New()
	separate, err := r.Adapter(&other)
	require.NoError(t, err)
	assert.NotSame(t, changed, separate)

	r.Forget(rotated.ID)
	rebuilt, err := r.Adapter(&rotated)
	require.NoError(t, err)
	assert.NotSame(t, changed, rebuilt)
}

func TestRegistry_Adapter_Errors(t *testing.T) {
	r := NewRegistry()

	_, err := r.Adapter(&providerconfig.Config{Provider: "unknown"})
	assert.ErrorIs(t, err, domainErrors.ErrProviderNotFound)

	_, err = r.Adapter(&providerconfig.Config{Provider: "stripe"})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidCredentials)
}

func TestRegistry_Breaker(t *testing.T) {
	r := NewRegistry()

	cb, err := r.Breaker("paygate")
	require.NoError(t, err)
	assert.Equal(t, "paygate", cb.Name())
	assert.Equal(t, gobreaker.StateClosed, cb.State())

	_, err = r.Breaker("unknown")
	assert.ErrorIs(t, err, domainErrors.ErrProviderNotFound)
}

func TestRegistry_WithConstructor(t *testing.T) {
	r := NewRegistry(WithConstructor("sandbox", func() Adapter { return NewMockAdapter() }))

	assert.True(t, r.Known("sandbox"))
	_, err := r.Breaker("sandbox")
	assert.NoError(t, err)
}

func TestRegistry_StateChangeHook(t *testing.T) {
	var transitions []gobreaker.State
	r := NewRegistry(WithStateChangeHook(func(_ string, _, to gobreaker.State) {
		transitions = append(transitions, to)
	}))
	cb, err := r.Breaker("mock")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, _ = cb.Execute(func() (*RefundResult, error) { return nil, domainErrors.ErrGatewayFailure })
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)
}
