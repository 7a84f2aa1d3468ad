package providers

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/domain/providerconfig"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
)

// Constructor builds an unconfigured adapter.
type Constructor func() Adapter

// StateChangeFunc observes circuit breaker transitions.
type StateChangeFunc func(provider string, from, to gobreaker.State)

type RegistryOption func(*Registry)

// WithStateChangeHook reports breaker transitions, typically to metrics.
func WithStateChangeHook(fn StateChangeFunc) RegistryOption {
	return func(r *Registry) { r.onStateChange = fn }
}

// WithConstructor registers or replaces a provider constructor.
func WithConstructor(name string, ctor Constructor) RegistryOption {
	return func(r *Registry) { r.constructors[name] = ctor }
}

// Registry maps provider names to adapters and owns one circuit breaker per
// provider for outbound gateway calls. Configured adapters are cached per
// provider configuration so gateway clients and token sources are reused.
type Registry struct {
	constructors    map[string]Constructor
	circuitBreakers map[string]*gobreaker.CircuitBreaker[*RefundResult]
	onStateChange   StateChangeFunc

	mu       sync.Mutex
	adapters map[uuid.UUID]cachedAdapter
}

type cachedAdapter struct {
	fingerprint [sha256.Size]byte
	adapter     Adapter
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		constructors: map[string]Constructor{
			ProviderStripe:  func() Adapter { return NewStripeAdapter() },
			ProviderPaygate: func() Adapter { return NewPaygateAdapter() },
			ProviderFormpay: func() Adapter { return NewFormpayAdapter() },
			ProviderMock:    func() Adapter { return NewMockAdapter() },
		},
		circuitBreakers: make(map[string]*gobreaker.CircuitBreaker[*RefundResult]),
		adapters:        make(map[uuid.UUID]cachedAdapter),
	}
	for _, o := range opts {
		o(r)
	}
	for name := range r.constructors {
		r.circuitBreakers[name] = r.newBreaker(name)
	}
	return r
}

func (r *Registry) newBreaker(name string) *gobreaker.CircuitBreaker[*RefundResult] {
	return gobreaker.NewCircuitBreaker[*RefundResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if r.onStateChange != nil {
				r.onStateChange(name, from, to)
			}
		},
	})
}

// Known reports whether a provider id is supported.
func (r *Registry) Known(name string) bool {
	_, ok := r.constructors[name]
	return ok
}

// Names lists the supported provider ids.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Adapter returns an adapter bound to a stored provider configuration. The
// adapter is built once per configuration and rebuilt when its credentials,
// settings or mode change. Adapters are read-only after Configure.
func (r *Registry) Adapter(cfg *providerconfig.Config) (Adapter, error) {
	ctor, ok := r.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q: %w", cfg.Provider, errors.ErrProviderNotFound)
	}
	c := Config{
		Provider:    cfg.Provider,
		Credentials: cfg.Credentials,
		Settings:    cfg.Settings,
		TestMode:    cfg.TestMode,
	}
	fp, ok := fingerprint(c)
	cacheable := ok && cfg.ID != uuid.Nil
	if cacheable {
		r.mu.Lock()
		cached, ok := r.adapters[cfg.ID]
		r.mu.Unlock()
		if ok && cached.fingerprint == fp {
			return cached.adapter, nil
		}
	}

	a := ctor()
	if err := a.Configure(c); err != nil {
		return nil, err
	}
	if cacheable {
		r.mu.Lock()
		r.adapters[cfg.ID] = cachedAdapter{fingerprint: fp, adapter: a}
		r.mu.Unlock()
	}
	return a, nil
}

// Forget drops the cached adapter of a deleted configuration.
func (r *Registry) Forget(configID uuid.UUID) {
	r.mu.Lock()
	delete(r.adapters, configID)
	r.mu.Unlock()
}

func fingerprint(c Config) (fp [sha256.Size]byte, ok bool) {
	settings, err := json.Marshal(c.Settings)
	if err != nil {
		return fp, false
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%t\x00", c.Provider, c.TestMode)
	h.Write(c.Credentials)
	h.Write([]byte{0})
	h.Write(settings)
	copy(fp[:], h.Sum(nil))
	return fp, true
}

// Breaker returns the circuit breaker guarding calls to a provider.
func (r *Registry) Breaker(name string) (*gobreaker.CircuitBreaker[*RefundResult], error) {
	cb, ok := r.circuitBreakers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q: %w", name, errors.ErrProviderNotFound)
	}
	return cb, nil
}
