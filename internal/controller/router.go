package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/storepay/internal/infrastructure/config"
	"github.com/cassiomorais/storepay/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/storepay/internal/middleware"
	"github.com/cassiomorais/storepay/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Health                *HealthController
	Reconciler            *service.ReconciliationService
	PendingPaymentService *service.PendingPaymentService
	ProviderConfigService *service.ProviderConfigService
	RefundService         *service.RefundService
	Authz                 *service.AuthzService
	IdempotencyStore      customMW.IdempotencyStore
	Metrics               *observability.Metrics
	MetricsHandler        http.Handler
	Config                RouterConfig
}

// RouterConfig is the HTTP-facing slice of the service configuration.
type RouterConfig struct {
	ServiceName    string
	CORS           config.CORSConfig
	Redirect       config.RedirectConfig
	Webhook        config.WebhookConfig
	JWTSecret      string
	IdempotencyTTL time.Duration
	RequestTimeout time.Duration
}

func NewRouter(deps RouterDeps) *chi.Mux {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "storepay"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing(cfg.ServiceName))
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(customMW.SecurityHeaders())
	if deps.Metrics != nil {
		r.Use(customMW.Metrics(deps.Metrics))
	}

	if deps.Health != nil {
		r.Get("/health", deps.Health.Health)
		r.Get("/health/live", deps.Health.Liveness)
		r.Get("/health/ready", deps.Health.Readiness)
	}

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	// Gateways and browsers reach these without credentials; authenticity
	// is checked per provider inside reconciliation.
	callbacks := NewCallbackController(deps.Reconciler, cfg.Redirect)
	r.Group(func(r chi.Router) {
		r.Use(customMW.WebhookRateLimit(cfg.Webhook.RateLimitPerMinute))
		r.Use(customMW.MaxBodySize(cfg.Webhook.MaxBodyBytes))
		r.Post("/webhooks/{provider}", callbacks.Webhook)
		r.Post("/webhooks/{provider}/{store}", callbacks.Webhook)
		r.Get("/checkout/{provider}/return", callbacks.Return)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", customMW.IdempotencyHeader},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           300,
		}))
		if cfg.JWTSecret != "" {
			r.Use(customMW.RequireAuth(cfg.JWTSecret))
		}

		r.Route("/stores/{storeID}", func(r chi.Router) {
			r.Use(storeScope(deps.Authz))

			pendingH := NewPendingPaymentController(deps.PendingPaymentService)
			r.Post("/pending-payments", pendingH.Create)
			r.Get("/pending-payments/confirmed", pendingH.ListConfirmed)
			r.Get("/pending-payments/{id}", pendingH.Get)
			r.Put("/pending-payments/{id}/correlation", pendingH.AttachCorrelation)
			r.Post("/pending-payments/{id}/consume", pendingH.Consume)

			configH := NewProviderConfigController(deps.ProviderConfigService)
			r.Get("/provider-configs", configH.List)
			r.Post("/provider-configs", configH.Create)
			r.Get("/provider-configs/{id}", configH.Get)
			r.Put("/provider-configs/{id}", configH.Update)
			r.Delete("/provider-configs/{id}", configH.Delete)
			r.Post("/provider-configs/{id}/default", configH.SetDefault)

			refundH := NewRefundController(deps.RefundService)
			refunds := r.With()
			if deps.IdempotencyStore != nil {
				refunds = r.With(customMW.Idempotency(deps.IdempotencyStore, cfg.IdempotencyTTL))
			}
			refunds.Post("/orders/{orderID}/refunds", refundH.Refund)
		})
	})

	return r
}
