package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/storepay/internal/bootstrap"
	"github.com/cassiomorais/storepay/internal/controller"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "storepay-api", "storepay")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	cfg := app.Config
	if !cfg.SignaturesEnforced() {
		app.Logger.Warn().Msg("Callback signature failures are logged but not rejected")
	}

	// --- Health ---
	health := controller.NewHealthController(map[string]controller.Pinger{
		"database": app.Pool,
		"redis": controller.PingFunc(func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		}),
	})

	// --- Router ---
	router := controller.NewRouter(controller.RouterDeps{
		Health:                health,
		Reconciler:            app.ReconciliationService(),
		PendingPaymentService: app.PendingPaymentService(),
		ProviderConfigService: app.ProviderConfigService(),
		RefundService:         app.RefundService(),
		Authz:                 app.AuthzService(),
		IdempotencyStore:      app.Repos.Idempotency,
		Metrics:               app.Metrics,
		Config: controller.RouterConfig{
			ServiceName:    "storepay-api",
			CORS:           cfg.Server.CORS,
			Redirect:       cfg.Redirect,
			Webhook:        cfg.Webhook,
			JWTSecret:      cfg.Auth.JWTSecret,
			IdempotencyTTL: cfg.Worker.IdempotencyTTL,
			RequestTimeout: cfg.Payment.ProcessingTimeout,
		},
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	cancel()
	app.Logger.Info().Msg("Server exited")
}
