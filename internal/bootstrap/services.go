package bootstrap

import (
	"github.com/cassiomorais/storepay/internal/infrastructure/mail"
	"github.com/cassiomorais/storepay/internal/infrastructure/observability"
	"github.com/cassiomorais/storepay/internal/service"
)

// ReconciliationService wires the callback pipeline with the environment policy.
func (a *App) ReconciliationService() *service.ReconciliationService {
	cfg := a.Config
	logger := observability.Component(a.Logger, "reconciliation")
	return service.NewReconciliationService(service.ReconciliationDeps{
		Stores:       a.Repos.Stores,
		Configs:      a.Repos.Configs,
		Registry:     a.Registry,
		Pending:      a.Repos.Pending,
		Ledger:       a.Repos.Ledger,
		Outbox:       a.Repos.Outbox,
		CallbackLogs: a.Repos.CallbackLogs,
		TxManager:    a.Repos.TxManager,
		Locker:       a.Locker(),
		Normalizer:   service.NewCallbackNormalizer(logger),
		Metrics:      a.Metrics,
		Logger:       logger,
	}, service.ReconciliationPolicy{
		EnforceSignatures: cfg.SignaturesEnforced(),
		EnforceAmounts:    cfg.AmountsEnforced(),
		AmountTolerance:   cfg.Reconciliation.Tolerance(),
		MatchWindow:       cfg.Reconciliation.MatchWindow,
		LockTTL:           cfg.Reconciliation.LockTTL,
	})
}

func (a *App) PendingPaymentService() *service.PendingPaymentService {
	return service.NewPendingPaymentService(
		a.Repos.Pending,
		a.Repos.Stores,
		a.Metrics,
		observability.Component(a.Logger, "pending_payments"),
		a.Config.Checkout.PendingTTL,
	)
}

func (a *App) ProviderConfigService() *service.ProviderConfigService {
	return service.NewProviderConfigService(a.Repos.Configs, a.Repos.Stores, a.Registry, a.Repos.TxManager)
}

func (a *App) RefundService() *service.RefundService {
	return service.NewRefundService(
		a.Repos.Orders,
		a.Repos.Ledger,
		a.Repos.Configs,
		a.Registry,
		a.Repos.TxManager,
		a.Locker(),
		a.Metrics,
		observability.Component(a.Logger, "refunds"),
		a.Config.Payment.LockTTL,
		a.Config.Payment.ProcessingTimeout,
	)
}

func (a *App) AuthzService() *service.AuthzService {
	return service.NewAuthzService(a.Repos.Stores, a.Config.Auth.JWTSecret != "")
}

// Mailer returns an SMTP mailer when mail is enabled, otherwise one that
// only logs what it would have sent.
func (a *App) Mailer() (service.Mailer, error) {
	if !a.Config.Mail.Enabled {
		return mail.NewLogMailer(observability.Component(a.Logger, "mail")), nil
	}
	mailer, err := mail.NewSMTPMailer(a.Config.Mail)
	if err != nil {
		return nil, err
	}
	return mailer, nil
}

func (a *App) DetachedTaskService() (*service.DetachedTaskService, error) {
	mailer, err := a.Mailer()
	if err != nil {
		return nil, err
	}
	return service.NewDetachedTaskService(
		a.Repos.Ledger,
		a.Repos.Configs,
		a.Repos.Pending,
		a.Repos.Stores,
		a.Repos.TxManager,
		mailer,
		a.Metrics,
		observability.Component(a.Logger, "detached_tasks"),
	), nil
}
