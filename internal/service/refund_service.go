package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/domain/money"
	"github.com/cassiomorais/storepay/internal/domain/order"
	"github.com/cassiomorais/storepay/internal/domain/providerconfig"
	"github.com/cassiomorais/storepay/internal/domain/transaction"
	"github.com/cassiomorais/storepay/internal/infrastructure/observability"
	"github.com/cassiomorais/storepay/internal/providers"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

// RefundService validates refund eligibility and drives gateway refunds.
type RefundService struct {
	orders            order.Repository
	ledger            transaction.Repository
	configs           providerconfig.Repository
	registry          *providers.Registry
	txManager         TransactionManager
	locker            Locker
	metrics           *observability.Metrics
	logger            zerolog.Logger
	lockTTL           time.Duration
	processingTimeout time.Duration
}

func NewRefundService(
	orders order.Repository,
	ledger transaction.Repository,
	configs providerconfig.Repository,
	registry *providers.Registry,
	txManager TransactionManager,
	locker Locker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	lockTTL time.Duration,
	processingTimeout time.Duration,
) *RefundService {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	if processingTimeout <= 0 {
		processingTimeout = 60 * time.Second
	}
	return &RefundService{
		orders:            orders,
		ledger:            ledger,
		configs:           configs,
		registry:          registry,
		txManager:         txManager,
		locker:            locker,
		metrics:           metrics,
		logger:            logger,
		lockTTL:           lockTTL,
		processingTimeout: processingTimeout,
	}
}

// RefundRequest holds the input for refunding an order. An invalid Amount
// refunds the whole remaining balance.
type RefundRequest struct {
	StoreID     uuid.UUID
	OrderID     uuid.UUID
	Amount      decimal.NullDecimal
	Reason      string
	RequestedBy string
}

// RefundResponse holds the result of a successful refund.
type RefundResponse struct {
	Refund          *transaction.Transaction
	Charge          *transaction.Transaction
	FinancialStatus order.FinancialStatus
	RefundedTotal   decimal.Decimal
	Remaining       decimal.Decimal
}

// Refund refunds an order's charge. Every precondition is checked before the
// gateway is called, and a gateway failure leaves no ledger or order change.
func (s *RefundService) Refund(ctx context.Context, req RefundRequest) (*RefundResponse, error) {
	o, err := s.orders.GetByID(ctx, req.StoreID, req.OrderID)
	if err != nil {
		return nil, err
	}
	if !o.Refundable() {
		return nil, domainErrors.NewDomainError(
			"refund_not_allowed",
			"order financial status is "+string(o.FinancialStatus),
			domainErrors.ErrRefundNotAllowed,
		)
	}

	charge, err := s.ledger.GetSuccessfulCharge(ctx, o.PendingPaymentID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrTransactionNotFound) {
			return nil, domainErrors.NewDomainError("refund_not_allowed", "order has no successful charge", domainErrors.ErrRefundNotAllowed)
		}
		return nil, err
	}

	release, err := s.locker.Lock(ctx, "refund:"+o.ID.String(), s.lockTTL)
	if err != nil {
		if errors.Is(err, domainErrors.ErrLockAcquisitionFailed) {
			return nil, domainErrors.ErrRefundInProgress
		}
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Str("order_id", o.ID.String()).Msg("failed to release refund lock")
		}
	}()

	// Read under the lock so concurrent partial refunds see each other.
	refunded, err := s.ledger.SumSuccessfulRefunds(ctx, charge.ID)
	if err != nil {
		return nil, err
	}
	refundable := charge.Amount.Sub(refunded)
	if !refundable.IsPositive() {
		return nil, domainErrors.NewDomainError("refund_not_allowed", "charge is fully refunded", domainErrors.ErrRefundNotAllowed)
	}

	amount := refundable
	if req.Amount.Valid {
		amount = money.Round(req.Amount.Decimal, charge.Currency)
	}
	if err := money.ValidatePositive("amount", amount); err != nil {
		return nil, err
	}
	if amount.GreaterThan(refundable) {
		return nil, domainErrors.NewDomainError(
			"refund_exceeds_paid",
			fmt.Sprintf("refund %s exceeds refundable %s", amount.StringFixed(2), refundable.StringFixed(2)),
			domainErrors.ErrRefundExceedsPaid,
		)
	}

	result, err := s.callGateway(ctx, req.StoreID, charge, providers.RefundRequest{
		ProviderTransactionID: charge.ProviderTransactionID,
		Amount:                amount,
		Currency:              charge.Currency,
		IdempotencyKey:        fmt.Sprintf("refund-%s-%s", charge.ID, refunded.String()),
		Reason:                req.Reason,
	})
	if err != nil {
		return nil, err
	}

	refund, err := transaction.NewRefund(charge, result.ProviderRefundID, amount, result.Raw)
	if err != nil {
		return nil, err
	}
	full := refunded.Add(amount).GreaterThanOrEqual(charge.Amount)
	target := order.StatusAfterRefund(full)

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.ledger.Create(txCtx, refund); err != nil {
			return err
		}
		ok, err := s.orders.TransitionFinancialStatus(txCtx, o.ID, o.FinancialStatus, target)
		if err != nil {
			return err
		}
		if !ok {
			// The gateway already moved the money; keep the ledger truthful.
			s.logger.Error().
				Str("order_id", o.ID.String()).
				Str("refund_id", refund.ID.String()).
				Msg("order financial status changed during refund, status not updated")
		}
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("order_id", o.ID.String()).
			Str("provider_refund_id", result.ProviderRefundID).
			Msg("gateway refund succeeded but could not be recorded")
		return nil, err
	}

	s.logger.Info().
		Str("order_id", o.ID.String()).
		Str("charge_id", charge.ID.String()).
		Str("amount", amount.String()).
		Str("requested_by", req.RequestedBy).
		Str("financial_status", string(target)).
		Msg("refund recorded")

	return &RefundResponse{
		Refund:          refund,
		Charge:          charge,
		FinancialStatus: target,
		RefundedTotal:   refunded.Add(amount),
		Remaining:       refundable.Sub(amount),
	}, nil
}

// callGateway executes the refund through the provider's circuit breaker. A
// decline is not a breaker failure but is still reported as a gateway failure.
func (s *RefundService) callGateway(ctx context.Context, storeID uuid.UUID, charge *transaction.Transaction, req providers.RefundRequest) (*providers.RefundResult, error) {
	cfg, err := s.configs.GetByID(ctx, storeID, charge.ProviderConfigID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.registry.Adapter(cfg)
	if err != nil {
		return nil, err
	}
	cb, err := s.registry.Breaker(cfg.Provider)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.processingTimeout)
	defer cancel()

	start := time.Now()
	result, err := cb.Execute(func() (*providers.RefundResult, error) {
		return adapter.Refund(callCtx, req)
	})
	if s.metrics != nil {
		s.metrics.RefundDuration.WithLabelValues(cfg.Provider).Observe(time.Since(start).Seconds())
		s.metrics.CircuitBreakerRequests.WithLabelValues(cfg.Provider, breakerResult(err)).Inc()
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		s.countRefund(cfg.Provider, "unavailable")
		return nil, domainErrors.NewDomainError("provider_unavailable", cfg.Provider+" is temporarily unavailable", domainErrors.ErrProviderUnavailable)
	case err != nil:
		s.countRefund(cfg.Provider, "error")
		msg := err.Error()
		if result != nil && result.ErrorMessage != "" {
			msg = result.ErrorMessage
		}
		s.logger.Error().Err(err).Str("provider", cfg.Provider).Str("charge_id", charge.ID.String()).Msg("gateway refund failed")
		return nil, domainErrors.NewDomainError("gateway_failure", msg, domainErrors.ErrGatewayFailure)
	case result == nil || !result.Success:
		s.countRefund(cfg.Provider, "declined")
		msg := "refund declined by gateway"
		if result != nil && result.ErrorMessage != "" {
			msg = result.ErrorMessage
		}
		return nil, domainErrors.NewDomainError("gateway_failure", msg, domainErrors.ErrGatewayFailure)
	}

	s.countRefund(cfg.Provider, "success")
	return result, nil
}

func (s *RefundService) countRefund(provider, result string) {
	if s.metrics != nil {
		s.metrics.RefundsTotal.WithLabelValues(provider, result).Inc()
	}
}

func breakerResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "rejected"
	default:
		return "failure"
	}
}
