package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cassiomorais/storepay/internal/domain/callbacklog"
	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/domain/money"
	"github.com/cassiomorais/storepay/internal/domain/outbox"
	"github.com/cassiomorais/storepay/internal/domain/pendingpayment"
	"github.com/cassiomorais/storepay/internal/domain/providerconfig"
	"github.com/cassiomorais/storepay/internal/domain/store"
	"github.com/cassiomorais/storepay/internal/domain/transaction"
	"github.com/cassiomorais/storepay/internal/infrastructure/observability"
	"github.com/cassiomorais/storepay/internal/providers"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Outcome is the typed result of reconciling one inbound callback.
type Outcome string

const (
	OutcomeApplied               Outcome = "applied"
	OutcomeAlreadyProcessed      Outcome = "already_processed"
	OutcomeIgnored               Outcome = "ignored"
	OutcomeAuthenticationFailure Outcome = "authentication_failure"
	OutcomeRoutingFailure        Outcome = "routing_failure"
	OutcomeMatchFailure          Outcome = "match_failure"
	OutcomeAmountMismatch        Outcome = "amount_mismatch"
)

// AmountMismatchCode is recorded on charges rejected for a wrong amount.
const AmountMismatchCode = "amount_mismatch"

// InboundCallback is one webhook delivery or browser redirect.
type InboundCallback struct {
	Channel   callbacklog.Channel
	Provider  string
	StoreSlug string
	Body      []byte
	Headers   http.Header
	Query     url.Values
}

// ReconcileResult describes what a callback did. Confirmed reports whether
// the matched pending payment is confirmed once processing finished.
type ReconcileResult struct {
	Outcome          Outcome
	Reason           string
	Confirmed        bool
	PendingPaymentID *uuid.UUID
	TransactionID    *uuid.UUID
	Callback         providers.CallbackResult

	// AckContentType and AckBody carry a gateway-specific acknowledgment.
	AckContentType string
	AckBody        []byte
}

// ReconciliationPolicy holds the environment-dependent switches.
type ReconciliationPolicy struct {
	EnforceSignatures bool
	EnforceAmounts    bool
	AmountTolerance   decimal.Decimal
	MatchWindow       int
	LockTTL           time.Duration
}

// ReconciliationDeps groups the collaborators of ReconciliationService.
type ReconciliationDeps struct {
	Stores       store.Repository
	Configs      providerconfig.Repository
	Registry     *providers.Registry
	Pending      pendingpayment.Repository
	Ledger       transaction.Repository
	Outbox       outbox.Repository
	CallbackLogs callbacklog.Repository
	TxManager    TransactionManager
	Locker       Locker
	Normalizer   *CallbackNormalizer
	Metrics      *observability.Metrics
	Logger       zerolog.Logger
}

// ReconciliationService authenticates, matches and applies gateway callbacks.
// It is safe under arbitrary interleaving of deliveries: the ledger's unique
// key and conditional updates decide which caller performs a transition.
type ReconciliationService struct {
	deps   ReconciliationDeps
	policy ReconciliationPolicy
	now    func() time.Time
}

func NewReconciliationService(deps ReconciliationDeps, policy ReconciliationPolicy) *ReconciliationService {
	if policy.MatchWindow <= 0 {
		policy.MatchWindow = 100
	}
	if policy.LockTTL <= 0 {
		policy.LockTTL = 10 * time.Second
	}
	if deps.Normalizer == nil {
		deps.Normalizer = NewCallbackNormalizer(deps.Logger)
	}
	return &ReconciliationService{
		deps:   deps,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile processes one callback. The error is non-nil only for
// infrastructure failures; every business outcome is reported in the result.
func (s *ReconciliationService) Reconcile(ctx context.Context, in InboundCallback) (*ReconcileResult, error) {
	start := time.Now()
	in.Provider = strings.ToLower(strings.TrimSpace(in.Provider))
	in.StoreSlug = strings.TrimSpace(in.StoreSlug)
	if in.Channel == "" {
		in.Channel = callbacklog.ChannelWebhook
	}

	logger := s.deps.Logger.With().
		Str("store", in.StoreSlug).
		Str("provider", in.Provider).
		Str("channel", string(in.Channel)).
		Logger()
	ctx = logger.WithContext(ctx)

	res, err := s.reconcile(ctx, logger, in)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ReconciliationDuration.WithLabelValues(in.Provider, string(in.Channel)).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		logger.Error().Err(err).Msg("callback reconciliation failed")
		if s.deps.Metrics != nil {
			s.deps.Metrics.ReconciliationOutcomes.WithLabelValues(in.Provider, "error").Inc()
		}
		s.record(ctx, logger, in, &ReconcileResult{Outcome: "error", Reason: err.Error()})
		return nil, err
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.ReconciliationOutcomes.WithLabelValues(in.Provider, string(res.Outcome)).Inc()
	}
	s.logOutcome(logger, res)
	s.record(ctx, logger, in, res)
	return res, nil
}

func (s *ReconciliationService) reconcile(ctx context.Context, logger zerolog.Logger, in InboundCallback) (*ReconcileResult, error) {
	// 1. Tenant
	st, err := s.deps.Stores.GetBySlug(ctx, in.StoreSlug)
	if err != nil {
		if errors.Is(err, domainErrors.ErrStoreNotFound) {
			return failure(OutcomeRoutingFailure, "unknown store"), nil
		}
		return nil, err
	}
	if !st.IsActive {
		return failure(OutcomeRoutingFailure, "store is inactive"), nil
	}

	// 2. Provider configuration
	cfg, err := s.deps.Configs.GetActive(ctx, st.ID, in.Provider)
	if err != nil {
		if errors.Is(err, domainErrors.ErrProviderConfigNotFound) {
			return failure(OutcomeRoutingFailure, "no active configuration for provider"), nil
		}
		return nil, err
	}
	adapter, err := s.deps.Registry.Adapter(cfg)
	if err != nil {
		return failure(OutcomeRoutingFailure, "provider configuration unusable: "+err.Error()), nil
	}

	// 3. Authenticate, 4. normalize
	var cb providers.CallbackResult
	switch in.Channel {
	case callbacklog.ChannelRedirect:
		ra, ok := adapter.(providers.RedirectAdapter)
		if !ok {
			return failure(OutcomeRoutingFailure, "provider does not complete payments by redirect"), nil
		}
		if res := s.authenticate(logger, ra.ValidateRedirect(in.Query)); res != nil {
			return res, nil
		}
		cb = s.deps.Normalizer.ParseRedirect(ra, adapter.Name(), in.Query)
	default:
		if res := s.authenticate(logger, adapter.ValidateWebhook(in.Body, in.Headers)); res != nil {
			return res, nil
		}
		cb = s.deps.Normalizer.ParseWebhook(adapter, in.Body)
	}

	res := &ReconcileResult{Callback: cb}
	if ack, ok := adapter.(providers.Acknowledger); ok {
		res.AckContentType, res.AckBody = ack.Acknowledge(cb)
	}

	if cb.ProviderTransactionID == "" {
		return res.with(OutcomeMatchFailure, "callback carries no provider transaction id"), nil
	}
	if cb.Status == providers.StatusPending {
		return res.with(OutcomeIgnored, "non-terminal event "+cb.EventType), nil
	}

	// 5. Match
	pp, err := s.match(ctx, logger, st.ID, in.Provider, cb)
	if err != nil {
		return nil, err
	}
	if pp == nil {
		return res.with(OutcomeMatchFailure, "no pending payment matches callback"), nil
	}
	ppID := pp.ID
	res.PendingPaymentID = &ppID
	logger = logger.With().Str("pending_payment_id", pp.ID.String()).Str("provider_txn_id", cb.ProviderTransactionID).Logger()

	// 6. Idempotency gate. The lock only narrows the race window.
	release, err := s.deps.Locker.Lock(ctx, "reconcile:"+st.ID.String()+":"+in.Provider+":"+cb.ProviderTransactionID, s.policy.LockTTL)
	if err != nil {
		logger.Debug().Err(err).Msg("reconcile lock unavailable, relying on ledger gate")
	} else {
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn().Err(err).Msg("failed to release reconcile lock")
			}
		}()
	}

	txn, err := s.claim(ctx, st.ID, cfg, pp, cb)
	if err != nil {
		var ve *domainErrors.ValidationError
		if errors.As(err, &ve) {
			return res.with(OutcomeMatchFailure, ve.Error()), nil
		}
		return nil, err
	}
	txnID := txn.ID
	res.TransactionID = &txnID

	if txn.IsTerminal() {
		confirmed, err := s.absorbDuplicate(ctx, st.ID, txn, cb)
		if err != nil {
			return nil, err
		}
		res.Confirmed = confirmed
		if cb.Success && txn.Status == transaction.StatusFailed {
			logger.Error().Str("transaction_id", txn.ID.String()).
				Msg("gateway reported success for a transaction recorded as failed")
			return res.with(OutcomeAlreadyProcessed, "success reported for failed transaction"), nil
		}
		return res.with(OutcomeAlreadyProcessed, "transaction already "+string(txn.Status)), nil
	}

	now := s.now()
	fin := transaction.Finalization{
		Status:       transaction.StatusFailed,
		Gateway:      gatewayFields(cb),
		ErrorCode:    cb.ErrorCode,
		ErrorMessage: cb.ErrorMessage,
		RawResponse:  cb.Raw,
		ProcessedAt:  now,
	}
	if cb.Amount.Valid {
		fin.Amount = cb.Amount.Decimal
	}

	// 7. Amount reconciliation
	if cb.Success {
		fin.Status = transaction.StatusSuccess
		if reason := s.amountMismatch(pp, cb); reason != "" {
			if s.deps.Metrics != nil {
				s.deps.Metrics.AmountMismatches.WithLabelValues(in.Provider, fmt.Sprint(s.policy.EnforceAmounts)).Inc()
			}
			if s.policy.EnforceAmounts {
				fin.Status = transaction.StatusFailed
				fin.ErrorCode = AmountMismatchCode
				fin.ErrorMessage = reason
				ok, err := s.deps.Ledger.Finalize(ctx, txn.ID, fin)
				if err != nil {
					return nil, err
				}
				if !ok {
					return res.with(OutcomeAlreadyProcessed, "transaction finalized concurrently"), nil
				}
				return res.with(OutcomeAmountMismatch, reason), nil
			}
			logger.Warn().Str("reason", reason).Msg("amount mismatch tolerated: amounts not enforced")
		}
	}

	// 8. Apply
	outcome, reason, confirmed, err := s.apply(ctx, txn, pp, cb, fin)
	if err != nil {
		return nil, err
	}
	res.Confirmed = confirmed
	return res.with(outcome, reason), nil
}

func failure(outcome Outcome, reason string) *ReconcileResult {
	return &ReconcileResult{Outcome: outcome, Reason: reason}
}

func (r *ReconcileResult) with(outcome Outcome, reason string) *ReconcileResult {
	r.Outcome = outcome
	r.Reason = reason
	return r
}

func (s *ReconciliationService) authenticate(logger zerolog.Logger, err error) *ReconcileResult {
	if err == nil {
		return nil
	}
	if s.policy.EnforceSignatures {
		return failure(OutcomeAuthenticationFailure, err.Error())
	}
	logger.Warn().Err(err).Msg("callback authentication failed, continuing: signatures not enforced")
	return nil
}

// match finds the pending payment a callback belongs to: by correlation id,
// then by order reference in the recent window, then through the ledger.
func (s *ReconciliationService) match(ctx context.Context, logger zerolog.Logger, storeID uuid.UUID, provider string, cb providers.CallbackResult) (*pendingpayment.PendingPayment, error) {
	if cb.CorrelationID != "" {
		pp, err := s.deps.Pending.GetByCorrelationID(ctx, storeID, cb.CorrelationID)
		if err == nil {
			return pp, nil
		}
		if !errors.Is(err, domainErrors.ErrPendingPaymentNotFound) {
			return nil, err
		}
	}

	if cb.OrderReference != "" {
		recent, err := s.deps.Pending.ListRecentPending(ctx, storeID, s.policy.MatchWindow)
		if err != nil {
			return nil, err
		}
		for _, pp := range recent {
			if !pp.MatchesOrderReference(cb.OrderReference) {
				continue
			}
			if cb.CorrelationID != "" && pp.CorrelationID == nil {
				if err := s.deps.Pending.AttachCorrelationID(ctx, storeID, pp.ID, cb.CorrelationID); err != nil {
					logger.Warn().Err(err).Str("pending_payment_id", pp.ID.String()).Msg("could not attach correlation id")
				}
			}
			return pp, nil
		}
	}

	existing, err := s.deps.Ledger.GetByProviderTransactionID(ctx, storeID, provider, cb.ProviderTransactionID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrTransactionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if existing.PendingPaymentID == nil {
		return nil, nil
	}
	pp, err := s.deps.Pending.GetByID(ctx, storeID, *existing.PendingPaymentID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrPendingPaymentNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return pp, nil
}

// claim returns the ledger row for the callback, inserting it as pending when
// absent. A lost insert race reloads the winner's row.
func (s *ReconciliationService) claim(ctx context.Context, storeID uuid.UUID, cfg *providerconfig.Config, pp *pendingpayment.PendingPayment, cb providers.CallbackResult) (*transaction.Transaction, error) {
	txn, err := s.deps.Ledger.GetByProviderTransactionID(ctx, storeID, cfg.Provider, cb.ProviderTransactionID)
	if err == nil {
		return txn, nil
	}
	if !errors.Is(err, domainErrors.ErrTransactionNotFound) {
		return nil, err
	}

	amount := pp.Snapshot.ExpectedTotal()
	if cb.Amount.Valid {
		amount = cb.Amount.Decimal
	}
	currency := cb.Currency
	if currency == "" {
		currency = pp.Snapshot.Currency
	}
	txn, err = transaction.NewCharge(storeID, pp.ID, cfg.ID, cfg.Provider, cb.ProviderTransactionID, amount, currency, cb.Raw)
	if err != nil {
		return nil, err
	}

	err = s.deps.Ledger.Create(ctx, txn)
	if errors.Is(err, domainErrors.ErrDuplicateTransaction) {
		return s.deps.Ledger.GetByProviderTransactionID(ctx, storeID, cfg.Provider, cb.ProviderTransactionID)
	}
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// absorbDuplicate fills gateway-only fields on an already-terminal entry and
// on the payment it confirmed. It never re-confirms or re-counts.
func (s *ReconciliationService) absorbDuplicate(ctx context.Context, storeID uuid.UUID, txn *transaction.Transaction, cb providers.CallbackResult) (bool, error) {
	g := gatewayFields(cb)
	if txn.MergeGatewayFields(g) {
		if err := s.deps.Ledger.MergeGatewayFields(ctx, txn.ID, g); err != nil {
			return false, err
		}
	}
	if txn.PendingPaymentID == nil {
		return false, nil
	}

	pp, err := s.deps.Pending.GetByID(ctx, storeID, *txn.PendingPaymentID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrPendingPaymentNotFound) {
			return false, nil
		}
		return false, err
	}
	if pp.Status != pendingpayment.StatusConfirmed || pp.PaymentDetails == nil {
		return false, nil
	}
	if txn.Status == transaction.StatusSuccess && pp.PaymentDetails.ProviderTransactionID == txn.ProviderTransactionID {
		details := pendingpayment.PaymentDetails{
			ApprovalNumber: g.ApprovalNumber,
			CardBrand:      g.CardBrand,
			CardLastFour:   g.CardLastFour,
		}
		if pp.EnrichDetails(details) {
			if err := s.deps.Pending.EnrichDetails(ctx, pp.ID, details); err != nil {
				return true, err
			}
		}
	}
	return true, nil
}

// amountMismatch compares the claimed charge with the total recomputed from
// the snapshot. It returns "" when they agree.
func (s *ReconciliationService) amountMismatch(pp *pendingpayment.PendingPayment, cb providers.CallbackResult) string {
	expected := pp.Snapshot.ExpectedTotal()
	if !cb.Amount.Valid {
		return "callback carries no amount, expected " + expected.StringFixed(2)
	}
	if cb.Currency != "" && cb.Currency != pp.Snapshot.Currency {
		return fmt.Sprintf("charged currency %s, expected %s", cb.Currency, pp.Snapshot.Currency)
	}
	if !money.Within(expected, cb.Amount.Decimal, s.policy.AmountTolerance) {
		return fmt.Sprintf("charged %s, expected %s", cb.Amount.Decimal.StringFixed(2), expected.StringFixed(2))
	}
	return ""
}

// apply performs the single legal ledger transition and, for a success, the
// confirmation and its detached tasks, all in one database transaction.
func (s *ReconciliationService) apply(
	ctx context.Context,
	txn *transaction.Transaction,
	pp *pendingpayment.PendingPayment,
	cb providers.CallbackResult,
	fin transaction.Finalization,
) (Outcome, string, bool, error) {
	outcome := OutcomeApplied
	reason := "transaction " + string(fin.Status)
	confirmed := false

	err := s.deps.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := s.deps.Ledger.Finalize(txCtx, txn.ID, fin)
		if err != nil {
			return err
		}
		if !ok {
			outcome, reason = OutcomeAlreadyProcessed, "transaction finalized concurrently"
			return nil
		}

		if fin.Status != transaction.StatusSuccess {
			if _, err := s.deps.Pending.MarkFailed(txCtx, pp.ID, fin.ProcessedAt); err != nil {
				return err
			}
			return nil
		}

		details := pendingpayment.PaymentDetails{
			Provider:              txn.Provider,
			ProviderTransactionID: txn.ProviderTransactionID,
			ApprovalNumber:        fin.Gateway.ApprovalNumber,
			CardBrand:             fin.Gateway.CardBrand,
			CardLastFour:          fin.Gateway.CardLastFour,
		}
		ok, err = s.deps.Pending.Confirm(txCtx, pp.ID, details, fin.ProcessedAt)
		if err != nil {
			return err
		}
		if !ok {
			current, err := s.deps.Pending.GetByID(txCtx, pp.StoreID, pp.ID)
			if err != nil {
				return err
			}
			status := string(current.Status)
			if current.Status == pendingpayment.StatusPending {
				status = "expired"
			}
			outcome, reason = OutcomeMatchFailure, "pending payment "+status
			return nil
		}
		confirmed = true

		amount := txn.Amount
		if !fin.Amount.IsZero() {
			amount = fin.Amount
		}
		payload := map[string]any{
			"transaction_id":     txn.ID.String(),
			"pending_payment_id": pp.ID.String(),
			"store_id":           pp.StoreID.String(),
			"provider_config_id": txn.ProviderConfigID.String(),
			"provider":           txn.Provider,
			"amount":             amount.String(),
			"currency":           txn.Currency,
		}
		for _, event := range []string{outbox.EventProviderCountersIncrement, outbox.EventPaymentConfirmed} {
			if err := s.deps.Outbox.Insert(txCtx, outbox.NewEntry(outbox.AggregatePendingPayment, pp.ID, event, payload)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", "", false, err
	}

	if outcome == OutcomeMatchFailure {
		s.deps.Logger.Error().
			Str("pending_payment_id", pp.ID.String()).
			Str("provider", txn.Provider).
			Str("provider_txn_id", txn.ProviderTransactionID).
			Str("reason", reason).
			Msg("charge captured for a pending payment that can no longer be confirmed, manual refund required")
	}
	return outcome, reason, confirmed, nil
}

func gatewayFields(cb providers.CallbackResult) transaction.GatewayFields {
	return transaction.GatewayFields{
		ApprovalNumber: cb.ApprovalNumber,
		CardBrand:      cb.CardBrand,
		CardLastFour:   cb.CardLastFour,
	}
}

func (s *ReconciliationService) logOutcome(logger zerolog.Logger, res *ReconcileResult) {
	var ev *zerolog.Event
	switch res.Outcome {
	case OutcomeApplied, OutcomeAlreadyProcessed, OutcomeIgnored:
		ev = logger.Info()
	case OutcomeAmountMismatch, OutcomeAuthenticationFailure:
		ev = logger.Error()
	default:
		ev = logger.Warn()
	}
	if res.PendingPaymentID != nil {
		ev = ev.Str("pending_payment_id", res.PendingPaymentID.String())
	}
	ev.Str("outcome", string(res.Outcome)).
		Str("reason", res.Reason).
		Str("provider_txn_id", res.Callback.ProviderTransactionID).
		Msg("callback reconciled")
}

// record writes the callback log. A failure here never changes the outcome.
func (s *ReconciliationService) record(ctx context.Context, logger zerolog.Logger, in InboundCallback, res *ReconcileResult) {
	if s.deps.CallbackLogs == nil {
		return
	}
	raw := res.Callback.Raw
	if len(raw) == 0 && in.Channel == callbacklog.ChannelWebhook {
		raw = in.Body
	}
	entry := &callbacklog.Entry{
		ID:                    uuid.New(),
		StoreSlug:             in.StoreSlug,
		Provider:              in.Provider,
		Channel:               in.Channel,
		Outcome:               string(res.Outcome),
		Reason:                res.Reason,
		ProviderTransactionID: res.Callback.ProviderTransactionID,
		PendingPaymentID:      res.PendingPaymentID,
		Raw:                   raw,
		ReceivedAt:            s.now(),
	}
	if err := s.deps.CallbackLogs.Insert(context.WithoutCancel(ctx), entry); err != nil {
		logger.Warn().Err(err).Msg("failed to record callback log")
	}
}
