package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cassiomorais/storepay/internal/domain/outbox"
	"github.com/cassiomorais/storepay/internal/domain/pendingpayment"
	"github.com/cassiomorais/storepay/internal/domain/providerconfig"
	"github.com/cassiomorais/storepay/internal/domain/store"
	"github.com/cassiomorais/storepay/internal/domain/transaction"
	"github.com/cassiomorais/storepay/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrPermanentTask marks a detached task that can never succeed, such as a
// malformed payload. It goes to the dead-letter stream without retries.
var ErrPermanentTask = errors.New("permanent task failure")

// DetachedTask is a post-confirmation side effect relayed from the outbox.
type DetachedTask struct {
	EventID     uuid.UUID
	EventType   string
	AggregateID uuid.UUID
	Payload     map[string]any
	Attempt     int
}

// DetachedTaskService executes side effects that must never block or fail a
// gateway acknowledgment: provider counters and confirmation mail.
type DetachedTaskService struct {
	ledger    transaction.Repository
	configs   providerconfig.Repository
	pending   pendingpayment.Repository
	stores    store.Repository
	txManager TransactionManager
	mailer    Mailer
	metrics   *observability.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewDetachedTaskService(
	ledger transaction.Repository,
	configs providerconfig.Repository,
	pending pendingpayment.Repository,
	stores store.Repository,
	txManager TransactionManager,
	mailer Mailer,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *DetachedTaskService {
	return &DetachedTaskService{
		ledger:    ledger,
		configs:   configs,
		pending:   pending,
		stores:    stores,
		txManager: txManager,
		mailer:    mailer,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes one task. Handling the same task twice is safe.
func (s *DetachedTaskService) Handle(ctx context.Context, task DetachedTask) error {
	var (
		result string
		err    error
	)
	switch task.EventType {
	case outbox.EventProviderCountersIncrement:
		result, err = s.incrementCounters(ctx, task)
	case outbox.EventPaymentConfirmed:
		result, err = s.sendConfirmation(ctx, task)
	default:
		err = fmt.Errorf("unknown event type %q: %w", task.EventType, ErrPermanentTask)
	}
	if err != nil {
		result = "error"
	}
	if s.metrics != nil {
		s.metrics.DetachedTasks.WithLabelValues(task.EventType, result).Inc()
	}
	return err
}

// incrementCounters adds one charge to the provider totals. counted_at on the
// ledger row makes the increment exactly-once across redeliveries.
func (s *DetachedTaskService) incrementCounters(ctx context.Context, task DetachedTask) (string, error) {
	txnID, err := payloadUUID(task.Payload, "transaction_id")
	if err != nil {
		return "", err
	}
	configID, err := payloadUUID(task.Payload, "provider_config_id")
	if err != nil {
		return "", err
	}
	amount, err := decimal.NewFromString(payloadString(task.Payload, "amount"))
	if err != nil {
		return "", fmt.Errorf("amount: %v: %w", err, ErrPermanentTask)
	}

	counted := false
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := s.ledger.MarkCounted(txCtx, txnID, s.now())
		if err != nil || !ok {
			return err
		}
		if err := s.configs.IncrementCounters(txCtx, configID, amount); err != nil {
			return err
		}
		counted = true
		return nil
	})
	if err != nil {
		return "", err
	}
	if !counted {
		s.logger.Debug().Str("transaction_id", txnID.String()).Msg("counters already applied")
		return "skipped", nil
	}
	return "applied", nil
}

func (s *DetachedTaskService) sendConfirmation(ctx context.Context, task DetachedTask) (string, error) {
	storeID, err := payloadUUID(task.Payload, "store_id")
	if err != nil {
		return "", err
	}
	pp, err := s.pending.GetByID(ctx, storeID, task.AggregateID)
	if err != nil {
		return "", err
	}
	st, err := s.stores.GetByID(ctx, storeID)
	if err != nil {
		return "", err
	}

	subject, body := confirmationMail(st, pp)
	sent := 0
	if to := strings.TrimSpace(pp.Snapshot.Customer.Email); to != "" {
		if err := s.mailer.Send(ctx, to, subject, body); err != nil {
			return "", err
		}
		sent++
	}
	if to := strings.TrimSpace(st.NotificationEmail); to != "" {
		if err := s.mailer.Send(ctx, to, "[store] "+subject, body); err != nil {
			return "", err
		}
		sent++
	}
	if sent == 0 {
		return "skipped", nil
	}
	return "sent", nil
}

func confirmationMail(st *store.Store, pp *pendingpayment.PendingPayment) (string, string) {
	ref := pp.Snapshot.OrderReference
	if ref == "" {
		ref = pp.ID.String()
	}
	subject := fmt.Sprintf("%s: payment received for %s", st.Name, ref)

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", firstNonBlank(pp.Snapshot.Customer.Name, "there"))
	fmt.Fprintf(&b, "We received your payment of %s %s.\n\n", pp.Snapshot.Total.StringFixed(2), pp.Snapshot.Currency)
	for _, item := range pp.Snapshot.Items {
		fmt.Fprintf(&b, "  %d x %s  %s\n", item.Quantity, item.Name, item.UnitPrice.StringFixed(2))
	}
	if d := pp.PaymentDetails; d != nil && d.CardLastFour != "" {
		fmt.Fprintf(&b, "\nPaid with %s ending in %s.\n", firstNonBlank(d.CardBrand, "card"), d.CardLastFour)
	}
	fmt.Fprintf(&b, "\nThank you for shopping at %s.\n", st.Name)
	return subject, b.String()
}

func payloadString(payload map[string]any, key string) string {
	v, _ := payload[key].(string)
	return v
}

func payloadUUID(payload map[string]any, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(payloadString(payload, key))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %v: %w", key, err, ErrPermanentTask)
	}
	return id, nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
