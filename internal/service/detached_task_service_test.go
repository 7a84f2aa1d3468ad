package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cassiomorais/storepay/internal/domain/outbox"
	"github.com/cassiomorais/storepay/internal/domain/pendingpayment"
	"github.com/cassiomorais/storepay/internal/domain/providerconfig"
	"github.com/cassiomorais/storepay/internal/domain/store"
	"github.com/cassiomorais/storepay/internal/domain/transaction"
	"github.com/cassiomorais/storepay/internal/infrastructure/observability"
	"github.com/cassiomorais/storepay/internal/testutil"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taskFixture struct {
	svc     *DetachedTaskService
	store   *store.Store
	cfg     *providerconfig.Config
	configs *testutil.MockProviderConfigRepository
	ledger  *testutil.MockTransactionRepository
	pending *testutil.MockPendingPaymentRepository
	mailer  *testutil.MockMailer
	metrics *observability.Metrics
	pp      *pendingpayment.PendingPayment
	charge  *transaction.Transaction
}

func setupDetachedTasks(t *testing.T) *taskFixture {
	t.Helper()
	st := testutil.NewTestStore("acme")
	cfg := testutil.NewTestProviderConfig(st.ID)
	f := &taskFixture{
		store:   st,
		cfg:     cfg,
		configs: testutil.NewMockProviderConfigRepository(cfg),
		ledger:  testutil.NewMockTransactionRepository(),
		pending: testutil.NewMockPendingPaymentRepository(),
		mailer:  &testutil.MockMailer{},
		metrics: observability.NewMetrics("test", prometheus.NewRegistry()),
	}

	f.pp = testutil.NewTestPendingPayment(st.ID, "ORD-77", "120.00", time.Hour)
	require.NoError(t, f.pending.Create(context.Background(), f.pp))
	ok, err := f.pending.Confirm(context.Background(), f.pp.ID, pendingpayment.PaymentDetails{
		Provider: "mock", ProviderTransactionID: "pi_77", CardBrand: "visa", CardLastFour: "4242",
	}, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)

	f.charge = testutil.NewSucceededCharge(cfg, f.pp.ID, "pi_77", "120.00")
	require.NoError(t, f.ledger.Create(context.Background(), f.charge))

	f.svc = NewDetachedTaskService(
		f.ledger,
		f.configs,
		f.pending,
		testutil.NewMockStoreRepository(st),
		testutil.NewMockTransactionManager(),
		f.mailer,
		f.metrics,
		zerolog.Nop(),
	)
	return f
}

func (f *taskFixture) task(eventType string) DetachedTask {
	return DetachedTask{
		EventID:     uuid.New(),
		EventType:   eventType,
		AggregateID: f.pp.ID,
		Payload: map[string]any{
			"transaction_id":     f.charge.ID.String(),
			"pending_payment_id": f.pp.ID.String(),
			"store_id":           f.store.ID.String(),
			"provider_config_id": f.cfg.ID.String(),
			"provider":           "mock",
			"amount":             "120.00",
			"currency":           "USD",
		},
	}
}

func TestDetachedTask_CountersAppliedOnce(t *testing.T) {
	f := setupDetachedTasks(t)
	task := f.task(outbox.EventProviderCountersIncrement)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.Handle(context.Background(), task))
	}

	cfg := f.configs.Get(f.cfg.ID)
	assert.Equal(t, int64(1), cfg.TotalTransactions)
	assert.True(t, cfg.TotalVolume.Equal(decimal.RequireFromString("120")))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.DetachedTasks.WithLabelValues(outbox.EventProviderCountersIncrement, "applied")))
	assert.Equal(t, 2.0, promtest.ToFloat64(f.metrics.DetachedTasks.WithLabelValues(outbox.EventProviderCountersIncrement, "skipped")))
}

func TestDetachedTask_CounterFailureIsRetryable(t *testing.T) {
	f := setupDetachedTasks(t)
	f.configs.IncrementCountersFunc = func(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
		return errors.New("deadlock detected")
	}

	err := f.svc.Handle(context.Background(), f.task(outbox.EventProviderCountersIncrement))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrPermanentTask)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.DetachedTasks.WithLabelValues(outbox.EventProviderCountersIncrement, "error")))
}

func TestDetachedTask_ConfirmationMail(t *testing.T) {
	f := setupDetachedTasks(t)

	require.NoError(t, f.svc.Handle(context.Background(), f.task(outbox.EventPaymentConfirmed)))

	sent := f.mailer.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "ada@example.test", sent[0].To)
	assert.Contains(t, sent[0].Subject, "ORD-77")
	assert.Contains(t, sent[0].Body, "120.00 USD")
	assert.Contains(t, sent[0].Body, "visa ending in 4242")
	assert.Equal(t, f.store.NotificationEmail, sent[1].To)
	assert.Contains(t, sent[1].Subject, "[store]")
}

func TestDetachedTask_MailFailureIsRetryable(t *testing.T) {
	f := setupDetachedTasks(t)
	f.mailer.SendFunc = func(ctx context.Context, to, subject, body string) error {
		return errors.New("smtp: 421 try again later")
	}

	err := f.svc.Handle(context.Background(), f.task(outbox.EventPaymentConfirmed))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrPermanentTask)
}

func TestDetachedTask_PermanentFailures(t *testing.T) {
	f := setupDetachedTasks(t)

	err := f.svc.Handle(context.Background(), f.task("inventory.reserve"))
	assert.ErrorIs(t, err, ErrPermanentTask)

	bad := f.task(outbox.EventProviderCountersIncrement)
	bad.Payload["transaction_id"] = "not-a-uuid"
	err = f.svc.Handle(context.Background(), bad)
	assert.ErrorIs(t, err, ErrPermanentTask)

	bad = f.task(outbox.EventProviderCountersIncrement)
	bad.Payload["amount"] = "lots"
	err = f.svc.Handle(context.Background(), bad)
	assert.ErrorIs(t, err, ErrPermanentTask)
}
