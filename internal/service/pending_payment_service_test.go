package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/domain/pendingpayment"
	"github.com/cassiomorais/storepay/internal/domain/store"
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

func setupPendingPayments() (*PendingPaymentService, *testutil.MockPendingPaymentRepository, *store.Store, *observability.Metrics) {
	st := testutil.NewTestStore("acme")
	repo := testutil.NewMockPendingPaymentRepository()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	svc := NewPendingPaymentService(repo, testutil.NewMockStoreRepository(st), metrics, zerolog.Nop(), 0)
	return svc, repo, st, metrics
}

func TestPendingPayment_Create(t *testing.T) {
	svc, _, st, metrics := setupPendingPayments()

	snapshot := testutil.NewTestSnapshot("ORD-1", "40.00")
	snapshot.Shipping = decimal.NewFromInt(5)
	snapshot.Total = decimal.NewFromInt(1) // ignored

	p, err := svc.Create(context.Background(), CreatePendingPaymentRequest{
		StoreID:       st.ID,
		Provider:      " Mock ",
		CorrelationID: "corr-1",
		Snapshot:      snapshot,
	})
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Provider)
	assert.Equal(t, pendingpayment.StatusPending, p.Status)
	assert.True(t, p.Snapshot.Total.Equal(decimal.NewFromInt(45)))
	require.NotNil(t, p.CorrelationID)
	assert.Equal(t, "corr-1", *p.CorrelationID)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), p.ExpiresAt, 5*time.Second)
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.PendingPaymentsCreated))
}

func TestPendingPayment_CreateValidation(t *testing.T) {
	svc, _, st, _ := setupPendingPayments()

	_, err := svc.Create(context.Background(), CreatePendingPaymentRequest{StoreID: uuid.New(), Snapshot: testutil.NewTestSnapshot("", "1.00")})
	assert.ErrorIs(t, err, domainErrors.ErrStoreNotFound)

	empty := testutil.NewTestSnapshot("", "1.00")
	empty.Items = nil
	_, err = svc.Create(context.Background(), CreatePendingPaymentRequest{StoreID: st.ID, Snapshot: empty})
	var ve *domainErrors.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestPendingPayment_CreateInactiveStore(t *testing.T) {
	st := testutil.NewTestStore("closed")
	st.IsActive = false
	svc := NewPendingPaymentService(testutil.NewMockPendingPaymentRepository(), testutil.NewMockStoreRepository(st), nil, zerolog.Nop(), time.Minute)

	_, err := svc.Create(context.Background(), CreatePendingPaymentRequest{StoreID: st.ID, Snapshot: testutil.NewTestSnapshot("", "1.00")})
	assert.ErrorIs(t, err, domainErrors.ErrStoreInactive)
}

func TestPendingPayment_AttachCorrelation(t *testing.T) {
	svc, repo, st, _ := setupPendingPayments()
	p := testutil.NewTestPendingPayment(st.ID, "ORD-2", "10.00", time.Hour)
	require.NoError(t, repo.Create(context.Background(), p))

	_, err := svc.AttachCorrelation(context.Background(), st.ID, p.ID, "  ")
	var ve *domainErrors.ValidationError
	assert.ErrorAs(t, err, &ve)

	got, err := svc.AttachCorrelation(context.Background(), st.ID, p.ID, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "sess_1", *got.CorrelationID)

	_, err = svc.AttachCorrelation(context.Background(), st.ID, p.ID, "sess_1")
	assert.NoError(t, err, "re-attaching the same id is a no-op")

	_, err = svc.AttachCorrelation(context.Background(), st.ID, p.ID, "sess_2")
	assert.ErrorIs(t, err, domainErrors.ErrCorrelationConflict)
}

func confirmPending(t *testing.T, repo *testutil.MockPendingPaymentRepository, p *pendingpayment.PendingPayment) {
	t.Helper()
	ok, err := repo.Confirm(context.Background(), p.ID, pendingpayment.PaymentDetails{Provider: "mock", ProviderTransactionID: "pi"}, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPendingPayment_ConsumeExactlyOnce(t *testing.T) {
	svc, repo, st, _ := setupPendingPayments()
	p := testutil.NewTestPendingPayment(st.ID, "ORD-3", "10.00", time.Hour)
	require.NoError(t, repo.Create(context.Background(), p))
	confirmPending(t, repo, p)

	confirmed, err := svc.ListConfirmed(context.Background(), st.ID, 10)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Consume(context.Background(), st.ID, p.ID); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, domainErrors.ErrAlreadyConsumed)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	confirmed, err = svc.ListConfirmed(context.Background(), st.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, confirmed)
}

func TestPendingPayment_ConsumeRequiresConfirmation(t *testing.T) {
	svc, repo, st, _ := setupPendingPayments()
	p := testutil.NewTestPendingPayment(st.ID, "ORD-4", "10.00", time.Hour)
	require.NoError(t, repo.Create(context.Background(), p))

	_, err := svc.Consume(context.Background(), st.ID, p.ID)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)

	_, err = svc.Consume(context.Background(), st.ID, uuid.New())
	assert.ErrorIs(t, err, domainErrors.ErrPendingPaymentNotFound)
}

func TestPendingPayment_ExpireDue(t *testing.T) {
	svc, repo, st, metrics := setupPendingPayments()
	stale := testutil.NewTestPendingPayment(st.ID, "ORD-5", "10.00", time.Minute)
	fresh := testutil.NewTestPendingPayment(st.ID, "ORD-6", "10.00", time.Hour)
	require.NoError(t, repo.Create(context.Background(), stale))
	require.NoError(t, repo.Create(context.Background(), fresh))
	svc.now = func() time.Time { return time.Now().UTC().Add(10 * time.Minute) }

	n, err := svc.ExpireDue(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, pendingpayment.StatusExpired, repo.Get(stale.ID).Status)
	assert.Equal(t, pendingpayment.StatusPending, repo.Get(fresh.ID).Status)
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.PendingPaymentsExpired))

	n, err = svc.ExpireDue(context.Background(), 100)
	require.NoError(t, err)
	assert.Zero(t, n)
}
