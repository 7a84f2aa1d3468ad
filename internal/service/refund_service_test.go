package service

import (
	"context"
	"errors"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/domain/order"
	"github.com/cassiomorais/storepay/internal/domain/providerconfig"
	"github.com/cassiomorais/storepay/internal/domain/transaction"
	"github.com/cassiomorais/storepay/internal/infrastructure/observability"
	"github.com/cassiomorais/storepay/internal/providers"
	"github.com/cassiomorais/storepay/internal/testutil"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Helpers ---

type refundFixture struct {
	svc     *RefundService
	cfg     *providerconfig.Config
	orders  *testutil.MockOrderRepository
	ledger  *testutil.MockTransactionRepository
	locker  *testutil.MockLocker
	adapter *testutil.StubAdapter
	metrics *observability.Metrics
	order   *order.Order
	charge  *transaction.Transaction
}

func setupRefund(t *testing.T, status order.FinancialStatus, chargeAmount string) *refundFixture {
	t.Helper()
	storeID := uuid.New()
	cfg := testutil.NewTestProviderConfig(storeID)
	pendingID := uuid.New()

	f := &refundFixture{
		cfg:     cfg,
		ledger:  testutil.NewMockTransactionRepository(),
		locker:  testutil.NewMockLocker(),
		adapter: &testutil.StubAdapter{},
		metrics: observability.NewMetrics("test", prometheus.NewRegistry()),
		order:   testutil.NewTestOrder(storeID, pendingID, status),
	}
	f.orders = testutil.NewMockOrderRepository(f.order)
	if chargeAmount != "" {
		f.charge = testutil.NewSucceededCharge(cfg, pendingID, "pi_charge", chargeAmount)
		require.NoError(t, f.ledger.Create(context.Background(), f.charge))
	}

	registry := providers.NewRegistry(providers.WithConstructor(providers.ProviderMock, func() providers.Adapter {
		return f.adapter
	}))
	f.svc = NewRefundService(
		f.orders,
		f.ledger,
		testutil.NewMockProviderConfigRepository(cfg),
		registry,
		testutil.NewMockTransactionManager(),
		f.locker,
		f.metrics,
		zerolog.Nop(),
		time.Second,
		time.Second,
	)
	return f
}

func (f *refundFixture) request(amount string) RefundRequest {
	req := RefundRequest{StoreID: f.order.StoreID, OrderID: f.order.ID, Reason: "customer request", RequestedBy: "op-1"}
	if amount != "" {
		req.Amount = decimal.NewNullDecimal(decimal.RequireFromString(amount))
	}
	return req
}

func (f *refundFixture) orderStatus(t *testing.T) order.FinancialStatus {
	t.Helper()
	o, err := f.orders.GetByID(context.Background(), f.order.StoreID, f.order.ID)
	require.NoError(t, err)
	return o.FinancialStatus
}

// --- Tests ---

func TestRefund_FullRefund(t *testing.T) {
	f := setupRefund(t, order.FinancialPaid, "150.00")

	resp, err := f.svc.Refund(context.Background(), f.request(""))
	require.NoError(t, err)
	assert.Equal(t, order.FinancialRefunded, resp.FinancialStatus)
	assert.True(t, resp.Refund.Amount.Equal(decimal.RequireFromString("150")))
	assert.True(t, resp.Remaining.IsZero())
	assert.Equal(t, order.FinancialRefunded, f.orderStatus(t))

	calls := f.adapter.RefundCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "pi_charge", calls[0].ProviderTransactionID)
	assert.Equal(t, "refund-"+f.charge.ID.String()+"-0", calls[0].IdempotencyKey)

	require.NotNil(t, resp.Refund.ParentTransactionID)
	assert.Equal(t, f.charge.ID, *resp.Refund.ParentTransactionID)
	assert.Len(t, f.ledger.All(), 2)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.RefundsTotal.WithLabelValues("mock", "success")))
}

func TestRefund_PartialThenRemainder(t *testing.T) {
	f := setupRefund(t, order.FinancialPaid, "100.00")

	resp, err := f.svc.Refund(context.Background(), f.request("30.00"))
	require.NoError(t, err)
	assert.Equal(t, order.FinancialPartiallyRefunded, resp.FinancialStatus)
	assert.True(t, resp.Remaining.Equal(decimal.RequireFromString("70")))

	_, err = f.svc.Refund(context.Background(), f.request("70.01"))
	assert.ErrorIs(t, err, domainErrors.ErrRefundExceedsPaid)

	resp, err = f.svc.Refund(context.Background(), f.request(""))
	require.NoError(t, err)
	assert.Equal(t, order.FinancialRefunded, resp.FinancialStatus)
	assert.True(t, resp.Refund.Amount.Equal(decimal.RequireFromString("70")))
	assert.True(t, resp.RefundedTotal.Equal(decimal.RequireFromString("100")))

	calls := f.adapter.RefundCalls()
	require.Len(t, calls, 2)
	assert.NotEqual(t, calls[0].IdempotencyKey, calls[1].IdempotencyKey)
}

func TestRefund_Preconditions(t *testing.T) {
	tests := []struct {
		name   string
		status order.FinancialStatus
		charge string
		amount string
		want   error
	}{
		{name: "pending order", status: order.FinancialPending, charge: "10.00", want: domainErrors.ErrRefundNotAllowed},
		{name: "voided order", status: order.FinancialVoided, charge: "10.00", want: domainErrors.ErrRefundNotAllowed},
		{name: "already refunded", status: order.FinancialRefunded, charge: "10.00", want: domainErrors.ErrRefundNotAllowed},
		{name: "no charge", status: order.FinancialPaid, want: domainErrors.ErrRefundNotAllowed},
		{name: "zero amount", status: order.FinancialPaid, charge: "10.00", amount: "0", want: domainErrors.ErrValidationFailed},
		{name: "exceeds paid", status: order.FinancialPaid, charge: "10.00", amount: "10.01", want: domainErrors.ErrRefundExceedsPaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupRefund(t, tt.status, tt.charge)

			_, err := f.svc.Refund(context.Background(), f.request(tt.amount))
			require.Error(t, err)
			if tt.want == domainErrors.ErrValidationFailed {
				var ve *domainErrors.ValidationError
				assert.ErrorAs(t, err, &ve)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Empty(t, f.adapter.RefundCalls(), "gateway must not be called")
			assert.Equal(t, tt.status, f.orderStatus(t))
		})
	}
}

func TestRefund_PendingChargeRejectedWithoutGatewayCall(t *testing.T) {
	f := setupRefund(t, order.FinancialPaid, "")
	charge, err := transaction.NewCharge(f.cfg.StoreID, f.order.PendingPaymentID, f.cfg.ID, "mock", "pi_pending",
		decimal.NewFromInt(10), "USD", nil)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Create(context.Background(), charge))

	_, err = f.svc.Refund(context.Background(), f.request(""))
	assert.ErrorIs(t, err, domainErrors.ErrRefundNotAllowed)
	assert.Empty(t, f.adapter.RefundCalls())
}

func TestRefund_UsesSuccessfulChargeWhenLaterAttemptFailed(t *testing.T) {
	f := setupRefund(t, order.FinancialPaid, "60.00")
	declined, err := transaction.NewCharge(f.cfg.StoreID, f.order.PendingPaymentID, f.cfg.ID, "mock", "pi_declined",
		decimal.NewFromInt(60), "USD", nil)
	require.NoError(t, err)
	declined.Status = transaction.StatusFailed
	declined.CreatedAt = f.charge.CreatedAt.Add(time.Minute)
	require.NoError(t, f.ledger.Create(context.Background(), declined))

	resp, err := f.svc.Refund(context.Background(), f.request(""))
	require.NoError(t, err)
	assert.Equal(t, f.charge.ID, resp.Charge.ID)
	assert.Equal(t, order.FinancialRefunded, resp.FinancialStatus)

	calls := f.adapter.RefundCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "pi_charge", calls[0].ProviderTransactionID)
}

func TestRefund_GatewayFailureLeavesNoMutation(t *testing.T) {
	f := setupRefund(t, order.FinancialPaid, "50.00")
	f.adapter.RefundFunc = func(ctx context.Context, req providers.RefundRequest) (*providers.RefundResult, error) {
		return &providers.RefundResult{Status: providers.StatusFailed, ErrorMessage: "charge already disputed"}, nil
	}

	_, err := f.svc.Refund(context.Background(), f.request(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, domainErrors.ErrGatewayFailure)

	var de *domainErrors.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "gateway_failure", de.Code)
	assert.Equal(t, "charge already disputed", de.Message)

	assert.Len(t, f.ledger.All(), 1, "no refund row")
	assert.Equal(t, order.FinancialPaid, f.orderStatus(t))
}

func TestRefund_GatewayError(t *testing.T) {
	f := setupRefund(t, order.FinancialPaid, "50.00")
	f.adapter.RefundFunc = func(ctx context.Context, req providers.RefundRequest) (*providers.RefundResult, error) {
		return nil, errors.New("connection refused")
	}

	_, err := f.svc.Refund(context.Background(), f.request(""))
	assert.ErrorIs(t, err, domainErrors.ErrGatewayFailure)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.CircuitBreakerRequests.WithLabelValues("mock", "failure")))
	assert.Equal(t, order.FinancialPaid, f.orderStatus(t))
}

func TestRefund_LockHeld(t *testing.T) {
	f := setupRefund(t, order.FinancialPaid, "50.00")
	f.locker.Hold("refund:" + f.order.ID.String())

	_, err := f.svc.Refund(context.Background(), f.request(""))
	assert.ErrorIs(t, err, domainErrors.ErrRefundInProgress)
	assert.Empty(t, f.adapter.RefundCalls())
}

func TestRefund_OrderNotFound(t *testing.T) {
	f := setupRefund(t, order.FinancialPaid, "50.00")

	_, err := f.svc.Refund(context.Background(), RefundRequest{StoreID: uuid.New(), OrderID: f.order.ID})
	assert.ErrorIs(t, err, domainErrors.ErrOrderNotFound)
}
