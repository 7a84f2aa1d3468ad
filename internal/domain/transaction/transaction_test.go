package transaction_test

import (
	"testing"
	"time"

	"github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCharge(t *testing.T) *transaction.Transaction {
	t.Helper()
	tx, err := transaction.NewCharge(uuid.New(), uuid.New(), uuid.New(), "mock", "pi_123",
		decimal.RequireFromString("150.00"), "USD", []byte(`{"id":"pi_123"}`))
	require.NoError(t, err)
	return tx
}

func TestNewCharge(t *testing.T) {
	tx := newCharge(t)

	assert.Equal(t, transaction.TypeCharge, tx.Type)
	assert.Equal(t, transaction.StatusPending, tx.Status)
	assert.Equal(t, "pi_123", tx.ProviderTransactionID)
	assert.NotNil(t, tx.PendingPaymentID)
	assert.Nil(t, tx.ParentTransactionID)
	assert.Nil(t, tx.ProcessedAt)
}

func TestNewCharge_Invalid(t *testing.T) {
	_, err := transaction.NewCharge(uuid.New(), uuid.New(), uuid.New(), "mock", "", decimal.NewFromInt(1), "USD", nil)
	assert.Error(t, err)

	_, err = transaction.NewCharge(uuid.New(), uuid.New(), uuid.New(), "", "pi_1", decimal.NewFromInt(1), "USD", nil)
	assert.Error(t, err)

	_, err = transaction.NewCharge(uuid.New(), uuid.New(), uuid.New(), "mock", "pi_1", decimal.NewFromInt(-1), "USD", nil)
	assert.Error(t, err)
}

func TestFinalize(t *testing.T) {
	tx := newCharge(t)
	now := time.Now()

	err := tx.Finalize(transaction.Finalization{
		Status:      transaction.StatusSuccess,
		Gateway:     transaction.GatewayFields{ApprovalNumber: "A-77", CardBrand: "visa", CardLastFour: "4242"},
		ProcessedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSuccess, tx.Status)
	require.NotNil(t, tx.ApprovalNumber)
	assert.Equal(t, "A-77", *tx.ApprovalNumber)
	require.NotNil(t, tx.ProcessedAt)
	assert.Equal(t, now, *tx.ProcessedAt)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("150")), "zero amount keeps recorded amount")

	err = tx.Finalize(transaction.Finalization{Status: transaction.StatusFailed, ProcessedAt: now})
	assert.ErrorIs(t, err, errors.ErrInvalidStateTransition)
	assert.Equal(t, transaction.StatusSuccess, tx.Status)
}

func TestFinalize_Failed(t *testing.T) {
	tx := newCharge(t)

	err := tx.Finalize(transaction.Finalization{
		Status:       transaction.StatusFailed,
		ErrorCode:    "card_declined",
		ErrorMessage: "Your card was declined.",
		ProcessedAt:  time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, tx.Status)
	require.NotNil(t, tx.ErrorCode)
	assert.Equal(t, "card_declined", *tx.ErrorCode)
	assert.True(t, tx.IsTerminal())
}

func TestCanTransitionTo(t *testing.T) {
	tx := &transaction.Transaction{Status: transaction.StatusPending}
	assert.True(t, tx.CanTransitionTo(transaction.StatusSuccess))
	assert.True(t, tx.CanTransitionTo(transaction.StatusFailed))
	assert.False(t, tx.CanTransitionTo(transaction.StatusPending))

	tx.Status = transaction.StatusSuccess
	assert.False(t, tx.CanTransitionTo(transaction.StatusFailed))

	tx.Status = transaction.StatusFailed
	assert.False(t, tx.CanTransitionTo(transaction.StatusSuccess))
}

func TestMergeGatewayFields(t *testing.T) {
	tx := newCharge(t)

	assert.False(t, tx.MergeGatewayFields(transaction.GatewayFields{}))
	assert.True(t, tx.MergeGatewayFields(transaction.GatewayFields{CardBrand: "visa"}))
	assert.True(t, tx.MergeGatewayFields(transaction.GatewayFields{ApprovalNumber: "A1", CardBrand: "amex"}))

	assert.Equal(t, "A1", *tx.ApprovalNumber)
	assert.Equal(t, "visa", *tx.CardBrand)
	assert.False(t, tx.MergeGatewayFields(transaction.GatewayFields{ApprovalNumber: "A2"}))
	assert.Equal(t, "A1", *tx.ApprovalNumber)
}

func TestNewRefund(t *testing.T) {
	charge := newCharge(t)

	_, err := transaction.NewRefund(charge, "re_1", decimal.NewFromInt(10), nil)
	assert.ErrorIs(t, err, errors.ErrRefundNotAllowed, "pending charge cannot be refunded")

	require.NoError(t, charge.Finalize(transaction.Finalization{Status: transaction.StatusSuccess, ProcessedAt: time.Now()}))

	refund, err := transaction.NewRefund(charge, "re_1", decimal.NewFromInt(10), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, transaction.TypeRefund, refund.Type)
	assert.Equal(t, transaction.StatusSuccess, refund.Status)
	require.NotNil(t, refund.ParentTransactionID)
	assert.Equal(t, charge.ID, *refund.ParentTransactionID)
	assert.Equal(t, charge.Currency, refund.Currency)
	assert.Equal(t, charge.PendingPaymentID, refund.PendingPaymentID)

	_, err = transaction.NewRefund(charge, "re_2", decimal.Zero, nil)
	assert.Error(t, err)

	_, err = transaction.NewRefund(refund, "re_3", decimal.NewFromInt(1), nil)
	assert.ErrorIs(t, err, errors.ErrRefundNotAllowed, "refund of a refund is rejected")
}
