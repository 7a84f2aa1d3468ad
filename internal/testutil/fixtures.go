package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cassiomorais/storepay/internal/domain/order"
	"github.com/cassiomorais/storepay/internal/domain/pendingpayment"
	"github.com/cassiomorais/storepay/internal/domain/providerconfig"
	"github.com/cassiomorais/storepay/internal/domain/store"
	"github.com/cassiomorais/storepay/internal/domain/transaction"
	"github.com/cassiomorais/storepay/internal/providers"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockSecret is the shared secret of configurations built by NewTestProviderConfig.
const MockSecret = "test-secret"

func NewTestStore(slug string) *store.Store {
	return &store.Store{
		ID:                uuid.New(),
		Slug:              slug,
		Name:              "Store " + slug,
		NotificationEmail: "owner@" + slug + ".test",
		IsActive:          true,
		CreatedAt:         time.Now().UTC(),
	}
}

// NewTestProviderConfig returns an active mock gateway configuration.
func NewTestProviderConfig(storeID uuid.UUID) *providerconfig.Config {
	creds, _ := json.Marshal(map[string]string{"secret": MockSecret})
	now := time.Now().UTC()
	return &providerconfig.Config{
		ID:          uuid.New(),
		StoreID:     storeID,
		Provider:    providers.ProviderMock,
		DisplayName: "Mock",
		Credentials: creds,
		Settings:    map[string]any{"latency_ms": float64(0)},
		IsActive:    true,
		IsDefault:   true,
		TestMode:    true,
		TotalVolume: decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewTestSnapshot returns a one-line cart whose expected total is price.
func NewTestSnapshot(orderRef string, price string) pendingpayment.Snapshot {
	return pendingpayment.Snapshot{
		OrderReference: orderRef,
		Customer:       pendingpayment.Customer{Name: "Ada", Email: "ada@example.test"},
		Items: []pendingpayment.LineItem{
			{ProductID: "sku-1", Name: "Widget", Quantity: 1, UnitPrice: decimal.RequireFromString(price)},
		},
		Currency: "USD",
	}
}

// NewTestPendingPayment builds a pending payment expiring in ttl.
func NewTestPendingPayment(storeID uuid.UUID, orderRef, price string, ttl time.Duration) *pendingpayment.PendingPayment {
	p, err := pendingpayment.New(storeID, providers.ProviderMock, NewTestSnapshot(orderRef, price), ttl)
	if err != nil {
		panic(err)
	}
	return p
}

// NewSucceededCharge returns a successful charge for a pending payment.
func NewSucceededCharge(cfg *providerconfig.Config, pendingPaymentID uuid.UUID, providerTxnID, amount string) *transaction.Transaction {
	t, err := transaction.NewCharge(cfg.StoreID, pendingPaymentID, cfg.ID, cfg.Provider, providerTxnID,
		decimal.RequireFromString(amount), "USD", nil)
	if err != nil {
		panic(err)
	}
	now := time.Now().UTC()
	t.Status = transaction.StatusSuccess
	t.ProcessedAt = &now
	return t
}

func NewTestOrder(storeID, pendingPaymentID uuid.UUID, status order.FinancialStatus) *order.Order {
	now := time.Now().UTC()
	return &order.Order{
		ID:               uuid.New(),
		StoreID:          storeID,
		PendingPaymentID: pendingPaymentID,
		FinancialStatus:  status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func UUIDPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

// StubAdapter is a gateway adapter with scripted refunds. It accepts every
// callback and parses nothing.
type StubAdapter struct {
	mu          sync.Mutex
	refundCalls []providers.RefundRequest

	RefundFunc func(ctx context.Context, req providers.RefundRequest) (*providers.RefundResult, error)
}

func (a *StubAdapter) Name() string { return providers.ProviderMock }
func (a *StubAdapter) Configure(providers.Config) error { return nil }
func (a *StubAdapter) ValidateWebhook([]byte, http.Header) error { return nil }
func (a *StubAdapter) ParseCallback(body []byte) providers.CallbackResult {
	return providers.CallbackResult{Raw: body}
}

func (a *StubAdapter) Refund(ctx context.Context, req providers.RefundRequest) (*providers.RefundResult, error) {
	a.mu.Lock()
	a.refundCalls = append(a.refundCalls, req)
	a.mu.Unlock()
	if a.RefundFunc != nil {
		return a.RefundFunc(ctx, req)
	}
	return &providers.RefundResult{
		Success:          true,
		ProviderRefundID: "re_" + uuid.NewString()[:8],
		Status:           providers.StatusSucceeded,
	}, nil
}

// RefundCalls returns the refund requests received so far.
func (a *StubAdapter) RefundCalls() []providers.RefundRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]providers.RefundRequest(nil), a.refundCalls...)
}
