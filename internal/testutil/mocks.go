package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cassiomorais/storepay/internal/domain/callbacklog"
	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/domain/order"
	"github.com/cassiomorais/storepay/internal/domain/outbox"
	"github.com/cassiomorais/storepay/internal/domain/pendingpayment"
	"github.com/cassiomorais/storepay/internal/domain/providerconfig"
	"github.com/cassiomorais/storepay/internal/domain/store"
	"github.com/cassiomorais/storepay/internal/domain/transaction"
	"github.com/cassiomorais/storepay/internal/repository/postgres"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// The in-memory repositories below reproduce the conditional-update semantics
// of the Postgres repositories so concurrency tests exercise the same gates.
// Reads return copies; callers may mutate them freely.

// --- Store Repository Mock ---

type MockStoreRepository struct {
	mu     sync.Mutex
	stores map[uuid.UUID]*store.Store

	GetBySlugFunc func(ctx context.Context, slug string) (*store.Store, error)
	GetByIDFunc   func(ctx context.Context, id uuid.UUID) (*store.Store, error)
}

func NewMockStoreRepository(stores ...*store.Store) *MockStoreRepository {
	m := &MockStoreRepository{stores: make(map[uuid.UUID]*store.Store)}
	for _, s := range stores {
		m.Add(s)
	}
	return m
}

// Add stores a copy of s.
func (m *MockStoreRepository) Add(s *store.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.stores[s.ID] = &c
}

func (m *MockStoreRepository) GetBySlug(ctx context.Context, slug string) (*store.Store, error) {
	if m.GetBySlugFunc != nil {
		return m.GetBySlugFunc(ctx, slug)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stores {
		if s.Slug == slug {
			c := *s
			return &c, nil
		}
	}
	return nil, domainErrors.ErrStoreNotFound
}

func (m *MockStoreRepository) GetByID(ctx context.Context, id uuid.UUID) (*store.Store, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[id]
	if !ok {
		return nil, domainErrors.ErrStoreNotFound
	}
	c := *s
	return &c, nil
}

// --- Provider Config Repository Mock ---

type MockProviderConfigRepository struct {
	mu      sync.Mutex
	configs map[uuid.UUID]*providerconfig.Config

	GetActiveFunc         func(ctx context.Context, storeID uuid.UUID, provider string) (*providerconfig.Config, error)
	IncrementCountersFunc func(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
}

func NewMockProviderConfigRepository(configs ...*providerconfig.Config) *MockProviderConfigRepository {
	m := &MockProviderConfigRepository{configs: make(map[uuid.UUID]*providerconfig.Config)}
	for _, c := range configs {
		cp := *c
		m.configs[c.ID] = &cp
	}
	return m
}

func (m *MockProviderConfigRepository) Create(ctx context.Context, c *providerconfig.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.configs {
		if existing.StoreID == c.StoreID && existing.Provider == c.Provider {
			return domainErrors.ErrDuplicateProviderConfig
		}
	}
	cp := *c
	m.configs[c.ID] = &cp
	return nil
}

func (m *MockProviderConfigRepository) GetByID(ctx context.Context, storeID, id uuid.UUID) (*providerconfig.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[id]
	if !ok || c.StoreID != storeID {
		return nil, domainErrors.ErrProviderConfigNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockProviderConfigRepository) GetActive(ctx context.Context, storeID uuid.UUID, provider string) (*providerconfig.Config, error) {
	if m.GetActiveFunc != nil {
		return m.GetActiveFunc(ctx, storeID, provider)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.configs {
		if c.StoreID == storeID && c.Provider == provider && c.IsActive {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domainErrors.ErrProviderConfigNotFound
}

func (m *MockProviderConfigRepository) ListByStore(ctx context.Context, storeID uuid.UUID) ([]*providerconfig.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*providerconfig.Config
	for _, c := range m.configs {
		if c.StoreID == storeID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MockProviderConfigRepository) Update(ctx context.Context, c *providerconfig.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.configs[c.ID]
	if !ok || existing.StoreID != c.StoreID {
		return domainErrors.ErrProviderConfigNotFound
	}
	cp := *c
	cp.TotalTransactions = existing.TotalTransactions
	cp.TotalVolume = existing.TotalVolume
	m.configs[c.ID] = &cp
	return nil
}

func (m *MockProviderConfigRepository) SetDefault(ctx context.Context, storeID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.configs[id]
	if !ok || target.StoreID != storeID || !target.IsActive {
		return domainErrors.ErrProviderConfigNotFound
	}
	for _, c := range m.configs {
		if c.StoreID == storeID {
			c.IsDefault = c.ID == id
		}
	}
	return nil
}

func (m *MockProviderConfigRepository) Delete(ctx context.Context, storeID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[id]
	if !ok || c.StoreID != storeID {
		return domainErrors.ErrProviderConfigNotFound
	}
	delete(m.configs, id)
	return nil
}

func (m *MockProviderConfigRepository) IncrementCounters(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	if m.IncrementCountersFunc != nil {
		return m.IncrementCountersFunc(ctx, id, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[id]
	if !ok {
		return domainErrors.ErrProviderConfigNotFound
	}
	c.TotalTransactions++
	c.TotalVolume = c.TotalVolume.Add(amount)
	return nil
}

// Get returns a copy of the stored configuration (test helper).
func (m *MockProviderConfigRepository) Get(id uuid.UUID) *providerconfig.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

// --- Pending Payment Repository Mock ---

type MockPendingPaymentRepository struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*pendingpayment.PendingPayment

	ConfirmFunc func(ctx context.Context, id uuid.UUID, details pendingpayment.PaymentDetails, now time.Time) (bool, error)
}

func NewMockPendingPaymentRepository() *MockPendingPaymentRepository {
	return &MockPendingPaymentRepository{payments: make(map[uuid.UUID]*pendingpayment.PendingPayment)}
}

func clonePending(p *pendingpayment.PendingPayment) *pendingpayment.PendingPayment {
	c := *p
	if p.PaymentDetails != nil {
		d := *p.PaymentDetails
		c.PaymentDetails = &d
	}
	if p.CorrelationID != nil {
		id := *p.CorrelationID
		c.CorrelationID = &id
	}
	return &c
}

func (m *MockPendingPaymentRepository) Create(ctx context.Context, p *pendingpayment.PendingPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CorrelationID != nil {
		for _, existing := range m.payments {
			if existing.StoreID == p.StoreID && existing.CorrelationID != nil && *existing.CorrelationID == *p.CorrelationID {
				return domainErrors.ErrCorrelationConflict
			}
		}
	}
	m.payments[p.ID] = clonePending(p)
	return nil
}

func (m *MockPendingPaymentRepository) GetByID(ctx context.Context, storeID, id uuid.UUID) (*pendingpayment.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.StoreID != storeID {
		return nil, domainErrors.ErrPendingPaymentNotFound
	}
	return clonePending(p), nil
}

func (m *MockPendingPaymentRepository) GetByCorrelationID(ctx context.Context, storeID uuid.UUID, correlationID string) (*pendingpayment.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.StoreID == storeID && p.CorrelationID != nil && *p.CorrelationID == correlationID {
			return clonePending(p), nil
		}
	}
	return nil, domainErrors.ErrPendingPaymentNotFound
}

func (m *MockPendingPaymentRepository) ListRecentPending(ctx context.Context, storeID uuid.UUID, limit int) ([]*pendingpayment.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*pendingpayment.PendingPayment
	for _, p := range m.payments {
		if p.StoreID == storeID && p.Status == pendingpayment.StatusPending {
			out = append(out, clonePending(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockPendingPaymentRepository) AttachCorrelationID(ctx context.Context, storeID, id uuid.UUID, correlationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.StoreID != storeID {
		return domainErrors.ErrPendingPaymentNotFound
	}
	if p.CorrelationID != nil {
		if *p.CorrelationID == correlationID {
			return nil
		}
		return domainErrors.ErrCorrelationConflict
	}
	for _, other := range m.payments {
		if other.StoreID == storeID && other.CorrelationID != nil && *other.CorrelationID == correlationID {
			return domainErrors.ErrCorrelationConflict
		}
	}
	p.CorrelationID = &correlationID
	return nil
}

func (m *MockPendingPaymentRepository) Confirm(ctx context.Context, id uuid.UUID, details pendingpayment.PaymentDetails, now time.Time) (bool, error) {
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, id, details, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || !p.IsConfirmable(now) {
		return false, nil
	}
	details.ConfirmedAt = now
	p.Status = pendingpayment.StatusConfirmed
	p.PaymentDetails = &details
	p.UpdatedAt = now
	return true, nil
}

func (m *MockPendingPaymentRepository) MarkFailed(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.Status != pendingpayment.StatusPending {
		return false, nil
	}
	p.Status = pendingpayment.StatusFailed
	p.UpdatedAt = now
	return true, nil
}

func (m *MockPendingPaymentRepository) EnrichDetails(ctx context.Context, id uuid.UUID, details pendingpayment.PaymentDetails) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil
	}
	p.EnrichDetails(details)
	return nil
}

func (m *MockPendingPaymentRepository) ExpireDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for _, p := range m.payments {
		if limit > 0 && len(ids) >= limit {
			break
		}
		if p.Status == pendingpayment.StatusPending && p.IsExpired(now) {
			p.Status = pendingpayment.StatusExpired
			p.UpdatedAt = now
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

func (m *MockPendingPaymentRepository) ListConfirmed(ctx context.Context, storeID uuid.UUID, limit int) ([]*pendingpayment.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*pendingpayment.PendingPayment
	for _, p := range m.payments {
		if p.StoreID == storeID && p.Status == pendingpayment.StatusConfirmed && p.ConsumedAt == nil {
			out = append(out, clonePending(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockPendingPaymentRepository) MarkConsumed(ctx context.Context, storeID, id uuid.UUID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.StoreID != storeID || p.Status != pendingpayment.StatusConfirmed || p.ConsumedAt != nil {
		return false, nil
	}
	p.ConsumedAt = &now
	p.UpdatedAt = now
	return true, nil
}

// Get returns a copy of the stored pending payment (test helper).
func (m *MockPendingPaymentRepository) Get(id uuid.UUID) *pendingpayment.PendingPayment {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil
	}
	return clonePending(p)
}

// --- Transaction (ledger) Repository Mock ---

type MockTransactionRepository struct {
	mu           sync.Mutex
	transactions map[uuid.UUID]*transaction.Transaction
	order        []uuid.UUID

	CreateFunc func(ctx context.Context, t *transaction.Transaction) error
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{transactions: make(map[uuid.UUID]*transaction.Transaction)}
}

func cloneTransaction(t *transaction.Transaction) *transaction.Transaction {
	c := *t
	return &c
}

func (m *MockTransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.transactions {
		if existing.StoreID == t.StoreID && existing.Provider == t.Provider && existing.ProviderTransactionID == t.ProviderTransactionID {
			return domainErrors.ErrDuplicateTransaction
		}
	}
	m.transactions[t.ID] = cloneTransaction(t)
	m.order = append(m.order, t.ID)
	return nil
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil, domainErrors.ErrTransactionNotFound
	}
	return cloneTransaction(t), nil
}

func (m *MockTransactionRepository) GetByProviderTransactionID(ctx context.Context, storeID uuid.UUID, provider, providerTransactionID string) (*transaction.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transactions {
		if t.StoreID == storeID && t.Provider == provider && t.ProviderTransactionID == providerTransactionID {
			return cloneTransaction(t), nil
		}
	}
	return nil, domainErrors.ErrTransactionNotFound
}

func (m *MockTransactionRepository) Finalize(ctx context.Context, id uuid.UUID, f transaction.Finalization) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok || t.Status != transaction.StatusPending {
		return false, nil
	}
	if err := t.Finalize(f); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *MockTransactionRepository) MergeGatewayFields(ctx context.Context, id uuid.UUID, g transaction.GatewayFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.transactions[id]; ok {
		t.MergeGatewayFields(g)
	}
	return nil
}

func (m *MockTransactionRepository) GetSuccessfulCharge(ctx context.Context, pendingPaymentID uuid.UUID) (*transaction.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		t := m.transactions[m.order[i]]
		if t.Type == transaction.TypeCharge && t.Status == transaction.StatusSuccess &&
			t.PendingPaymentID != nil && *t.PendingPaymentID == pendingPaymentID {
			return cloneTransaction(t), nil
		}
	}
	return nil, domainErrors.ErrTransactionNotFound
}

func (m *MockTransactionRepository) SumSuccessfulRefunds(ctx context.Context, chargeID uuid.UUID) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, t := range m.transactions {
		if t.Type == transaction.TypeRefund && t.Status == transaction.StatusSuccess &&
			t.ParentTransactionID != nil && *t.ParentTransactionID == chargeID {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func (m *MockTransactionRepository) ListByPendingPayment(ctx context.Context, pendingPaymentID uuid.UUID) ([]*transaction.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*transaction.Transaction
	for _, id := range m.order {
		t := m.transactions[id]
		if t.PendingPaymentID != nil && *t.PendingPaymentID == pendingPaymentID {
			out = append(out, cloneTransaction(t))
		}
	}
	return out, nil
}

func (m *MockTransactionRepository) MarkCounted(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok || t.CountedAt != nil || t.Status != transaction.StatusSuccess {
		return false, nil
	}
	t.CountedAt = &now
	return true, nil
}

// All returns copies of every entry in insertion order (test helper).
func (m *MockTransactionRepository) All() []*transaction.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*transaction.Transaction, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, cloneTransaction(m.transactions[id]))
	}
	return out
}

// --- Order Repository Mock ---

type MockOrderRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*order.Order
}

func NewMockOrderRepository(orders ...*order.Order) *MockOrderRepository {
	m := &MockOrderRepository{orders: make(map[uuid.UUID]*order.Order)}
	for _, o := range orders {
		m.Add(o)
	}
	return m
}

func (m *MockOrderRepository) Add(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *o
	m.orders[o.ID] = &c
}

func (m *MockOrderRepository) GetByID(ctx context.Context, storeID, id uuid.UUID) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.StoreID != storeID {
		return nil, domainErrors.ErrOrderNotFound
	}
	c := *o
	return &c, nil
}

func (m *MockOrderRepository) TransitionFinancialStatus(ctx context.Context, id uuid.UUID, from, to order.FinancialStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.FinancialStatus != from {
		return false, nil
	}
	o.FinancialStatus = to
	o.UpdatedAt = time.Now().UTC()
	return true, nil
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Outbox Repository Mock ---

// MockOutboxRepository keeps entries in memory unless a Func override is set.
type MockOutboxRepository struct {
	mu      sync.Mutex
	entries []*outbox.Entry

	InsertFunc        func(ctx context.Context, entry *outbox.Entry) error
	GetPendingFunc    func(ctx context.Context, limit int) ([]*outbox.Entry, error)
	MarkPublishedFunc func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc    func(ctx context.Context, id uuid.UUID) error
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *entry
	m.entries = append(m.entries, &c)
	return nil
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if m.GetPendingFunc != nil {
		return m.GetPendingFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*outbox.Entry
	for _, e := range m.entries {
		if e.Status == outbox.StatusPending && (limit <= 0 || len(out) < limit) {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			now := time.Now().UTC()
			e.Status = outbox.StatusPublished
			e.PublishedAt = &now
		}
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.RetryCount++
			if e.Exhausted() {
				e.Status = outbox.StatusFailed
			}
		}
	}
	return nil
}

func (m *MockOutboxRepository) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*outbox.Entry
	var n int64
	for _, e := range m.entries {
		if e.Status == outbox.StatusPublished && e.PublishedAt != nil && e.PublishedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return n, nil
}

// Entries returns copies of all entries (test helper).
func (m *MockOutboxRepository) Entries() []*outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*outbox.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		c := *e
		out = append(out, &c)
	}
	return out
}

// --- Callback Log Repository Mock ---

type MockCallbackLogRepository struct {
	mu      sync.Mutex
	entries []*callbacklog.Entry
}

func (m *MockCallbackLogRepository) Insert(ctx context.Context, e *callbacklog.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *e
	m.entries = append(m.entries, &c)
	return nil
}

func (m *MockCallbackLogRepository) Entries() []*callbacklog.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*callbacklog.Entry(nil), m.entries...)
}

// --- Locker Mock ---

// MockLocker is an in-process lock table keyed like the Redis locker.
type MockLocker struct {
	mu   sync.Mutex
	held map[string]bool

	LockFunc func(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]bool)}
}

func (m *MockLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if m.LockFunc != nil {
		return m.LockFunc(ctx, key, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return nil, domainErrors.ErrLockAcquisitionFailed
	}
	m.held[key] = true
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
		return nil
	}, nil
}

// Hold marks key as held by someone else (test helper).
func (m *MockLocker) Hold(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[key] = true
}

// --- Mailer Mock ---

type SentMail struct {
	To      string
	Subject string
	Body    string
}

type MockMailer struct {
	mu   sync.Mutex
	sent []SentMail

	SendFunc func(ctx context.Context, to, subject, body string) error
}

func (m *MockMailer) Send(ctx context.Context, to, subject, body string) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, to, subject, body)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *MockMailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMail(nil), m.sent...)
}

// --- Idempotency Store Mock ---

type MockIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]*postgres.IdempotencyEntry

	GetFunc func(ctx context.Context, key string) (*postgres.IdempotencyEntry, error)
}

func NewMockIdempotencyStore() *MockIdempotencyStore {
	return &MockIdempotencyStore{entries: make(map[string]*postgres.IdempotencyEntry)}
}

func (m *MockIdempotencyStore) Get(ctx context.Context, key string) (*postgres.IdempotencyEntry, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || time.Now().After(e.ExpiresAt) {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *MockIdempotencyStore) Save(ctx context.Context, e *postgres.IdempotencyEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.entries[e.Key]; ok && time.Now().Before(cur.ExpiresAt) {
		return nil
	}
	cp := *e
	m.entries[e.Key] = &cp
	return nil
}

func (m *MockIdempotencyStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
