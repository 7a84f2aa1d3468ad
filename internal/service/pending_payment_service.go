package service

import (
	"context"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/domain/pendingpayment"
	"github.com/cassiomorais/storepay/internal/domain/store"
	"github.com/cassiomorais/storepay/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PendingPaymentService owns the checkout-attempt lifecycle outside of
// reconciliation: intake, correlation, consumption and expiry.
type PendingPaymentService struct {
	repo       pendingpayment.Repository
	stores     store.Repository
	metrics    *observability.Metrics
	logger     zerolog.Logger
	defaultTTL time.Duration
	now        func() time.Time
}

func NewPendingPaymentService(
	repo pendingpayment.Repository,
	stores store.Repository,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	defaultTTL time.Duration,
) *PendingPaymentService {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Minute
	}
	return &PendingPaymentService{
		repo:       repo,
		stores:     stores,
		metrics:    metrics,
		logger:     logger,
		defaultTTL: defaultTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreatePendingPaymentRequest holds the checkout snapshot handed over by the
// checkout collaborator.
type CreatePendingPaymentRequest struct {
	StoreID       uuid.UUID
	Provider      string
	CorrelationID string
	Snapshot      pendingpayment.Snapshot
	TTL           time.Duration
}

// Create registers a checkout attempt. The expected total is recomputed from
// the line items; totals supplied by the caller are ignored.
func (s *PendingPaymentService) Create(ctx context.Context, req CreatePendingPaymentRequest) (*pendingpayment.PendingPayment, error) {
	st, err := s.stores.GetByID(ctx, req.StoreID)
	if err != nil {
		return nil, err
	}
	if !st.IsActive {
		return nil, domainErrors.ErrStoreInactive
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	p, err := pendingpayment.New(st.ID, strings.ToLower(strings.TrimSpace(req.Provider)), req.Snapshot, ttl)
	if err != nil {
		return nil, err
	}
	if c := strings.TrimSpace(req.CorrelationID); c != "" {
		p.CorrelationID = &c
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.PendingPaymentsCreated.Inc()
	}
	s.logger.Info().
		Str("store_id", st.ID.String()).
		Str("pending_payment_id", p.ID.String()).
		Str("total", p.Snapshot.Total.String()).
		Msg("pending payment created")
	return p, nil
}

func (s *PendingPaymentService) Get(ctx context.Context, storeID, id uuid.UUID) (*pendingpayment.PendingPayment, error) {
	return s.repo.GetByID(ctx, storeID, id)
}

// AttachCorrelation binds the gateway-issued id once the gateway assigns it.
// Re-attaching the same id is a no-op.
func (s *PendingPaymentService) AttachCorrelation(ctx context.Context, storeID, id uuid.UUID, correlationID string) (*pendingpayment.PendingPayment, error) {
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return nil, domainErrors.NewValidationError("correlation_id", "cannot be empty")
	}
	if err := s.repo.AttachCorrelationID(ctx, storeID, id, correlationID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, storeID, id)
}

// ListConfirmed returns confirmed payments the order collaborator has not
// consumed yet.
func (s *PendingPaymentService) ListConfirmed(ctx context.Context, storeID uuid.UUID, limit int) ([]*pendingpayment.PendingPayment, error) {
	return s.repo.ListConfirmed(ctx, storeID, limit)
}

// Consume marks a confirmed payment as turned into an order. Only the first
// call succeeds.
func (s *PendingPaymentService) Consume(ctx context.Context, storeID, id uuid.UUID) (*pendingpayment.PendingPayment, error) {
	ok, err := s.repo.MarkConsumed(ctx, storeID, id, s.now())
	if err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, storeID, id)
	if err != nil {
		return nil, err
	}
	if ok {
		return p, nil
	}
	if p.Status != pendingpayment.StatusConfirmed {
		return nil, domainErrors.NewDomainError(
			"not_confirmed",
			"pending payment is "+string(p.Status),
			domainErrors.ErrInvalidStateTransition,
		)
	}
	return nil, domainErrors.ErrAlreadyConsumed
}

// ExpireDue moves overdue pending payments to expired, one batch per call.
func (s *PendingPaymentService) ExpireDue(ctx context.Context, batchSize int) (int, error) {
	ids, err := s.repo.ExpireDue(ctx, s.now(), batchSize)
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		if s.metrics != nil {
			s.metrics.PendingPaymentsExpired.Add(float64(len(ids)))
		}
		s.logger.Info().Int("count", len(ids)).Msg("expired pending payments")
	}
	return len(ids), nil
}

