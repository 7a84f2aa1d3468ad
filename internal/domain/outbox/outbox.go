package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Event types relayed to the detached task stream after a payment is applied.
const (
	EventProviderCountersIncrement = "provider_counters.increment"
	EventPaymentConfirmed          = "payment.confirmed"
)

// AggregatePendingPayment is the aggregate type for reconciliation side effects.
const AggregatePendingPayment = "pending_payment"

// Entry is a side effect written in the same database transaction as the
// state change that caused it.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       map[string]any
	Status        Status
	RetryCount    int
	MaxRetries    int
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

func NewEntry(aggregateType string, aggregateID uuid.UUID, eventType string, payload map[string]any) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Status:        StatusPending,
		MaxRetries:    5,
		CreatedAt:     time.Now().UTC(),
	}
}

// Exhausted reports whether the relay should stop retrying the entry.
func (e *Entry) Exhausted() bool {
	return e.RetryCount >= e.MaxRetries
}
