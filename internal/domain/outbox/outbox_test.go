package outbox

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntry(t *testing.T) {
	aggregateID := uuid.New()
	payload := map[string]any{
		"transaction_id": uuid.New().String(),
		"amount":         "150.00",
		"currency":       "USD",
	}

	entry := NewEntry(AggregatePendingPayment, aggregateID, EventProviderCountersIncrement, payload)

	require.NotNil(t, entry)
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, AggregatePendingPayment, entry.AggregateType)
	assert.Equal(t, aggregateID, entry.AggregateID)
	assert.Equal(t, EventProviderCountersIncrement, entry.EventType)
	assert.Equal(t, payload, entry.Payload)
	assert.Equal(t, StatusPending, entry.Status)
	assert.Equal(t, 0, entry.RetryCount)
	assert.Equal(t, 5, entry.MaxRetries)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Nil(t, entry.PublishedAt)
}

func TestNewEntry_EmptyPayload(t *testing.T) {
	entry := NewEntry(AggregatePendingPayment, uuid.New(), EventPaymentConfirmed, nil)

	require.NotNil(t, entry)
	assert.Nil(t, entry.Payload)
	assert.Equal(t, StatusPending, entry.Status)
}

func TestEntry_UniqueIDs(t *testing.T) {
	aggregateID := uuid.New()
	entry1 := NewEntry(AggregatePendingPayment, aggregateID, EventPaymentConfirmed, nil)
	entry2 := NewEntry(AggregatePendingPayment, aggregateID, EventPaymentConfirmed, nil)

	// same aggregate, distinct entries
	assert.NotEqual(t, entry1.ID, entry2.ID)
	assert.Equal(t, entry1.AggregateID, entry2.AggregateID)
}

func TestEntry_Exhausted(t *testing.T) {
	entry := NewEntry(AggregatePendingPayment, uuid.New(), EventPaymentConfirmed, nil)
	assert.False(t, entry.Exhausted())

	entry.RetryCount = 4
	assert.False(t, entry.Exhausted())

	entry.RetryCount = 5
	assert.True(t, entry.Exhausted())
}
