package redis

import (
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTask(t *testing.T) {
	eventID, aggID := uuid.New(), uuid.New()

	task, err := DecodeTask(redis.XMessage{
		ID: "1700000000000-0",
		Values: map[string]any{
			"event_id":     eventID.String(),
			"event_type":   "payment.confirmed",
			"aggregate_id": aggID.String(),
			"payload":      `{"store_id":"s1","amount":"10.00"}`,
			"attempt":      "2",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "1700000000000-0", task.ID)
	assert.Equal(t, eventID, task.EventID)
	assert.Equal(t, aggID, task.AggregateID)
	assert.Equal(t, "10.00", task.Payload["amount"])
	assert.Equal(t, 2, task.Attempt)

	converted := ToTask(task)
	assert.Equal(t, task.EventType, converted.EventType)
	assert.Equal(t, 2, converted.Attempt)
}

func TestDecodeTask_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
	}{
		{name: "missing event type", values: map[string]any{"event_id": uuid.NewString(), "aggregate_id": uuid.NewString()}},
		{name: "bad event id", values: map[string]any{"event_type": "x", "event_id": "nope", "aggregate_id": uuid.NewString()}},
		{name: "bad payload", values: map[string]any{"event_type": "x", "event_id": uuid.NewString(), "aggregate_id": uuid.NewString(), "payload": "{"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTask(redis.XMessage{ID: "1-0", Values: tt.values})
			assert.Error(t, err)
		})
	}
}
