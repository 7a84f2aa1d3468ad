package redis

import (
	"context"

	"github.com/cassiomorais/storepay/internal/service"
)

// TaskAdapter adapts StreamProducer to the service-layer TaskPublisher interface.
type TaskAdapter struct {
	producer *StreamProducer
}

func NewTaskAdapter(producer *StreamProducer) *TaskAdapter {
	return &TaskAdapter{producer: producer}
}

// Publish converts a service-layer task to a stream message and appends it.
func (a *TaskAdapter) Publish(ctx context.Context, task service.DetachedTask) error {
	return a.producer.Publish(ctx, TaskMessage{
		EventID:     task.EventID,
		EventType:   task.EventType,
		AggregateID: task.AggregateID,
		Payload:     task.Payload,
		Attempt:     task.Attempt,
	})
}

// ToTask converts a decoded stream message back to a service-layer task.
func ToTask(msg TaskMessage) service.DetachedTask {
	return service.DetachedTask{
		EventID:     msg.EventID,
		EventType:   msg.EventType,
		AggregateID: msg.AggregateID,
		Payload:     msg.Payload,
		Attempt:     msg.Attempt,
	}
}
