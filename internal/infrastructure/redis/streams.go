package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cassiomorais/storepay/pkg/retry"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DetachedStream = "payments:detached"
	DLQStream      = "payments:dlq"
)

// TaskMessage is one detached task relayed from the outbox.
type TaskMessage struct {
	ID          string
	EventID     uuid.UUID
	EventType   string
	AggregateID uuid.UUID
	Payload     map[string]any
	Attempt     int
}

type StreamProducer struct {
	client redis.Cmdable
	stream string
	retry  retry.Config
}

func NewStreamProducer(client redis.Cmdable, stream string) *StreamProducer {
	if stream == "" {
		stream = DetachedStream
	}
	return &StreamProducer{
		client: client,
		stream: stream,
		retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
		},
	}
}

// Publish appends a task to the detached stream.
func (p *StreamProducer) Publish(ctx context.Context, msg TaskMessage) error {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event_id":     msg.EventID.String(),
			"event_type":   msg.EventType,
			"aggregate_id": msg.AggregateID.String(),
			"payload":      string(payload),
			"attempt":      msg.Attempt,
			"timestamp":    time.Now().Unix(),
		},
	}

	err = retry.Do(ctx, p.retry, func() error {
		return p.client.XAdd(ctx, args).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish task: %w", err)
	}
	return nil
}

// PublishToDLQ parks a task that could not be executed.
func (p *StreamProducer) PublishToDLQ(ctx context.Context, msg TaskMessage, reason string) error {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ data: %w", err)
	}

	_, err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: DLQStream,
		Values: map[string]any{
			"event_id":     msg.EventID.String(),
			"event_type":   msg.EventType,
			"aggregate_id": msg.AggregateID.String(),
			"reason":       reason,
			"payload":      string(payload),
			"timestamp":    time.Now().Unix(),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}
	return nil
}

// DecodeTask converts a raw stream entry into a TaskMessage.
func DecodeTask(msg redis.XMessage) (TaskMessage, error) {
	str := func(k string) string {
		v, _ := msg.Values[k].(string)
		return v
	}

	task := TaskMessage{ID: msg.ID, EventType: str("event_type")}
	if task.EventType == "" {
		return task, errors.New("task message has no event_type")
	}

	var err error
	if task.EventID, err = uuid.Parse(str("event_id")); err != nil {
		return task, fmt.Errorf("invalid event_id: %w", err)
	}
	if task.AggregateID, err = uuid.Parse(str("aggregate_id")); err != nil {
		return task, fmt.Errorf("invalid aggregate_id: %w", err)
	}
	if raw := str("payload"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &task.Payload); err != nil {
			return task, fmt.Errorf("invalid payload: %w", err)
		}
	}
	if a := str("attempt"); a != "" {
		task.Attempt, _ = strconv.Atoi(a)
	}
	return task, nil
}

type StreamConsumer struct {
	client        redis.Cmdable
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client redis.Cmdable,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) Stream() string {
	return c.stream
}

// CreateGroup creates the consumer group, and the stream with it.
func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read blocks for new messages delivered to this consumer.
func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var out []redis.XMessage
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// ClaimStale takes over messages another consumer read but never acknowledged.
func (c *StreamConsumer) ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error) {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    c.batchSize,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim messages: %w", err)
	}
	return msgs, nil
}
