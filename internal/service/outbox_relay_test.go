package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cassiomorais/storepay/internal/domain/outbox"
	"github.com/cassiomorais/storepay/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu    sync.Mutex
	tasks []DetachedTask
	fail  map[string]bool
}

func (p *recordingPublisher) Publish(ctx context.Context, task DetachedTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[task.EventType] {
		return errors.New("stream unavailable")
	}
	p.tasks = append(p.tasks, task)
	return nil
}

func TestOutboxRelay_RelayOnce(t *testing.T) {
	repo := &testutil.MockOutboxRepository{}
	ppID := uuid.New()
	payload := map[string]any{"transaction_id": uuid.NewString()}
	require.NoError(t, repo.Insert(context.Background(), outbox.NewEntry(outbox.AggregatePendingPayment, ppID, outbox.EventProviderCountersIncrement, payload)))
	require.NoError(t, repo.Insert(context.Background(), outbox.NewEntry(outbox.AggregatePendingPayment, ppID, outbox.EventPaymentConfirmed, payload)))

	pub := &recordingPublisher{fail: map[string]bool{outbox.EventPaymentConfirmed: true}}
	relay := NewOutboxRelay(repo, pub, testutil.NewMockTransactionManager(), zerolog.Nop())

	n, err := relay.RelayOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, pub.tasks, 1)
	assert.Equal(t, outbox.EventProviderCountersIncrement, pub.tasks[0].EventType)
	assert.Equal(t, ppID, pub.tasks[0].AggregateID)
	assert.Equal(t, payload, pub.tasks[0].Payload)

	entries := repo.Entries()
	assert.Equal(t, outbox.StatusPublished, entries[0].Status)
	assert.Equal(t, outbox.StatusPending, entries[1].Status)
	assert.Equal(t, 1, entries[1].RetryCount)

	// Nothing left but the failing entry; it is retried until exhausted.
	for i := 0; i < 10; i++ {
		_, err := relay.RelayOnce(context.Background(), 10)
		require.NoError(t, err)
	}
	assert.Equal(t, outbox.StatusFailed, repo.Entries()[1].Status)
	assert.Len(t, pub.tasks, 1)
}

func TestOutboxRelay_Cleanup(t *testing.T) {
	repo := &testutil.MockOutboxRepository{}
	e := outbox.NewEntry(outbox.AggregatePendingPayment, uuid.New(), outbox.EventPaymentConfirmed, nil)
	require.NoError(t, repo.Insert(context.Background(), e))
	require.NoError(t, repo.MarkPublished(context.Background(), e.ID))

	relay := NewOutboxRelay(repo, &recordingPublisher{}, testutil.NewMockTransactionManager(), zerolog.Nop())

	n, err := relay.Cleanup(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = relay.Cleanup(context.Background(), -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, repo.Entries())
}
