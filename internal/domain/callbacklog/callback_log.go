package callbacklog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Channel is how the gateway reached us.
type Channel string

const (
	ChannelWebhook  Channel = "webhook"
	ChannelRedirect Channel = "redirect"
)

// Entry records one inbound callback for manual investigation.
type Entry struct {
	ID                    uuid.UUID
	StoreSlug             string
	Provider              string
	Channel               Channel
	Outcome               string
	Reason                string
	ProviderTransactionID string
	PendingPaymentID      *uuid.UUID
	Raw                   []byte
	ReceivedAt            time.Time
}

type Repository interface {
	Insert(ctx context.Context, e *Entry) error
}
