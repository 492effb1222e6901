package idempotency

import (
	"context"
	"errors"
	"time"
)

// ErrMessageAlreadyProcessed is returned when a message id was recorded by another delivery
var ErrMessageAlreadyProcessed = errors.New("message already processed")

// DefaultRetention is how long processed message ids are remembered
const DefaultRetention = 7 * 24 * time.Hour

// ProcessedMessage records a consumed CloudEvent for deduplication
type ProcessedMessage struct {
	MessageID     string    `bson:"messageId"`
	Topic         string    `bson:"topic"`
	EventType     string    `bson:"eventType"`
	ConsumerGroup string    `bson:"consumerGroup"`
	ServiceID     string    `bson:"serviceId"`
	ProcessedAt   time.Time `bson:"processedAt"`
	ExpiresAt     time.Time `bson:"expiresAt"`
	CorrelationID string    `bson:"correlationId,omitempty"`
}

// MessageRepository stores processed message ids
type MessageRepository interface {
	// MarkProcessed returns ErrMessageAlreadyProcessed on a duplicate
	MarkProcessed(ctx context.Context, msg *ProcessedMessage) error
	IsProcessed(ctx context.Context, messageID, topic, consumerGroup string) (bool, error)
}
