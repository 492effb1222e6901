package outbox

import "context"

// Writer appends scan and undo notifications, usually inside the same
// transaction that changed the event log.
type Writer interface {
	SaveAll(ctx context.Context, events []*OutboxEvent) error
}

// Relay is the delivery side drained by Publisher.
type Relay interface {
	// FindUnpublished returns at most limit pending rows, oldest first.
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkPublished(ctx context.Context, eventID string) error
	// IncrementRetry records a failed delivery attempt.
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error
}

// Repository is the full outbox store.
type Repository interface {
	Writer
	Relay
}
