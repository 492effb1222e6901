package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fashion-supplychain/progress-service/internal/domain"
	"github.com/fashion-supplychain/progress-service/pkg/cloudevents"
	"github.com/fashion-supplychain/progress-service/pkg/kafka"
	pkgmongo "github.com/fashion-supplychain/progress-service/pkg/mongodb"
	"github.com/fashion-supplychain/progress-service/pkg/outbox"
	outboxMongo "github.com/fashion-supplychain/progress-service/pkg/outbox/mongodb"
)

// eventWriter turns domain events into outbox rows written inside the caller's transaction
type eventWriter struct {
	db           *mongo.Database
	outboxRepo   *outboxMongo.OutboxRepository
	eventFactory *cloudevents.EventFactory
}

func newEventWriter(db *mongo.Database, eventFactory *cloudevents.EventFactory, observer *pkgmongo.Observer) eventWriter {
	return eventWriter{
		db:           db,
		outboxRepo:   outboxMongo.NewOutboxRepository(db, observer),
		eventFactory: eventFactory,
	}
}

// transact runs write and saves events to the outbox in one session transaction
func (w eventWriter) transact(ctx context.Context, events []domain.DomainEvent, write func(sessCtx mongo.SessionContext) error) error {
	client := pkgmongo.WrapClient(w.db.Client(), w.db.Name())
	return client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := write(sessCtx); err != nil {
			return err
		}
		return w.saveEvents(sessCtx, events)
	})
}

func (w eventWriter) saveEvents(ctx context.Context, events []domain.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]*outbox.OutboxEvent, 0, len(events))
	for _, event := range events {
		ce, err := w.eventFactory.CreateEvent(ctx, event.EventType(), event.AggregateID(), event)
		if err != nil {
			return err
		}
		ce.Time = event.OccurredAt()
		row, err := outbox.NewOutboxEventFromCloudEvent(event.AggregateID(), kafka.Topics.ProgressEvents, ce)
		if err != nil {
			return fmt.Errorf("failed to create outbox event: %w", err)
		}
		rows = append(rows, row)
	}
	return w.outboxRepo.SaveAll(ctx, rows)
}

// OutboxRepository exposes the outbox for the publisher
func (w eventWriter) OutboxRepository() *outboxMongo.OutboxRepository {
	return w.outboxRepo
}
