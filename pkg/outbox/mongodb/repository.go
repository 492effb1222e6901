package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	pkgmongo "github.com/fashion-supplychain/progress-service/pkg/mongodb"
	"github.com/fashion-supplychain/progress-service/pkg/outbox"
)

// DefaultCollectionName is the default name for the outbox collection
const DefaultCollectionName = "outbox_events"

// OutboxRepository implements outbox.Repository for MongoDB
type OutboxRepository struct {
	collection *mongo.Collection
	observer   *pkgmongo.Observer
}

// NewOutboxRepository creates a new MongoDB outbox repository
func NewOutboxRepository(db *mongo.Database, observer *pkgmongo.Observer) *OutboxRepository {
	return &OutboxRepository{
		collection: db.Collection(DefaultCollectionName),
		observer:   observer,
	}
}

// SaveAll inserts events. Pass a session context to join a transaction.
func (r *OutboxRepository) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	docs := make([]interface{}, len(events))
	for i, event := range events {
		docs[i] = event
	}
	return r.observer.Observe(ctx, DefaultCollectionName, "insertMany", func(ctx context.Context) error {
		if _, err := r.collection.InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("failed to save outbox events: %w", err)
		}
		return nil
	})
}

// FindUnpublished returns the oldest undelivered events still under their retry limit
func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	filter := bson.M{
		"publishedAt": bson.M{"$exists": false},
		"$expr":       bson.M{"$lt": bson.A{"$retryCount", "$maxRetries"}},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetLimit(int64(limit))

	var events []*outbox.OutboxEvent
	err := r.observer.Observe(ctx, DefaultCollectionName, "find", func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, filter, opts)
		if err != nil {
			return fmt.Errorf("failed to find unpublished events: %w", err)
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &events)
	})
	return events, err
}

// MarkPublished marks an event as published
func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	return r.update(ctx, eventID, bson.M{"$set": bson.M{"publishedAt": pkgmongo.Now()}})
}

// IncrementRetry increments the retry count and updates last error
func (r *OutboxRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	return r.update(ctx, eventID, bson.M{
		"$inc": bson.M{"retryCount": 1},
		"$set": bson.M{"lastError": errorMsg},
	})
}

func (r *OutboxRepository) update(ctx context.Context, eventID string, update bson.M) error {
	return r.observer.Observe(ctx, DefaultCollectionName, "updateOne", func(ctx context.Context) error {
		result, err := r.collection.UpdateOne(ctx, bson.M{"_id": eventID}, update)
		if err != nil {
			return fmt.Errorf("failed to update outbox event: %w", err)
		}
		if result.MatchedCount == 0 {
			return fmt.Errorf("outbox event not found: %s", eventID)
		}
		return nil
	})
}

// EnsureIndexes creates necessary indexes for the outbox collection
func (r *OutboxRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "publishedAt", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_publishedAt_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "aggregateId", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_aggregateId_createdAt"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create outbox indexes: %w", err)
	}
	return nil
}
