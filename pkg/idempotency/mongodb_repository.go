package idempotency

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	pkgmongo "github.com/fashion-supplychain/progress-service/pkg/mongodb"
)

const processedMessagesCollection = "processed_messages"

// MongoMessageRepository implements MessageRepository on MongoDB
type MongoMessageRepository struct {
	collection *mongo.Collection
	observer   *pkgmongo.Observer
}

// NewMongoMessageRepository creates a new MongoDB-backed message repository
func NewMongoMessageRepository(db *mongo.Database, observer *pkgmongo.Observer) *MongoMessageRepository {
	return &MongoMessageRepository{
		collection: db.Collection(processedMessagesCollection),
		observer:   observer,
	}
}

// MarkProcessed marks a message as processed
func (r *MongoMessageRepository) MarkProcessed(ctx context.Context, msg *ProcessedMessage) error {
	return r.observer.Observe(ctx, processedMessagesCollection, "insertOne", func(ctx context.Context) error {
		_, err := r.collection.InsertOne(ctx, msg)
		if pkgmongo.IsDuplicateKey(err) {
			return ErrMessageAlreadyProcessed
		}
		return err
	})
}

// IsProcessed checks if a message has been processed
func (r *MongoMessageRepository) IsProcessed(ctx context.Context, messageID, topic, consumerGroup string) (bool, error) {
	filter := bson.M{
		"messageId":     messageID,
		"topic":         topic,
		"consumerGroup": consumerGroup,
	}
	var count int64
	err := r.observer.Observe(ctx, processedMessagesCollection, "countDocuments", func(ctx context.Context) error {
		var err error
		count, err = r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
		return err
	})
	return count > 0, err
}

// EnsureIndexes creates the uniqueness and TTL indexes
func (r *MongoMessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "messageId", Value: 1},
				{Key: "topic", Value: 1},
				{Key: "consumerGroup", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("idx_msg_topic_group"),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_ttl"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create processed message indexes: %w", err)
	}
	return nil
}
