package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fashion-supplychain/progress-service/internal/domain"
	"github.com/fashion-supplychain/progress-service/pkg/cloudevents"
	pkgmongo "github.com/fashion-supplychain/progress-service/pkg/mongodb"
)

const taskClaimsCollection = "task_claims"

// TaskClaimRepository implements domain.TaskClaimRepository
type TaskClaimRepository struct {
	collection *mongo.Collection
	observer   *pkgmongo.Observer
	events     eventWriter
}

// NewTaskClaimRepository creates a task claim repository
func NewTaskClaimRepository(db *mongo.Database, eventFactory *cloudevents.EventFactory, observer *pkgmongo.Observer) *TaskClaimRepository {
	return &TaskClaimRepository{
		collection: db.Collection(taskClaimsCollection),
		observer:   observer,
		events:     newEventWriter(db, eventFactory, observer),
	}
}

// EnsureIndexes creates the task indexes
func (r *TaskClaimRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "taskId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "orderId", Value: 1}, {Key: "kind", Value: 1}}},
	})
	return err
}

// FindCandidates returns an order's tasks of one kind, oldest first
func (r *TaskClaimRepository) FindCandidates(ctx context.Context, orderID string, kind domain.TaskKind) ([]domain.TaskClaim, error) {
	opts := options.Find().SetSort(pkgmongo.SortAscending("updatedAt", "taskId"))

	var out []domain.TaskClaim
	err := r.observer.Observe(ctx, taskClaimsCollection, "find", func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, bson.M{"orderId": orderID, "kind": kind}, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &out)
	})
	return out, err
}

// MarkReceived claims a task only while it is still pending with no receiver
func (r *TaskClaimRepository) MarkReceived(ctx context.Context, taskID string, actor domain.Actor, at time.Time, events ...domain.DomainEvent) error {
	filter := bson.M{
		"taskId":       taskID,
		"status":       bson.M{"$in": bson.A{domain.TaskStatusPending, "", nil}},
		"receiverId":   bson.M{"$in": bson.A{nil, ""}},
		"receiverName": bson.M{"$in": bson.A{nil, ""}},
	}
	update := bson.M{"$set": bson.M{
		"status":       domain.TaskStatusReceived,
		"receiverId":   actor.ID,
		"receiverName": actor.Name,
		"receivedAt":   at,
		"updatedAt":    at,
	}}

	err := r.events.transact(ctx, events, func(sessCtx mongo.SessionContext) error {
		return r.observer.Observe(sessCtx, taskClaimsCollection, "updateOne", func(ctx context.Context) error {
			res, err := r.collection.UpdateOne(ctx, filter, update)
			if err != nil {
				return err
			}
			if res.MatchedCount == 0 {
				return domain.ErrClaimConflict
			}
			return nil
		})
	})
	if errors.Is(err, domain.ErrClaimConflict) {
		return domain.ErrClaimConflict
	}
	if err != nil {
		return fmt.Errorf("failed to claim task: %w", err)
	}
	return nil
}
