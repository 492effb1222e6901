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
	outboxMongo "github.com/fashion-supplychain/progress-service/pkg/outbox/mongodb"
)

const scanEventsCollection = "scan_events"

// ScanEventRepository implements domain.ScanEventRepository
type ScanEventRepository struct {
	collection *mongo.Collection
	observer   *pkgmongo.Observer
	events     eventWriter
}

// NewScanEventRepository creates a scan event repository
func NewScanEventRepository(db *mongo.Database, eventFactory *cloudevents.EventFactory, observer *pkgmongo.Observer) *ScanEventRepository {
	return &ScanEventRepository{
		collection: db.Collection(scanEventsCollection),
		observer:   observer,
		events:     newEventWriter(db, eventFactory, observer),
	}
}

// EnsureIndexes creates the indexes the repository relies on
func (r *ScanEventRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "scanId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "requestId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "unitId", Value: 1}, {Key: "scannedAt", Value: 1}, {Key: "scanId", Value: 1}}},
		{Keys: bson.D{{Key: "orderId", Value: 1}}},
	})
	if err != nil {
		return err
	}
	return r.events.outboxRepo.EnsureIndexes(ctx)
}

// Save inserts a scan and its events
func (r *ScanEventRepository) Save(ctx context.Context, event *domain.ScanEvent, events ...domain.DomainEvent) error {
	err := r.events.transact(ctx, events, func(sessCtx mongo.SessionContext) error {
		return r.observer.Observe(sessCtx, scanEventsCollection, "insertOne", func(ctx context.Context) error {
			_, err := r.collection.InsertOne(ctx, event)
			return err
		})
	})
	if pkgmongo.IsDuplicateKey(err) {
		return domain.ErrDuplicateRequest
	}
	if err != nil {
		return fmt.Errorf("failed to save scan: %w", err)
	}
	return nil
}

// FindByUnit returns one page of a unit's scans in scan order
func (r *ScanEventRepository) FindByUnit(ctx context.Context, unitID string, page, pageSize int) ([]domain.ScanEvent, error) {
	opts := pkgmongo.Page(page, pageSize).SetSort(pkgmongo.SortAscending("scannedAt", "scanId"))

	var out []domain.ScanEvent
	err := r.observer.Observe(ctx, scanEventsCollection, "find", func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, bson.M{"unitId": unitID}, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &out)
	})
	return out, err
}

func (r *ScanEventRepository) findOne(ctx context.Context, filter bson.M) (*domain.ScanEvent, error) {
	var event domain.ScanEvent
	err := r.observer.Observe(ctx, scanEventsCollection, "findOne", func(ctx context.Context) error {
		return r.collection.FindOne(ctx, filter).Decode(&event)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// FindByID returns a scan or nil
func (r *ScanEventRepository) FindByID(ctx context.Context, scanID string) (*domain.ScanEvent, error) {
	return r.findOne(ctx, bson.M{"scanId": scanID})
}

// FindByRequestID returns the scan recorded for a request id or nil
func (r *ScanEventRepository) FindByRequestID(ctx context.Context, requestID string) (*domain.ScanEvent, error) {
	return r.findOne(ctx, bson.M{"requestId": requestID})
}

// CountByUnit counts a unit's scans
func (r *ScanEventRepository) CountByUnit(ctx context.Context, unitID string) (int64, error) {
	var n int64
	err := r.observer.Observe(ctx, scanEventsCollection, "countDocuments", func(ctx context.Context) error {
		var err error
		n, err = r.collection.CountDocuments(ctx, bson.M{"unitId": unitID})
		return err
	})
	return n, err
}

// MarkUndone flags a scan as undone if it is still a live, unsettled success,
// then runs step in the same transaction. A concurrent undo of the same scan
// conflicts on the scan document, so only one of them can commit.
func (r *ScanEventRepository) MarkUndone(ctx context.Context, scanID, undoneBy string, at time.Time, step domain.UndoStep, events ...domain.DomainEvent) error {
	filter := bson.M{
		"scanId":       scanID,
		"outcome":      domain.OutcomeSuccess,
		"undoneAt":     bson.M{"$exists": false},
		"settlementId": bson.M{"$exists": false},
	}
	update := bson.M{"$set": bson.M{"undoneAt": at, "undoneBy": undoneBy}}

	err := r.events.transact(ctx, events, func(sessCtx mongo.SessionContext) error {
		err := r.observer.Observe(sessCtx, scanEventsCollection, "updateOne", func(ctx context.Context) error {
			res, err := r.collection.UpdateOne(ctx, filter, update)
			if err != nil {
				return err
			}
			if res.MatchedCount == 0 {
				return domain.ErrScanNotUndoable
			}
			return nil
		})
		if err != nil || step == nil {
			return err
		}
		return step(sessCtx)
	})
	if errors.Is(err, domain.ErrScanNotUndoable) {
		return domain.ErrScanNotUndoable
	}
	if err != nil {
		return fmt.Errorf("failed to mark scan undone: %w", err)
	}
	return nil
}

// OutboxRepository returns the outbox written alongside scans
func (r *ScanEventRepository) OutboxRepository() *outboxMongo.OutboxRepository {
	return r.events.OutboxRepository()
}
