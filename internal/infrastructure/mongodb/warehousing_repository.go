package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fashion-supplychain/progress-service/internal/domain"
	pkgmongo "github.com/fashion-supplychain/progress-service/pkg/mongodb"
)

const warehousingCollection = "warehousing_records"

// WarehousingRepository implements domain.WarehousingRepository
type WarehousingRepository struct {
	collection *mongo.Collection
	observer   *pkgmongo.Observer
}

// NewWarehousingRepository creates a warehousing repository
func NewWarehousingRepository(db *mongo.Database, observer *pkgmongo.Observer) *WarehousingRepository {
	return &WarehousingRepository{collection: db.Collection(warehousingCollection), observer: observer}
}

// EnsureIndexes creates the paging indexes
func (r *WarehousingRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "recordId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "orderId", Value: 1}, {Key: "bundleId", Value: 1}, {Key: "warehousedAt", Value: 1}}},
		{Keys: bson.D{{Key: "rolledBackBy", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	return err
}

// unitFilter selects a unit's records: all of an order, or one bundle of it
func unitFilter(unit domain.ProductionUnit) bson.M {
	filter := bson.M{"orderId": unit.OrderID}
	if unit.Kind == domain.UnitKindBundle && unit.BundleID != "" {
		filter["bundleId"] = unit.BundleID
	}
	return filter
}

// FindPage returns one page of a unit's records in a stable order
func (r *WarehousingRepository) FindPage(ctx context.Context, unit domain.ProductionUnit, page, pageSize int) ([]domain.WarehousingRecord, error) {
	opts := pkgmongo.Page(page, pageSize).SetSort(pkgmongo.SortAscending("warehousedAt", "recordId"))

	var out []domain.WarehousingRecord
	err := r.observer.Observe(ctx, warehousingCollection, "find", func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, unitFilter(unit), opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &out)
	})
	return out, err
}

// Count counts a unit's records, rolled back ones included, so page math matches FindPage
func (r *WarehousingRepository) Count(ctx context.Context, unit domain.ProductionUnit) (int64, error) {
	var n int64
	err := r.observer.Observe(ctx, warehousingCollection, "countDocuments", func(ctx context.Context) error {
		var err error
		n, err = r.collection.CountDocuments(ctx, unitFilter(unit))
		return err
	})
	return n, err
}

// RollbackByBundle marks the newest live records of a bundle rolled back until
// quantity is covered, tagging them with scanID. If the scan already rolled
// anything back the call is a no-op. Pass the undo session context so the
// rollback commits with the scan's undo flag.
func (r *WarehousingRepository) RollbackByBundle(ctx context.Context, scanID, orderID, bundleID string, quantity int) (int, error) {
	if bundleID == "" || quantity <= 0 {
		return 0, nil
	}

	var already int64
	err := r.observer.Observe(ctx, warehousingCollection, "countDocuments", func(ctx context.Context) error {
		var err error
		already, err = r.collection.CountDocuments(ctx, bson.M{"rolledBackBy": scanID})
		return err
	})
	if err != nil {
		return 0, err
	}
	if already > 0 {
		return 0, nil
	}

	filter := bson.M{"orderId": orderID, "bundleId": bundleID, "rolledBack": bson.M{"$ne": true}}
	opts := options.Find().SetSort(bson.D{{Key: "warehousedAt", Value: -1}, {Key: "recordId", Value: -1}})

	var live []domain.WarehousingRecord
	err = r.observer.Observe(ctx, warehousingCollection, "find", func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &live)
	})
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(live))
	covered := 0
	for _, rec := range live {
		if covered >= quantity {
			break
		}
		ids = append(ids, rec.ID)
		covered += rec.Qualified()
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var modified int64
	err = r.observer.Observe(ctx, warehousingCollection, "updateMany", func(ctx context.Context) error {
		res, err := r.collection.UpdateMany(ctx,
			bson.M{"recordId": bson.M{"$in": ids}, "rolledBack": bson.M{"$ne": true}},
			bson.M{"$set": bson.M{"rolledBack": true, "rolledBackBy": scanID, "rolledBackAt": pkgmongo.Now()}},
		)
		if err != nil {
			return err
		}
		modified = res.ModifiedCount
		return nil
	})
	return int(modified), err
}
