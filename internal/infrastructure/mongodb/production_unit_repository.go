package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fashion-supplychain/progress-service/internal/domain"
	pkgmongo "github.com/fashion-supplychain/progress-service/pkg/mongodb"
)

const productionUnitsCollection = "production_units"

// ProductionUnitRepository implements domain.ProductionUnitRepository
type ProductionUnitRepository struct {
	collection *mongo.Collection
	observer   *pkgmongo.Observer
}

// NewProductionUnitRepository creates a production unit repository
func NewProductionUnitRepository(db *mongo.Database, observer *pkgmongo.Observer) *ProductionUnitRepository {
	return &ProductionUnitRepository{collection: db.Collection(productionUnitsCollection), observer: observer}
}

// EnsureIndexes creates the unit indexes
func (r *ProductionUnitRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "unitId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "orderId", Value: 1}}},
	})
	return err
}

// FindByID returns a unit or nil
func (r *ProductionUnitRepository) FindByID(ctx context.Context, unitID string) (*domain.ProductionUnit, error) {
	var unit domain.ProductionUnit
	err := r.observer.Observe(ctx, productionUnitsCollection, "findOne", func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"unitId": unitID}).Decode(&unit)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

// Save upserts a unit
func (r *ProductionUnitRepository) Save(ctx context.Context, unit *domain.ProductionUnit) error {
	unit.UpdatedAt = pkgmongo.Now()
	if unit.CreatedAt.IsZero() {
		unit.CreatedAt = unit.UpdatedAt
	}
	return r.observer.Observe(ctx, productionUnitsCollection, "replaceOne", func(ctx context.Context) error {
		_, err := r.collection.ReplaceOne(ctx, bson.M{"unitId": unit.UnitID}, unit, options.Replace().SetUpsert(true))
		return err
	})
}
