package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fashion-supplychain/progress-service/internal/domain"
	pkgmongo "github.com/fashion-supplychain/progress-service/pkg/mongodb"
)

const stageCatalogsCollection = "stage_catalogs"

type stageDocument struct {
	domain.StageDefinition `bson:",inline"`
	UnitPrice              string `bson:"unitPrice,omitempty"`
}

type catalogDocument struct {
	StyleNo   string          `bson:"styleNo"`
	Stages    []stageDocument `bson:"stages"`
	UpdatedAt time.Time       `bson:"updatedAt"`
}

func toStageDocuments(defs []domain.StageDefinition) []stageDocument {
	docs := make([]stageDocument, len(defs))
	for i, d := range defs {
		docs[i] = stageDocument{StageDefinition: d}
		if d.UnitPrice != nil {
			docs[i].UnitPrice = d.UnitPrice.String()
		}
	}
	return docs
}

func (d catalogDocument) definitions() ([]domain.StageDefinition, error) {
	defs := make([]domain.StageDefinition, len(d.Stages))
	for i, s := range d.Stages {
		defs[i] = s.StageDefinition
		if s.UnitPrice == "" {
			continue
		}
		price, err := decimal.NewFromString(s.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("style %s stage %s: bad unit price %q: %w", d.StyleNo, s.StageKey, s.UnitPrice, err)
		}
		defs[i].UnitPrice = &price
	}
	return defs, nil
}

// StageCatalogRepository implements domain.StageCatalogRepository
type StageCatalogRepository struct {
	collection *mongo.Collection
	observer   *pkgmongo.Observer
}

// NewStageCatalogRepository creates a stage catalog repository
func NewStageCatalogRepository(db *mongo.Database, observer *pkgmongo.Observer) *StageCatalogRepository {
	return &StageCatalogRepository{collection: db.Collection(stageCatalogsCollection), observer: observer}
}

// EnsureIndexes creates the unique style index
func (r *StageCatalogRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "styleNo", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// FindByStyle returns the stored stages of a style, or nil when none are stored
func (r *StageCatalogRepository) FindByStyle(ctx context.Context, styleNo string) ([]domain.StageDefinition, error) {
	var doc catalogDocument
	err := r.observer.Observe(ctx, stageCatalogsCollection, "findOne", func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"styleNo": styleNo}).Decode(&doc)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.definitions()
}

// Save replaces the stages of a style
func (r *StageCatalogRepository) Save(ctx context.Context, styleNo string, stages []domain.StageDefinition) error {
	doc := catalogDocument{StyleNo: styleNo, Stages: toStageDocuments(stages), UpdatedAt: pkgmongo.Now()}
	return r.observer.Observe(ctx, stageCatalogsCollection, "replaceOne", func(ctx context.Context) error {
		_, err := r.collection.ReplaceOne(ctx, bson.M{"styleNo": styleNo}, doc, options.Replace().SetUpsert(true))
		return err
	})
}
