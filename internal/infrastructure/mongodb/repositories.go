package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fashion-supplychain/progress-service/pkg/cloudevents"
	pkgmongo "github.com/fashion-supplychain/progress-service/pkg/mongodb"
	outboxMongo "github.com/fashion-supplychain/progress-service/pkg/outbox/mongodb"
)

// Repositories groups every repository of the service over one database
type Repositories struct {
	Scans       *ScanEventRepository
	Catalogs    *StageCatalogRepository
	Units       *ProductionUnitRepository
	Warehousing *WarehousingRepository
	Tasks       *TaskClaimRepository
}

// NewRepositories wires all repositories to db
func NewRepositories(db *mongo.Database, eventFactory *cloudevents.EventFactory, observer *pkgmongo.Observer) *Repositories {
	return &Repositories{
		Scans:       NewScanEventRepository(db, eventFactory, observer),
		Catalogs:    NewStageCatalogRepository(db, observer),
		Units:       NewProductionUnitRepository(db, observer),
		Warehousing: NewWarehousingRepository(db, observer),
		Tasks:       NewTaskClaimRepository(db, eventFactory, observer),
	}
}

// Outbox returns the outbox shared by every event-writing repository
func (r *Repositories) Outbox() *outboxMongo.OutboxRepository {
	return r.Scans.OutboxRepository()
}

// EnsureIndexes creates the indexes of every collection
func (r *Repositories) EnsureIndexes(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"scan events", r.Scans.EnsureIndexes},
		{"stage catalogs", r.Catalogs.EnsureIndexes},
		{"production units", r.Units.EnsureIndexes},
		{"warehousing records", r.Warehousing.EnsureIndexes},
		{"task claims", r.Tasks.EnsureIndexes},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", s.name, err)
		}
	}
	return nil
}
