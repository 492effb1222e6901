package domain

import (
	"context"
	"time"
)

// WarehousingRecord is one completion record owned by the warehousing subsystem
type WarehousingRecord struct {
	ID                string    `bson:"recordId" json:"id"`
	OrderID           string    `bson:"orderId" json:"orderId"`
	BundleID          string    `bson:"bundleId,omitempty" json:"bundleId,omitempty"`
	QualifiedQuantity int       `bson:"qualifiedQuantity" json:"qualifiedQuantity"`
	DefectQuantity    int       `bson:"defectQuantity" json:"defectQuantity"`
	WarehousedAt      time.Time `bson:"warehousedAt" json:"warehousedAt"`
	RolledBack        bool      `bson:"rolledBack" json:"rolledBack"`
	RolledBackBy      string    `bson:"rolledBackBy,omitempty" json:"rolledBackBy,omitempty"`
}

// Qualified returns the non-negative qualified quantity that counts toward completion
func (r WarehousingRecord) Qualified() int {
	if r.RolledBack || r.QualifiedQuantity < 0 {
		return 0
	}
	return r.QualifiedQuantity
}

// WarehousingSource pages warehousing records for a unit
type WarehousingSource interface {
	FindPage(ctx context.Context, unit ProductionUnit, page, pageSize int) ([]WarehousingRecord, error)
}

// WarehousingCounter is implemented by sources that can count records up front,
// which lets pages be fetched concurrently
type WarehousingCounter interface {
	Count(ctx context.Context, unit ProductionUnit) (int64, error)
}
