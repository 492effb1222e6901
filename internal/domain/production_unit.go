package domain

import "time"

// UnitKind distinguishes whole orders from cut bundles
type UnitKind string

const (
	UnitKindOrder  UnitKind = "order"
	UnitKindBundle UnitKind = "bundle"
)

// UnitStatus is the declared status owned by the order/bundle service
type UnitStatus string

const (
	UnitStatusPending    UnitStatus = "pending"
	UnitStatusProduction UnitStatus = "production"
	UnitStatusCompleted  UnitStatus = "completed"
	UnitStatusClosed     UnitStatus = "closed"
	UnitStatusCancelled  UnitStatus = "cancelled"
	UnitStatusArchived   UnitStatus = "archived"
)

// IsTerminal reports whether the status closes the unit to further changes
func (s UnitStatus) IsTerminal() bool {
	switch s {
	case UnitStatusCompleted, UnitStatusClosed, UnitStatusCancelled, UnitStatusArchived:
		return true
	}
	return false
}

// ProductionUnit is an order or cut bundle whose progress is tracked
type ProductionUnit struct {
	UnitID              string     `bson:"unitId" json:"unitId"`
	Kind                UnitKind   `bson:"kind" json:"kind"`
	OrderID             string     `bson:"orderId" json:"orderId"`
	BundleID            string     `bson:"bundleId,omitempty" json:"bundleId,omitempty"`
	StyleNo             string     `bson:"styleNo" json:"styleNo"`
	TargetQuantity      int        `bson:"targetQuantity" json:"targetQuantity"`
	Status              UnitStatus `bson:"status" json:"status"`
	Progress            int        `bson:"progress" json:"progress"`
	MaterialArrivalRate int        `bson:"materialArrivalRate" json:"materialArrivalRate"`
	PlannedStartAt      *time.Time `bson:"plannedStartAt,omitempty" json:"plannedStartAt,omitempty"`
	PlannedEndAt        *time.Time `bson:"plannedEndAt,omitempty" json:"plannedEndAt,omitempty"`
	CreatedAt           time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// IsDeclaredComplete reports whether the owner has declared the unit finished.
// Cancelled units are closed but not complete.
func (u ProductionUnit) IsDeclaredComplete() bool {
	switch u.Status {
	case UnitStatusCompleted, UnitStatusClosed, UnitStatusArchived:
		return true
	}
	return u.Progress >= 100
}

// MaterialsArrived reports whether procurement is fully covered by arrivals
func (u ProductionUnit) MaterialsArrived() bool {
	return u.MaterialArrivalRate >= 100
}
