package domain

import (
	"context"
	"time"
)

// ScanEventSource pages the scan events of one unit
type ScanEventSource interface {
	FindByUnit(ctx context.Context, unitID string, page, pageSize int) ([]ScanEvent, error)
}

// ScanEventRepository defines the interface for scan event persistence.
// Domain events passed to writes are stored atomically with the change.
type ScanEventRepository interface {
	ScanEventSource
	// Save returns ErrDuplicateRequest when the request id is already stored
	Save(ctx context.Context, event *ScanEvent, events ...DomainEvent) error
	FindByID(ctx context.Context, scanID string) (*ScanEvent, error)
	FindByRequestID(ctx context.Context, requestID string) (*ScanEvent, error)
	CountByUnit(ctx context.Context, unitID string) (int64, error)
	// MarkUndone returns ErrScanNotUndoable when the scan changed since it was read.
	// A non-nil step runs in the same transaction after the scan is flagged;
	// its error aborts both.
	MarkUndone(ctx context.Context, scanID, undoneBy string, at time.Time, step UndoStep, events ...DomainEvent) error
}

// UndoStep is extra work that must commit or abort with an undo
type UndoStep func(ctx context.Context) error

// StageCatalogRepository defines the interface for per-style stage definitions
type StageCatalogRepository interface {
	FindByStyle(ctx context.Context, styleNo string) ([]StageDefinition, error)
	Save(ctx context.Context, styleNo string, stages []StageDefinition) error
}

// ProductionUnitRepository defines the interface for order and bundle lookups
type ProductionUnitRepository interface {
	FindByID(ctx context.Context, unitID string) (*ProductionUnit, error)
	Save(ctx context.Context, unit *ProductionUnit) error
}

// WarehousingRepository reads warehousing records and reverses them on undo
type WarehousingRepository interface {
	WarehousingSource
	WarehousingCounter
	// RollbackByBundle rolls back live records of a bundle on behalf of scanID
	// and tags them with it. Once any record carries the tag the call changes
	// nothing and returns 0.
	RollbackByBundle(ctx context.Context, scanID, orderID, bundleID string, quantity int) (int, error)
}

// TaskClaimRepository defines the interface for claimable tasks
type TaskClaimRepository interface {
	FindCandidates(ctx context.Context, orderID string, kind TaskKind) ([]TaskClaim, error)
	// MarkReceived returns ErrClaimConflict when the task is no longer unclaimed
	MarkReceived(ctx context.Context, taskID string, actor Actor, at time.Time, events ...DomainEvent) error
}
