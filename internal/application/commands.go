package application

import (
	"time"

	"github.com/fashion-supplychain/progress-service/internal/domain"
)

// ResolveStageQuery resolves the current stage of a unit
type ResolveStageQuery struct {
	UnitID string `binding:"required"`
}

// RecordScanCommand records one scan submission. At least one of StageKey,
// StageName and ProcessCode identifies the stage.
type RecordScanCommand struct {
	RequestID    string     `json:"requestId" binding:"required,max=128"`
	UnitID       string     `json:"unitId" binding:"required"`
	OrderID      string     `json:"orderId"`
	BundleID     string     `json:"bundleId"`
	StyleNo      string     `json:"styleNo"`
	StageKey     string     `json:"stageKey" binding:"required_without_all=StageName ProcessCode"`
	StageName    string     `json:"stageName"`
	ProcessCode  string     `json:"processCode"`
	Category     string     `json:"category" binding:"omitempty,oneof=procurement cutting production quality warehouse"`
	SubCode      string     `json:"subCode" binding:"omitempty,oneof=receive confirm"`
	Outcome      string     `json:"outcome" binding:"required,oneof=success fail"`
	Quantity     int        `json:"quantity" binding:"gte=0"`
	ScannedAt    *time.Time `json:"scannedAt"`
	ConfirmedAt  *time.Time `json:"confirmedAt"`
	Remark       string     `json:"remark" binding:"max=500"`
	SettlementID string     `json:"settlementId"`
	OperatorID   string     `json:"operatorId"`
	OperatorName string     `json:"operatorName"`
}

// UndoEligibilityQuery asks whether a scan may be undone by actor
type UndoEligibilityQuery struct {
	ScanID string `binding:"required"`
	Actor  domain.Actor
	Rescan bool
}

// UndoScanCommand reverses a scan
type UndoScanCommand struct {
	ScanID string `binding:"required"`
	Actor  domain.Actor
	Rescan bool
}

// ClaimTaskCommand claims a procurement or cutting task of an order
type ClaimTaskCommand struct {
	OrderID string          `json:"orderId" binding:"required"`
	Kind    domain.TaskKind `json:"kind" binding:"required,oneof=procurement cutting"`
	Actor   domain.Actor    `json:"-"`
}

// ScanHistoryQuery lists the scans of a unit, newest first
type ScanHistoryQuery struct {
	UnitID   string `binding:"required"`
	Page     int
	PageSize int
}

// GetCatalogQuery retrieves the stage catalog of a style
type GetCatalogQuery struct {
	StyleNo string `binding:"required"`
}

// StageInput is one stage in a catalog replacement
type StageInput struct {
	StageKey      string   `json:"stageKey"`
	StageName     string   `json:"stageName" binding:"required"`
	SortOrder     int      `json:"sortOrder"`
	UnitPrice     string   `json:"unitPrice" binding:"omitempty,numeric"`
	Category      string   `json:"category" binding:"omitempty,oneof=procurement cutting production quality warehouse"`
	QuantityGated bool     `json:"quantityGated"`
	Skippable     bool     `json:"skippable"`
	Aliases       []string `json:"aliases"`
}

// SaveCatalogCommand replaces the stage catalog of a style
type SaveCatalogCommand struct {
	StyleNo string       `json:"-"`
	Stages  []StageInput `json:"stages" binding:"required,min=1,dive"`
}
