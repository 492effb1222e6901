package application

import (
	"time"

	"github.com/fashion-supplychain/progress-service/internal/domain"
)

// ResolutionDTO is the stage of a unit in responses
type ResolutionDTO struct {
	UnitID       string                 `json:"unitId"`
	StyleNo      string                 `json:"styleNo,omitempty"`
	Determined   bool                   `json:"determined"`
	StageKey     string                 `json:"stageKey,omitempty"`
	StageName    string                 `json:"stageName,omitempty"`
	SubState     string                 `json:"subState,omitempty"`
	ScanCategory string                 `json:"scanCategory,omitempty"`
	IsCompleted  bool                   `json:"isCompleted"`
	Conservative bool                   `json:"conservative"`
	Stages       []domain.StageProgress `json:"stages,omitempty"`
	ResolvedAt   time.Time              `json:"resolvedAt"`
}

// ScanEventDTO is a scan in responses
type ScanEventDTO struct {
	ID             string     `json:"id"`
	RequestID      string     `json:"requestId"`
	UnitID         string     `json:"unitId"`
	OrderID        string     `json:"orderId"`
	BundleID       string     `json:"bundleId,omitempty"`
	StageKey       string     `json:"stageKey,omitempty"`
	StageName      string     `json:"stageName,omitempty"`
	ProcessCode    string     `json:"processCode,omitempty"`
	Category       string     `json:"category"`
	SubCode        string     `json:"subCode,omitempty"`
	Outcome        string     `json:"outcome"`
	Quantity       int        `json:"quantity"`
	DefectQuantity *int       `json:"defectQuantity,omitempty"`
	ScannedAt      time.Time  `json:"scannedAt"`
	ConfirmedAt    *time.Time `json:"confirmedAt,omitempty"`
	Remark         string     `json:"remark,omitempty"`
	OperatorID     string     `json:"operatorId,omitempty"`
	OperatorName   string     `json:"operatorName,omitempty"`
	Settled        bool       `json:"settled"`
	UndoneAt       *time.Time `json:"undoneAt,omitempty"`
	CanUndo        bool       `json:"canUndo"`
}

// RecordScanResultDTO is the response to a scan submission
type RecordScanResultDTO struct {
	Scan      ScanEventDTO `json:"scan"`
	Duplicate bool         `json:"duplicate"`
}

// UndoEligibilityDTO is an undo decision in responses
type UndoEligibilityDTO struct {
	ScanID  string `json:"scanId"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// UndoResultDTO is the response to a successful undo
type UndoResultDTO struct {
	ScanID            string    `json:"scanId"`
	UndoneAt          time.Time `json:"undoneAt"`
	UndoneBy          string    `json:"undoneBy"`
	Rescan            bool      `json:"rescan"`
	RolledBackRecords int       `json:"rolledBackRecords"`
}

// ClaimResultDTO is the response to a claim request
type ClaimResultDTO struct {
	TaskID  string `json:"taskId,omitempty"`
	Action  string `json:"action"`
	Reason  string `json:"reason"`
	Claimed bool   `json:"claimed"`
}

// StageDTO is one catalog stage in responses
type StageDTO struct {
	StageKey      string   `json:"stageKey"`
	StageName     string   `json:"stageName"`
	SortOrder     int      `json:"sortOrder"`
	UnitPrice     string   `json:"unitPrice,omitempty"`
	Category      string   `json:"category"`
	QuantityGated bool     `json:"quantityGated"`
	Skippable     bool     `json:"skippable"`
	Aliases       []string `json:"aliases,omitempty"`
}

// CatalogDTO is a style's stage catalog in responses
type CatalogDTO struct {
	StyleNo string     `json:"styleNo"`
	Stages  []StageDTO `json:"stages"`
}
