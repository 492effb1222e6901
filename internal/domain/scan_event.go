package domain

import (
	"strconv"
	"strings"
	"time"
)

// ScanOutcome is the result reported by a terminal for a scan
type ScanOutcome string

const (
	OutcomeSuccess ScanOutcome = "success"
	OutcomeFail    ScanOutcome = "fail"
)

// Quality sub-codes
const (
	SubCodeReceive = "receive"
	SubCodeConfirm = "confirm"
)

// Request id prefixes used by system-generated scans
var systemRequestPrefixes = []string{
	"ORDER_CREATED:",
	"CUTTING_BUNDLED:",
	"ORDER_PROCUREMENT:",
	"WAREHOUSING:",
	"SYSTEM:",
}

// ScanEvent is an operator- or system-submitted record asserting work at a stage
type ScanEvent struct {
	ID             string       `bson:"scanId" json:"id"`
	RequestID      string       `bson:"requestId" json:"requestId"`
	UnitID         string       `bson:"unitId" json:"unitId"`
	OrderID        string       `bson:"orderId" json:"orderId"`
	BundleID       string       `bson:"bundleId,omitempty" json:"bundleId,omitempty"`
	StyleNo        string       `bson:"styleNo,omitempty" json:"styleNo,omitempty"`
	StageKey       string       `bson:"stageKey,omitempty" json:"stageKey,omitempty"`
	StageName      string       `bson:"stageName,omitempty" json:"stageName,omitempty"`
	ProcessCode    string       `bson:"processCode,omitempty" json:"processCode,omitempty"`
	Category       ScanCategory `bson:"category" json:"category"`
	SubCode        string       `bson:"subCode,omitempty" json:"subCode,omitempty"`
	Outcome        ScanOutcome  `bson:"outcome" json:"outcome"`
	Quantity       int          `bson:"quantity" json:"quantity"`
	ScannedAt      time.Time    `bson:"scannedAt" json:"scannedAt"`
	RecordedAt     time.Time    `bson:"recordedAt,omitempty" json:"recordedAt,omitempty"`
	ConfirmedAt    *time.Time   `bson:"confirmedAt,omitempty" json:"confirmedAt,omitempty"`
	Remark         string       `bson:"remark,omitempty" json:"remark,omitempty"`
	DefectQuantity *int         `bson:"defectQuantity,omitempty" json:"defectQuantity,omitempty"`
	SettlementID   string       `bson:"settlementId,omitempty" json:"settlementId,omitempty"`
	OperatorID     string       `bson:"operatorId,omitempty" json:"operatorId,omitempty"`
	OperatorName   string       `bson:"operatorName,omitempty" json:"operatorName,omitempty"`
	UndoneAt       *time.Time   `bson:"undoneAt,omitempty" json:"undoneAt,omitempty"`
	UndoneBy       string       `bson:"undoneBy,omitempty" json:"undoneBy,omitempty"`
}

// UndoAnchor is the instant the undo window runs from: the scan time, or the
// server receive time when the terminal clock reported a later one.
func (e ScanEvent) UndoAnchor() time.Time {
	if !e.RecordedAt.IsZero() && e.RecordedAt.Before(e.ScannedAt) {
		return e.RecordedAt
	}
	return e.ScannedAt
}

// IsSuccess reports whether the scan counts toward progression
func (e ScanEvent) IsSuccess() bool {
	return e.Outcome == OutcomeSuccess && e.UndoneAt == nil
}

// IsSystemGenerated reports whether the scan was emitted by a system process rather than an operator
func (e ScanEvent) IsSystemGenerated() bool {
	for _, p := range systemRequestPrefixes {
		if strings.HasPrefix(e.RequestID, p) {
			return true
		}
	}
	return false
}

// IsConfirmed reports whether a quality scan carries confirmation
func (e ScanEvent) IsConfirmed() bool {
	return e.ConfirmedAt != nil || e.SubCode == SubCodeConfirm
}

// Ref returns the stage reference carried by the scan
func (e ScanEvent) Ref() StageRef {
	code := e.StageKey
	if code == "" {
		code = e.ProcessCode
	}
	return StageRef{Code: code, Name: e.StageName}
}

// ParseDefectRemark extracts a defect quantity from a remark such as
// "unqualified|defectQty=5|reason=stain". It returns nil when the remark
// carries no positive defect quantity.
func ParseDefectRemark(remark string) *int {
	r := strings.TrimSpace(remark)
	if !strings.HasPrefix(strings.ToLower(r), "unqualified") {
		return nil
	}
	for _, part := range strings.Split(r, "|") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || strings.TrimSpace(k) != "defectQty" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return nil
		}
		return &n
	}
	return nil
}
