package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
	AggregateID() string
}

// ScanRecordedEvent is published when a scan is accepted
type ScanRecordedEvent struct {
	ScanID     string       `json:"scanId"`
	RequestID  string       `json:"requestId"`
	UnitID     string       `json:"unitId"`
	OrderID    string       `json:"orderId"`
	StageKey   string       `json:"stageKey"`
	Category   ScanCategory `json:"category"`
	Outcome    ScanOutcome  `json:"outcome"`
	Quantity   int          `json:"quantity"`
	OperatorID string       `json:"operatorId,omitempty"`
	ScannedAt  time.Time    `json:"scannedAt"`
}

func (e *ScanRecordedEvent) EventType() string     { return "mes.progress.scan-recorded" }
func (e *ScanRecordedEvent) OccurredAt() time.Time { return e.ScannedAt }
func (e *ScanRecordedEvent) AggregateID() string   { return e.UnitID }

// ScanUndoneEvent is published when a scan is reversed
type ScanUndoneEvent struct {
	ScanID     string       `json:"scanId"`
	UnitID     string       `json:"unitId"`
	OrderID    string       `json:"orderId"`
	BundleID   string       `json:"bundleId,omitempty"`
	StageKey   string       `json:"stageKey"`
	Category   ScanCategory `json:"category"`
	Quantity   int          `json:"quantity"`
	UndoneBy   string       `json:"undoneBy"`
	Rescan     bool         `json:"rescan"`
	RolledBack int          `json:"rolledBackQuantity"`
	UndoneAt   time.Time    `json:"undoneAt"`
}

func (e *ScanUndoneEvent) EventType() string     { return "mes.progress.scan-undone" }
func (e *ScanUndoneEvent) OccurredAt() time.Time { return e.UndoneAt }
func (e *ScanUndoneEvent) AggregateID() string   { return e.UnitID }

// TaskClaimedEvent is published when a worker claims a task
type TaskClaimedEvent struct {
	TaskID       string    `json:"taskId"`
	Kind         TaskKind  `json:"kind"`
	OrderID      string    `json:"orderId"`
	ReceiverID   string    `json:"receiverId,omitempty"`
	ReceiverName string    `json:"receiverName,omitempty"`
	ClaimedAt    time.Time `json:"claimedAt"`
}

func (e *TaskClaimedEvent) EventType() string     { return "mes.progress.task-claimed" }
func (e *TaskClaimedEvent) OccurredAt() time.Time { return e.ClaimedAt }
func (e *TaskClaimedEvent) AggregateID() string   { return e.TaskID }
