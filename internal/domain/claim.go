package domain

import (
	"strings"
	"time"
)

// Actor identifies the worker acting on a task
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IsZero reports whether the actor carries no identity
func (a Actor) IsZero() bool {
	return strings.TrimSpace(a.ID) == "" && strings.TrimSpace(a.Name) == ""
}

// Is compares identities by id when both sides have one, otherwise by name
func (a Actor) Is(id, name string) bool {
	aID, oID := strings.TrimSpace(a.ID), strings.TrimSpace(id)
	if aID != "" && oID != "" {
		return aID == oID
	}
	aName, oName := strings.TrimSpace(a.Name), strings.TrimSpace(name)
	return aName != "" && oName != "" && aName == oName
}

// TaskKind is the kind of claimable batch task
type TaskKind string

const (
	TaskKindProcurement TaskKind = "procurement"
	TaskKindCutting     TaskKind = "cutting"
)

// TaskStatus is the lifecycle state of a claimable task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusReceived  TaskStatus = "received"
	TaskStatusPartial   TaskStatus = "partial"
	TaskStatusBundled   TaskStatus = "bundled"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// TaskClaim is a procurement or cutting task and its current owner
type TaskClaim struct {
	TaskID       string     `bson:"taskId" json:"taskId"`
	Kind         TaskKind   `bson:"kind" json:"kind"`
	OrderID      string     `bson:"orderId" json:"orderId"`
	Status       TaskStatus `bson:"status" json:"status"`
	ReceiverID   string     `bson:"receiverId,omitempty" json:"receiverId,omitempty"`
	ReceiverName string     `bson:"receiverName,omitempty" json:"receiverName,omitempty"`
	ReceivedAt   *time.Time `bson:"receivedAt,omitempty" json:"receivedAt,omitempty"`
	UpdatedAt    time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// HasReceiver reports whether anyone holds the task
func (t TaskClaim) HasReceiver() bool {
	return strings.TrimSpace(t.ReceiverID) != "" || strings.TrimSpace(t.ReceiverName) != ""
}

// HeldBy reports whether actor is the task's receiver
func (t TaskClaim) HeldBy(actor Actor) bool {
	return t.HasReceiver() && actor.Is(t.ReceiverID, t.ReceiverName)
}

// IsActive reports whether the task has not advanced past claiming
func (t TaskClaim) IsActive() bool {
	switch t.Status {
	case "", TaskStatusPending, TaskStatusReceived, TaskStatusPartial:
		return true
	}
	return false
}

// IsUnclaimed reports whether the task can be claimed by anyone
func (t TaskClaim) IsUnclaimed() bool {
	return (t.Status == "" || t.Status == TaskStatusPending) && !t.HasReceiver()
}

// ClaimAction tells the caller what to do with the selected task
type ClaimAction string

const (
	ClaimActionNone        ClaimAction = "none"
	ClaimActionUseExisting ClaimAction = "use_existing"
	ClaimActionClaim       ClaimAction = "claim"
)

// ClaimDecision names at most one task to act on
type ClaimDecision struct {
	TaskID string      `json:"taskId,omitempty"`
	Action ClaimAction `json:"action"`
	Reason string      `json:"reason,omitempty"`
}

// NeedsClaimCall reports whether the caller must issue a claim
func (d ClaimDecision) NeedsClaimCall() bool {
	return d.Action == ClaimActionClaim
}

// SelectClaim picks at most one task for actor: its own active claim first,
// then the first unclaimed task. Tasks held by others or advanced past
// claiming are never selected.
func SelectClaim(tasks []TaskClaim, actor Actor) ClaimDecision {
	if actor.IsZero() {
		return ClaimDecision{Action: ClaimActionNone, Reason: "actor identity required"}
	}

	seen := make(map[string]struct{}, len(tasks))
	var unclaimed *TaskClaim
	heldByOthers := false
	for i := range tasks {
		t := &tasks[i]
		if t.TaskID == "" {
			continue
		}
		if _, dup := seen[t.TaskID]; dup {
			continue
		}
		seen[t.TaskID] = struct{}{}

		if !t.IsActive() {
			continue
		}
		if t.HeldBy(actor) {
			return ClaimDecision{TaskID: t.TaskID, Action: ClaimActionUseExisting, Reason: "already held by actor"}
		}
		if t.IsUnclaimed() {
			if unclaimed == nil {
				unclaimed = t
			}
			continue
		}
		heldByOthers = true
	}

	if unclaimed != nil {
		return ClaimDecision{TaskID: unclaimed.TaskID, Action: ClaimActionClaim, Reason: "unclaimed"}
	}
	if heldByOthers {
		return ClaimDecision{Action: ClaimActionNone, Reason: "held by another actor"}
	}
	return ClaimDecision{Action: ClaimActionNone, Reason: "no claimable task"}
}
