package domain

import (
	"context"
	"sort"
)

// EventLog is a read-only, ordered view over the scan events of one production unit
type EventLog struct {
	unitID string
	events []ScanEvent
}

// NewEventLog orders events by scan time and drops repeated request ids.
// The first occurrence of a request id wins.
func NewEventLog(unitID string, events []ScanEvent) *EventLog {
	ordered := make([]ScanEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].ScannedAt.Equal(ordered[j].ScannedAt) {
			return ordered[i].ScannedAt.Before(ordered[j].ScannedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	seen := make(map[string]struct{}, len(ordered))
	out := ordered[:0]
	for _, e := range ordered {
		if e.RequestID != "" {
			if _, dup := seen[e.RequestID]; dup {
				continue
			}
			seen[e.RequestID] = struct{}{}
		}
		out = append(out, e)
	}
	return &EventLog{unitID: unitID, events: out}
}

// LoadEventLog drains every page of a unit's scan events into a view
func LoadEventLog(ctx context.Context, source ScanEventSource, unitID string, pageSize int) (*EventLog, error) {
	seq := NewPageSequence(pageSize, func(ctx context.Context, page, size int) ([]ScanEvent, error) {
		return source.FindByUnit(ctx, unitID, page, size)
	})
	events, err := CollectAll(ctx, seq)
	if err != nil {
		return nil, err
	}
	return NewEventLog(unitID, events), nil
}

// UnitID returns the unit the log belongs to
func (l *EventLog) UnitID() string { return l.unitID }

// Len returns the number of distinct events
func (l *EventLog) Len() int {
	if l == nil {
		return 0
	}
	return len(l.events)
}

// Events returns a copy of all events in order
func (l *EventLog) Events() []ScanEvent {
	if l == nil {
		return nil
	}
	out := make([]ScanEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Successful returns the events that count toward progression
func (l *EventLog) Successful() []ScanEvent {
	return l.filter(func(e ScanEvent) bool { return e.IsSuccess() })
}

// Find returns the event with the given id
func (l *EventLog) Find(id string) (ScanEvent, bool) {
	if l == nil || id == "" {
		return ScanEvent{}, false
	}
	for _, e := range l.events {
		if e.ID == id {
			return e, true
		}
	}
	return ScanEvent{}, false
}

// ForStage returns the events that resolve to stageKey in the catalog
func (l *EventLog) ForStage(catalog *StageCatalog, stageKey string) []ScanEvent {
	return l.filter(func(e ScanEvent) bool { return eventStageKey(e, catalog) == stageKey })
}

// SuccessfulForStage returns the successful events that resolve to stageKey
func (l *EventLog) SuccessfulForStage(catalog *StageCatalog, stageKey string) []ScanEvent {
	return l.filter(func(e ScanEvent) bool {
		return e.IsSuccess() && eventStageKey(e, catalog) == stageKey
	})
}

// HasAnyForStage reports whether any event, of any outcome, resolves to stageKey
func (l *EventLog) HasAnyForStage(catalog *StageCatalog, stageKey string) bool {
	return len(l.ForStage(catalog, stageKey)) > 0
}

func (l *EventLog) filter(keep func(ScanEvent) bool) []ScanEvent {
	if l == nil {
		return nil
	}
	var out []ScanEvent
	for _, e := range l.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// eventStageKey resolves the stage an event belongs to. Unresolvable and
// ambiguous references map to no stage.
func eventStageKey(e ScanEvent, catalog *StageCatalog) string {
	if catalog == nil {
		return e.StageKey
	}
	if e.StageKey != "" && catalog.IndexOf(e.StageKey) >= 0 {
		return e.StageKey
	}
	key, err := ResolveStageKey(e.Ref(), catalog)
	if err != nil {
		return ""
	}
	return key
}
