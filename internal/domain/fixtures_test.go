package domain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

// standardCatalog is the usual five-node flow with batch-level procurement and cutting
func standardCatalog(t *testing.T) *StageCatalog {
	t.Helper()
	catalog, err := NewStageCatalog("ST-1001", []StageDefinition{
		{StageKey: "warehouse", StageName: NodeWarehouse, SortOrder: 5},
		{StageKey: "procurement", StageName: NodeProcurement, SortOrder: 1, Skippable: true},
		{StageKey: "cutting", StageName: NodeCutting, SortOrder: 2, Skippable: true},
		{StageKey: "sewing", StageName: NodeSewing, SortOrder: 3},
		{StageKey: "quality", StageName: NodeQuality, SortOrder: 4},
	})
	require.NoError(t, err)
	return catalog
}

func scan(id, stageKey string, outcome ScanOutcome, minutes int) ScanEvent {
	return ScanEvent{
		ID:        id,
		RequestID: "req-" + id,
		UnitID:    "U-1",
		OrderID:   "PO-1",
		StageKey:  stageKey,
		Outcome:   outcome,
		Quantity:  30,
		ScannedAt: baseTime.Add(time.Duration(minutes) * time.Minute),
	}
}

func confirmed(e ScanEvent) ScanEvent {
	at := e.ScannedAt.Add(time.Minute)
	e.ConfirmedAt = &at
	e.SubCode = SubCodeConfirm
	return e
}

func intPtr(n int) *int { return &n }

func openUnit(target int) ProductionUnit {
	return ProductionUnit{
		UnitID:         "U-1",
		Kind:           UnitKindOrder,
		OrderID:        "PO-1",
		StyleNo:        "ST-1001",
		TargetQuantity: target,
		Status:         UnitStatusProduction,
	}
}

// pagedSource serves records in fixed-size pages
type pagedSource struct {
	mu      sync.Mutex
	records []WarehousingRecord
	failOn  int
	calls   []int
}

func (s *pagedSource) FindPage(_ context.Context, _ ProductionUnit, page, pageSize int) ([]WarehousingRecord, error) {
	s.mu.Lock()
	s.calls = append(s.calls, page)
	s.mu.Unlock()

	if s.failOn == page {
		return nil, errors.New("warehousing service unavailable")
	}
	start := (page - 1) * pageSize
	if start >= len(s.records) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(s.records) {
		end = len(s.records)
	}
	return s.records[start:end], nil
}

func (s *pagedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// countingSource additionally reports a record count, enabling concurrent fetches
type countingSource struct {
	*pagedSource
}

func (s countingSource) Count(_ context.Context, _ ProductionUnit) (int64, error) {
	return int64(len(s.records)), nil
}

func records(n, qty int) []WarehousingRecord {
	out := make([]WarehousingRecord, n)
	for i := range out {
		out[i] = WarehousingRecord{ID: "W", OrderID: "PO-1", QualifiedQuantity: qty}
	}
	return out
}

type stubChecker struct {
	ok  bool
	err error
	got *ScanEvent
}

func (c *stubChecker) IsQuantitySatisfied(_ context.Context, _ ProductionUnit, trigger *ScanEvent) (bool, error) {
	c.got = trigger
	return c.ok, c.err
}
