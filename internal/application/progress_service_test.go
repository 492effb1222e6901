package application

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fashion-supplychain/progress-service/internal/domain"
	"github.com/fashion-supplychain/progress-service/pkg/errors"
	"github.com/fashion-supplychain/progress-service/pkg/logging"
)

var now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type mockScanRepo struct {
	findByUnitFn      func(context.Context, string, int, int) ([]domain.ScanEvent, error)
	saveFn            func(context.Context, *domain.ScanEvent, ...domain.DomainEvent) error
	findByIDFn        func(context.Context, string) (*domain.ScanEvent, error)
	findByRequestIDFn func(context.Context, string) (*domain.ScanEvent, error)
	markUndoneFn      func(context.Context, string, string, time.Time, ...domain.DomainEvent) error

	events    []domain.ScanEvent
	lastSaved *domain.ScanEvent
	published []domain.DomainEvent
}

func (m *mockScanRepo) FindByUnit(ctx context.Context, unitID string, page, pageSize int) ([]domain.ScanEvent, error) {
	if m.findByUnitFn != nil {
		return m.findByUnitFn(ctx, unitID, page, pageSize)
	}
	start := (page - 1) * pageSize
	if start >= len(m.events) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(m.events) {
		end = len(m.events)
	}
	return m.events[start:end], nil
}

func (m *mockScanRepo) Save(ctx context.Context, event *domain.ScanEvent, events ...domain.DomainEvent) error {
	m.lastSaved = event
	m.published = append(m.published, events...)
	if m.saveFn != nil {
		return m.saveFn(ctx, event, events...)
	}
	return nil
}

func (m *mockScanRepo) FindByID(ctx context.Context, scanID string) (*domain.ScanEvent, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, scanID)
	}
	for i := range m.events {
		if m.events[i].ID == scanID {
			e := m.events[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (m *mockScanRepo) FindByRequestID(ctx context.Context, requestID string) (*domain.ScanEvent, error) {
	if m.findByRequestIDFn != nil {
		return m.findByRequestIDFn(ctx, requestID)
	}
	return nil, nil
}

func (m *mockScanRepo) CountByUnit(_ context.Context, _ string) (int64, error) {
	return int64(len(m.events)), nil
}

// MarkUndone runs step after markUndoneFn and publishes only when both succeed
func (m *mockScanRepo) MarkUndone(ctx context.Context, scanID, undoneBy string, at time.Time, step domain.UndoStep, events ...domain.DomainEvent) error {
	if m.markUndoneFn != nil {
		if err := m.markUndoneFn(ctx, scanID, undoneBy, at, events...); err != nil {
			return err
		}
	}
	if step != nil {
		if err := step(ctx); err != nil {
			return err
		}
	}
	m.published = append(m.published, events...)
	return nil
}

type mockCatalogRepo struct {
	findByStyleFn func(context.Context, string) ([]domain.StageDefinition, error)
	saveFn        func(context.Context, string, []domain.StageDefinition) error
	finds         atomic.Int32
	saved         []domain.StageDefinition
}

func (m *mockCatalogRepo) FindByStyle(ctx context.Context, styleNo string) ([]domain.StageDefinition, error) {
	m.finds.Add(1)
	if m.findByStyleFn != nil {
		return m.findByStyleFn(ctx, styleNo)
	}
	return nil, nil
}

func (m *mockCatalogRepo) Save(ctx context.Context, styleNo string, stages []domain.StageDefinition) error {
	m.saved = stages
	if m.saveFn != nil {
		return m.saveFn(ctx, styleNo, stages)
	}
	return nil
}

type mockUnitRepo struct {
	findByIDFn func(context.Context, string) (*domain.ProductionUnit, error)
}

func (m *mockUnitRepo) FindByID(ctx context.Context, unitID string) (*domain.ProductionUnit, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, unitID)
	}
	return nil, nil
}

func (m *mockUnitRepo) Save(_ context.Context, _ *domain.ProductionUnit) error { return nil }

type mockWarehousingRepo struct {
	findPageFn func(context.Context, domain.ProductionUnit, int, int) ([]domain.WarehousingRecord, error)
	countFn    func(context.Context, domain.ProductionUnit) (int64, error)
	rollbackFn func(context.Context, string, string, string, int) (int, error)
	rollbacks  int
}

func (m *mockWarehousingRepo) FindPage(ctx context.Context, unit domain.ProductionUnit, page, pageSize int) ([]domain.WarehousingRecord, error) {
	if m.findPageFn != nil {
		return m.findPageFn(ctx, unit, page, pageSize)
	}
	return nil, nil
}

func (m *mockWarehousingRepo) Count(ctx context.Context, unit domain.ProductionUnit) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, unit)
	}
	return 0, nil
}

func (m *mockWarehousingRepo) RollbackByBundle(ctx context.Context, scanID, orderID, bundleID string, quantity int) (int, error) {
	m.rollbacks++
	if m.rollbackFn != nil {
		return m.rollbackFn(ctx, scanID, orderID, bundleID, quantity)
	}
	return 1, nil
}

type mockTaskRepo struct {
	findCandidatesFn func(context.Context, string, domain.TaskKind) ([]domain.TaskClaim, error)
	markReceivedFn   func(context.Context, string, domain.Actor, time.Time, ...domain.DomainEvent) error
	received         []string
}

func (m *mockTaskRepo) FindCandidates(ctx context.Context, orderID string, kind domain.TaskKind) ([]domain.TaskClaim, error) {
	if m.findCandidatesFn != nil {
		return m.findCandidatesFn(ctx, orderID, kind)
	}
	return nil, nil
}

func (m *mockTaskRepo) MarkReceived(ctx context.Context, taskID string, actor domain.Actor, at time.Time, events ...domain.DomainEvent) error {
	m.received = append(m.received, taskID)
	if m.markReceivedFn != nil {
		return m.markReceivedFn(ctx, taskID, actor, at, events...)
	}
	return nil
}

func testLogger() *logging.Logger {
	cfg := logging.DefaultConfig("progress-service-test")
	cfg.Level = logging.LevelError
	return logging.New(cfg)
}

func standardStages() []domain.StageDefinition {
	return []domain.StageDefinition{
		{StageKey: "procurement", StageName: domain.NodeProcurement, SortOrder: 1, Skippable: true},
		{StageKey: "cutting", StageName: domain.NodeCutting, SortOrder: 2},
		{StageKey: "sewing", StageName: domain.NodeSewing, SortOrder: 3},
		{StageKey: "quality", StageName: domain.NodeQuality, SortOrder: 4},
		{StageKey: "warehouse", StageName: domain.NodeWarehouse, SortOrder: 5},
	}
}

func productionUnit() *domain.ProductionUnit {
	return &domain.ProductionUnit{
		UnitID:         "U-1",
		Kind:           domain.UnitKindBundle,
		OrderID:        "PO-1",
		BundleID:       "B-1",
		StyleNo:        "ST-1001",
		TargetQuantity: 30,
		Status:         domain.UnitStatusProduction,
	}
}

func scanAt(id, stageKey string, minutesAgo int) domain.ScanEvent {
	return domain.ScanEvent{
		ID:         id,
		RequestID:  "req-" + id,
		UnitID:     "U-1",
		OrderID:    "PO-1",
		StageKey:   stageKey,
		Outcome:    domain.OutcomeSuccess,
		Quantity:   30,
		OperatorID: "W-1",
		ScannedAt:  now.Add(-time.Duration(minutesAgo) * time.Minute),
	}
}

type fixture struct {
	scans       *mockScanRepo
	catalogs    *mockCatalogRepo
	units       *mockUnitRepo
	warehousing *mockWarehousingRepo
	tasks       *mockTaskRepo
}

func newFixture() *fixture {
	return &fixture{
		scans: &mockScanRepo{},
		catalogs: &mockCatalogRepo{findByStyleFn: func(context.Context, string) ([]domain.StageDefinition, error) {
			return standardStages(), nil
		}},
		units: &mockUnitRepo{findByIDFn: func(context.Context, string) (*domain.ProductionUnit, error) {
			return productionUnit(), nil
		}},
		tasks: &mockTaskRepo{},
	}
}

func (f *fixture) service() *ProgressApplicationService {
	deps := Dependencies{
		Scans:    f.scans,
		Catalogs: f.catalogs,
		Units:    f.units,
		Tasks:    f.tasks,
		Logger:   testLogger(),
		Clock:    func() time.Time { return now },
	}
	if f.warehousing != nil {
		deps.Warehousing = f.warehousing
	}
	return NewProgressApplicationService(deps, DefaultConfig())
}

func requireAppError(t *testing.T, err error, code string) *errors.AppError {
	t.Helper()
	require.Error(t, err)
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
	return appErr
}

func TestResolveStage(t *testing.T) {
	f := newFixture()
	f.scans.events = []domain.ScanEvent{
		scanAt("S-1", "cutting", 50),
		scanAt("S-2", "sewing", 40),
	}

	dto, err := f.service().ResolveStage(context.Background(), ResolveStageQuery{UnitID: "U-1"})
	require.NoError(t, err)

	assert.True(t, dto.Determined)
	assert.Equal(t, "quality", dto.StageKey)
	assert.Equal(t, string(domain.SubStatePending), dto.SubState)
	assert.Equal(t, "ST-1001", dto.StyleNo)
	assert.False(t, dto.IsCompleted)
	assert.Equal(t, now, dto.ResolvedAt)
}

func TestResolveStageCompletedByWarehousing(t *testing.T) {
	f := newFixture()
	confirm := scanAt("S-3", "quality", 30)
	confirm.SubCode = domain.SubCodeConfirm
	f.scans.events = []domain.ScanEvent{scanAt("S-1", "cutting", 50), scanAt("S-2", "sewing", 40), confirm}
	f.warehousing = &mockWarehousingRepo{
		countFn: func(context.Context, domain.ProductionUnit) (int64, error) { return 3, nil },
		findPageFn: func(_ context.Context, _ domain.ProductionUnit, page, _ int) ([]domain.WarehousingRecord, error) {
			if page > 1 {
				return nil, nil
			}
			return []domain.WarehousingRecord{
				{ID: "W-1", QualifiedQuantity: 10},
				{ID: "W-2", QualifiedQuantity: 10},
				{ID: "W-3", QualifiedQuantity: 10},
			}, nil
		},
	}

	dto, err := f.service().ResolveStage(context.Background(), ResolveStageQuery{UnitID: "U-1"})
	require.NoError(t, err)
	assert.True(t, dto.IsCompleted)
	assert.Equal(t, domain.StageCompleted, dto.StageKey)
	assert.False(t, dto.Conservative)
}

func TestResolveStageWarehousingFailureIsConservative(t *testing.T) {
	f := newFixture()
	confirm := scanAt("S-3", "quality", 30)
	confirm.SubCode = domain.SubCodeConfirm
	f.scans.events = []domain.ScanEvent{scanAt("S-1", "cutting", 50), scanAt("S-2", "sewing", 40), confirm}
	f.warehousing = &mockWarehousingRepo{
		countFn: func(context.Context, domain.ProductionUnit) (int64, error) {
			return 0, stderrors.New("warehousing down")
		},
	}

	dto, err := f.service().ResolveStage(context.Background(), ResolveStageQuery{UnitID: "U-1"})
	require.NoError(t, err)
	assert.True(t, dto.Determined)
	assert.True(t, dto.Conservative)
	assert.False(t, dto.IsCompleted)
	assert.Equal(t, "warehouse", dto.StageKey)
}

func TestResolveStageFailures(t *testing.T) {
	t.Run("unit fetch error is undetermined", func(t *testing.T) {
		f := newFixture()
		f.units.findByIDFn = func(context.Context, string) (*domain.ProductionUnit, error) {
			return nil, stderrors.New("connection refused")
		}
		dto, err := f.service().ResolveStage(context.Background(), ResolveStageQuery{UnitID: "U-1"})
		require.NoError(t, err)
		assert.False(t, dto.Determined)
		assert.Equal(t, "U-1", dto.UnitID)
		assert.False(t, dto.IsCompleted)
	})

	t.Run("event log error is undetermined", func(t *testing.T) {
		f := newFixture()
		f.scans.findByUnitFn = func(context.Context, string, int, int) ([]domain.ScanEvent, error) {
			return nil, stderrors.New("cursor killed")
		}
		dto, err := f.service().ResolveStage(context.Background(), ResolveStageQuery{UnitID: "U-1"})
		require.NoError(t, err)
		assert.False(t, dto.Determined)
	})

	t.Run("unknown unit", func(t *testing.T) {
		f := newFixture()
		f.units.findByIDFn = func(context.Context, string) (*domain.ProductionUnit, error) { return nil, nil }
		_, err := f.service().ResolveStage(context.Background(), ResolveStageQuery{UnitID: "U-9"})
		appErr := requireAppError(t, err, errors.CodeNotFound)
		assert.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
	})

	t.Run("missing catalog", func(t *testing.T) {
		f := newFixture()
		f.catalogs.findByStyleFn = nil
		_, err := f.service().ResolveStage(context.Background(), ResolveStageQuery{UnitID: "U-1"})
		appErr := requireAppError(t, err, errors.CodeMissingCatalog)
		assert.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
	})

	t.Run("empty unit id", func(t *testing.T) {
		_, err := newFixture().service().ResolveStage(context.Background(), ResolveStageQuery{})
		requireAppError(t, err, errors.CodeValidationError)
	})
}

func TestResolveStageDeclaredComplete(t *testing.T) {
	f := newFixture()
	f.units.findByIDFn = func(context.Context, string) (*domain.ProductionUnit, error) {
		u := productionUnit()
		u.Status = domain.UnitStatusCompleted
		return u, nil
	}
	dto, err := f.service().ResolveStage(context.Background(), ResolveStageQuery{UnitID: "U-1"})
	require.NoError(t, err)
	assert.True(t, dto.IsCompleted)
}

func TestCatalogCache(t *testing.T) {
	f := newFixture()
	svc := f.service()

	for i := 0; i < 3; i++ {
		_, err := svc.GetCatalog(context.Background(), GetCatalogQuery{StyleNo: "ST-1001"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.catalogs.finds.Load())

	_, err := svc.SaveCatalog(context.Background(), SaveCatalogCommand{
		StyleNo: "ST-1001",
		Stages:  []StageInput{{StageKey: "sewing", StageName: domain.NodeSewing, SortOrder: 1, UnitPrice: "1.5"}},
	})
	require.NoError(t, err)

	_, err = svc.GetCatalog(context.Background(), GetCatalogQuery{StyleNo: "ST-1001"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.catalogs.finds.Load())
}

func TestCatalogSeeder(t *testing.T) {
	f := newFixture()
	f.catalogs.findByStyleFn = nil
	svc := NewProgressApplicationService(Dependencies{
		Scans:    f.scans,
		Catalogs: f.catalogs,
		Units:    f.units,
		Logger:   testLogger(),
		Seeder: func(string) ([]domain.StageDefinition, error) {
			return standardStages(), nil
		},
	}, DefaultConfig())

	dto, err := svc.GetCatalog(context.Background(), GetCatalogQuery{StyleNo: "ST-NEW"})
	require.NoError(t, err)
	assert.Len(t, dto.Stages, 5)
	assert.Len(t, f.catalogs.saved, 5)
}

func TestSaveCatalogValidation(t *testing.T) {
	svc := newFixture().service()

	_, err := svc.SaveCatalog(context.Background(), SaveCatalogCommand{
		StyleNo: "ST-1",
		Stages: []StageInput{
			{StageKey: "sewing", StageName: domain.NodeSewing},
			{StageKey: "sewing", StageName: domain.NodeIroning},
		},
	})
	requireAppError(t, err, errors.CodeValidationError)

	_, err = svc.SaveCatalog(context.Background(), SaveCatalogCommand{
		StyleNo: "ST-1",
		Stages:  []StageInput{{StageName: domain.NodeSewing, UnitPrice: "-2"}},
	})
	requireAppError(t, err, errors.CodeValidationError)
}

func TestRecordScan(t *testing.T) {
	f := newFixture()
	svc := f.service()

	result, err := svc.RecordScan(context.Background(), RecordScanCommand{
		RequestID:  "req-100",
		UnitID:     "U-1",
		StageName:  "车缝",
		Outcome:    "success",
		Quantity:   30,
		OperatorID: "W-1",
	})
	require.NoError(t, err)

	assert.False(t, result.Duplicate)
	assert.Equal(t, "sewing", result.Scan.StageKey)
	assert.Equal(t, string(domain.CategoryProduction), result.Scan.Category)
	assert.Equal(t, "PO-1", result.Scan.OrderID)
	assert.Equal(t, "B-1", result.Scan.BundleID)
	assert.Equal(t, now, result.Scan.ScannedAt)
	assert.NotEmpty(t, result.Scan.ID)

	require.Len(t, f.scans.published, 1)
	recorded, ok := f.scans.published[0].(*domain.ScanRecordedEvent)
	require.True(t, ok)
	assert.Equal(t, "sewing", recorded.StageKey)
	assert.Equal(t, "U-1", recorded.AggregateID())
}

func TestRecordScanBindingRules(t *testing.T) {
	tests := []struct {
		name  string
		cmd   RecordScanCommand
		field string
	}{
		{"unknown outcome", RecordScanCommand{RequestID: "r-1", UnitID: "U-1", StageKey: "sewing", Outcome: "maybe"}, "outcome"},
		{"negative quantity", RecordScanCommand{RequestID: "r-1", UnitID: "U-1", StageKey: "sewing", Outcome: "success", Quantity: -1}, "quantity"},
		{"no stage reference", RecordScanCommand{RequestID: "r-1", UnitID: "U-1", Outcome: "success"}, "stageKey"},
		{"unknown sub-code", RecordScanCommand{RequestID: "r-1", UnitID: "U-1", StageKey: "quality", SubCode: "skip", Outcome: "success"}, "subCode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.service().RecordScan(context.Background(), tt.cmd)
			appErr := requireAppError(t, err, errors.CodeValidationError)
			assert.Contains(t, appErr.Details, tt.field)
			assert.Nil(t, f.scans.lastSaved)
		})
	}
}

func TestRecordScanTerminalClock(t *testing.T) {
	tests := []struct {
		name      string
		scannedAt time.Time
		wantErr   bool
	}{
		{name: "offline scan uploaded late", scannedAt: now.Add(-3 * time.Hour)},
		{name: "terminal slightly ahead", scannedAt: now.Add(2 * time.Minute)},
		{name: "terminal a month ahead", scannedAt: now.Add(30 * 24 * time.Hour), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			at := tt.scannedAt
			result, err := f.service().RecordScan(context.Background(), RecordScanCommand{
				RequestID: "req-1", UnitID: "U-1", StageKey: "sewing", Outcome: "success", Quantity: 30, ScannedAt: &at,
			})
			if tt.wantErr {
				appErr := requireAppError(t, err, errors.CodeValidationError)
				assert.Contains(t, appErr.Details, "scannedAt")
				assert.Nil(t, f.scans.lastSaved)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, at, result.Scan.ScannedAt)
			assert.Equal(t, now, f.scans.lastSaved.RecordedAt)
		})
	}
}

func TestRecordScanQualityDefects(t *testing.T) {
	f := newFixture()
	result, err := f.service().RecordScan(context.Background(), RecordScanCommand{
		RequestID: "req-q",
		UnitID:    "U-1",
		StageName: "检验",
		SubCode:   domain.SubCodeConfirm,
		Outcome:   "success",
		Quantity:  30,
		Remark:    "unqualified|defectQty=4",
	})
	require.NoError(t, err)

	assert.Equal(t, "quality", result.Scan.StageKey)
	assert.Equal(t, string(domain.CategoryQuality), result.Scan.Category)
	require.NotNil(t, result.Scan.DefectQuantity)
	assert.Equal(t, 4, *result.Scan.DefectQuantity)
	require.NotNil(t, result.Scan.ConfirmedAt)
	assert.Equal(t, now, *result.Scan.ConfirmedAt)
}

func TestRecordScanDuplicates(t *testing.T) {
	stored := scanAt("S-1", "sewing", 5)

	t.Run("known request id", func(t *testing.T) {
		f := newFixture()
		f.scans.findByRequestIDFn = func(context.Context, string) (*domain.ScanEvent, error) { return &stored, nil }

		result, err := f.service().RecordScan(context.Background(), RecordScanCommand{
			RequestID: stored.RequestID, UnitID: "U-1", StageKey: "sewing", Outcome: "success",
		})
		require.NoError(t, err)
		assert.True(t, result.Duplicate)
		assert.Equal(t, "S-1", result.Scan.ID)
		assert.Nil(t, f.scans.lastSaved)
	})

	t.Run("concurrent insert", func(t *testing.T) {
		f := newFixture()
		calls := 0
		f.scans.findByRequestIDFn = func(context.Context, string) (*domain.ScanEvent, error) {
			calls++
			if calls == 1 {
				return nil, nil
			}
			return &stored, nil
		}
		f.scans.saveFn = func(context.Context, *domain.ScanEvent, ...domain.DomainEvent) error {
			return domain.ErrDuplicateRequest
		}

		result, err := f.service().RecordScan(context.Background(), RecordScanCommand{
			RequestID: stored.RequestID, UnitID: "U-1", StageKey: "sewing", Outcome: "success",
		})
		require.NoError(t, err)
		assert.True(t, result.Duplicate)
		assert.Equal(t, 2, calls)
	})
}

func TestRecordScanStageErrors(t *testing.T) {
	t.Run("unknown stage name", func(t *testing.T) {
		f := newFixture()
		_, err := f.service().RecordScan(context.Background(), RecordScanCommand{
			RequestID: "req-1", UnitID: "U-1", StageName: "绣花", Outcome: "success",
		})
		appErr := requireAppError(t, err, errors.CodeValidationError)
		assert.Equal(t, "绣花", appErr.Details["stage"])
	})

	t.Run("no catalog and only a name", func(t *testing.T) {
		f := newFixture()
		f.catalogs.findByStyleFn = nil
		_, err := f.service().RecordScan(context.Background(), RecordScanCommand{
			RequestID: "req-1", UnitID: "U-1", StageName: "车缝", Outcome: "success",
		})
		requireAppError(t, err, errors.CodeMissingCatalog)
	})

	t.Run("no catalog with a stage key", func(t *testing.T) {
		f := newFixture()
		f.catalogs.findByStyleFn = nil
		result, err := f.service().RecordScan(context.Background(), RecordScanCommand{
			RequestID: "req-1", UnitID: "U-1", StageKey: "sewing", StageName: "车缝", Outcome: "success",
		})
		require.NoError(t, err)
		assert.Equal(t, "sewing", result.Scan.StageKey)
	})

	t.Run("unknown unit", func(t *testing.T) {
		f := newFixture()
		f.units.findByIDFn = nil
		_, err := f.service().RecordScan(context.Background(), RecordScanCommand{
			RequestID: "req-1", UnitID: "U-9", StageKey: "sewing", Outcome: "success",
		})
		requireAppError(t, err, errors.CodeNotFound)
	})
}

func TestGetUndoEligibility(t *testing.T) {
	tests := []struct {
		name    string
		events  []domain.ScanEvent
		scanID  string
		rescan  bool
		actor   domain.Actor
		allowed bool
		reason  domain.UndoReason
	}{
		{
			name:    "recent scan",
			events:  []domain.ScanEvent{scanAt("S-1", "cutting", 10)},
			scanID:  "S-1",
			allowed: true,
		},
		{
			name:   "window expired",
			events: []domain.ScanEvent{scanAt("S-1", "cutting", 60)},
			scanID: "S-1",
			reason: domain.UndoWindowExpired,
		},
		{
			name:   "downstream progressed",
			events: []domain.ScanEvent{scanAt("S-1", "cutting", 10), scanAt("S-2", "sewing", 5)},
			scanID: "S-1",
			reason: domain.UndoDownstreamProgressed,
		},
		{
			name:   "rescan by another operator",
			events: []domain.ScanEvent{scanAt("S-1", "cutting", 10)},
			scanID: "S-1",
			rescan: true,
			actor:  domain.Actor{ID: "W-2"},
			reason: domain.UndoOperatorMismatch,
		},
		{
			name:    "rescan by the scanning operator",
			events:  []domain.ScanEvent{scanAt("S-1", "cutting", 10)},
			scanID:  "S-1",
			rescan:  true,
			actor:   domain.Actor{ID: "W-1"},
			allowed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.scans.events = tt.events

			dto, err := f.service().GetUndoEligibility(context.Background(), UndoEligibilityQuery{
				ScanID: tt.scanID, Actor: tt.actor, Rescan: tt.rescan,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, dto.Allowed)
			assert.Equal(t, string(tt.reason), dto.Reason)
			assert.NotEmpty(t, dto.Message)
		})
	}
}

func TestGetUndoEligibilityUnknownScan(t *testing.T) {
	_, err := newFixture().service().GetUndoEligibility(context.Background(), UndoEligibilityQuery{ScanID: "S-404"})
	requireAppError(t, err, errors.CodeNotFound)
}

func TestUndoScan(t *testing.T) {
	f := newFixture()
	warehoused := scanAt("S-5", "warehouse", 10)
	warehoused.BundleID = "B-1"
	warehoused.Category = domain.CategoryWarehouse
	f.scans.events = []domain.ScanEvent{scanAt("S-1", "cutting", 30), warehoused}
	f.warehousing = &mockWarehousingRepo{}

	var undoneBy string
	f.scans.markUndoneFn = func(_ context.Context, _ string, by string, _ time.Time, _ ...domain.DomainEvent) error {
		undoneBy = by
		return nil
	}

	result, err := f.service().UndoScan(context.Background(), UndoScanCommand{
		ScanID: "S-5",
		Actor:  domain.Actor{ID: "SUP-1", Name: "Li Si"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.warehousing.rollbacks)
	assert.Equal(t, 1, result.RolledBackRecords)
	assert.Equal(t, "SUP-1", undoneBy)
	assert.Equal(t, now, result.UndoneAt)

	require.Len(t, f.scans.published, 1)
	undone, ok := f.scans.published[0].(*domain.ScanUndoneEvent)
	require.True(t, ok)
	assert.Equal(t, 1, undone.RolledBack)
}

func TestUndoScanRejections(t *testing.T) {
	t.Run("ineligible", func(t *testing.T) {
		f := newFixture()
		settled := scanAt("S-1", "cutting", 10)
		settled.SettlementID = "PAY-1"
		f.scans.events = []domain.ScanEvent{settled}

		_, err := f.service().UndoScan(context.Background(), UndoScanCommand{ScanID: "S-1", Actor: domain.Actor{ID: "W-1"}})
		appErr := requireAppError(t, err, errors.CodeUndoRejected)
		assert.Equal(t, string(domain.UndoSettled), appErr.Details["reason"])
	})

	t.Run("changed concurrently", func(t *testing.T) {
		f := newFixture()
		f.scans.events = []domain.ScanEvent{scanAt("S-1", "cutting", 10)}
		f.scans.markUndoneFn = func(context.Context, string, string, time.Time, ...domain.DomainEvent) error {
			return domain.ErrScanNotUndoable
		}

		_, err := f.service().UndoScan(context.Background(), UndoScanCommand{ScanID: "S-1", Actor: domain.Actor{ID: "W-1"}})
		requireAppError(t, err, errors.CodeConflict)
	})

	t.Run("rollback failure publishes nothing", func(t *testing.T) {
		f := newFixture()
		warehoused := scanAt("S-1", "warehouse", 10)
		warehoused.BundleID = "B-1"
		warehoused.Category = domain.CategoryWarehouse
		f.scans.events = []domain.ScanEvent{warehoused}
		f.warehousing = &mockWarehousingRepo{rollbackFn: func(context.Context, string, string, string, int) (int, error) {
			return 0, stderrors.New("write conflict")
		}}

		_, err := f.service().UndoScan(context.Background(), UndoScanCommand{ScanID: "S-1", Actor: domain.Actor{ID: "W-1"}})
		require.Error(t, err)
		assert.Empty(t, f.scans.published)
	})
}

// bundleLedger holds warehousing records and rolls back the newest live ones
// first, tagging them with the undoing scan.
type bundleLedger struct {
	mockWarehousingRepo
	records []domain.WarehousingRecord
}

func (l *bundleLedger) RollbackByBundle(_ context.Context, scanID, _, bundleID string, quantity int) (int, error) {
	for _, r := range l.records {
		if r.RolledBackBy == scanID {
			return 0, nil
		}
	}
	changed, covered := 0, 0
	for i := len(l.records) - 1; i >= 0 && covered < quantity; i-- {
		r := &l.records[i]
		if r.BundleID != bundleID || r.RolledBack {
			continue
		}
		covered += r.Qualified()
		r.RolledBack, r.RolledBackBy = true, scanID
		changed++
	}
	return changed, nil
}

func (l *bundleLedger) rolledBackQuantity() int {
	total := 0
	for _, r := range l.records {
		if r.RolledBack {
			total += r.QualifiedQuantity
		}
	}
	return total
}

// txScans commits the undo flag and the undo step together over ledger
type txScans struct {
	*mockScanRepo
	ledger      *bundleLedger
	failCommits int
	undone      map[string]bool
}

func (r *txScans) MarkUndone(ctx context.Context, scanID, _ string, _ time.Time, step domain.UndoStep, events ...domain.DomainEvent) error {
	if r.undone[scanID] {
		return domain.ErrScanNotUndoable
	}
	saved := append([]domain.WarehousingRecord(nil), r.ledger.records...)
	if step != nil {
		if err := step(ctx); err != nil {
			r.ledger.records = saved
			return err
		}
	}
	if r.failCommits > 0 {
		r.failCommits--
		r.ledger.records = saved
		return stderrors.New("transient write error")
	}
	r.undone[scanID] = true
	r.published = append(r.published, events...)
	return nil
}

func TestUndoScanRetryRollsBackOnce(t *testing.T) {
	warehoused := scanAt("S-1", "warehouse", 10)
	warehoused.BundleID = "B-1"
	warehoused.Category = domain.CategoryWarehouse

	ledger := &bundleLedger{records: []domain.WarehousingRecord{
		{ID: "W-1", OrderID: "PO-1", BundleID: "B-1", QualifiedQuantity: 30, WarehousedAt: now.Add(-2 * time.Hour)},
		{ID: "W-2", OrderID: "PO-1", BundleID: "B-1", QualifiedQuantity: 30, WarehousedAt: now.Add(-time.Hour)},
	}}
	scans := &txScans{
		mockScanRepo: &mockScanRepo{events: []domain.ScanEvent{warehoused}},
		ledger:       ledger,
		failCommits:  1,
		undone:       map[string]bool{},
	}
	f := newFixture()
	svc := NewProgressApplicationService(Dependencies{
		Scans:       scans,
		Catalogs:    f.catalogs,
		Units:       f.units,
		Warehousing: ledger,
		Tasks:       f.tasks,
		Logger:      testLogger(),
		Clock:       func() time.Time { return now },
	}, DefaultConfig())
	cmd := UndoScanCommand{ScanID: "S-1", Actor: domain.Actor{ID: "W-1"}}

	_, err := svc.UndoScan(context.Background(), cmd)
	require.Error(t, err)
	assert.Zero(t, ledger.rolledBackQuantity(), "failed undo leaves warehousing untouched")

	result, err := svc.UndoScan(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RolledBackRecords)
	assert.Equal(t, 30, ledger.rolledBackQuantity())

	_, err = svc.UndoScan(context.Background(), cmd)
	requireAppError(t, err, errors.CodeConflict)
	assert.Equal(t, 30, ledger.rolledBackQuantity(), "repeated undo moves no quantity")
	require.Len(t, scans.published, 1)
}

func TestClaimTask(t *testing.T) {
	actor := domain.Actor{ID: "W-1", Name: "Zhang San"}

	t.Run("claims an open task", func(t *testing.T) {
		f := newFixture()
		f.tasks.findCandidatesFn = func(context.Context, string, domain.TaskKind) ([]domain.TaskClaim, error) {
			return []domain.TaskClaim{{TaskID: "T-1", Status: domain.TaskStatusPending}}, nil
		}

		result, err := f.service().ClaimTask(context.Background(), ClaimTaskCommand{
			OrderID: "PO-1", Kind: domain.TaskKindCutting, Actor: actor,
		})
		require.NoError(t, err)
		assert.True(t, result.Claimed)
		assert.Equal(t, string(domain.ClaimActionClaim), result.Action)
		assert.Equal(t, []string{"T-1"}, f.tasks.received)
	})

	t.Run("reuses own claim", func(t *testing.T) {
		f := newFixture()
		f.tasks.findCandidatesFn = func(context.Context, string, domain.TaskKind) ([]domain.TaskClaim, error) {
			return []domain.TaskClaim{
				{TaskID: "T-1", Status: domain.TaskStatusPending},
				{TaskID: "T-2", Status: domain.TaskStatusReceived, ReceiverID: "W-1"},
			}, nil
		}

		result, err := f.service().ClaimTask(context.Background(), ClaimTaskCommand{
			OrderID: "PO-1", Kind: domain.TaskKindCutting, Actor: actor,
		})
		require.NoError(t, err)
		assert.Equal(t, "T-2", result.TaskID)
		assert.Equal(t, string(domain.ClaimActionUseExisting), result.Action)
		assert.Empty(t, f.tasks.received)
	})

	t.Run("lost race", func(t *testing.T) {
		f := newFixture()
		f.tasks.findCandidatesFn = func(context.Context, string, domain.TaskKind) ([]domain.TaskClaim, error) {
			return []domain.TaskClaim{{TaskID: "T-1", Status: domain.TaskStatusPending}}, nil
		}
		f.tasks.markReceivedFn = func(context.Context, string, domain.Actor, time.Time, ...domain.DomainEvent) error {
			return domain.ErrClaimConflict
		}

		_, err := f.service().ClaimTask(context.Background(), ClaimTaskCommand{
			OrderID: "PO-1", Kind: domain.TaskKindCutting, Actor: actor,
		})
		requireAppError(t, err, errors.CodeConflict)
	})

	t.Run("anonymous actor", func(t *testing.T) {
		_, err := newFixture().service().ClaimTask(context.Background(), ClaimTaskCommand{
			OrderID: "PO-1", Kind: domain.TaskKindCutting,
		})
		requireAppError(t, err, errors.CodeValidationError)
	})
}

func TestListScanHistory(t *testing.T) {
	f := newFixture()
	f.scans.events = []domain.ScanEvent{
		scanAt("S-1", "cutting", 90),
		scanAt("S-2", "sewing", 20),
		scanAt("S-3", "quality", 5),
	}

	page, err := f.service().ListScanHistory(context.Background(), ScanHistoryQuery{UnitID: "U-1", Page: 1, PageSize: 2})
	require.NoError(t, err)

	require.Len(t, page.Data, 2)
	assert.Equal(t, "S-3", page.Data[0].ID)
	assert.Equal(t, "S-2", page.Data[1].ID)
	assert.True(t, page.Data[0].CanUndo)
	assert.False(t, page.Data[1].CanUndo, "a later stage has been scanned")
	assert.Equal(t, int64(3), page.TotalItems)
	assert.True(t, page.HasNext)

	page, err = f.service().ListScanHistory(context.Background(), ScanHistoryQuery{UnitID: "U-1", Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "S-1", page.Data[0].ID)
	assert.False(t, page.Data[0].CanUndo)
}
