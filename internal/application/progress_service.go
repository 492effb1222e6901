package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fashion-supplychain/progress-service/internal/domain"
	"github.com/fashion-supplychain/progress-service/pkg/api"
	"github.com/fashion-supplychain/progress-service/pkg/errors"
	"github.com/fashion-supplychain/progress-service/pkg/logging"
	"github.com/fashion-supplychain/progress-service/pkg/metrics"
	"github.com/fashion-supplychain/progress-service/pkg/middleware"
	"github.com/fashion-supplychain/progress-service/pkg/resilience"
	"github.com/fashion-supplychain/progress-service/pkg/tracing"
)

const tracerName = "progress-service/application"

// Config tunes fetch behaviour of the service
type Config struct {
	EventPageSize          int
	WarehousingPageSize    int
	WarehousingConcurrency int
	WarehousingMaxPages    int
	FetchTimeout           time.Duration
	UndoWindow             time.Duration
	CatalogCacheSize       int
	CatalogCacheTTL        time.Duration
}

// DefaultConfig returns the service defaults
func DefaultConfig() Config {
	return Config{
		EventPageSize:          200,
		WarehousingPageSize:    200,
		WarehousingConcurrency: 4,
		WarehousingMaxPages:    domain.DefaultMaxPages,
		FetchTimeout:           resilience.DefaultCallTimeout,
		UndoWindow:             domain.DefaultUndoWindow,
		CatalogCacheSize:       DefaultCatalogCacheSize,
		CatalogCacheTTL:        DefaultCatalogCacheTTL,
	}
}

// Dependencies are the collaborators of ProgressApplicationService.
// Warehousing, Tasks, Seeder, Breakers and Clock are optional.
type Dependencies struct {
	Scans       domain.ScanEventRepository
	Catalogs    domain.StageCatalogRepository
	Units       domain.ProductionUnitRepository
	Warehousing domain.WarehousingRepository
	Tasks       domain.TaskClaimRepository
	Breakers    *resilience.CircuitBreakerRegistry
	Seeder      CatalogSeeder
	Metrics     *metrics.Metrics
	Logger      *logging.Logger
	Clock       func() time.Time
}

// ProgressApplicationService handles stage resolution, scan recording, undo and claim use cases
type ProgressApplicationService struct {
	scans       domain.ScanEventRepository
	units       domain.ProductionUnitRepository
	warehousing domain.WarehousingRepository
	tasks       domain.TaskClaimRepository

	scanSource  guardedScanSource
	unitBreaker *resilience.CircuitBreaker
	quantity    *guardedWarehousing
	catalogs    *CatalogProvider
	catalogRepo domain.StageCatalogRepository
	guard       *domain.UndoGuard

	config  Config
	metrics *metrics.Metrics
	logger  *logging.Logger
	now     func() time.Time
}

// NewProgressApplicationService creates a new ProgressApplicationService
func NewProgressApplicationService(deps Dependencies, config Config) *ProgressApplicationService {
	defaults := DefaultConfig()
	if config.EventPageSize <= 0 {
		config.EventPageSize = defaults.EventPageSize
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = defaults.FetchTimeout
	}

	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	breakers := deps.Breakers
	if breakers == nil {
		breakers = resilience.NewCircuitBreakerRegistry(deps.Logger.Logger)
	}
	breaker := func(name string) *resilience.CircuitBreaker {
		cfg := resilience.DefaultCircuitBreakerConfig(name)
		cfg.CallTimeout = config.FetchTimeout
		return breakers.GetWithConfig(cfg)
	}

	s := &ProgressApplicationService{
		scans:       deps.Scans,
		units:       deps.Units,
		warehousing: deps.Warehousing,
		tasks:       deps.Tasks,
		scanSource:  guardedScanSource{source: deps.Scans, breaker: breaker(BreakerScanEvents)},
		unitBreaker: breaker(BreakerUnits),
		catalogs: NewCatalogProvider(deps.Catalogs, breaker(BreakerCatalogs),
			config.CatalogCacheSize, config.CatalogCacheTTL, deps.Seeder, deps.Metrics, deps.Logger),
		catalogRepo: deps.Catalogs,
		guard:       domain.NewUndoGuard(config.UndoWindow, now),
		config:      config,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		now:         now,
	}
	if deps.Warehousing != nil {
		s.quantity = newGuardedWarehousing(deps.Warehousing, breaker(BreakerWarehousing), deps.Metrics)
	}
	return s
}

// UndoWindow returns the configured undo window
func (s *ProgressApplicationService) UndoWindow() time.Duration {
	return s.guard.Window()
}

func (s *ProgressApplicationService) loadUnit(ctx context.Context, unitID string) (*domain.ProductionUnit, error) {
	unit, err := resilience.Call(ctx, s.unitBreaker, func(ctx context.Context) (*domain.ProductionUnit, error) {
		return s.units.FindByID(ctx, unitID)
	})
	return unit, asFetchError(err)
}

func (s *ProgressApplicationService) loadLog(ctx context.Context, unitID string) (*domain.EventLog, error) {
	return domain.LoadEventLog(ctx, s.scanSource, unitID, s.config.EventPageSize)
}

func (s *ProgressApplicationService) checker(log *domain.EventLog) domain.QuantityChecker {
	if s.quantity == nil {
		return domain.LogQuantityChecker{Log: log}
	}
	return domain.NewQuantityReconciler(s.quantity,
		domain.WithPageSize(s.config.WarehousingPageSize),
		domain.WithConcurrency(s.config.WarehousingConcurrency),
		domain.WithMaxPages(s.config.WarehousingMaxPages),
	)
}

// ResolveStage computes the current stage of a unit. Fetch failures yield a
// resolution with Determined false rather than an error.
func (s *ProgressApplicationService) ResolveStage(ctx context.Context, query ResolveStageQuery) (*ResolutionDTO, error) {
	start := s.now()
	unitID := strings.TrimSpace(query.UnitID)
	if unitID == "" {
		return nil, errors.ErrValidation("unitId is required")
	}
	logger := s.logger.WithContext(ctx).WithUnit(unitID)

	undetermined := func(source string, unit domain.ProductionUnit, err error) *ResolutionDTO {
		logger.WithError(err).Warn("Stage undetermined", "source", source)
		s.metrics.RecordConservativeFallback(source)
		s.metrics.RecordStageResolution("", "undetermined", s.now().Sub(start))
		s.logger.Performance(ctx, "ResolveStage", s.now().Sub(start), false, map[string]any{
			"unitId": unitID,
			"source": source,
		})
		if unit.UnitID == "" {
			unit.UnitID = unitID
		}
		return ToResolutionDTO(unit, domain.Undetermined(), s.now())
	}

	unit, err := s.loadUnit(ctx, unitID)
	if err != nil {
		return undetermined("production-unit", domain.ProductionUnit{}, err), nil
	}
	if unit == nil {
		return nil, errors.ErrNotFoundWithID("production unit", unitID)
	}

	catalog, err := s.catalogs.Get(ctx, unit.StyleNo)
	if stderrors.Is(err, domain.ErrMissingCatalog) {
		s.metrics.RecordStageResolution("", "missing_catalog", s.now().Sub(start))
		return nil, errors.ErrMissingCatalog(unit.StyleNo)
	}
	if err != nil {
		return undetermined("stage-catalog", *unit, err), nil
	}

	log, err := s.loadLog(ctx, unitID)
	if err != nil {
		return undetermined("scan-events", *unit, err), nil
	}

	var res domain.Resolution
	err = tracing.TracedOperation(ctx, tracerName, "ResolveStage", func(ctx context.Context) error {
		var rerr error
		res, rerr = domain.NewStageResolver(s.checker(log)).Resolve(ctx, catalog, *unit, log)
		if rerr == nil {
			tracing.AnnotateResolution(ctx, res.StageKey, res.IsCompleted, res.Conservative)
		}
		return rerr
	}, tracing.AttrUnitID.String(unitID), tracing.AttrStyleNo.String(unit.StyleNo))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve stage: %w", err)
	}

	if res.Conservative {
		s.metrics.RecordConservativeFallback("warehousing")
	}
	outcome := "resolved"
	if res.IsCompleted {
		outcome = "completed"
	}
	duration := s.now().Sub(start)
	s.metrics.RecordStageResolution(res.StageKey, outcome, duration)
	s.logger.Performance(ctx, "ResolveStage", duration, !res.Conservative, map[string]any{
		"unitId":       unitID,
		"stageKey":     res.StageKey,
		"completed":    res.IsCompleted,
		"conservative": res.Conservative,
	})

	return ToResolutionDTO(*unit, res, s.now()), nil
}

// RecordScan stores a scan submission. A repeated request id returns the
// stored scan with Duplicate set. Commands from Kafka get the same binding
// tag checks as HTTP bodies.
func (s *ProgressApplicationService) RecordScan(ctx context.Context, cmd RecordScanCommand) (*RecordScanResultDTO, error) {
	if appErr := middleware.ValidateStruct(cmd); appErr != nil {
		return nil, appErr
	}
	if strings.TrimSpace(cmd.RequestID) == "" || strings.TrimSpace(cmd.UnitID) == "" {
		return nil, errors.ErrValidation("requestId and unitId are required")
	}

	existing, err := s.scans.FindByRequestID(ctx, cmd.RequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up scan request: %w", err)
	}
	if existing != nil {
		return s.duplicateScan(existing), nil
	}

	unit, err := s.loadUnit(ctx, cmd.UnitID)
	if err != nil {
		return nil, s.unavailable("production unit", err)
	}
	if unit == nil {
		return nil, errors.ErrNotFoundWithID("production unit", cmd.UnitID)
	}

	event, err := s.buildScan(ctx, cmd, *unit)
	if err != nil {
		return nil, err
	}

	recorded := &domain.ScanRecordedEvent{
		ScanID:     event.ID,
		RequestID:  event.RequestID,
		UnitID:     event.UnitID,
		OrderID:    event.OrderID,
		StageKey:   event.StageKey,
		Category:   event.Category,
		Outcome:    event.Outcome,
		Quantity:   event.Quantity,
		OperatorID: event.OperatorID,
		ScannedAt:  event.ScannedAt,
	}
	if err := s.scans.Save(ctx, event, recorded); err != nil {
		if stderrors.Is(err, domain.ErrDuplicateRequest) {
			stored, ferr := s.scans.FindByRequestID(ctx, cmd.RequestID)
			if ferr == nil && stored != nil {
				return s.duplicateScan(stored), nil
			}
			return nil, errors.ErrConflict("scan request already recorded")
		}
		s.logger.WithError(err).Error("Failed to save scan", "requestId", cmd.RequestID, "unitId", cmd.UnitID)
		return nil, fmt.Errorf("failed to save scan: %w", err)
	}

	s.metrics.RecordScan(string(event.Category), string(event.Outcome), false)
	s.logger.WithContext(ctx).Info("Recorded scan",
		"scanId", event.ID,
		"unitId", event.UnitID,
		"stageKey", event.StageKey,
		"outcome", event.Outcome,
		"quantity", event.Quantity,
	)

	return &RecordScanResultDTO{Scan: ToScanEventDTO(*event, event.IsSuccess())}, nil
}

func (s *ProgressApplicationService) duplicateScan(e *domain.ScanEvent) *RecordScanResultDTO {
	s.metrics.RecordScan(string(e.Category), string(e.Outcome), true)
	return &RecordScanResultDTO{Scan: ToScanEventDTO(*e, false), Duplicate: true}
}

// buildScan resolves the reported stage against the unit's catalog and fills defaults
func (s *ProgressApplicationService) buildScan(ctx context.Context, cmd RecordScanCommand, unit domain.ProductionUnit) (*domain.ScanEvent, error) {
	event := &domain.ScanEvent{
		ID:           uuid.New().String(),
		RequestID:    cmd.RequestID,
		UnitID:       unit.UnitID,
		OrderID:      firstNonEmpty(cmd.OrderID, unit.OrderID),
		BundleID:     firstNonEmpty(cmd.BundleID, unit.BundleID),
		StyleNo:      firstNonEmpty(cmd.StyleNo, unit.StyleNo),
		StageKey:     strings.TrimSpace(cmd.StageKey),
		StageName:    strings.TrimSpace(cmd.StageName),
		ProcessCode:  strings.TrimSpace(cmd.ProcessCode),
		SubCode:      cmd.SubCode,
		Outcome:      domain.ScanOutcome(cmd.Outcome),
		Quantity:     cmd.Quantity,
		ConfirmedAt:  cmd.ConfirmedAt,
		Remark:       cmd.Remark,
		SettlementID: cmd.SettlementID,
		OperatorID:   cmd.OperatorID,
		OperatorName: cmd.OperatorName,
		RecordedAt:   s.now().UTC(),
	}
	event.ScannedAt = event.RecordedAt
	if cmd.ScannedAt != nil && !cmd.ScannedAt.IsZero() {
		if cmd.ScannedAt.After(event.RecordedAt.Add(domain.MaxScanClockSkew)) {
			return nil, errors.ErrValidationWithFields("validation failed", map[string]string{
				"scannedAt": "must not be later than the server clock",
			})
		}
		event.ScannedAt = cmd.ScannedAt.UTC()
	}
	if event.Outcome != domain.OutcomeSuccess && event.Outcome != domain.OutcomeFail {
		return nil, errors.ErrValidation("outcome must be success or fail").WithDetail("outcome", cmd.Outcome)
	}
	if event.Quantity < 0 {
		return nil, errors.ErrValidation("quantity must not be negative")
	}

	catalog, err := s.catalogs.Optional(ctx, event.StyleNo)
	if err != nil {
		return nil, s.unavailable("stage catalog", err)
	}

	category := domain.ScanCategory(cmd.Category)
	if catalog != nil {
		ref := event.Ref()
		key, err := domain.ResolveStageKey(ref, catalog)
		if err != nil {
			return nil, errors.ErrValidation(err.Error()).WithDetail("stage", firstNonEmpty(ref.Name, ref.Code))
		}
		def, _ := catalog.Stage(key)
		event.StageKey = key
		event.StageName = firstNonEmpty(event.StageName, def.StageName)
		if def.Category != "" {
			category = def.Category
		}
	} else if event.StageKey == "" {
		return nil, errors.ErrMissingCatalog(event.StyleNo)
	}

	if !category.IsValid() {
		category = domain.InferScanCategory(firstNonEmpty(event.StageName, event.StageKey))
	}
	event.Category = category

	if category == domain.CategoryQuality {
		event.DefectQuantity = domain.ParseDefectRemark(event.Remark)
	}
	if event.IsConfirmed() && event.ConfirmedAt == nil {
		at := event.ScannedAt
		event.ConfirmedAt = &at
	}
	return event, nil
}

// undoContext is everything an eligibility decision is made from
type undoContext struct {
	scan     *domain.ScanEvent
	unit     *domain.ProductionUnit
	log      *domain.EventLog
	catalog  *domain.StageCatalog
	decision domain.UndoDecision
}

func (s *ProgressApplicationService) evaluateUndo(ctx context.Context, scanID string, actor domain.Actor, rescan bool) (*undoContext, error) {
	if strings.TrimSpace(scanID) == "" {
		return nil, errors.ErrValidation("scanId is required")
	}

	scan, err := s.scans.FindByID(ctx, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	if scan == nil {
		return nil, errors.ErrNotFoundWithID("scan", scanID)
	}

	unit, err := s.loadUnit(ctx, scan.UnitID)
	if err != nil {
		return nil, s.unavailable("production unit", err)
	}
	if unit == nil {
		return nil, errors.ErrNotFoundWithID("production unit", scan.UnitID)
	}

	catalog, err := s.catalogs.Optional(ctx, unit.StyleNo)
	if err != nil {
		return nil, s.unavailable("stage catalog", err)
	}

	log, err := s.loadLog(ctx, scan.UnitID)
	if err != nil {
		return nil, s.unavailable("scan events", err)
	}

	uc := &undoContext{scan: scan, unit: unit, log: log, catalog: catalog}
	if rescan {
		uc.decision = s.guard.EvaluateRescan(*scan, actor, unit.Status, log, catalog)
	} else {
		uc.decision = s.guard.Evaluate(*scan, unit.Status, log, catalog)
	}
	s.metrics.RecordUndoDecision(string(uc.decision.Reason))
	return uc, nil
}

// GetUndoEligibility reports whether a scan may be undone
func (s *ProgressApplicationService) GetUndoEligibility(ctx context.Context, query UndoEligibilityQuery) (*UndoEligibilityDTO, error) {
	uc, err := s.evaluateUndo(ctx, query.ScanID, query.Actor, query.Rescan)
	if err != nil {
		return nil, err
	}
	return &UndoEligibilityDTO{
		ScanID:  uc.scan.ID,
		Allowed: uc.decision.Allowed,
		Reason:  string(uc.decision.Reason),
		Message: uc.decision.Reason.Message(),
	}, nil
}

// UndoScan reverses an eligible scan. Warehousing written by the scan's
// bundle is rolled back in the same transaction that marks the scan undone,
// so a failed or repeated undo never moves quantity twice.
func (s *ProgressApplicationService) UndoScan(ctx context.Context, cmd UndoScanCommand) (*UndoResultDTO, error) {
	uc, err := s.evaluateUndo(ctx, cmd.ScanID, cmd.Actor, cmd.Rescan)
	if err != nil {
		return nil, err
	}
	if !uc.decision.Allowed {
		return nil, errors.ErrUndoRejected(string(uc.decision.Reason), uc.decision.Reason.Message())
	}

	scan := uc.scan
	undoneBy := firstNonEmpty(cmd.Actor.ID, cmd.Actor.Name)
	at := s.now().UTC()
	undone := &domain.ScanUndoneEvent{
		ScanID:   scan.ID,
		UnitID:   scan.UnitID,
		OrderID:  scan.OrderID,
		BundleID: scan.BundleID,
		StageKey: scan.StageKey,
		Category: scan.Category,
		Quantity: scan.Quantity,
		UndoneBy: undoneBy,
		Rescan:   cmd.Rescan,
		UndoneAt: at,
	}

	var rollback domain.UndoStep
	if s.warehousing != nil && scan.BundleID != "" &&
		(scan.Category == domain.CategoryWarehouse || scan.Category == domain.CategoryQuality) {
		rollback = func(ctx context.Context) error {
			n, err := s.warehousing.RollbackByBundle(ctx, scan.ID, scan.OrderID, scan.BundleID, scan.Quantity)
			if err != nil {
				return fmt.Errorf("failed to roll back warehousing: %w", err)
			}
			undone.RolledBack = n
			return nil
		}
	}

	if err := s.scans.MarkUndone(ctx, scan.ID, undoneBy, at, rollback, undone); err != nil {
		if stderrors.Is(err, domain.ErrScanNotUndoable) {
			return nil, errors.ErrConflict(err.Error()).WithDetail("scanId", scan.ID)
		}
		s.logger.WithError(err).Error("Failed to undo scan", "scanId", scan.ID, "bundleId", scan.BundleID)
		return nil, fmt.Errorf("failed to undo scan: %w", err)
	}
	rolledBack := undone.RolledBack

	s.logger.Audit(ctx, "scan.undone", "scan", scan.ID, undoneBy, map[string]any{
		"unitId":            scan.UnitID,
		"stageKey":          scan.StageKey,
		"rescan":            cmd.Rescan,
		"rolledBackRecords": rolledBack,
	})

	return &UndoResultDTO{
		ScanID:            scan.ID,
		UndoneAt:          at,
		UndoneBy:          undoneBy,
		Rescan:            cmd.Rescan,
		RolledBackRecords: rolledBack,
	}, nil
}

// ClaimTask claims at most one procurement or cutting task of an order for the actor
func (s *ProgressApplicationService) ClaimTask(ctx context.Context, cmd ClaimTaskCommand) (*ClaimResultDTO, error) {
	if s.tasks == nil {
		return nil, errors.ErrServiceUnavailable("task claims")
	}
	if cmd.Actor.IsZero() {
		return nil, errors.ErrValidation("actor identity is required")
	}

	tasks, err := s.tasks.FindCandidates(ctx, cmd.OrderID, cmd.Kind)
	if err != nil {
		return nil, fmt.Errorf("failed to find tasks: %w", err)
	}

	decision := domain.SelectClaim(tasks, cmd.Actor)
	s.metrics.RecordClaimDecision(string(decision.Action))

	if decision.NeedsClaimCall() {
		at := s.now().UTC()
		claimed := &domain.TaskClaimedEvent{
			TaskID:       decision.TaskID,
			Kind:         cmd.Kind,
			OrderID:      cmd.OrderID,
			ReceiverID:   cmd.Actor.ID,
			ReceiverName: cmd.Actor.Name,
			ClaimedAt:    at,
		}
		if err := s.tasks.MarkReceived(ctx, decision.TaskID, cmd.Actor, at, claimed); err != nil {
			if stderrors.Is(err, domain.ErrClaimConflict) {
				return nil, errors.ErrConflict(err.Error()).WithDetail("taskId", decision.TaskID)
			}
			return nil, fmt.Errorf("failed to claim task: %w", err)
		}
		s.logger.Audit(ctx, "task.claimed", "task", decision.TaskID, firstNonEmpty(cmd.Actor.ID, cmd.Actor.Name), map[string]any{
			"orderId": cmd.OrderID,
			"kind":    cmd.Kind,
		})
	}

	return &ClaimResultDTO{
		TaskID:  decision.TaskID,
		Action:  string(decision.Action),
		Reason:  decision.Reason,
		Claimed: decision.Action != domain.ClaimActionNone,
	}, nil
}

// ListScanHistory returns a unit's scans newest first with per-scan undo eligibility
func (s *ProgressApplicationService) ListScanHistory(ctx context.Context, query ScanHistoryQuery) (*api.PageResponse[ScanEventDTO], error) {
	page := api.PageRequest{Page: query.Page, PageSize: query.PageSize}
	if page.Page < 1 {
		page.Page = 1
	}
	if page.PageSize < 1 {
		page.PageSize = api.DefaultPageSize
	}

	unit, err := s.loadUnit(ctx, query.UnitID)
	if err != nil {
		return nil, s.unavailable("production unit", err)
	}
	if unit == nil {
		return nil, errors.ErrNotFoundWithID("production unit", query.UnitID)
	}
	catalog, err := s.catalogs.Optional(ctx, unit.StyleNo)
	if err != nil {
		return nil, s.unavailable("stage catalog", err)
	}
	log, err := s.loadLog(ctx, query.UnitID)
	if err != nil {
		return nil, s.unavailable("scan events", err)
	}

	events := log.Events()
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].ScannedAt.After(events[j].ScannedAt)
	})

	from := (page.Page - 1) * page.PageSize
	if from > len(events) {
		from = len(events)
	}
	to := from + page.PageSize
	if to > len(events) {
		to = len(events)
	}

	dtos := make([]ScanEventDTO, 0, to-from)
	for _, e := range events[from:to] {
		dtos = append(dtos, ToScanEventDTO(e, s.guard.CanUndo(e, unit.Status, log, catalog)))
	}
	resp := api.NewPageResponse(dtos, page, int64(len(events)))
	return &resp, nil
}

// GetCatalog returns the stage catalog of a style
func (s *ProgressApplicationService) GetCatalog(ctx context.Context, query GetCatalogQuery) (*CatalogDTO, error) {
	catalog, err := s.catalogs.Get(ctx, query.StyleNo)
	if stderrors.Is(err, domain.ErrMissingCatalog) {
		return nil, errors.ErrMissingCatalog(query.StyleNo)
	}
	if err != nil {
		return nil, s.unavailable("stage catalog", err)
	}
	return ToCatalogDTO(catalog), nil
}

// SaveCatalog replaces the stage catalog of a style
func (s *ProgressApplicationService) SaveCatalog(ctx context.Context, cmd SaveCatalogCommand) (*CatalogDTO, error) {
	if strings.TrimSpace(cmd.StyleNo) == "" {
		return nil, errors.ErrValidation("styleNo is required")
	}
	defs, err := ToStageDefinitions(cmd.Stages)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}
	catalog, err := domain.NewStageCatalog(cmd.StyleNo, defs)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}

	if err := s.catalogRepo.Save(ctx, cmd.StyleNo, catalog.Stages()); err != nil {
		s.logger.WithError(err).Error("Failed to save catalog", "styleNo", cmd.StyleNo)
		return nil, fmt.Errorf("failed to save catalog: %w", err)
	}
	s.catalogs.Invalidate(cmd.StyleNo)

	s.logger.Info("Saved stage catalog", "styleNo", cmd.StyleNo, "stages", catalog.Len())
	return ToCatalogDTO(catalog), nil
}

// unavailable maps a failed upstream read to an API error
func (s *ProgressApplicationService) unavailable(resource string, err error) error {
	switch {
	case stderrors.Is(err, domain.ErrFetchTimeout):
		return errors.ErrTimeout("loading " + resource).Wrap(err)
	case stderrors.Is(err, resilience.ErrCircuitOpen), stderrors.Is(err, resilience.ErrTooManyRequests):
		return errors.ErrServiceUnavailable(resource).Wrap(err)
	}
	return fmt.Errorf("failed to load %s: %w", resource, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
