package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/fashion-supplychain/progress-service/internal/domain"
	"github.com/fashion-supplychain/progress-service/pkg/metrics"
	"github.com/fashion-supplychain/progress-service/pkg/resilience"
)

// Breaker names, one per downstream collection
const (
	BreakerScanEvents  = "scan-events"
	BreakerCatalogs    = "stage-catalogs"
	BreakerUnits       = "production-units"
	BreakerWarehousing = "warehousing"
)

// asFetchError folds call timeouts into domain.ErrFetchTimeout
func asFetchError(err error) error {
	if errors.Is(err, resilience.ErrCallTimeout) {
		return fmt.Errorf("%w: %v", domain.ErrFetchTimeout, err)
	}
	return err
}

// guardedScanSource reads scan pages through a circuit breaker
type guardedScanSource struct {
	source  domain.ScanEventSource
	breaker *resilience.CircuitBreaker
}

func (g guardedScanSource) FindByUnit(ctx context.Context, unitID string, page, pageSize int) ([]domain.ScanEvent, error) {
	events, err := resilience.Call(ctx, g.breaker, func(ctx context.Context) ([]domain.ScanEvent, error) {
		return g.source.FindByUnit(ctx, unitID, page, pageSize)
	})
	return events, asFetchError(err)
}

// guardedWarehousing reads warehousing pages through a circuit breaker,
// retrying each page with backoff
type guardedWarehousing struct {
	repo    domain.WarehousingRepository
	breaker *resilience.CircuitBreaker
	retry   *resilience.RetryConfig
	metrics *metrics.Metrics
}

func newGuardedWarehousing(repo domain.WarehousingRepository, breaker *resilience.CircuitBreaker, m *metrics.Metrics) *guardedWarehousing {
	retry := resilience.DefaultRetryConfig()
	retry.RetryableErrors = func(err error) bool {
		return !errors.Is(err, resilience.ErrCircuitOpen) &&
			!errors.Is(err, context.Canceled) &&
			!errors.Is(err, domain.ErrPageLimitExceeded)
	}
	return &guardedWarehousing{repo: repo, breaker: breaker, retry: retry, metrics: m}
}

func (g *guardedWarehousing) FindPage(ctx context.Context, unit domain.ProductionUnit, page, pageSize int) ([]domain.WarehousingRecord, error) {
	records, err := resilience.RetryWithResult(ctx, g.retry, func() ([]domain.WarehousingRecord, error) {
		return resilience.Call(ctx, g.breaker, func(ctx context.Context) ([]domain.WarehousingRecord, error) {
			return g.repo.FindPage(ctx, unit, page, pageSize)
		})
	})
	g.metrics.RecordWarehousingPage(err == nil)
	return records, asFetchError(err)
}

func (g *guardedWarehousing) Count(ctx context.Context, unit domain.ProductionUnit) (int64, error) {
	n, err := resilience.Call(ctx, g.breaker, func(ctx context.Context) (int64, error) {
		return g.repo.Count(ctx, unit)
	})
	return n, asFetchError(err)
}
