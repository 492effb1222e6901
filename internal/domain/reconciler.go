package domain

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// QuantityChecker decides whether a quantity-gated stage has received its full quantity
type QuantityChecker interface {
	IsQuantitySatisfied(ctx context.Context, unit ProductionUnit, trigger *ScanEvent) (bool, error)
}

// QuantityReconciler sums warehoused quantity across every page of a unit's records
type QuantityReconciler struct {
	source      WarehousingSource
	pageSize    int
	concurrency int
	maxPages    int
}

// ReconcilerOption configures a QuantityReconciler
type ReconcilerOption func(*QuantityReconciler)

// WithPageSize sets the warehousing page size
func WithPageSize(n int) ReconcilerOption {
	return func(r *QuantityReconciler) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// WithConcurrency sets how many pages may be in flight when the source can count records
func WithConcurrency(n int) ReconcilerOption {
	return func(r *QuantityReconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithMaxPages bounds the number of pages fetched
func WithMaxPages(n int) ReconcilerOption {
	return func(r *QuantityReconciler) {
		if n > 0 {
			r.maxPages = n
		}
	}
}

// NewQuantityReconciler creates a reconciler over a warehousing source
func NewQuantityReconciler(source WarehousingSource, opts ...ReconcilerOption) *QuantityReconciler {
	r := &QuantityReconciler{
		source:      source,
		pageSize:    200,
		concurrency: 1,
		maxPages:    DefaultMaxPages,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EffectiveTarget returns the quantity that must be warehoused. A triggering
// quality scan with a defect quantity narrows the target to that quantity.
func EffectiveTarget(unit ProductionUnit, trigger *ScanEvent) int {
	if trigger != nil && trigger.DefectQuantity != nil && *trigger.DefectQuantity > 0 {
		return *trigger.DefectQuantity
	}
	if unit.TargetQuantity < 0 {
		return 0
	}
	return unit.TargetQuantity
}

// IsQuantitySatisfied reports whether accumulated qualified quantity reaches the
// effective target. Any fetch error yields false along with the error.
func (r *QuantityReconciler) IsQuantitySatisfied(ctx context.Context, unit ProductionUnit, trigger *ScanEvent) (bool, error) {
	target := EffectiveTarget(unit, trigger)
	if target == 0 {
		return true, nil
	}
	sum, err := r.SumQualified(ctx, unit)
	if err != nil {
		return false, err
	}
	return sum >= target, nil
}

// SumQualified totals qualified quantity over all pages
func (r *QuantityReconciler) SumQualified(ctx context.Context, unit ProductionUnit) (int, error) {
	if r.source == nil {
		return 0, ErrNoWarehousingSource
	}
	if counter, ok := r.source.(WarehousingCounter); ok && r.concurrency > 1 {
		return r.sumConcurrent(ctx, unit, counter)
	}
	return r.sumSequential(ctx, unit)
}

func (r *QuantityReconciler) sumSequential(ctx context.Context, unit ProductionUnit) (int, error) {
	seq := NewPageSequence(r.pageSize, func(ctx context.Context, page, size int) ([]WarehousingRecord, error) {
		return r.source.FindPage(ctx, unit, page, size)
	}).WithMaxPages(r.maxPages)

	sum := 0
	for {
		records, ok := seq.Next(ctx)
		if !ok {
			break
		}
		for _, rec := range records {
			sum += rec.Qualified()
		}
	}
	if err := seq.Err(); err != nil {
		return 0, err
	}
	return sum, nil
}

// sumConcurrent fetches all pages in parallel. Only the total matters, so
// pages may complete in any order.
func (r *QuantityReconciler) sumConcurrent(ctx context.Context, unit ProductionUnit, counter WarehousingCounter) (int, error) {
	total, err := counter.Count(ctx, unit)
	if err != nil {
		return 0, fmt.Errorf("count warehousing records: %w", err)
	}
	if total <= 0 {
		return 0, nil
	}
	pages := int((total + int64(r.pageSize) - 1) / int64(r.pageSize))
	if pages > r.maxPages {
		return 0, fmt.Errorf("%w: %d pages needed, limit %d", ErrPageLimitExceeded, pages, r.maxPages)
	}

	var sum atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for p := 1; p <= pages; p++ {
		page := p
		g.Go(func() error {
			records, err := r.source.FindPage(gctx, unit, page, r.pageSize)
			if err != nil {
				return fmt.Errorf("fetch page %d: %w", page, err)
			}
			var local int64
			for _, rec := range records {
				local += int64(rec.Qualified())
			}
			sum.Add(local)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int(sum.Load()), nil
}

// LogQuantityChecker measures warehoused quantity from successful warehouse
// scans in the event log. It serves deployments without a warehousing source.
type LogQuantityChecker struct {
	Log *EventLog
}

// IsQuantitySatisfied implements QuantityChecker
func (c LogQuantityChecker) IsQuantitySatisfied(_ context.Context, unit ProductionUnit, trigger *ScanEvent) (bool, error) {
	target := EffectiveTarget(unit, trigger)
	if target == 0 {
		return true, nil
	}
	sum := 0
	for _, e := range c.Log.Successful() {
		if e.Category == CategoryWarehouse && e.Quantity > 0 {
			sum += e.Quantity
		}
	}
	return sum >= target, nil
}
