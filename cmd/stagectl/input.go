package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fashion-supplychain/progress-service/internal/domain"
	"github.com/fashion-supplychain/progress-service/internal/infrastructure/seed"
)

// snapshot is everything read from the input files
type snapshot struct {
	catalog     *domain.StageCatalog
	unit        domain.ProductionUnit
	log         *domain.EventLog
	warehousing []domain.WarehousingRecord
}

func loadSnapshot() (*snapshot, error) {
	var (
		styleNo string
		defs    []domain.StageDefinition
		err     error
	)
	if catalogPath == "" {
		defs, err = seed.DefaultStages()
	} else {
		styleNo, defs, err = seed.LoadFile(catalogPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	var unit domain.ProductionUnit
	if err := readJSON(unitPath, &unit); err != nil {
		return nil, fmt.Errorf("failed to load unit: %w", err)
	}
	if styleNo == "" {
		styleNo = unit.StyleNo
	}
	catalog, err := domain.NewStageCatalog(styleNo, defs)
	if err != nil {
		return nil, err
	}

	var events []domain.ScanEvent
	if err := readJSON(eventsPath, &events); err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	s := &snapshot{
		catalog: catalog,
		unit:    unit,
		log:     domain.NewEventLog(unit.UnitID, events),
	}
	if warehousingPath != "" {
		if err := readJSON(warehousingPath, &s.warehousing); err != nil {
			return nil, fmt.Errorf("failed to load warehousing records: %w", err)
		}
	}
	return s, nil
}

// checker measures quantity from warehousing records when supplied,
// otherwise from warehouse scans in the log
func (s *snapshot) checker() domain.QuantityChecker {
	if s.warehousing == nil {
		return domain.LogQuantityChecker{Log: s.log}
	}
	return domain.NewQuantityReconciler(recordSource(s.warehousing))
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// recordSource serves warehousing records from memory
type recordSource []domain.WarehousingRecord

func (r recordSource) matching(unit domain.ProductionUnit) []domain.WarehousingRecord {
	var out []domain.WarehousingRecord
	for _, rec := range r {
		if rec.OrderID != unit.OrderID {
			continue
		}
		if unit.Kind == domain.UnitKindBundle && unit.BundleID != "" && rec.BundleID != unit.BundleID {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// FindPage implements domain.WarehousingSource
func (r recordSource) FindPage(_ context.Context, unit domain.ProductionUnit, page, pageSize int) ([]domain.WarehousingRecord, error) {
	all := r.matching(unit)
	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil, nil
	}
	end := min(start+pageSize, len(all))
	return all[start:end], nil
}

// Count implements domain.WarehousingCounter
func (r recordSource) Count(_ context.Context, unit domain.ProductionUnit) (int64, error) {
	return int64(len(r.matching(unit))), nil
}
