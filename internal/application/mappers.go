package application

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fashion-supplychain/progress-service/internal/domain"
)

// ToResolutionDTO converts a resolution of unit
func ToResolutionDTO(unit domain.ProductionUnit, res domain.Resolution, at time.Time) *ResolutionDTO {
	return &ResolutionDTO{
		UnitID:       unit.UnitID,
		StyleNo:      unit.StyleNo,
		Determined:   res.Determined,
		StageKey:     res.StageKey,
		StageName:    res.StageName,
		SubState:     string(res.SubState),
		ScanCategory: string(res.Category),
		IsCompleted:  res.IsCompleted,
		Conservative: res.Conservative,
		Stages:       res.Stages,
		ResolvedAt:   at,
	}
}

// ToScanEventDTO converts a scan event
func ToScanEventDTO(e domain.ScanEvent, canUndo bool) ScanEventDTO {
	return ScanEventDTO{
		ID:             e.ID,
		RequestID:      e.RequestID,
		UnitID:         e.UnitID,
		OrderID:        e.OrderID,
		BundleID:       e.BundleID,
		StageKey:       e.StageKey,
		StageName:      e.StageName,
		ProcessCode:    e.ProcessCode,
		Category:       string(e.Category),
		SubCode:        e.SubCode,
		Outcome:        string(e.Outcome),
		Quantity:       e.Quantity,
		DefectQuantity: e.DefectQuantity,
		ScannedAt:      e.ScannedAt,
		ConfirmedAt:    e.ConfirmedAt,
		Remark:         e.Remark,
		OperatorID:     e.OperatorID,
		OperatorName:   e.OperatorName,
		Settled:        e.SettlementID != "",
		UndoneAt:       e.UndoneAt,
		CanUndo:        canUndo,
	}
}

// ToCatalogDTO converts a stage catalog
func ToCatalogDTO(catalog *domain.StageCatalog) *CatalogDTO {
	stages := catalog.Stages()
	dto := &CatalogDTO{StyleNo: catalog.StyleNo(), Stages: make([]StageDTO, 0, len(stages))}
	for _, s := range stages {
		stage := StageDTO{
			StageKey:      s.StageKey,
			StageName:     s.StageName,
			SortOrder:     s.SortOrder,
			Category:      string(s.Category),
			QuantityGated: s.QuantityGated,
			Skippable:     s.Skippable,
			Aliases:       s.Aliases,
		}
		if s.UnitPrice != nil {
			stage.UnitPrice = s.UnitPrice.StringFixed(2)
		}
		dto.Stages = append(dto.Stages, stage)
	}
	return dto
}

// ToStageDefinitions converts catalog input, parsing unit prices as decimals
func ToStageDefinitions(inputs []StageInput) ([]domain.StageDefinition, error) {
	defs := make([]domain.StageDefinition, 0, len(inputs))
	for i, in := range inputs {
		def := domain.StageDefinition{
			StageKey:      in.StageKey,
			StageName:     in.StageName,
			SortOrder:     in.SortOrder,
			Category:      domain.ScanCategory(in.Category),
			QuantityGated: in.QuantityGated,
			Skippable:     in.Skippable,
			Aliases:       in.Aliases,
		}
		if p := strings.TrimSpace(in.UnitPrice); p != "" {
			price, err := decimal.NewFromString(p)
			if err != nil {
				return nil, fmt.Errorf("stage %d: invalid unit price %q: %w", i, p, err)
			}
			if price.IsNegative() {
				return nil, fmt.Errorf("stage %d: unit price must not be negative", i)
			}
			def.UnitPrice = &price
		}
		defs = append(defs, def)
	}
	return defs, nil
}
