package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ScanCategory groups stages by the kind of work scanned at them
type ScanCategory string

const (
	CategoryProcurement ScanCategory = "procurement"
	CategoryCutting     ScanCategory = "cutting"
	CategoryProduction  ScanCategory = "production"
	CategoryQuality     ScanCategory = "quality"
	CategoryWarehouse   ScanCategory = "warehouse"
)

// IsValid checks if the category is known
func (c ScanCategory) IsValid() bool {
	switch c {
	case CategoryProcurement, CategoryCutting, CategoryProduction, CategoryQuality, CategoryWarehouse:
		return true
	}
	return false
}

// StageCompleted is the key of the implicit terminal stage
const StageCompleted = "COMPLETED"

// StageDefinition is one step of a style's production sequence
type StageDefinition struct {
	StageKey      string           `bson:"stageKey" json:"stageKey" yaml:"stageKey"`
	StageName     string           `bson:"stageName" json:"stageName" yaml:"stageName"`
	SortOrder     int              `bson:"sortOrder" json:"sortOrder" yaml:"sortOrder"`
	UnitPrice     *decimal.Decimal `bson:"-" json:"unitPrice,omitempty" yaml:"-"`
	Category      ScanCategory     `bson:"category" json:"category" yaml:"category"`
	QuantityGated bool             `bson:"quantityGated" json:"quantityGated" yaml:"quantityGated"`
	Skippable     bool             `bson:"skippable" json:"skippable" yaml:"skippable"`
	Aliases       []string         `bson:"aliases,omitempty" json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// names returns the stage name followed by its aliases, trimmed and non-empty
func (d StageDefinition) names() []string {
	out := make([]string, 0, len(d.Aliases)+1)
	if n := strings.TrimSpace(d.StageName); n != "" {
		out = append(out, n)
	}
	for _, a := range d.Aliases {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// StageCatalog is the ordered, immutable stage list for a style
type StageCatalog struct {
	styleNo string
	stages  []StageDefinition
	index   map[string]int
}

// NewStageCatalog validates and orders stage definitions
func NewStageCatalog(styleNo string, defs []StageDefinition) (*StageCatalog, error) {
	if len(defs) == 0 {
		return nil, ErrMissingCatalog
	}

	stages := make([]StageDefinition, len(defs))
	copy(stages, defs)
	sort.SliceStable(stages, func(i, j int) bool {
		return stages[i].SortOrder < stages[j].SortOrder
	})

	index := make(map[string]int, len(stages))
	for i := range stages {
		s := &stages[i]
		s.StageKey = strings.TrimSpace(s.StageKey)
		s.StageName = strings.TrimSpace(s.StageName)
		if s.StageKey == "" {
			s.StageKey = s.StageName
		}
		if s.StageKey == "" {
			return nil, fmt.Errorf("%w: stage at position %d has neither key nor name", ErrInvalidCatalog, i)
		}
		if _, dup := index[s.StageKey]; dup {
			return nil, fmt.Errorf("%w: duplicate stage key %q", ErrInvalidCatalog, s.StageKey)
		}
		if s.Category == "" {
			s.Category = InferScanCategory(s.StageName)
		}
		if s.Category == CategoryWarehouse {
			s.QuantityGated = true
		}
		if len(s.Aliases) == 0 {
			s.Aliases = DefaultAliases(s.StageName)
		}
		index[s.StageKey] = i
	}

	return &StageCatalog{styleNo: styleNo, stages: stages, index: index}, nil
}

// StyleNo returns the style the catalog belongs to
func (c *StageCatalog) StyleNo() string { return c.styleNo }

// Len returns the number of stages
func (c *StageCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.stages)
}

// Stages returns a copy of the ordered stage list
func (c *StageCatalog) Stages() []StageDefinition {
	out := make([]StageDefinition, len(c.stages))
	copy(out, c.stages)
	return out
}

// Stage looks up a stage by key
func (c *StageCatalog) Stage(key string) (StageDefinition, bool) {
	i, ok := c.index[key]
	if !ok {
		return StageDefinition{}, false
	}
	return c.stages[i], true
}

// IndexOf returns the position of a stage key, or -1
func (c *StageCatalog) IndexOf(key string) int {
	if i, ok := c.index[key]; ok {
		return i
	}
	return -1
}

// Downstream returns the stages strictly after key
func (c *StageCatalog) Downstream(key string) []StageDefinition {
	i := c.IndexOf(key)
	if i < 0 {
		return nil
	}
	return c.stages[i+1:]
}

// Fixed production node names
const (
	NodeProcurement = "采购"
	NodeCutting     = "裁剪"
	NodeSewing      = "车缝"
	NodeIroning     = "大烫"
	NodeQuality     = "质检"
	NodeSecondary   = "二次工艺"
	NodePackaging   = "包装"
	NodeWarehouse   = "入库"
)

var qualityAliases = []string{"质检", "检验", "品检", "验货"}

var packagingAliases = []string{"包装", "后整", "打包"}

// InferScanCategory derives a scan category from a stage name
func InferScanCategory(stageName string) ScanCategory {
	n := strings.TrimSpace(stageName)
	switch {
	case n == "":
		return CategoryProduction
	case strings.Contains(n, NodeProcurement):
		return CategoryProcurement
	case strings.Contains(n, NodeCutting):
		return CategoryCutting
	case containsAny(n, qualityAliases):
		return CategoryQuality
	case strings.Contains(n, NodeWarehouse):
		return CategoryWarehouse
	}
	return CategoryProduction
}

// DefaultAliases returns the built-in alias group of a fixed node name
func DefaultAliases(stageName string) []string {
	n := strings.TrimSpace(stageName)
	for _, group := range [][]string{qualityAliases, packagingAliases} {
		for _, a := range group {
			if a == n {
				out := make([]string, 0, len(group)-1)
				for _, g := range group {
					if g != n {
						out = append(out, g)
					}
				}
				return out
			}
		}
	}
	return nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
