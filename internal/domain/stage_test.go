package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStageCatalog(t *testing.T) {
	catalog := standardCatalog(t)

	require.Equal(t, 5, catalog.Len())
	keys := make([]string, 0, catalog.Len())
	for _, s := range catalog.Stages() {
		keys = append(keys, s.StageKey)
	}
	assert.Equal(t, []string{"procurement", "cutting", "sewing", "quality", "warehouse"}, keys)

	q, ok := catalog.Stage("quality")
	require.True(t, ok)
	assert.Equal(t, CategoryQuality, q.Category)
	assert.ElementsMatch(t, []string{"检验", "品检", "验货"}, q.Aliases)

	w, _ := catalog.Stage("warehouse")
	assert.Equal(t, CategoryWarehouse, w.Category)
	assert.True(t, w.QuantityGated)

	assert.Equal(t, 2, catalog.IndexOf("sewing"))
	assert.Equal(t, -1, catalog.IndexOf("embroidery"))
	assert.Len(t, catalog.Downstream("sewing"), 2)
}

func TestNewStageCatalogErrors(t *testing.T) {
	_, err := NewStageCatalog("ST-1", nil)
	assert.ErrorIs(t, err, ErrMissingCatalog)

	_, err = NewStageCatalog("ST-1", []StageDefinition{})
	assert.ErrorIs(t, err, ErrMissingCatalog)

	_, err = NewStageCatalog("ST-1", []StageDefinition{
		{StageKey: "sewing", StageName: NodeSewing, SortOrder: 1},
		{StageKey: "sewing", StageName: NodeIroning, SortOrder: 2},
	})
	assert.ErrorIs(t, err, ErrInvalidCatalog)

	_, err = NewStageCatalog("ST-1", []StageDefinition{{SortOrder: 1}})
	assert.ErrorIs(t, err, ErrInvalidCatalog)
}

func TestNewStageCatalogKeepsExplicitValues(t *testing.T) {
	price := decimal.RequireFromString("1.25")
	catalog, err := NewStageCatalog("ST-1", []StageDefinition{
		{StageName: NodeIroning, SortOrder: 1, UnitPrice: &price, Category: CategoryProduction},
	})
	require.NoError(t, err)

	s, ok := catalog.Stage(NodeIroning)
	require.True(t, ok, "key defaults to the stage name")
	require.NotNil(t, s.UnitPrice)
	assert.True(t, s.UnitPrice.Equal(decimal.NewFromFloat(1.25)))
	assert.False(t, s.QuantityGated)
}

func TestInferScanCategory(t *testing.T) {
	tests := []struct {
		name string
		want ScanCategory
	}{
		{"面辅料采购", CategoryProcurement},
		{NodeCutting, CategoryCutting},
		{"验货", CategoryQuality},
		{"成品入库", CategoryWarehouse},
		{NodeSewing, CategoryProduction},
		{"", CategoryProduction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferScanCategory(tt.name))
		})
	}
}

func TestScanCategoryIsValid(t *testing.T) {
	assert.True(t, CategoryWarehouse.IsValid())
	assert.False(t, ScanCategory("painting").IsValid())
}
