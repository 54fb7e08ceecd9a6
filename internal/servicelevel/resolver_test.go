package servicelevel

import (
	"math"
	"testing"

	"github.com/andresuchdata/autopo-servicelevel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawSettings(values map[string]any) domain.RawSettings {
	raw := domain.RawSettings{}
	for k, v := range values {
		raw.Set(domain.SectionServiceLevel, k, v)
	}
	return raw
}

func TestResolverPriorityChain(t *testing.T) {
	raw := rawSettings(map[string]any{
		"default_csl":            0.93,
		"cluster_csl_high":       0.97,
		"cluster_csl_perishable": 0.85,
	})
	sku := &domain.SKU{
		SKU:               "MILK-1L",
		ShelfLifeDays:     5,
		DemandVariability: domain.VariabilityHigh,
		TargetCSL:         0.99,
	}

	res := NewResolver(raw).Resolve(sku)
	assert.Equal(t, Resolution{SKU: "MILK-1L", CSL: 0.99, Source: SourceOverride}, res)

	sku.TargetCSL = 0
	res = NewResolver(raw).Resolve(sku)
	assert.Equal(t, 0.85, res.CSL)
	assert.Equal(t, SourcePerishable, res.Source)

	sku.ShelfLifeDays = 0
	res = NewResolver(raw).Resolve(sku)
	assert.Equal(t, 0.97, res.CSL)
	assert.Equal(t, SourceCluster, res.Source)

	delete(raw[domain.SectionServiceLevel], "cluster_csl_high")
	assert.Equal(t, 0.93, NewResolver(raw).TargetCSL(sku))
}

func TestResolverPerishableBoundary(t *testing.T) {
	raw := rawSettings(map[string]any{"cluster_csl_perishable": 0.8, "cluster_csl_low": 0.9})
	r := NewResolver(raw)

	for _, tc := range []struct {
		shelfLife int
		want      float64
	}{
		{shelfLife: 0, want: 0.9},
		{shelfLife: 1, want: 0.8},
		{shelfLife: 7, want: 0.8},
		{shelfLife: 8, want: 0.9},
		{shelfLife: -3, want: 0.9},
	} {
		sku := &domain.SKU{SKU: "X", ShelfLifeDays: tc.shelfLife, DemandVariability: domain.VariabilityLow}
		assert.Equal(t, tc.want, r.TargetCSL(sku), "shelf life %d", tc.shelfLife)
	}
}

func TestResolverClampsEveryBranch(t *testing.T) {
	raw := rawSettings(map[string]any{
		"default_csl":            0.999999,
		"cluster_csl_stable":     0.01,
		"cluster_csl_perishable": 0.999999,
	})
	r := NewResolver(raw)

	skus := []*domain.SKU{
		{SKU: "override-low", TargetCSL: 0.2},
		{SKU: "override-high", TargetCSL: 1.5},
		{SKU: "perishable", ShelfLifeDays: 3},
		{SKU: "stable", DemandVariability: domain.VariabilityStable},
		{SKU: "unknown", DemandVariability: "MYSTERY"},
		{SKU: "nan", TargetCSL: math.NaN(), DemandVariability: domain.VariabilityStable},
	}
	for _, sku := range skus {
		v := r.TargetCSL(sku)
		assert.GreaterOrEqual(t, v, MinCSL, sku.SKU)
		assert.LessOrEqual(t, v, MaxCSL, sku.SKU)
	}

	assert.Equal(t, MinCSL, r.TargetCSL(skus[0]))
	assert.Equal(t, MaxCSL, r.TargetCSL(skus[1]))
	assert.Equal(t, MinCSL, r.TargetCSL(skus[3]))
	assert.Equal(t, SourceDefault, r.Resolve(skus[4]).Source)
	assert.Equal(t, SourceCluster, r.Resolve(skus[5]).Source, "a NaN override is ignored")
}

func TestResolverMalformedSettings(t *testing.T) {
	raw := rawSettings(map[string]any{
		"default_csl":        "not-a-number",
		"cluster_csl_high":   []string{"0.99"},
		"cluster_csl_stable": "0.91",
	})
	r := NewResolver(raw)

	assert.Equal(t, DefaultCSL, r.DefaultCSL())
	assert.Equal(t, DefaultCSL, r.TargetCSL(&domain.SKU{DemandVariability: domain.VariabilityHigh}))
	assert.Equal(t, 0.91, r.TargetCSL(&domain.SKU{DemandVariability: domain.VariabilityStable}))
}

func TestResolverNilInputs(t *testing.T) {
	r := NewResolver(nil)
	require.NotNil(t, r)

	res := r.Resolve(nil)
	assert.Equal(t, DefaultCSL, res.CSL)
	assert.Equal(t, SourceDefault, res.Source)
}

func TestResolverReadsSettingsPerConstruction(t *testing.T) {
	raw := rawSettings(map[string]any{"default_csl": 0.9})
	sku := &domain.SKU{SKU: "A"}

	assert.Equal(t, 0.9, NewResolver(raw).TargetCSL(sku))
	raw.Set(domain.SectionServiceLevel, "default_csl", 0.96)
	assert.Equal(t, 0.96, NewResolver(raw).TargetCSL(sku))
}

func TestClampCSL(t *testing.T) {
	assert.Equal(t, MinCSL, ClampCSL(math.NaN()))
	assert.Equal(t, MaxCSL, ClampCSL(math.Inf(1)))
	assert.Equal(t, MinCSL, ClampCSL(math.Inf(-1)))
	assert.Equal(t, 0.75, ClampCSL(0.75))
}
