package servicelevel

import (
	"fmt"
	"math"

	"github.com/andresuchdata/autopo-servicelevel/internal/domain"
	"github.com/rs/zerolog/log"
)

// Hard safety range for every resolved CSL.
const (
	MinCSL = 0.5
	MaxCSL = 0.999
)

// Settings keys holding per-cluster CSL values in the service level section.
var clusterKeys = map[domain.DemandVariability]string{
	domain.VariabilityHigh:       "cluster_csl_high",
	domain.VariabilityStable:     "cluster_csl_stable",
	domain.VariabilityLow:        "cluster_csl_low",
	domain.VariabilitySeasonal:   "cluster_csl_seasonal",
	domain.VariabilityPerishable: "cluster_csl_perishable",
}

// ClusterKey returns the settings key for a variability cluster.
func ClusterKey(v domain.DemandVariability) string {
	return clusterKeys[v]
}

// Source names the rule that produced a resolution.
type Source string

const (
	SourceOverride   Source = "override"
	SourcePerishable Source = "perishable"
	SourceCluster    Source = "cluster"
	SourceDefault    Source = "default"
)

// Resolution is a resolved target CSL with the rule that produced it.
type Resolution struct {
	SKU    string  `json:"sku"`
	CSL    float64 `json:"csl"`
	Source Source  `json:"source"`
}

// rule is one step of the priority chain; ok=false passes to the next rule.
type rule struct {
	source Source
	value  func(r *Resolver, sku *domain.SKU) (float64, bool)
}

// priorityChain is evaluated in order; the first matching rule wins.
var priorityChain = []rule{
	{source: SourceOverride, value: overrideValue},
	{source: SourcePerishable, value: perishableValue},
	{source: SourceCluster, value: clusterValue},
}

func overrideValue(_ *Resolver, sku *domain.SKU) (float64, bool) {
	if sku.TargetCSL > 0 && !math.IsNaN(sku.TargetCSL) && !math.IsInf(sku.TargetCSL, 0) {
		return sku.TargetCSL, true
	}
	return 0, false
}

func perishableValue(r *Resolver, sku *domain.SKU) (float64, bool) {
	if !sku.HasShelfLifePerishability() {
		return 0, false
	}
	return r.clusters[domain.VariabilityPerishable], true
}

func clusterValue(r *Resolver, sku *domain.SKU) (float64, bool) {
	v, ok := r.clusters[sku.DemandVariability]
	return v, ok
}

// Resolver resolves a SKU's target CSL from a settings snapshot. It holds no
// mutable state, so callers build a new one whenever settings may have changed.
type Resolver struct {
	defaultCSL float64
	clusters   map[domain.DemandVariability]float64
}

// NewResolver reads the default and cluster CSLs from raw settings. Absent or
// non-numeric cluster values fall back to the default.
func NewResolver(raw domain.RawSettings) *Resolver {
	def := DefaultCSL
	if v, ok := raw.Float(domain.SectionServiceLevel, defaultCSLSpec.key); ok {
		def = v
	}

	clusters := make(map[domain.DemandVariability]float64, len(clusterKeys))
	for variability, key := range clusterKeys {
		clusters[variability] = def
		if v, ok := raw.Float(domain.SectionServiceLevel, key); ok {
			clusters[variability] = v
		}
	}

	return &Resolver{defaultCSL: def, clusters: clusters}
}

// DefaultCSL returns the clamped global default.
func (r *Resolver) DefaultCSL() float64 {
	return ClampCSL(r.defaultCSL)
}

// TargetCSL returns the resolved target CSL for sku.
func (r *Resolver) TargetCSL(sku *domain.SKU) float64 {
	return r.Resolve(sku).CSL
}

// Resolve walks the priority chain. It never fails: a nil SKU or a panicking rule
// degrades to the clamped default.
func (r *Resolver) Resolve(sku *domain.SKU) (res Resolution) {
	if sku == nil {
		log.Warn().Msg("service level: resolve called without sku, using default")
		return Resolution{CSL: r.DefaultCSL(), Source: SourceDefault}
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Str("sku", sku.SKU).
				Err(fmt.Errorf("%v", rec)).
				Msg("service level: resolution failed, using default")
			res = Resolution{SKU: sku.SKU, CSL: r.DefaultCSL(), Source: SourceDefault}
		}
	}()

	for _, step := range priorityChain {
		if v, ok := step.value(r, sku); ok {
			return Resolution{SKU: sku.SKU, CSL: ClampCSL(v), Source: step.source}
		}
	}
	return Resolution{SKU: sku.SKU, CSL: r.DefaultCSL(), Source: SourceDefault}
}

// ClampCSL bounds v to [MinCSL, MaxCSL]. NaN maps to MinCSL.
func ClampCSL(v float64) float64 {
	if math.IsNaN(v) {
		return MinCSL
	}
	return math.Max(MinCSL, math.Min(MaxCSL, v))
}
