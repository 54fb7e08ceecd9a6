package variability

import (
	"sort"
	"time"

	"github.com/andresuchdata/autopo-servicelevel/internal/domain"
)

// Fixed CV cut points used when too few SKUs qualify for adaptive thresholds.
const (
	FallbackLowThreshold  = 0.3
	FallbackHighThreshold = 0.7

	// minAdaptivePopulation is the smallest qualifying population for adaptive thresholds.
	minAdaptivePopulation = 4
)

// Params controls a classification run.
type Params struct {
	MinObservations int
	LowPercentile   float64
	HighPercentile  float64
	// SeasonalThreshold is the lag autocorrelation above which a SKU is
	// SEASONAL. Nil or negative means the default; zero is a valid threshold.
	SeasonalThreshold *float64
	SeasonalLag       int
	Fallback          domain.DemandVariability
}

// DefaultParams returns the standard classification parameters.
func DefaultParams() Params {
	return Params{
		MinObservations:   30,
		LowPercentile:     25,
		HighPercentile:    75,
		SeasonalThreshold: domain.Float64Ptr(0.3),
		SeasonalLag:       7,
		Fallback:          domain.VariabilityLow,
	}
}

func (p Params) withDefaults() Params {
	def := DefaultParams()
	if p.MinObservations <= 0 {
		p.MinObservations = def.MinObservations
	}
	if p.LowPercentile <= 0 || p.LowPercentile >= 100 {
		p.LowPercentile = def.LowPercentile
	}
	if p.HighPercentile <= 0 || p.HighPercentile >= 100 {
		p.HighPercentile = def.HighPercentile
	}
	if p.LowPercentile >= p.HighPercentile {
		p.LowPercentile, p.HighPercentile = def.LowPercentile, def.HighPercentile
	}
	if p.SeasonalThreshold == nil || *p.SeasonalThreshold < 0 {
		p.SeasonalThreshold = def.SeasonalThreshold
	}
	if p.SeasonalLag <= 0 {
		p.SeasonalLag = def.SeasonalLag
	}
	if p.Fallback == "" {
		p.Fallback = def.Fallback
	}
	return p
}

// Thresholds are the CV cut points used for one run.
type Thresholds struct {
	Low      float64 `json:"low"`
	High     float64 `json:"high"`
	Adaptive bool    `json:"adaptive"`
}

// Result is the full output of a classification run.
type Result struct {
	Categories map[string]domain.DemandVariability `json:"categories"`
	Metrics    map[string]Metrics                  `json:"metrics"`
	Thresholds Thresholds                          `json:"thresholds"`
	Summary    map[domain.DemandVariability]int    `json:"summary"`
}

// ClassifyAll maps every SKU present in sales to a demand category.
func ClassifyAll(sales []domain.SalesRecord, params Params) map[string]domain.DemandVariability {
	return Classify(sales, params).Categories
}

// Classify runs the two-pass classification: metrics per SKU first, then
// population-relative thresholds, then one decision per SKU.
func Classify(sales []domain.SalesRecord, params Params) Result {
	params = params.withDefaults()

	series := DailySeries(sales)
	metrics := make(map[string]Metrics, len(series))
	for sku, xs := range series {
		metrics[sku] = ComputeMetrics(sku, xs, params.MinObservations, params.SeasonalLag)
	}

	thresholds := AdaptiveThresholds(metrics, params)

	categories := make(map[string]domain.DemandVariability, len(metrics))
	for sku, m := range metrics {
		categories[sku] = decide(m, thresholds, params)
	}

	return Result{
		Categories: categories,
		Metrics:    metrics,
		Thresholds: thresholds,
		Summary:    Summarize(categories),
	}
}

// AdaptiveThresholds computes percentile cut points over sufficient SKUs with CV > 0,
// falling back to the fixed pair when fewer than four qualify.
func AdaptiveThresholds(metrics map[string]Metrics, params Params) Thresholds {
	params = params.withDefaults()

	cvs := make([]float64, 0, len(metrics))
	for _, m := range metrics {
		if m.Sufficient && m.CV > 0 {
			cvs = append(cvs, m.CV)
		}
	}
	if len(cvs) < minAdaptivePopulation {
		return Thresholds{Low: FallbackLowThreshold, High: FallbackHighThreshold}
	}
	return Thresholds{
		Low:      Percentile(cvs, params.LowPercentile),
		High:     Percentile(cvs, params.HighPercentile),
		Adaptive: true,
	}
}

func decide(m Metrics, t Thresholds, params Params) domain.DemandVariability {
	switch {
	case !m.Sufficient:
		return params.Fallback
	case m.Autocorr != nil && *m.Autocorr > *params.SeasonalThreshold:
		return domain.VariabilitySeasonal
	case m.CV <= t.Low:
		return domain.VariabilityStable
	case m.CV >= t.High:
		return domain.VariabilityHigh
	default:
		return domain.VariabilityLow
	}
}

// Summarize counts SKUs per category. Every classifier category is present, even at zero.
func Summarize(categories map[string]domain.DemandVariability) map[domain.DemandVariability]int {
	summary := map[domain.DemandVariability]int{
		domain.VariabilityStable:   0,
		domain.VariabilityLow:      0,
		domain.VariabilityHigh:     0,
		domain.VariabilitySeasonal: 0,
	}
	for _, c := range categories {
		summary[c]++
	}
	return summary
}

// DailySeries groups sales by SKU, sums quantities per calendar day and orders
// each series by date. Days without a record are not filled.
func DailySeries(sales []domain.SalesRecord) map[string][]float64 {
	type dayKey struct {
		sku string
		day time.Time
	}

	totals := make(map[dayKey]float64)
	days := make(map[string][]time.Time)
	for _, rec := range sales {
		if rec.SKU == "" {
			continue
		}
		key := dayKey{sku: rec.SKU, day: truncateDay(rec.Date)}
		if _, seen := totals[key]; !seen {
			days[rec.SKU] = append(days[rec.SKU], key.day)
		}
		totals[key] += rec.QtySold
	}

	series := make(map[string][]float64, len(days))
	for sku, ds := range days {
		sort.Slice(ds, func(i, j int) bool { return ds[i].Before(ds[j]) })
		xs := make([]float64, len(ds))
		for i, d := range ds {
			xs[i] = totals[dayKey{sku: sku, day: d}]
		}
		series[sku] = xs
	}
	return series
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
