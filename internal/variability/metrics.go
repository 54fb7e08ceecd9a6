package variability

import (
	"math"
	"sort"
)

// Metrics describes the daily sales series of one SKU.
type Metrics struct {
	SKU          string   `json:"sku"`
	Mean         float64  `json:"mean"`
	StdDev       float64  `json:"std_dev"`
	CV           float64  `json:"cv"`
	Autocorr     *float64 `json:"autocorr_lag7,omitempty"`
	Observations int      `json:"observations"`
	Sufficient   bool     `json:"sufficient"`
}

// ComputeMetrics derives mean, sample standard deviation, CV and lag autocorrelation
// for an ordered series.
func ComputeMetrics(sku string, series []float64, minObservations, lag int) Metrics {
	m := Metrics{
		SKU:          sku,
		Observations: len(series),
		Sufficient:   len(series) >= minObservations,
	}
	if len(series) == 0 {
		return m
	}

	m.Mean = mean(series)
	m.StdDev = sampleStdDev(series, m.Mean)
	m.CV = coefficientOfVariation(series)
	m.Autocorr = Autocorrelation(series, lag)
	return m
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sampleStdDev(xs []float64, mu float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// coefficientOfVariation is 0 for fewer than 2 points or a zero mean.
func coefficientOfVariation(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mu := mean(xs)
	if mu == 0 {
		return 0
	}
	return sampleStdDev(xs, mu) / mu
}

// Autocorrelation returns the lag-k autocorrelation, or nil when the series has
// fewer than lag+10 points or no variance.
func Autocorrelation(xs []float64, lag int) *float64 {
	if lag <= 0 || len(xs) < lag+10 {
		return nil
	}
	mu := mean(xs)

	var num, den float64
	for i, x := range xs {
		d := x - mu
		den += d * d
		if i+lag < len(xs) {
			num += d * (xs[i+lag] - mu)
		}
	}
	if den == 0 {
		return nil
	}
	r := num / den
	return &r
}

// Percentile estimates the p-th percentile (0-100) with linear interpolation
// between closest ranks. The input is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
