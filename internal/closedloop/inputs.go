package closedloop

import (
	"math"
	"time"

	"github.com/andresuchdata/autopo-servicelevel/internal/domain"
)

// WasteWindowDays is the trailing window used to re-derive waste from the ledger.
const WasteWindowDays = 30

// LatestKPI keeps, per SKU, the KPI row with the latest date not after asOf.
func LatestKPI(rows []domain.KPIDaily, asOf time.Time) map[string]domain.KPIDaily {
	cutoff := day(asOf)
	latest := make(map[string]domain.KPIDaily)
	for _, row := range rows {
		d := day(row.Date)
		if d.After(cutoff) {
			continue
		}
		cur, ok := latest[row.SKU]
		if !ok || d.After(day(cur.Date)) {
			latest[row.SKU] = row
		}
	}
	return latest
}

// WasteStats is the trailing waste picture for one SKU.
type WasteStats struct {
	WasteQty float64
	SoldQty  float64
	Events   int
}

// Rate is |waste| / sold, or nil when either side is zero.
func (w WasteStats) Rate() *float64 {
	if w.WasteQty == 0 || w.SoldQty == 0 {
		return nil
	}
	r := w.WasteQty / w.SoldQty
	return &r
}

// WasteWindow aggregates WASTE ledger events and sold quantities over
// [asOf-days, asOf) per SKU.
func WasteWindow(sales []domain.SalesRecord, events []domain.LedgerEvent, asOf time.Time, days int) map[string]WasteStats {
	end := day(asOf)
	start := end.AddDate(0, 0, -days)
	inWindow := func(t time.Time) bool {
		d := day(t)
		return !d.Before(start) && d.Before(end)
	}

	stats := make(map[string]WasteStats)
	for _, ev := range events {
		if ev.Event != domain.EventWaste || !inWindow(ev.Date) {
			continue
		}
		s := stats[ev.SKU]
		s.WasteQty += math.Abs(ev.Qty)
		s.Events++
		stats[ev.SKU] = s
	}
	for _, rec := range sales {
		if !inWindow(rec.Date) {
			continue
		}
		s := stats[rec.SKU]
		s.SoldQty += rec.QtySold
		stats[rec.SKU] = s
	}
	return stats
}

// IsPerishable applies the closed-loop notion of perishability: short shelf
// life or an explicit PERISHABLE label.
func IsPerishable(sku domain.SKU) bool {
	return sku.HasShelfLifePerishability() || sku.DemandVariability == domain.VariabilityPerishable
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
