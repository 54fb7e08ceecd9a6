package closedloop

import (
	"testing"
	"time"

	"github.com/andresuchdata/autopo-servicelevel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWasteWindowBounds(t *testing.T) {
	sales := []domain.SalesRecord{
		{Date: asOf.AddDate(0, 0, -30), SKU: "A", QtySold: 10},
		{Date: asOf.AddDate(0, 0, -31), SKU: "A", QtySold: 1000},
		{Date: asOf, SKU: "A", QtySold: 1000},
	}
	events := []domain.LedgerEvent{
		{Date: asOf.AddDate(0, 0, -30), SKU: "A", Event: domain.EventWaste, Qty: -2},
		{Date: asOf.AddDate(0, 0, -1), SKU: "A", Event: domain.EventWaste, Qty: 3},
		{Date: asOf.AddDate(0, 0, -1), SKU: "A", Event: domain.EventAdjust, Qty: -50},
		{Date: asOf, SKU: "A", Event: domain.EventWaste, Qty: -50},
	}

	stats := WasteWindow(sales, events, asOf, WasteWindowDays)["A"]

	assert.Equal(t, 5.0, stats.WasteQty, "absolute quantities, start inclusive, end exclusive")
	assert.Equal(t, 10.0, stats.SoldQty)
	assert.Equal(t, 2, stats.Events)
	require.NotNil(t, stats.Rate())
	assert.InDelta(t, 0.5, *stats.Rate(), 1e-12)
}

func TestWasteRateUndefinedWithoutBothSides(t *testing.T) {
	assert.Nil(t, WasteStats{WasteQty: 4}.Rate())
	assert.Nil(t, WasteStats{SoldQty: 4}.Rate())
	assert.Nil(t, WasteStats{}.Rate())
}

func TestLatestKPIIgnoresFutureRows(t *testing.T) {
	rows := []domain.KPIDaily{
		{SKU: "A", Date: asOf.AddDate(0, 0, -5), OOSRate: f(0.1)},
		{SKU: "A", Date: asOf, OOSRate: f(0.2)},
		{SKU: "A", Date: asOf.AddDate(0, 0, 1), OOSRate: f(0.3)},
		{SKU: "B", Date: asOf.AddDate(0, 0, 2), OOSRate: f(0.4)},
	}

	latest := LatestKPI(rows, asOf)

	require.Contains(t, latest, "A")
	assert.Equal(t, 0.2, *latest["A"].OOSRate)
	assert.NotContains(t, latest, "B")
}

func TestIsPerishable(t *testing.T) {
	assert.True(t, IsPerishable(domain.SKU{ShelfLifeDays: 7}))
	assert.False(t, IsPerishable(domain.SKU{ShelfLifeDays: 8}))
	assert.False(t, IsPerishable(domain.SKU{ShelfLifeDays: 0}))
	assert.True(t, IsPerishable(domain.SKU{DemandVariability: domain.VariabilityPerishable}))
}

func TestAuditIDDeterministic(t *testing.T) {
	a := AuditID(domain.AuditClosedLoopApply, "A", "run-1", asOf, 0.95, 0.97)
	b := AuditID(domain.AuditClosedLoopApply, "A", "run-1", asOf.Add(3*time.Hour), 0.95, 0.97)
	c := AuditID(domain.AuditClosedLoopSuggest, "A", "run-1", asOf, 0.95, 0.97)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestAuditIDScopesAppliedChangesToRun(t *testing.T) {
	assert.NotEqual(t,
		AuditID(domain.AuditClosedLoopApply, "A", "run-1", asOf, 0.95, 0.97),
		AuditID(domain.AuditClosedLoopApply, "A", "run-2", asOf, 0.95, 0.97))
	assert.Equal(t,
		AuditID(domain.AuditClosedLoopSuggest, "A", "run-1", asOf, 0.95, 0.97),
		AuditID(domain.AuditClosedLoopSuggest, "A", "run-2", asOf, 0.95, 0.97))
}
