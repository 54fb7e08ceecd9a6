package closedloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-servicelevel/internal/domain"
	"github.com/andresuchdata/autopo-servicelevel/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var asOf = time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return time.Date(2026, 3, 31, 6, 0, 0, 0, time.UTC) }

func settingsFor(mode ActionMode, enabled bool) domain.RawSettings {
	raw := domain.RawSettings{}
	raw.Set(domain.SectionServiceLevel, "default_csl", 0.95)
	raw.Set(domain.SectionClosedLoop, "enabled", enabled)
	raw.Set(domain.SectionClosedLoop, "action_mode", string(mode))
	return raw
}

// scenarioData builds four SKUs: one with stockouts, one perishable with waste,
// one with an unreliable forecast and one without any KPI history.
func scenarioData(mode ActionMode, enabled bool) memory.Data {
	data := memory.Data{
		SKUs: []domain.SKU{
			{SKU: "OOS", DemandVariability: domain.VariabilityStable},
			{SKU: "BREAD", ShelfLifeDays: 3, DemandVariability: domain.VariabilityHigh},
			{SKU: "NOISY", DemandVariability: domain.VariabilityHigh},
			{SKU: "NEW"},
		},
		KPIDaily: []domain.KPIDaily{
			{SKU: "OOS", Date: asOf.AddDate(0, 0, -2), OOSRate: f(0.01), WMAPE: f(0.2)},
			{SKU: "OOS", Date: asOf.AddDate(0, 0, -1), OOSRate: f(0.10), WMAPE: f(0.2)},
			{SKU: "OOS", Date: asOf.AddDate(0, 0, 3), OOSRate: f(0.00), WMAPE: f(0.2)},
			{SKU: "BREAD", Date: asOf.AddDate(0, 0, -1), OOSRate: f(0.0), WMAPE: f(0.3)},
			{SKU: "NOISY", Date: asOf.AddDate(0, 0, -1), OOSRate: f(0.5), WMAPE: f(0.9)},
		},
		Settings: settingsFor(mode, enabled),
	}
	for i := 1; i <= 20; i++ {
		data.Sales = append(data.Sales, domain.SalesRecord{Date: asOf.AddDate(0, 0, -i), SKU: "BREAD", QtySold: 10})
	}
	for i := 1; i <= 5; i++ {
		data.Transactions = append(data.Transactions, domain.LedgerEvent{Date: asOf.AddDate(0, 0, -i), SKU: "BREAD", Event: domain.EventWaste, Qty: -8})
	}
	return data
}

func TestRunDisabledDoesNothing(t *testing.T) {
	store := memory.New(scenarioData(ModeApply, false))

	report, err := NewEngine(store).Run(context.Background(), asOf)
	require.NoError(t, err)

	assert.False(t, report.Enabled)
	assert.Equal(t, 0, report.Summary.SKUsProcessed)
	assert.Empty(t, report.Decisions)
	assert.Equal(t, 0, store.Writes())
	assert.Empty(t, store.AuditLog())
}

func TestRunSuggestMode(t *testing.T) {
	store := memory.New(scenarioData(ModeSuggest, true))

	report, err := NewEngine(store, WithClock(fixedClock)).Run(context.Background(), asOf)
	require.NoError(t, err)

	require.Len(t, report.Decisions, 4)
	assert.Equal(t, []string{"OOS", "BREAD", "NOISY", "NEW"}, skuOrder(report))

	oos, _ := report.Decision("OOS")
	assert.Equal(t, ActionIncrease, oos.Action)
	assert.Equal(t, 0.97, oos.SuggestedCSL)
	assert.Equal(t, 0.10, *oos.OOSRate, "latest row on or before as_of wins")

	bread, _ := report.Decision("BREAD")
	assert.Equal(t, ActionDecrease, bread.Action)
	assert.Equal(t, 0.93, bread.SuggestedCSL)
	assert.Equal(t, 5, bread.WasteEventCount)
	require.NotNil(t, bread.WasteRate)
	assert.InDelta(t, 0.2, *bread.WasteRate, 1e-12)

	noisy, _ := report.Decision("NOISY")
	assert.Equal(t, ActionBlocked, noisy.Action)

	fresh, _ := report.Decision("NEW")
	assert.Equal(t, ActionHold, fresh.Action)
	assert.Equal(t, ReasonNoData, fresh.ReasonCode)

	assert.Equal(t, Summary{
		SKUsProcessed: 4, SKUsChanged: 2, SKUsBlocked: 1, SKUsApplied: 0,
		SKUsIncreased: 1, SKUsDecreased: 1, SKUsHeld: 1,
	}, report.Summary)

	audit := store.AuditLog()
	require.Len(t, audit, 2)
	for _, entry := range audit {
		assert.Equal(t, domain.AuditClosedLoopSuggest, entry.Operation)
		assert.Equal(t, DefaultAuditUser, entry.User)
		assert.Equal(t, fixedClock(), entry.Timestamp)
	}

	sku, _ := store.SKU("OOS")
	assert.Equal(t, 0.0, sku.TargetCSL, "suggest mode never mutates the sku")
}

func TestRunApplyMode(t *testing.T) {
	store := memory.New(scenarioData(ModeApply, true))

	report, err := NewEngine(store).Run(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Summary.SKUsApplied)

	oos, _ := store.SKU("OOS")
	assert.Equal(t, 0.97, oos.TargetCSL)
	bread, _ := store.SKU("BREAD")
	assert.Equal(t, 0.93, bread.TargetCSL)
	noisy, _ := store.SKU("NOISY")
	assert.Equal(t, 0.0, noisy.TargetCSL)

	audit := store.AuditLog()
	require.Len(t, audit, 2)

	var details map[string]any
	require.NoError(t, json.Unmarshal([]byte(audit[0].Details), &details))
	assert.Equal(t, domain.AuditClosedLoopApply, audit[0].Operation)
	assert.Equal(t, "OOS", audit[0].SKU)
	assert.Equal(t, 0.95, details["before"])
	assert.Equal(t, 0.97, details["after"])
	assert.Equal(t, report.RunID, details["run_id"])
	assert.Equal(t, string(ReasonHighOOS), details["reason_code"])
}

func TestRunSuggestIsIdempotentForSameDay(t *testing.T) {
	store := memory.New(scenarioData(ModeSuggest, true))
	engine := NewEngine(store)

	_, err := engine.Run(context.Background(), asOf)
	require.NoError(t, err)
	_, err = engine.Run(context.Background(), asOf)
	require.NoError(t, err)

	assert.Len(t, store.AuditLog(), 2)
}

func TestRunApplyAuditsEveryWriteOnRerun(t *testing.T) {
	store := memory.New(scenarioData(ModeApply, true))
	engine := NewEngine(store)

	_, err := engine.Run(context.Background(), asOf)
	require.NoError(t, err)
	require.Len(t, store.AuditLog(), 2)

	reset := 0.0
	require.NoError(t, store.UpdateSKU(context.Background(), "OOS", domain.SKUUpdate{TargetCSL: &reset}))

	report, err := engine.Run(context.Background(), asOf)
	require.NoError(t, err)

	oos, _ := report.Decision("OOS")
	assert.Equal(t, ActionIncrease, oos.Action)
	assert.Equal(t, 0.95, oos.CurrentCSL)
	assert.Equal(t, 2, report.Summary.SKUsApplied)

	sku, _ := store.SKU("OOS")
	assert.Equal(t, 0.97, sku.TargetCSL)

	var oosApplies int
	for _, entry := range store.AuditLog() {
		if entry.SKU == "OOS" && entry.Operation == domain.AuditClosedLoopApply {
			oosApplies++
		}
	}
	assert.Equal(t, 2, oosApplies, "each applied write has its own audit row")
	assert.Len(t, store.AuditLog(), 2+report.Summary.SKUsApplied)
}

func TestRunConcurrentMatchesSequential(t *testing.T) {
	build := func() *memory.Store {
		data := scenarioData(ModeApply, true)
		for i := 0; i < 40; i++ {
			sku := fmt.Sprintf("EXTRA-%02d", i)
			data.SKUs = append(data.SKUs, domain.SKU{SKU: sku})
			data.KPIDaily = append(data.KPIDaily, domain.KPIDaily{SKU: sku, Date: asOf.AddDate(0, 0, -1), OOSRate: f(float64(i%3) * 0.05), WMAPE: f(0.1)})
		}
		return memory.New(data)
	}

	sequential, err := NewEngine(build()).Run(context.Background(), asOf)
	require.NoError(t, err)
	concurrent, err := NewEngine(build(), WithConcurrency(8)).Run(context.Background(), asOf)
	require.NoError(t, err)

	assert.Equal(t, sequential.Decisions, concurrent.Decisions)
	assert.Equal(t, sequential.Summary, concurrent.Summary)
}

func TestRunPropagatesWriteFailures(t *testing.T) {
	store := memory.New(scenarioData(ModeApply, true))
	store.AuditErr = errors.New("audit log unavailable")

	_, err := NewEngine(store).Run(context.Background(), asOf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit log unavailable")

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, ModeApply, runErr.ActionMode)

	sku, _ := store.SKU("OOS")
	assert.Equal(t, 0.0, sku.TargetCSL, "sku update must not commit without its audit entry")
}

func TestRunUsesResolvedOverride(t *testing.T) {
	data := scenarioData(ModeSuggest, true)
	data.SKUs[0].TargetCSL = 0.99
	store := memory.New(data)

	report, err := NewEngine(store).Run(context.Background(), asOf)
	require.NoError(t, err)

	d, _ := report.Decision("OOS")
	assert.Equal(t, 0.99, d.CurrentCSL)
	assert.Equal(t, 0.999, d.SuggestedCSL)
	assert.Equal(t, GuardrailMaxCSL, d.GuardrailApplied)
}

func TestRunFromFixture(t *testing.T) {
	store, err := memory.LoadFixture("testdata/review.yaml")
	require.NoError(t, err)

	report, err := RunClosedLoop(context.Background(), store, asOf)
	require.NoError(t, err)

	assert.True(t, report.Enabled)
	assert.Equal(t, ModeApply, report.ActionMode)
	assert.Equal(t, 0.03, report.Guardrails.MaxStepPerReview)

	yogurt, ok := report.Decision("YOGURT-500")
	require.True(t, ok)
	assert.Equal(t, ActionDecrease, yogurt.Action)
	assert.Equal(t, 0.87, yogurt.SuggestedCSL)

	rice, ok := report.Decision("RICE-5KG")
	require.True(t, ok)
	assert.Equal(t, ActionIncrease, rice.Action)
	assert.Equal(t, 0.96, rice.SuggestedCSL)

	stored, _ := store.SKU("RICE-5KG")
	assert.Equal(t, 0.96, stored.TargetCSL)
}

func TestReportToMap(t *testing.T) {
	store := memory.New(scenarioData(ModeSuggest, true))
	report, err := NewEngine(store).Run(context.Background(), asOf)
	require.NoError(t, err)

	m := report.ToMap()
	assert.Equal(t, "2026-03-31", m["as_of"])
	assert.Equal(t, "suggest", m["action_mode"])

	raw, err := json.Marshal(report)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	decisions := decoded["decisions"].([]any)
	require.Len(t, decisions, 4)
	fresh := decisions[3].(map[string]any)
	assert.Equal(t, "NEW", fresh["sku"])
	assert.Nil(t, fresh["oos_rate"])
	assert.Nil(t, fresh["guardrail_applied"])

	summary := decoded["summary"].(map[string]any)
	assert.Equal(t, float64(4), summary["skus_processed"])
}

func skuOrder(r *Report) []string {
	out := make([]string, len(r.Decisions))
	for i, d := range r.Decisions {
		out[i] = d.SKU
	}
	return out
}
