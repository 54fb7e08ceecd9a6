package closedloop

import (
	"encoding/json"
	"time"
)

// Summary counts decisions in a report.
type Summary struct {
	SKUsProcessed int `json:"skus_processed"`
	SKUsChanged   int `json:"skus_changed"`
	SKUsBlocked   int `json:"skus_blocked"`
	SKUsApplied   int `json:"skus_applied"`
	SKUsIncreased int `json:"skus_increased"`
	SKUsDecreased int `json:"skus_decreased"`
	SKUsHeld      int `json:"skus_held"`
}

// Report is the per-invocation output of the engine. It is never persisted as such.
type Report struct {
	RunID       string
	AsOf        time.Time
	GeneratedAt time.Time
	Enabled     bool
	ActionMode  ActionMode
	Decisions   []Decision
	Summary     Summary
	Guardrails  Guardrails
}

func newReport(runID string, asOf, generatedAt time.Time, g Guardrails) *Report {
	return &Report{
		RunID:       runID,
		AsOf:        day(asOf),
		GeneratedAt: generatedAt,
		Enabled:     g.Enabled,
		ActionMode:  g.ActionMode,
		Decisions:   []Decision{},
		Guardrails:  g,
	}
}

// summarize recomputes Summary from Decisions. applied marks decisions that were committed.
func (r *Report) summarize(applied int) {
	s := Summary{SKUsProcessed: len(r.Decisions), SKUsApplied: applied}
	for _, d := range r.Decisions {
		switch d.Action {
		case ActionIncrease:
			s.SKUsIncreased++
			s.SKUsChanged++
		case ActionDecrease:
			s.SKUsDecreased++
			s.SKUsChanged++
		case ActionBlocked:
			s.SKUsBlocked++
		default:
			s.SKUsHeld++
		}
	}
	r.Summary = s
}

// Decision returns the decision for sku, if present.
func (r *Report) Decision(sku string) (Decision, bool) {
	for _, d := range r.Decisions {
		if d.SKU == sku {
			return d, true
		}
	}
	return Decision{}, false
}

// ToMap renders the report for display or storage with rates rounded to 4 decimals.
func (r *Report) ToMap() map[string]any {
	decisions := make([]map[string]any, 0, len(r.Decisions))
	for _, d := range r.Decisions {
		decisions = append(decisions, d.ToMap())
	}
	return map[string]any{
		"run_id":       r.RunID,
		"as_of":        r.AsOf.Format("2006-01-02"),
		"generated_at": r.GeneratedAt.UTC().Format(time.RFC3339),
		"enabled":      r.Enabled,
		"action_mode":  string(r.ActionMode),
		"decisions":    decisions,
		"summary":      r.Summary,
		"guardrails":   r.Guardrails,
	}
}

// MarshalJSON encodes the ToMap form.
func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToMap())
}

// ToMap renders a decision with rounded values; unknown metrics stay nil.
func (d Decision) ToMap() map[string]any {
	m := map[string]any{
		"sku":               d.SKU,
		"current_csl":       roundFloat(d.CurrentCSL, 4),
		"suggested_csl":     roundFloat(d.SuggestedCSL, 4),
		"delta":             roundFloat(d.Delta, 4),
		"action":            string(d.Action),
		"reason_code":       string(d.ReasonCode),
		"reason":            d.Reason,
		"oos_rate":          roundPtr(d.OOSRate),
		"wmape":             roundPtr(d.WMAPE),
		"waste_rate":        roundPtr(d.WasteRate),
		"waste_event_count": d.WasteEventCount,
		"guardrail_applied": nil,
		"perishable":        d.Perishable,
	}
	if d.GuardrailApplied != "" {
		m["guardrail_applied"] = d.GuardrailApplied
	}
	return m
}

func roundPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return roundFloat(*v, 4)
}
