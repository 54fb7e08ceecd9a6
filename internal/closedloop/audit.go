package closedloop

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-servicelevel/internal/domain"
	"github.com/google/uuid"
)

// auditNamespace scopes deterministic audit IDs for closed-loop changes.
var auditNamespace = uuid.MustParse("5b0f3c1e-8f0a-4d5e-9c61-2f7f3f4a1c2d")

// AuditID is stable for the same SKU, review date and CSL change. Suggestions
// repeated on the same day collapse into one row. Applied changes also key on
// runID: every write to the SKU needs its own audit row.
func AuditID(operation, sku, runID string, asOf time.Time, before, after float64) string {
	name := fmt.Sprintf("%s|%s|%s|%.4f|%.4f", operation, sku, day(asOf).Format("2006-01-02"), before, after)
	if operation == domain.AuditClosedLoopApply {
		name += "|" + runID
	}
	return uuid.NewSHA1(auditNamespace, []byte(name)).String()
}

type auditDetails struct {
	RunID            string     `json:"run_id"`
	AsOf             string     `json:"as_of"`
	ActionMode       ActionMode `json:"action_mode"`
	Action           Action     `json:"action"`
	Before           float64    `json:"before"`
	After            float64    `json:"after"`
	Delta            float64    `json:"delta"`
	ReasonCode       ReasonCode `json:"reason_code"`
	Reason           string     `json:"reason"`
	OOSRate          *float64   `json:"oos_rate"`
	WMAPE            *float64   `json:"wmape"`
	WasteRate        *float64   `json:"waste_rate"`
	WasteEventCount  int        `json:"waste_event_count"`
	GuardrailApplied string     `json:"guardrail_applied,omitempty"`
	Guardrails       Guardrails `json:"guardrails"`
}

func buildAuditEntry(d Decision, g Guardrails, runID, user string, asOf, now time.Time) (domain.AuditEntry, error) {
	op := domain.AuditClosedLoopSuggest
	if g.ActionMode == ModeApply {
		op = domain.AuditClosedLoopApply
	}

	details, err := json.Marshal(auditDetails{
		RunID:            runID,
		AsOf:             day(asOf).Format("2006-01-02"),
		ActionMode:       g.ActionMode,
		Action:           d.Action,
		Before:           d.CurrentCSL,
		After:            d.SuggestedCSL,
		Delta:            d.Delta,
		ReasonCode:       d.ReasonCode,
		Reason:           d.Reason,
		OOSRate:          d.OOSRate,
		WMAPE:            d.WMAPE,
		WasteRate:        d.WasteRate,
		WasteEventCount:  d.WasteEventCount,
		GuardrailApplied: d.GuardrailApplied,
		Guardrails:       g,
	})
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("encode audit details: %w", err)
	}

	return domain.AuditEntry{
		ID:        AuditID(op, d.SKU, runID, asOf, d.CurrentCSL, d.SuggestedCSL),
		Timestamp: now,
		Operation: op,
		Details:   string(details),
		SKU:       d.SKU,
		User:      user,
	}, nil
}
