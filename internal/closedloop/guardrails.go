package closedloop

import (
	"strings"

	"github.com/andresuchdata/autopo-servicelevel/internal/domain"
)

// ActionMode selects whether decisions are only logged or also committed.
type ActionMode string

const (
	ModeSuggest ActionMode = "suggest"
	ModeApply   ActionMode = "apply"
)

// ConflictPolicy decides which correction wins when stockouts and waste both breach.
type ConflictPolicy string

const (
	PolicyOOSFirst   ConflictPolicy = "oos_first"
	PolicyWasteFirst ConflictPolicy = "waste_first"
)

// Guardrails is the closed-loop configuration used for one run.
type Guardrails struct {
	Enabled            bool           `json:"enabled"`
	ActionMode         ActionMode     `json:"action_mode"`
	MaxStepPerReview   float64        `json:"max_step_per_review"`
	OOSRateThreshold   float64        `json:"oos_rate_threshold"`
	WMAPEThreshold     float64        `json:"wmape_threshold"`
	WasteRateThreshold float64        `json:"waste_rate_threshold"`
	MinWasteEvents     int            `json:"min_waste_events"`
	MinCSLAbsolute     float64        `json:"min_csl_absolute"`
	MaxCSLAbsolute     float64        `json:"max_csl_absolute"`
	ConflictPolicy     ConflictPolicy `json:"conflict_policy"`
}

// DefaultGuardrails returns the configuration used when settings are absent.
func DefaultGuardrails() Guardrails {
	return Guardrails{
		Enabled:            false,
		ActionMode:         ModeSuggest,
		MaxStepPerReview:   0.02,
		OOSRateThreshold:   0.05,
		WMAPEThreshold:     0.60,
		WasteRateThreshold: 0.10,
		MinWasteEvents:     3,
		MinCSLAbsolute:     0.50,
		MaxCSLAbsolute:     0.999,
		ConflictPolicy:     PolicyOOSFirst,
	}
}

// ParseGuardrails reads the closed_loop settings section. Malformed or
// out-of-range values fall back to their defaults.
func ParseGuardrails(raw domain.RawSettings) Guardrails {
	g := DefaultGuardrails()
	const sec = domain.SectionClosedLoop

	if v, ok := raw.Bool(sec, "enabled"); ok {
		g.Enabled = v
	}
	if v, ok := raw.String(sec, "action_mode"); ok {
		switch ActionMode(strings.ToLower(v)) {
		case ModeApply:
			g.ActionMode = ModeApply
		case ModeSuggest:
			g.ActionMode = ModeSuggest
		}
	}
	if v, ok := raw.String(sec, "conflict_policy"); ok {
		switch ConflictPolicy(strings.ToLower(v)) {
		case PolicyWasteFirst:
			g.ConflictPolicy = PolicyWasteFirst
		case PolicyOOSFirst:
			g.ConflictPolicy = PolicyOOSFirst
		}
	}

	positive(raw, "max_step_per_review", &g.MaxStepPerReview)
	nonNegative(raw, "oos_rate_threshold", &g.OOSRateThreshold)
	nonNegative(raw, "wmape_threshold", &g.WMAPEThreshold)
	nonNegative(raw, "waste_rate_threshold", &g.WasteRateThreshold)
	if v, ok := raw.Int(sec, "min_waste_events"); ok && v >= 0 {
		g.MinWasteEvents = v
	}

	minCSL, maxCSL := g.MinCSLAbsolute, g.MaxCSLAbsolute
	if v, ok := raw.Float(sec, "min_csl_absolute"); ok && v > 0 && v < 1 {
		minCSL = v
	}
	if v, ok := raw.Float(sec, "max_csl_absolute"); ok && v > 0 && v < 1 {
		maxCSL = v
	}
	if minCSL < maxCSL {
		g.MinCSLAbsolute, g.MaxCSLAbsolute = minCSL, maxCSL
	}

	return g
}

func positive(raw domain.RawSettings, key string, dst *float64) {
	if v, ok := raw.Float(domain.SectionClosedLoop, key); ok && v > 0 {
		*dst = v
	}
}

func nonNegative(raw domain.RawSettings, key string, dst *float64) {
	if v, ok := raw.Float(domain.SectionClosedLoop, key); ok && v >= 0 {
		*dst = v
	}
}
