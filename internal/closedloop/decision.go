package closedloop

import (
	"fmt"
	"math"
)

// Action is the outcome of evaluating one SKU.
type Action string

const (
	ActionIncrease Action = "increase"
	ActionDecrease Action = "decrease"
	ActionHold     Action = "hold"
	ActionBlocked  Action = "blocked"
)

// Changes reports whether the action moves the target CSL.
func (a Action) Changes() bool {
	return a == ActionIncrease || a == ActionDecrease
}

// ReasonCode is the machine-readable cause of a decision.
type ReasonCode string

const (
	ReasonUnreliableForecast ReasonCode = "unreliable_forecast"
	ReasonHighOOS            ReasonCode = "oos_above_threshold"
	ReasonHighWaste          ReasonCode = "waste_above_threshold"
	ReasonOOSOverWaste       ReasonCode = "oos_priority_over_waste"
	ReasonWasteOverOOS       ReasonCode = "waste_priority_over_oos"
	ReasonAtMaxCSL           ReasonCode = "at_max_csl"
	ReasonAtMinCSL           ReasonCode = "at_min_csl"
	ReasonNoData             ReasonCode = "no_kpi_data"
	ReasonWithinThresholds   ReasonCode = "within_thresholds"
)

// Guardrail names recorded when a bound limits a proposal.
const (
	GuardrailMaxCSL = "max_csl_absolute"
	GuardrailMinCSL = "min_csl_absolute"
)

// Inputs is everything the rules look at for one SKU.
type Inputs struct {
	SKU             string
	CurrentCSL      float64
	Perishable      bool
	OOSRate         *float64
	WMAPE           *float64
	WasteRate       *float64
	WasteEventCount int
}

// Decision is the immutable result for one SKU.
type Decision struct {
	SKU              string     `json:"sku"`
	CurrentCSL       float64    `json:"current_csl"`
	SuggestedCSL     float64    `json:"suggested_csl"`
	Delta            float64    `json:"delta"`
	Action           Action     `json:"action"`
	ReasonCode       ReasonCode `json:"reason_code"`
	Reason           string     `json:"reason"`
	OOSRate          *float64   `json:"oos_rate"`
	WMAPE            *float64   `json:"wmape"`
	WasteRate        *float64   `json:"waste_rate"`
	WasteEventCount  int        `json:"waste_event_count"`
	GuardrailApplied string     `json:"guardrail_applied,omitempty"`
	Perishable       bool       `json:"perishable"`
}

// Evaluate applies the rules in fixed order: block on unreliable forecasts,
// then stockout correction, then waste correction, otherwise hold. It has no
// side effects.
func Evaluate(in Inputs, g Guardrails) Decision {
	d := Decision{
		SKU:             in.SKU,
		CurrentCSL:      in.CurrentCSL,
		SuggestedCSL:    in.CurrentCSL,
		Action:          ActionHold,
		OOSRate:         in.OOSRate,
		WMAPE:           in.WMAPE,
		WasteRate:       in.WasteRate,
		WasteEventCount: in.WasteEventCount,
		Perishable:      in.Perishable,
	}

	if in.WMAPE != nil && *in.WMAPE > g.WMAPEThreshold {
		d.Action = ActionBlocked
		d.ReasonCode = ReasonUnreliableForecast
		d.Reason = fmt.Sprintf("wmape %.3f above %.3f: forecast unreliable, csl unchanged", *in.WMAPE, g.WMAPEThreshold)
		return d
	}

	oosBreach := in.OOSRate != nil && *in.OOSRate > g.OOSRateThreshold
	wasteBreach := in.Perishable &&
		in.WasteRate != nil && *in.WasteRate > g.WasteRateThreshold &&
		in.WasteEventCount >= g.MinWasteEvents

	switch {
	case oosBreach && wasteBreach && g.ConflictPolicy == PolicyWasteFirst:
		d = decrease(d, g)
		if d.Action == ActionDecrease {
			d.ReasonCode = ReasonWasteOverOOS
		}
		d.Reason += fmt.Sprintf("; oos correction suppressed (oos_rate %.3f): waste correction takes priority", *in.OOSRate)
	case oosBreach && wasteBreach:
		d = increase(d, g)
		if d.Action == ActionIncrease {
			d.ReasonCode = ReasonOOSOverWaste
		}
		d.Reason += fmt.Sprintf("; waste correction suppressed (waste_rate %.3f): oos correction takes priority", *in.WasteRate)
	case oosBreach:
		d = increase(d, g)
	case wasteBreach:
		d = decrease(d, g)
	case in.OOSRate == nil && in.WMAPE == nil && in.WasteRate == nil:
		d.ReasonCode = ReasonNoData
		d.Reason = "no kpi history"
	default:
		d.ReasonCode = ReasonWithinThresholds
		d.Reason = "kpis within thresholds"
	}
	return d
}

func increase(d Decision, g Guardrails) Decision {
	proposed := roundFloat(d.CurrentCSL+g.MaxStepPerReview, 4)
	if proposed > g.MaxCSLAbsolute {
		proposed = g.MaxCSLAbsolute
		d.GuardrailApplied = GuardrailMaxCSL
	}

	if proposed <= d.CurrentCSL {
		d.ReasonCode = ReasonAtMaxCSL
		d.Reason = fmt.Sprintf("oos_rate %.3f above %.3f but csl already at %.4f ceiling", *d.OOSRate, g.OOSRateThreshold, g.MaxCSLAbsolute)
		return d
	}

	d.Action = ActionIncrease
	d.ReasonCode = ReasonHighOOS
	d.SuggestedCSL = proposed
	d.Delta = roundFloat(proposed-d.CurrentCSL, 4)
	d.Reason = fmt.Sprintf("oos_rate %.3f above %.3f", *d.OOSRate, g.OOSRateThreshold)
	return d
}

func decrease(d Decision, g Guardrails) Decision {
	proposed := roundFloat(d.CurrentCSL-g.MaxStepPerReview, 4)
	if proposed < g.MinCSLAbsolute {
		proposed = g.MinCSLAbsolute
		d.GuardrailApplied = GuardrailMinCSL
	}

	if proposed >= d.CurrentCSL {
		d.ReasonCode = ReasonAtMinCSL
		d.Reason = fmt.Sprintf("waste_rate %.3f above %.3f but csl already at %.4f floor", *d.WasteRate, g.WasteRateThreshold, g.MinCSLAbsolute)
		return d
	}

	d.Action = ActionDecrease
	d.ReasonCode = ReasonHighWaste
	d.SuggestedCSL = proposed
	d.Delta = roundFloat(proposed-d.CurrentCSL, 4)
	d.Reason = fmt.Sprintf("waste_rate %.3f above %.3f with %d waste events", *d.WasteRate, g.WasteRateThreshold, d.WasteEventCount)
	return d
}

// roundFloat rounds v to the given number of decimal places.
func roundFloat(v float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(v)
	}
	factor := math.Pow(10, float64(decimals))
	return math.Round(v*factor) / factor
}
