package servicelevel

import (
	"math"
	"strings"

	"github.com/andresuchdata/autopo-servicelevel/internal/domain"
)

// Metric selects how the service level target is interpreted.
type Metric string

const (
	MetricCSL           Metric = "CSL"
	MetricFillRateProxy Metric = "FILL_RATE_PROXY"
)

// OOSMode selects how stockout days are counted.
type OOSMode string

const (
	OOSModeStrict  OOSMode = "strict"
	OOSModeRelaxed OOSMode = "relaxed"
)

// Bounds applied by the normalizer.
const (
	MinSettingCSL       = 0.01
	MaxSettingCSL       = 0.9999
	DefaultCSL          = 0.95
	DefaultFillRate     = 0.95
	DefaultLookbackDays = 30
	MinLookbackDays     = 7
)

// FloatOption is a bounded numeric setting.
type FloatOption struct {
	Value       float64 `json:"value"`
	Default     float64 `json:"default"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Description string  `json:"description"`
}

// IntOption is an integer setting with a floor.
type IntOption struct {
	Value       int    `json:"value"`
	Default     int    `json:"default"`
	Min         int    `json:"min"`
	Description string `json:"description"`
}

// ChoiceOption is an enumerated setting.
type ChoiceOption struct {
	Value       string   `json:"value"`
	Default     string   `json:"default"`
	Choices     []string `json:"choices"`
	Description string   `json:"description"`
}

// NormalizedSettings is a complete, bounded service level section.
type NormalizedSettings struct {
	Metric         ChoiceOption `json:"metric"`
	DefaultCSL     FloatOption  `json:"default_csl"`
	FillRateTarget FloatOption  `json:"fill_rate_target"`
	LookbackDays   IntOption    `json:"lookback_days"`
	OOSMode        ChoiceOption `json:"oos_mode"`
}

// MetricValue returns the selected metric.
func (n NormalizedSettings) MetricValue() Metric { return Metric(n.Metric.Value) }

// OOSModeValue returns the selected OOS mode.
func (n NormalizedSettings) OOSModeValue() OOSMode { return OOSMode(n.OOSMode.Value) }

type floatSpec struct {
	key         string
	def         float64
	min, max    float64
	description string
}

func (s floatSpec) normalize(raw domain.RawSettings) FloatOption {
	opt := FloatOption{Value: s.def, Default: s.def, Min: s.min, Max: s.max, Description: s.description}
	if v, ok := raw.Float(domain.SectionServiceLevel, s.key); ok {
		opt.Value = math.Max(s.min, math.Min(s.max, v))
	}
	return opt
}

type intSpec struct {
	key         string
	def         int
	min         int
	description string
}

func (s intSpec) normalize(raw domain.RawSettings) IntOption {
	opt := IntOption{Value: s.def, Default: s.def, Min: s.min, Description: s.description}
	if v, ok := raw.Int(domain.SectionServiceLevel, s.key); ok {
		opt.Value = v
		if opt.Value < s.min {
			opt.Value = s.min
		}
	}
	return opt
}

type choiceSpec struct {
	key         string
	def         string
	choices     []string
	fold        func(string) string
	description string
}

func (s choiceSpec) normalize(raw domain.RawSettings) ChoiceOption {
	opt := ChoiceOption{Value: s.def, Default: s.def, Choices: append([]string(nil), s.choices...), Description: s.description}
	v, ok := raw.String(domain.SectionServiceLevel, s.key)
	if !ok {
		return opt
	}
	v = s.fold(v)
	for _, c := range s.choices {
		if v == c {
			opt.Value = c
			break
		}
	}
	return opt
}

var (
	metricSpec = choiceSpec{
		key:         "metric",
		def:         string(MetricCSL),
		choices:     []string{string(MetricCSL), string(MetricFillRateProxy)},
		fold:        strings.ToUpper,
		description: "Service level metric driving safety stock",
	}
	defaultCSLSpec = floatSpec{
		key:         "default_csl",
		def:         DefaultCSL,
		min:         MinSettingCSL,
		max:         MaxSettingCSL,
		description: "Global target cycle service level",
	}
	fillRateSpec = floatSpec{
		key:         "fill_rate_target",
		def:         DefaultFillRate,
		min:         MinSettingCSL,
		max:         MaxSettingCSL,
		description: "Target fill rate when the fill-rate proxy metric is selected",
	}
	lookbackSpec = intSpec{
		key:         "lookback_days",
		def:         DefaultLookbackDays,
		min:         MinLookbackDays,
		description: "Days of history used for KPI evaluation",
	}
	oosModeSpec = choiceSpec{
		key:         "oos_mode",
		def:         string(OOSModeStrict),
		choices:     []string{string(OOSModeStrict), string(OOSModeRelaxed)},
		fold:        strings.ToLower,
		description: "How stockout days are counted",
	}
)

// NormalizeSettings validates and clamps the service level section. It never fails:
// missing or malformed values fall back to their defaults.
func NormalizeSettings(raw domain.RawSettings) NormalizedSettings {
	return NormalizedSettings{
		Metric:         metricSpec.normalize(raw),
		DefaultCSL:     defaultCSLSpec.normalize(raw),
		FillRateTarget: fillRateSpec.normalize(raw),
		LookbackDays:   lookbackSpec.normalize(raw),
		OOSMode:        oosModeSpec.normalize(raw),
	}
}
