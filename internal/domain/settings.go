package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Settings sections read by the core.
const (
	SectionServiceLevel = "service_level"
	SectionClosedLoop   = "closed_loop"
)

// SettingValue is one self-describing entry of the raw settings map. Only Value
// is consumed by the core; the bounds and description are informational.
type SettingValue struct {
	Value       any      `json:"value" yaml:"value"`
	Min         *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max         *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// RawSettings is the nested section -> key -> descriptor structure owned by the store.
// It may be nil, partial, or carry values of the wrong type.
type RawSettings map[string]map[string]SettingValue

// Lookup returns the raw value stored under section/key.
func (s RawSettings) Lookup(section, key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	sec, ok := s[section]
	if !ok || sec == nil {
		return nil, false
	}
	entry, ok := sec[key]
	if !ok || entry.Value == nil {
		return nil, false
	}
	return entry.Value, true
}

// Float returns section/key as a finite float64.
func (s RawSettings) Float(section, key string) (float64, bool) {
	v, ok := s.Lookup(section, key)
	if !ok {
		return 0, false
	}
	return AsFloat(v)
}

// Int returns section/key as an int. Fractional numbers are truncated.
func (s RawSettings) Int(section, key string) (int, bool) {
	f, ok := s.Float(section, key)
	if !ok || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// Bool returns section/key as a bool, accepting the usual string and numeric spellings.
func (s RawSettings) Bool(section, key string) (bool, bool) {
	v, ok := s.Lookup(section, key)
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, false
		}
		return parsed, true
	}
	if f, ok := AsFloat(v); ok {
		return f != 0, true
	}
	return false, false
}

// String returns section/key as a trimmed string.
func (s RawSettings) String(section, key string) (string, bool) {
	v, ok := s.Lookup(section, key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(str), true
}

// Set stores value under section/key, creating the section if needed.
func (s RawSettings) Set(section, key string, value any) {
	sec, ok := s[section]
	if !ok || sec == nil {
		sec = make(map[string]SettingValue)
		s[section] = sec
	}
	entry := sec[key]
	entry.Value = value
	sec[key] = entry
}

// AsFloat coerces JSON/YAML-decoded numbers and numeric strings. NaN and Inf are rejected.
func AsFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
