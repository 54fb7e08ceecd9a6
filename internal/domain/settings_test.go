package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRawSettingsLookupOnNilAndPartial(t *testing.T) {
	var nilSettings RawSettings
	_, ok := nilSettings.Lookup(SectionServiceLevel, "default_csl")
	assert.False(t, ok)

	partial := RawSettings{SectionServiceLevel: nil}
	_, ok = partial.Float(SectionServiceLevel, "default_csl")
	assert.False(t, ok)

	withNilValue := RawSettings{SectionServiceLevel: {"default_csl": {Value: nil}}}
	_, ok = withNilValue.Lookup(SectionServiceLevel, "default_csl")
	assert.False(t, ok)
}

func TestRawSettingsCoercion(t *testing.T) {
	s := RawSettings{}
	s.Set("s", "float", 0.9)
	s.Set("s", "int", 7)
	s.Set("s", "numeric_string", " 0.97 ")
	s.Set("s", "json_number", json.Number("0.5"))
	s.Set("s", "nan", math.NaN())
	s.Set("s", "word", "high")
	s.Set("s", "bool_string", "true")
	s.Set("s", "zero", 0)
	s.Set("s", "list", []any{1})

	tests := []struct {
		key    string
		wantF  float64
		wantOK bool
	}{
		{"float", 0.9, true},
		{"int", 7, true},
		{"numeric_string", 0.97, true},
		{"json_number", 0.5, true},
		{"nan", 0, false},
		{"word", 0, false},
		{"list", 0, false},
		{"missing", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			f, ok := s.Float("s", tt.key)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantF, f)
		})
	}

	i, ok := s.Int("s", "float")
	assert.True(t, ok)
	assert.Equal(t, 0, i)

	b, ok := s.Bool("s", "bool_string")
	assert.True(t, ok)
	assert.True(t, b)

	b, ok = s.Bool("s", "zero")
	assert.True(t, ok)
	assert.False(t, b)

	_, ok = s.Bool("s", "word")
	assert.False(t, ok)

	str, ok := s.String("s", "numeric_string")
	assert.True(t, ok)
	assert.Equal(t, "0.97", str)

	_, ok = s.String("s", "float")
	assert.False(t, ok)
}

func TestRawSettingsSetKeepsBounds(t *testing.T) {
	lo, hi := 0.5, 0.999
	s := RawSettings{SectionServiceLevel: {"default_csl": {Value: 0.9, Min: &lo, Max: &hi}}}

	s.Set(SectionServiceLevel, "default_csl", 0.95)

	entry := s[SectionServiceLevel]["default_csl"]
	assert.Equal(t, 0.95, entry.Value)
	assert.Equal(t, &lo, entry.Min)
	assert.Equal(t, &hi, entry.Max)
}

func TestParseDemandVariability(t *testing.T) {
	v, ok := ParseDemandVariability(" seasonal ")
	assert.True(t, ok)
	assert.Equal(t, VariabilitySeasonal, v)

	_, ok = ParseDemandVariability("VOLATILE")
	assert.False(t, ok)
}

func TestShelfLifePerishability(t *testing.T) {
	assert.True(t, SKU{ShelfLifeDays: 1}.HasShelfLifePerishability())
	assert.True(t, SKU{ShelfLifeDays: PerishableShelfLifeDays}.HasShelfLifePerishability())
	assert.False(t, SKU{ShelfLifeDays: PerishableShelfLifeDays + 1}.HasShelfLifePerishability())
	assert.False(t, SKU{}.HasShelfLifePerishability())
}
