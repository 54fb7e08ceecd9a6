package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFixture builds a Store from a YAML document with skus, sales,
// transactions, kpi_daily and settings keys.
func LoadFixture(path string) (*Store, error) {
	data, err := LoadData(path)
	if err != nil {
		return nil, err
	}
	return New(data), nil
}

// LoadData reads a fixture without building a store.
func LoadData(path string) (Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Data{}, fmt.Errorf("read fixture %s: %w", path, err)
	}
	return DecodeData(raw)
}

// ParseFixture decodes fixture YAML into a Store.
func ParseFixture(raw []byte) (*Store, error) {
	data, err := DecodeData(raw)
	if err != nil {
		return nil, err
	}
	return New(data), nil
}

// DecodeData decodes fixture YAML.
func DecodeData(raw []byte) (Data, error) {
	var data Data
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return Data{}, fmt.Errorf("decode fixture: %w", err)
	}
	return data, nil
}
