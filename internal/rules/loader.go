package rules

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk rule set layout.
type File struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

// LoadFile reads a YAML (or JSON, which is valid YAML) rule file.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rs, nil
}

// Parse decodes a rule file body. Parameters are normalized to their JSON
// shapes so they compare equal to rules read back from storage.
func Parse(data []byte) ([]Rule, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if err := Normalize(f.Rules); err != nil {
		return nil, err
	}
	return f.Rules, nil
}

func normalizeParameters(p map[string]any) (map[string]any, error) {
	if len(p) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("parameters are not JSON-representable: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
