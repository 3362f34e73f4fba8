package mapping

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dsandi/seed-it/internal/types"
)

// OverrideFile is the on-disk shape of manual column-mapping overrides,
// keyed by output column name like the inferred mappings.
type OverrideFile struct {
	Mappings map[string]types.ColumnMapping `yaml:"mappings"`
}

// LoadOverrides reads manual mappings from a YAML file. A missing path is
// not an error; overrides are optional.
func LoadOverrides(path string) (map[string]types.ColumnMapping, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read mapping overrides: %w", err)
	}

	var file OverrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse mapping overrides: %w", err)
	}

	for name, m := range file.Mappings {
		if m.Shape == "" {
			m.Shape = types.ShapeScalar
			file.Mappings[name] = m
		}
	}
	return file.Mappings, nil
}

// Merge layers manual overrides over inferred mappings; an override wins
// for its output column.
func Merge(inferred, manual map[string]types.ColumnMapping) map[string]types.ColumnMapping {
	out := make(map[string]types.ColumnMapping, len(inferred)+len(manual))
	for name, m := range inferred {
		out[name] = m
	}
	for name, m := range manual {
		out[name] = m
	}
	return out
}
