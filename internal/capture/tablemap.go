package capture

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadTableMap reads an optional OID→table-name map recorded alongside the
// captures. A missing path is not an error; the map is simply absent and
// attribution falls back to the live catalog.
func LoadTableMap(path string) (map[uint32]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read table map: %w", err)
	}

	raw := make(map[uint32]string)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid table map YAML: %w", err)
	}

	out := make(map[uint32]string, len(raw))
	for oid, name := range raw {
		out[oid] = strings.ToLower(name)
	}
	return out, nil
}
