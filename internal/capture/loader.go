// Package capture loads recorded query executions from the JSON files the
// external interception layer writes.
package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dsandi/seed-it/internal/report"
	"github.com/dsandi/seed-it/internal/types"
)

// Load reads captured queries from a JSON file, or from every *.json file
// in a directory (sorted by name so capture order is stable). Entries that
// recorded an execution error are skipped with a warning.
func Load(path string, rep *report.Reporter) ([]types.CapturedQuery, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat captures path: %w", err)
	}

	var files []string
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.json"))
		if err != nil {
			return nil, err
		}
		sort.Strings(files)
	} else {
		files = []string{path}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no capture files found in %s", path)
	}

	var all []types.CapturedQuery
	for _, file := range files {
		queries, err := loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		for _, q := range queries {
			if q.Error != "" {
				rep.Warnf("skipping failed capture from %s: %s", filepath.Base(file), q.Error)
				continue
			}
			all = append(all, q)
		}
	}
	return all, nil
}

func loadFile(path string) ([]types.CapturedQuery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var queries []types.CapturedQuery
	if err := json.Unmarshal(data, &queries); err == nil {
		return queries, nil
	}

	// A file may also hold a single capture object.
	var one types.CapturedQuery
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("invalid capture JSON: %w", err)
	}
	return []types.CapturedQuery{one}, nil
}
