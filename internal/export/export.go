// Package export writes the finished seed dataset to disk. The emitters
// preserve the insertion-safe table order alongside the rows so a loader
// can replay the dataset without re-deriving dependencies.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dsandi/seed-it/internal/types"
)

// Snapshot is the on-disk envelope shared by every output format.
type Snapshot struct {
	Version     string               `json:"version" yaml:"version"`
	GeneratedAt string               `json:"generated_at" yaml:"generated_at"`
	Order       []string             `json:"order" yaml:"order"`
	Tables      map[string][]types.Row `json:"tables" yaml:"tables"`
}

// Emitter turns a finished dataset into one file on disk and returns the
// written path.
type Emitter interface {
	Emit(order []string, rows types.RowSet) (string, error)
}

// ForFormat picks an emitter by name. Unknown formats default to JSON.
func ForFormat(format, outputPath string) Emitter {
	switch format {
	case "yaml", "yml":
		return &YAMLEmitter{OutputPath: outputPath}
	default:
		return &JSONEmitter{OutputPath: outputPath}
	}
}

func buildSnapshot(order []string, rows types.RowSet) Snapshot {
	snap := Snapshot{
		Version:     "1.0",
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05"),
		Tables:      make(map[string][]types.Row, len(rows)),
	}
	for _, table := range order {
		if list := rows[table]; len(list) > 0 {
			snap.Order = append(snap.Order, table)
			snap.Tables[table] = list
		}
	}
	return snap
}

// JSONEmitter writes the dataset as one timestamped JSON file under
// OutputPath.
type JSONEmitter struct {
	OutputPath string
}

func (e *JSONEmitter) Emit(order []string, rows types.RowSet) (string, error) {
	if err := os.MkdirAll(e.OutputPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(buildSnapshot(order, rows), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal dataset: %w", err)
	}

	filePath := filepath.Join(e.OutputPath, fmt.Sprintf("seed_%s.json", time.Now().Format("2006-01-02_15-04-05")))
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return filePath, nil
}

// YAMLEmitter writes the same snapshot as YAML, for datasets meant to be
// hand-edited after generation.
type YAMLEmitter struct {
	OutputPath string
}

func (e *YAMLEmitter) Emit(order []string, rows types.RowSet) (string, error) {
	if err := os.MkdirAll(e.OutputPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := yaml.Marshal(buildSnapshot(order, rows))
	if err != nil {
		return "", fmt.Errorf("failed to marshal dataset: %w", err)
	}

	filePath := filepath.Join(e.OutputPath, fmt.Sprintf("seed_%s.yaml", time.Now().Format("2006-01-02_15-04-05")))
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return filePath, nil
}
