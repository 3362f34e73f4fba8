package depgraph

import (
	"fmt"

	"github.com/dsandi/seed-it/internal/types"
)

// SortRows orders the rows of a self-referencing table so that every parent
// row (via a self-FK) precedes its children. Rows whose parent is absent
// from the set are roots and keep their relative order. Tables without a
// self-FK are returned unchanged.
func SortRows(table *types.SchemaTable, rows []types.Row) []types.Row {
	selfFKs := table.SelfReferences()
	if len(selfFKs) == 0 {
		return rows
	}

	// Index rows per FK by the column the FK actually references; the
	// primary key may be composite while the FK points at one column.
	byRef := make([]map[string]int, len(selfFKs))
	for fi, fk := range selfFKs {
		idx := make(map[string]int, len(rows))
		for i, row := range rows {
			if v := row[fk.RefColumn]; v != nil {
				idx[formatKey(v)] = i
			}
		}
		byRef[fi] = idx
	}

	ordered := make([]types.Row, 0, len(rows))
	visited := make(map[int]bool, len(rows))
	inProgress := make(map[int]bool, len(rows))

	var visit func(int)
	visit = func(i int) {
		if visited[i] || inProgress[i] {
			return
		}
		inProgress[i] = true

		for fi, fk := range selfFKs {
			parentVal := rows[i][fk.Column]
			if parentVal == nil {
				continue
			}
			if parent, ok := byRef[fi][formatKey(parentVal)]; ok && parent != i {
				visit(parent)
			}
		}

		inProgress[i] = false
		visited[i] = true
		ordered = append(ordered, rows[i])
	}

	for i := range rows {
		visit(i)
	}
	return ordered
}

// formatKey folds JSON float64 and driver int64 forms of the same value
// together; captured rows and enriched rows may disagree on the Go type.
func formatKey(v any) string {
	switch n := v.(type) {
	case nil:
		return "<NULL>"
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
	case float32:
		if n == float32(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
	}
	return fmt.Sprintf("%v", v)
}
