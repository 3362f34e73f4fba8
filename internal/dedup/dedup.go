package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/dsandi/seed-it/internal/types"
)

const nullToken = "<NULL>"

// HashRow produces a stable content hash for a row. With a declared primary
// key the hash covers only the PK column values, so partially and fully
// enriched copies of the same logical row collapse together. Without one it
// covers every column the row carries, sorted by name; a partial and a
// fully enriched fragment then hash differently and both survive; emission
// is expected to use an idempotent conflict clause for such tables.
func HashRow(row types.Row, pkColumns []string) string {
	h := sha256.New()

	cols := pkColumns
	if len(cols) == 0 {
		cols = make([]string, 0, len(row))
		for c := range row {
			cols = append(cols, c)
		}
		sort.Strings(cols)
	}

	for _, c := range cols {
		h.Write([]byte(c))
		h.Write([]byte{0x1f})
		h.Write([]byte(formatValue(row[c])))
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// formatValue folds JSON float64 and driver int64 forms of the same number
// together so a captured row and its fetched copy hash identically.
func formatValue(v any) string {
	switch n := v.(type) {
	case nil:
		return nullToken
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

// DeduplicateAll removes duplicate rows per table, keeping the first
// occurrence of each hash and preserving relative order.
func DeduplicateAll(rows types.RowSet, schema types.Schema) types.RowSet {
	out := make(types.RowSet, len(rows))
	for table, list := range rows {
		var pk []string
		if t := schema.Table(table); t != nil {
			pk = t.PrimaryKey
		}

		seen := make(map[string]bool, len(list))
		kept := make([]types.Row, 0, len(list))
		for _, row := range list {
			key := HashRow(row, pk)
			if seen[key] {
				continue
			}
			seen[key] = true
			kept = append(kept, row)
		}
		out[table] = kept
	}
	return out
}
