package extract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dsandi/seed-it/internal/types"
)

// resolvePending settles deferred cross-table lookups: each pending
// fragment is matched against every other table's enriched fragments,
// looking for one that agrees with the raw snapshot on every overlapping
// key and overlaps on at least one. The first match (deterministic scan
// order) supplies the parent values; additional matches are reported as
// ambiguity.
func (p *Pipeline) resolvePending() {
	if len(p.pending) == 0 {
		return
	}

	tables := make([]string, 0, len(p.rows))
	for t := range p.rows {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	for _, pl := range p.pending {
		frag := p.rows[pl.table][pl.index]

		var source types.Row
		matches := 0
		for _, t := range tables {
			if t == pl.table {
				continue
			}
			for _, candidate := range p.rows[t] {
				if snapshotMatches(pl.snapshot, candidate) {
					matches++
					if source == nil {
						source = candidate
					}
				}
			}
		}

		if source == nil {
			p.rep.Warnf("deferred lookup on %s could not be resolved", pl.table)
			continue
		}
		if matches > 1 {
			p.rep.Warnf("deferred lookup on %s matched %d candidates; using the first", pl.table, matches)
		}

		for childCol, parentCol := range pl.lookups {
			if v, ok := source[parentCol]; ok {
				frag[childCol] = v
			}
		}
	}
	p.pending = nil
}

// snapshotMatches reports whether a candidate fragment agrees with the raw
// snapshot on every key they share, with at least one shared key.
func snapshotMatches(snapshot, candidate types.Row) bool {
	overlap := 0
	for key, want := range snapshot {
		have, ok := candidate[key]
		if !ok {
			continue
		}
		if !valueEqual(have, want) {
			return false
		}
		overlap++
	}
	return overlap > 0
}

func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return normalizeValue(a) == normalizeValue(b)
}

func normalizeValue(v any) string {
	switch n := v.(type) {
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
	}
	return fmt.Sprintf("%v", v)
}

// filterColumns drops every column a table's schema does not declare and
// removes fragments left empty; after this step the fragment map contains
// only emittable data.
func (p *Pipeline) filterColumns() {
	for table, list := range p.rows {
		tbl := p.schema.Table(table)
		if tbl == nil {
			delete(p.rows, table)
			continue
		}

		kept := make([]types.Row, 0, len(list))
		for _, frag := range list {
			for col := range frag {
				if !tbl.HasColumn(col) {
					delete(frag, col)
				}
			}
			if len(frag) > 0 {
				kept = append(kept, frag)
			}
		}
		if len(kept) == 0 {
			delete(p.rows, table)
			continue
		}
		p.rows[strings.ToLower(table)] = kept
	}
}
