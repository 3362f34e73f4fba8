// Package extract implements the multi-phase row extraction and enrichment
// pipeline: captured queries go in, a dependency-complete per-table row map
// comes out.
package extract

import (
	"context"
	"sort"
	"strings"

	"github.com/dsandi/seed-it/internal/database"
	"github.com/dsandi/seed-it/internal/mapping"
	"github.com/dsandi/seed-it/internal/report"
	"github.com/dsandi/seed-it/internal/sqlparse"
	"github.com/dsandi/seed-it/internal/types"
)

// pendingLookup defers a cross-table value resolution until every fragment
// has been enriched. The fragment is addressed by table and index; the raw
// captured row is kept as the matching snapshot.
type pendingLookup struct {
	table    string
	index    int
	lookups  map[string]string // child column -> parent column
	snapshot types.Row
}

type Pipeline struct {
	schema    types.Schema
	db        database.RowFetcher
	rep       *report.Reporter
	overrides map[string]types.ColumnMapping
	oidTables map[uint32]string
	workers   int

	rows    types.RowSet
	pending []pendingLookup
}

func NewPipeline(schema types.Schema, db database.RowFetcher, overrides map[string]types.ColumnMapping, oidTables map[uint32]string, workers int, rep *report.Reporter) *Pipeline {
	if workers <= 0 {
		workers = 4
	}
	return &Pipeline{
		schema:    schema,
		db:        db,
		rep:       rep,
		overrides: overrides,
		oidTables: oidTables,
		workers:   workers,
		rows:      types.RowSet{},
	}
}

// Process runs the per-query extraction steps for one captured query:
// candidate tables, raw rows, parameter overlay, per-table cloning and
// column-mapping application.
func (p *Pipeline) Process(q types.CapturedQuery) {
	parsed, err := sqlparse.Parse(q.Query)
	if err != nil {
		p.rep.Debugf("structural parse failed, falling back to regex: %v", err)
		parsed = nil
	}

	candidates := p.candidateTables(parsed, q.Query)

	// Driver-reported source-table OIDs shortcut attribution for plain
	// output columns, independent of what the parse produced.
	for _, field := range q.Fields {
		if field.TableOID == 0 {
			continue
		}
		if name, ok := p.oidTables[field.TableOID]; ok && p.schema.Has(name) && !containsFold(candidates, name) {
			candidates = append(candidates, strings.ToLower(name))
		}
	}

	raw := q.Rows
	if len(raw) == 0 {
		if row, table, ok := insertFallbackRow(q); ok {
			raw = []types.Row{row}
			if p.schema.Has(table) && !containsFold(candidates, table) {
				candidates = append(candidates, strings.ToLower(table))
			}
		}
	}
	if len(raw) == 0 {
		return
	}

	overlay := p.paramOverlay(parsed, q.Params)

	// The same raw row may seed multiple candidate tables; the column
	// filtering step later removes whatever does not belong.
	for _, table := range candidates {
		for _, row := range raw {
			clone := cloneRow(row)
			for col, val := range overlay[table] {
				clone[col] = val
			}
			p.rows[table] = append(p.rows[table], clone)
		}
	}

	mappings := mapping.Merge(mapping.Infer(parsed, &q, p.schema, p.rep), p.overrides)
	p.applyMappings(mappings, raw, q.Params)
}

// candidateTables filters the parsed table list against the live schema,
// which also removes CTE aliases. On parse failure a single table comes
// from the regex fallback.
func (p *Pipeline) candidateTables(parsed *sqlparse.ParsedQuery, sql string) []string {
	if parsed == nil {
		if t := sqlparse.FallbackTable(sql); t != "" && p.schema.Has(t) {
			return []string{strings.ToLower(t)}
		}
		return nil
	}

	var out []string
	for _, t := range parsed.Tables {
		if p.schema.Has(t) {
			out = append(out, strings.ToLower(t))
		}
	}
	return out
}

// paramOverlay resolves WHERE parameter bindings into per-table column
// values: predicates like `a.user_id = $1` carry row data the result set
// never shows.
func (p *Pipeline) paramOverlay(parsed *sqlparse.ParsedQuery, params []any) map[string]map[string]any {
	if parsed == nil {
		return nil
	}
	aliases := parsed.AliasMap()

	overlay := make(map[string]map[string]any)
	for _, b := range parsed.Params {
		if b.Param < 1 || b.Param > len(params) {
			continue
		}
		table := strings.ToLower(b.Table)
		if table == "" {
			// An unqualified binding is unambiguous only in a
			// single-table query.
			if parsed.From == nil || len(parsed.Joins) > 0 {
				p.rep.Debugf("skipping ambiguous unqualified binding %s = $%d", b.Column, b.Param)
				continue
			}
			table = strings.ToLower(parsed.From.Table)
		}
		if resolved, ok := aliases[table]; ok {
			table = resolved
		}
		if table == "" || !p.schema.Has(table) {
			continue
		}
		if overlay[table] == nil {
			overlay[table] = make(map[string]any)
		}
		overlay[table][strings.ToLower(b.Column)] = params[b.Param-1]
	}
	return overlay
}

// applyMappings expands calculated column values into fragments of their
// target tables. Collection values unroll one fragment per element.
// Mappings apply in sorted key order so fragment order is stable across
// runs.
func (p *Pipeline) applyMappings(mappings map[string]types.ColumnMapping, raw []types.Row, params []any) {
	names := make([]string, 0, len(mappings))
	for name := range mappings {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, row := range raw {
		for _, outName := range names {
			m := mappings[outName]
			value, ok := row[baseColumnName(outName)]
			if !ok || value == nil {
				continue
			}
			if !p.schema.Has(m.Table) {
				continue
			}

			siblings := make(types.Row)
			for outCol, targetCol := range m.Siblings {
				if sv, ok := row[outCol]; ok && sv != nil {
					siblings[targetCol] = sv
				}
			}
			for targetCol, paramIdx := range m.ParamSiblings {
				if paramIdx >= 1 && paramIdx <= len(params) {
					siblings[targetCol] = params[paramIdx-1]
				}
			}

			var fragments []types.Row
			if m.Shape == types.ShapeCollection {
				for _, element := range collectionElements(value) {
					frag := types.Row{m.Column: element}
					for c, v := range siblings {
						frag[c] = v
					}
					fragments = append(fragments, frag)
				}
			} else {
				frag := types.Row{m.Column: value}
				for c, v := range siblings {
					frag[c] = v
				}
				fragments = append(fragments, frag)
			}

			table := strings.ToLower(m.Table)
			for _, frag := range fragments {
				p.rows[table] = append(p.rows[table], frag)
				if len(m.ParentLookups) > 0 {
					p.pending = append(p.pending, pendingLookup{
						table:    table,
						index:    len(p.rows[table]) - 1,
						lookups:  m.ParentLookups,
						snapshot: cloneRow(row),
					})
				}
			}
		}
	}
}

// Finalize runs the post-processing stages over the accumulated fragments:
// live-DB enrichment, deferred-lookup resolution and schema column
// filtering. Transitive dependency fetch and dedup are the caller's last
// two stages.
func (p *Pipeline) Finalize(ctx context.Context) {
	p.enrichAll(ctx)
	p.resolvePending()
	p.filterColumns()
}

// Rows exposes the run-wide fragment map.
func (p *Pipeline) Rows() types.RowSet {
	return p.rows
}

// baseColumnName strips the CASE-branch suffix a mapping key may carry.
func baseColumnName(name string) string {
	for _, suffix := range []string{"_THEN", "_ELSE"} {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}

// insertFallbackRow rebuilds a row from an INSERT statement's column list
// and positional parameters when a capture carries no result rows.
func insertFallbackRow(q types.CapturedQuery) (types.Row, string, bool) {
	st, ok := sqlparse.ParseInsert(q.Query)
	if !ok {
		return nil, "", false
	}

	row := make(types.Row, len(st.Columns))
	for i, col := range st.Columns {
		idx := st.ParamIndex[i]
		if idx >= 0 && idx < len(q.Params) {
			row[col] = q.Params[idx]
		}
	}
	if len(row) == 0 {
		return nil, "", false
	}
	return row, st.Table, true
}

// collectionElements unrolls an aggregate value: JSON arrays arrive as
// []any, pg text arrays as "{1,2,3}".
func collectionElements(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case string:
		if strings.HasPrefix(val, "{") && strings.HasSuffix(val, "}") {
			inner := strings.TrimSuffix(strings.TrimPrefix(val, "{"), "}")
			if inner == "" {
				return nil
			}
			parts := strings.Split(inner, ",")
			out := make([]any, len(parts))
			for i, part := range parts {
				out[i] = strings.Trim(strings.TrimSpace(part), `"`)
			}
			return out
		}
		return []any{val}
	default:
		return []any{val}
	}
}

func cloneRow(row types.Row) types.Row {
	clone := make(types.Row, len(row))
	for k, v := range row {
		clone[k] = v
	}
	return clone
}

func containsFold(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
