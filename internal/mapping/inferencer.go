// Package mapping attributes "calculated" output columns (ones the server
// reported no source table for) to a real table and column, together with
// the sibling values needed to reconstruct a full row.
package mapping

import (
	"strings"

	"github.com/dsandi/seed-it/internal/report"
	"github.com/dsandi/seed-it/internal/sqlparse"
	"github.com/dsandi/seed-it/internal/types"
)

// Infer derives a ColumnMapping for every calculated aggregate output
// column of one parsed query. Unresolvable columns yield no mapping; that
// is graceful degradation, not an error. The result is keyed by output
// column name, with CASE branches keyed name_THEN / name_ELSE.
func Infer(pq *sqlparse.ParsedQuery, q *types.CapturedQuery, schema types.Schema, rep *report.Reporter) map[string]types.ColumnMapping {
	out := make(map[string]types.ColumnMapping)
	if pq == nil {
		return out
	}

	aliases := pq.AliasMap()

	for _, col := range pq.Columns {
		if col.Name == "" || !isCalculated(col.Name, q.Fields) {
			continue
		}

		switch class := col.Class.(type) {
		case sqlparse.Aggregate:
			branch := sqlparse.CaseBranch{
				TableAlias: class.Table,
				Func:       class.Func,
				Column:     class.Column,
			}
			if m, ok := resolveBranch(branch, pq, aliases, schema); ok {
				out[col.Name] = m
			} else {
				rep.Debugf("no mapping inferred for calculated column %q", col.Name)
			}
		case sqlparse.Case:
			for _, branch := range class.Branches {
				key := col.Name + "_" + branch.Branch
				if m, ok := resolveBranch(branch, pq, aliases, schema); ok {
					out[key] = m
				} else {
					rep.Debugf("no mapping inferred for CASE branch %q", key)
				}
			}
		}
	}
	return out
}

// isCalculated reports whether the server left the column without a source
// table. Absent field metadata every candidate counts as calculated.
func isCalculated(name string, fields []types.FieldMeta) bool {
	for _, f := range fields {
		if f.Name == name {
			return f.TableOID == 0
		}
	}
	return true
}

func resolveBranch(branch sqlparse.CaseBranch, pq *sqlparse.ParsedQuery, aliases map[string]string, schema types.Schema) (types.ColumnMapping, bool) {
	if branch.Column == "" {
		return types.ColumnMapping{}, false
	}

	m := types.ColumnMapping{
		Column: branch.Column,
		Shape:  types.ShapeScalar,
	}
	if branch.Func == "array_agg" {
		m.Shape = types.ShapeCollection
	}

	if branch.IsSubquery {
		// The subquery's own FROM table is the target; no aliases to chase.
		m.Table = strings.ToLower(branch.SubqueryTable)
	} else {
		alias := strings.ToLower(branch.TableAlias)
		if alias == "" {
			return types.ColumnMapping{}, false
		}
		table, ok := aliases[alias]
		if !ok {
			return types.ColumnMapping{}, false
		}
		m.Table = table
		m.Siblings = joinSiblings(alias, pq, aliases)
	}

	tbl := schema.Table(m.Table)
	if tbl == nil || !tbl.HasColumn(m.Column) {
		return types.ColumnMapping{}, false
	}

	if params := paramSiblings(m.Table, pq, aliases); len(params) > 0 {
		m.ParamSiblings = params
	}
	return m, true
}

// joinSiblings finds the JOIN that brought the alias into the query, takes
// the FK side of its equi-condition, and looks for an outer plain output
// column selecting the referenced column on the other side. That output
// column becomes a sibling binding (output name → FK column).
func joinSiblings(alias string, pq *sqlparse.ParsedQuery, aliases map[string]string) map[string]string {
	var cond *sqlparse.JoinCond
	for _, j := range pq.Joins {
		if strings.EqualFold(j.Table.Name(), alias) && j.Cond != nil {
			cond = j.Cond
			break
		}
	}
	if cond == nil {
		return nil
	}

	var fkColumn, refColumn string
	switch {
	case strings.EqualFold(cond.LeftTable, alias):
		fkColumn, refColumn = cond.LeftColumn, cond.RightColumn
	case strings.EqualFold(cond.RightTable, alias):
		fkColumn, refColumn = cond.RightColumn, cond.LeftColumn
	default:
		return nil
	}

	siblings := make(map[string]string)
	for _, outer := range pq.PlainColumns() {
		plain := outer.Class.(sqlparse.Plain)
		if strings.EqualFold(plain.Column, refColumn) {
			siblings[outer.Name] = fkColumn
			break
		}
	}
	if len(siblings) == 0 {
		return nil
	}
	return siblings
}

// paramSiblings recovers sibling values known only through bound
// parameters: WHERE equality bindings whose alias resolves to the target
// table.
func paramSiblings(table string, pq *sqlparse.ParsedQuery, aliases map[string]string) map[string]int {
	out := make(map[string]int)
	for _, b := range pq.Params {
		bound := strings.ToLower(b.Table)
		if bound == "" {
			// Unqualified bindings belong to the sole table of a
			// single-table query; with joins they stay ambiguous.
			if pq.From == nil || len(pq.Joins) > 0 {
				continue
			}
			bound = strings.ToLower(pq.From.Table)
		}
		if resolved, ok := aliases[bound]; ok && resolved == table {
			out[strings.ToLower(b.Column)] = b.Param
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
