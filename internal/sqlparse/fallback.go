package sqlparse

import (
	"regexp"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

var (
	fromRegex   = regexp.MustCompile(`(?i)FROM\s+(\w+)`)
	insertRegex = regexp.MustCompile(`(?i)INSERT\s+INTO\s+(\w+)`)
	updateRegex = regexp.MustCompile(`(?i)UPDATE\s+(\w+)`)
)

// FallbackTable extracts a single table name from a statement the
// structural parser could not handle. Returns "" when nothing matches.
func FallbackTable(sql string) string {
	for _, re := range []*regexp.Regexp{fromRegex, insertRegex, updateRegex} {
		if m := re.FindStringSubmatch(sql); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

// InsertStatement is the column/parameter structure of a single-row INSERT,
// used as a row source when a captured query has no result rows.
type InsertStatement struct {
	Table   string
	Columns []string
	// ParamIndex holds, per column, the 0-based positional parameter the
	// VALUES list binds it to, or -1 when the value is not a bare parameter.
	ParamIndex []int
}

// ParseInsert extracts the column list and parameter positions of an
// INSERT ... VALUES statement. Multi-row VALUES lists use only the first row.
func ParseInsert(sql string) (*InsertStatement, bool) {
	tree, err := pg_query.Parse(sql)
	if err != nil || len(tree.Stmts) == 0 || tree.Stmts[0].Stmt == nil {
		return nil, false
	}
	ins := tree.Stmts[0].Stmt.GetInsertStmt()
	if ins == nil || ins.Relation == nil {
		return nil, false
	}

	st := &InsertStatement{Table: ins.Relation.Relname}
	for _, col := range ins.Cols {
		if rt := col.GetResTarget(); rt != nil {
			st.Columns = append(st.Columns, rt.Name)
		}
	}
	if len(st.Columns) == 0 {
		return nil, false
	}

	sel := ins.SelectStmt.GetSelectStmt()
	if sel == nil || len(sel.ValuesLists) == 0 {
		return nil, false
	}
	values := sel.ValuesLists[0].GetList()
	if values == nil || len(values.Items) != len(st.Columns) {
		return nil, false
	}

	st.ParamIndex = make([]int, len(st.Columns))
	for i, item := range values.Items {
		st.ParamIndex[i] = -1
		if p := item.GetParamRef(); p != nil {
			st.ParamIndex[i] = int(p.Number) - 1
		}
	}
	return st, true
}
