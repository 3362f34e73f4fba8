package sqlparse

import "strings"

// TableRef is a base-table reference with its optional alias.
type TableRef struct {
	Table string
	Alias string
}

// Name is the identifier the rest of the query uses for this reference.
func (r TableRef) Name() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Table
}

// JoinCond is a direct-reference equi-join condition
// (leftTable.leftColumn = rightTable.rightColumn). Other condition shapes
// are not captured.
type JoinCond struct {
	LeftTable   string
	LeftColumn  string
	RightTable  string
	RightColumn string
}

type Join struct {
	Kind  string
	Table TableRef
	Cond  *JoinCond
}

// ParamBinding records a WHERE-clause equality between a column reference
// and a positional parameter. Table holds the alias or table name exactly as
// written; callers resolve it against the alias map.
type ParamBinding struct {
	Table  string
	Column string
	Param  int // 1-based
}

// ColumnClass is the closed classification of a SELECT-list item. Exactly
// one of Plain, Aggregate, Case or Unclassified applies.
type ColumnClass interface {
	columnClass()
}

// Plain is a bare column reference, optionally table-qualified.
type Plain struct {
	Table  string
	Column string
}

// Aggregate is a call to one of the known aggregate functions over a plain
// column reference; Table holds the reference's qualifier as written.
type Aggregate struct {
	Func   string
	Table  string
	Column string
}

// Case carries the 0–2 usable branch descriptors of a CASE expression.
type Case struct {
	Branches []CaseBranch
}

// Unclassified marks an expression outside the supported vocabulary.
type Unclassified struct{}

func (Plain) columnClass()        {}
func (Aggregate) columnClass()    {}
func (Case) columnClass()         {}
func (Unclassified) columnClass() {}

// CaseBranch describes one usable WHEN/THEN or ELSE branch of a CASE
// output column: either a correlated subquery whose single output is an
// aggregate, or a direct aggregate call.
type CaseBranch struct {
	Branch        string // "THEN" or "ELSE"
	IsSubquery    bool
	SubqueryTable string // subquery's own FROM table, when IsSubquery
	TableAlias    string // aggregate argument's qualifier, when !IsSubquery
	Func          string
	Column        string
}

type OutputColumn struct {
	Name  string
	Class ColumnClass
}

// ParsedQuery is the structural summary of one SELECT statement.
// Tables contains every reachable base-table name including CTE aliases;
// callers filter against the live schema.
type ParsedQuery struct {
	Tables  []string
	From    *TableRef
	Joins   []Join
	Columns []OutputColumn
	Params  []ParamBinding
}

// AliasMap maps every alias (and bare table name) in the FROM/JOIN clauses
// to its base table, lowercased.
func (pq *ParsedQuery) AliasMap() map[string]string {
	m := make(map[string]string)
	add := func(r TableRef) {
		table := strings.ToLower(r.Table)
		m[strings.ToLower(r.Name())] = table
		m[table] = table
	}
	if pq.From != nil {
		add(*pq.From)
	}
	for _, j := range pq.Joins {
		add(j.Table)
	}
	return m
}

// PlainColumns returns the output columns classified as plain references.
func (pq *ParsedQuery) PlainColumns() []OutputColumn {
	var out []OutputColumn
	for _, c := range pq.Columns {
		if _, ok := c.Class.(Plain); ok {
			out = append(out, c)
		}
	}
	return out
}
