// Package sqlparse turns one SQL SELECT statement into its structural
// summary: referenced tables, joins, output-column classification and
// WHERE parameter bindings. A failed or unsupported parse is signalled with
// ErrUnsupported so callers can fall back to regex extraction; it is never
// fatal.
package sqlparse

import (
	"errors"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ErrUnsupported marks statements outside the supported SELECT/WITH subset.
var ErrUnsupported = errors.New("unsupported statement")

// aggregateFuncs is the fixed vocabulary of aggregate calls the classifier
// understands.
var aggregateFuncs = map[string]bool{
	"array_agg": true,
	"count":     true,
	"sum":       true,
	"avg":       true,
	"min":       true,
	"max":       true,
}

// Parse builds the structural summary of a single SELECT statement.
func Parse(sql string) (*ParsedQuery, error) {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if len(tree.Stmts) == 0 || tree.Stmts[0].Stmt == nil {
		return nil, ErrUnsupported
	}

	stmt := tree.Stmts[0].Stmt.GetSelectStmt()
	if stmt == nil {
		return nil, ErrUnsupported
	}

	pq := &ParsedQuery{
		Tables: collectTables(stmt),
	}

	// For unions the structural parts come from the leftmost branch.
	core := stmt
	for core.Op != pg_query.SetOperation_SETOP_NONE && core.Larg != nil {
		core = core.Larg
	}

	pq.From, pq.Joins = fromStructure(core.FromClause)
	pq.Columns = outputColumns(core.TargetList)
	pq.Params = paramBindings(core.WhereClause)

	return pq, nil
}

// fromStructure flattens the FROM clause into the first base table and the
// list of joined tables with whatever equi-conditions were usable.
func fromStructure(fromClause []*pg_query.Node) (*TableRef, []Join) {
	var from *TableRef
	var joins []Join

	var walk func(node *pg_query.Node)
	walk = func(node *pg_query.Node) {
		if node == nil {
			return
		}
		switch n := node.Node.(type) {
		case *pg_query.Node_RangeVar:
			ref := rangeVarRef(n.RangeVar)
			if from == nil {
				from = &ref
			} else {
				joins = append(joins, Join{Kind: "cross", Table: ref})
			}
		case *pg_query.Node_JoinExpr:
			walk(n.JoinExpr.Larg)
			if rv := n.JoinExpr.Rarg.GetRangeVar(); rv != nil {
				joins = append(joins, Join{
					Kind:  joinKind(n.JoinExpr.Jointype),
					Table: rangeVarRef(rv),
					Cond:  equiJoinCond(n.JoinExpr.Quals),
				})
			} else {
				// Joined subquery: its inner tables are still collected for
				// table extraction, the join itself is not usable.
				walk(n.JoinExpr.Rarg)
			}
		case *pg_query.Node_RangeSubselect:
			// No structural information at this level.
		}
	}

	for _, item := range fromClause {
		walk(item)
	}
	return from, joins
}

func rangeVarRef(rv *pg_query.RangeVar) TableRef {
	ref := TableRef{Table: rv.Relname}
	if rv.Alias != nil {
		ref.Alias = rv.Alias.Aliasname
	}
	return ref
}

func joinKind(jt pg_query.JoinType) string {
	switch jt {
	case pg_query.JoinType_JOIN_LEFT:
		return "left"
	case pg_query.JoinType_JOIN_RIGHT:
		return "right"
	case pg_query.JoinType_JOIN_FULL:
		return "full"
	default:
		return "inner"
	}
}

// equiJoinCond extracts (left.col = right.col) when both sides are
// table-qualified column references; anything else yields nil.
func equiJoinCond(quals *pg_query.Node) *JoinCond {
	if quals == nil {
		return nil
	}
	expr := quals.GetAExpr()
	if expr == nil || expr.Kind != pg_query.A_Expr_Kind_AEXPR_OP || operatorName(expr.Name) != "=" {
		return nil
	}
	lt, lc, lok := columnRef(expr.Lexpr)
	rt, rc, rok := columnRef(expr.Rexpr)
	if !lok || !rok || lt == "" || rt == "" {
		return nil
	}
	return &JoinCond{LeftTable: lt, LeftColumn: lc, RightTable: rt, RightColumn: rc}
}

func operatorName(name []*pg_query.Node) string {
	if len(name) == 0 {
		return ""
	}
	if s := name[len(name)-1].GetString_(); s != nil {
		return s.Sval
	}
	return ""
}

// columnRef resolves a node to (qualifier, column). The qualifier is empty
// for single-part references.
func columnRef(node *pg_query.Node) (table, column string, ok bool) {
	if node == nil {
		return "", "", false
	}
	cr := node.GetColumnRef()
	if cr == nil {
		return "", "", false
	}

	var parts []string
	for _, f := range cr.Fields {
		s := f.GetString_()
		if s == nil {
			return "", "", false // A_Star or something exotic
		}
		parts = append(parts, s.Sval)
	}
	switch len(parts) {
	case 1:
		return "", parts[0], true
	case 2:
		return parts[0], parts[1], true
	default:
		return "", "", false
	}
}

func outputColumns(targetList []*pg_query.Node) []OutputColumn {
	var out []OutputColumn
	for _, target := range targetList {
		rt := target.GetResTarget()
		if rt == nil || rt.Val == nil {
			continue
		}

		class := classify(rt.Val)
		name := rt.Name
		if name == "" {
			if p, ok := class.(Plain); ok {
				name = p.Column
			}
		}
		out = append(out, OutputColumn{Name: name, Class: class})
	}
	return out
}

// classify matches a SELECT-list expression against the closed set of
// shapes the extraction pipeline understands.
func classify(node *pg_query.Node) ColumnClass {
	switch n := node.Node.(type) {
	case *pg_query.Node_ColumnRef:
		if t, c, ok := columnRef(node); ok {
			return Plain{Table: t, Column: c}
		}
		return Unclassified{}
	case *pg_query.Node_FuncCall:
		if agg, ok := aggregateCall(n.FuncCall); ok {
			return agg
		}
		return Unclassified{}
	case *pg_query.Node_CaseExpr:
		return classifyCase(n.CaseExpr)
	case *pg_query.Node_TypeCast:
		return classify(n.TypeCast.Arg)
	default:
		return Unclassified{}
	}
}

func aggregateCall(fc *pg_query.FuncCall) (Aggregate, bool) {
	name := strings.ToLower(funcName(fc))
	if !aggregateFuncs[name] {
		return Aggregate{}, false
	}
	agg := Aggregate{Func: name}
	if len(fc.Args) > 0 {
		if t, c, ok := columnRef(fc.Args[0]); ok {
			agg.Table = t
			agg.Column = c
		}
	}
	return agg, true
}

func funcName(fc *pg_query.FuncCall) string {
	if len(fc.Funcname) == 0 {
		return ""
	}
	if s := fc.Funcname[len(fc.Funcname)-1].GetString_(); s != nil {
		return s.Sval
	}
	return ""
}

// classifyCase evaluates each WHEN/THEN body and the ELSE body
// independently, keeping the branches that are either a correlated
// subquery with a single aggregate output or a direct aggregate call.
func classifyCase(ce *pg_query.CaseExpr) ColumnClass {
	var branches []CaseBranch

	eval := func(label string, body *pg_query.Node) {
		if body == nil {
			return
		}
		switch b := body.Node.(type) {
		case *pg_query.Node_SubLink:
			sub := b.SubLink.Subselect.GetSelectStmt()
			if sub == nil || len(sub.TargetList) != 1 {
				return
			}
			rt := sub.TargetList[0].GetResTarget()
			if rt == nil || rt.Val == nil {
				return
			}
			fc := rt.Val.GetFuncCall()
			if fc == nil {
				return
			}
			agg, ok := aggregateCall(fc)
			if !ok {
				return
			}
			branches = append(branches, CaseBranch{
				Branch:        label,
				IsSubquery:    true,
				SubqueryTable: subqueryFromTable(sub),
				Func:          agg.Func,
				Column:        agg.Column,
			})
		case *pg_query.Node_FuncCall:
			if agg, ok := aggregateCall(b.FuncCall); ok {
				branches = append(branches, CaseBranch{
					Branch:     label,
					TableAlias: agg.Table,
					Func:       agg.Func,
					Column:     agg.Column,
				})
			}
		}
	}

	for _, arg := range ce.Args {
		if when := arg.GetCaseWhen(); when != nil {
			eval("THEN", when.Result)
		}
	}
	eval("ELSE", ce.Defresult)

	if len(branches) == 0 {
		return Unclassified{}
	}
	return Case{Branches: branches}
}

func subqueryFromTable(sub *pg_query.SelectStmt) string {
	for _, item := range sub.FromClause {
		if rv := item.GetRangeVar(); rv != nil {
			return rv.Relname
		}
	}
	return ""
}

// paramBindings walks the WHERE expression tree collecting every equality
// between a column reference and a positional parameter.
func paramBindings(where *pg_query.Node) []ParamBinding {
	var out []ParamBinding

	var walk func(node *pg_query.Node)
	walk = func(node *pg_query.Node) {
		if node == nil {
			return
		}
		switch n := node.Node.(type) {
		case *pg_query.Node_BoolExpr:
			for _, arg := range n.BoolExpr.Args {
				walk(arg)
			}
		case *pg_query.Node_AExpr:
			expr := n.AExpr
			if expr.Kind == pg_query.A_Expr_Kind_AEXPR_OP && operatorName(expr.Name) == "=" {
				if t, c, ok := columnRef(expr.Lexpr); ok {
					if p := expr.Rexpr.GetParamRef(); p != nil {
						out = append(out, ParamBinding{Table: t, Column: c, Param: int(p.Number)})
						return
					}
				}
			}
			walk(expr.Lexpr)
			walk(expr.Rexpr)
		}
	}

	walk(where)
	return out
}
