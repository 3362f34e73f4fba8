package sqlparse

import (
	"sort"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// maxRecursionDepth caps the table-reference walk on pathologically nested
// statements.
const maxRecursionDepth = 64

// collectTables returns every base-table name reachable from the statement:
// WITH bindings, FROM items (direct or nested subqueries), attached joins
// and union branches. CTE aliases referenced in a FROM clause come back
// like real tables; callers filter against the live schema.
func collectTables(stmt *pg_query.SelectStmt) []string {
	found := make(map[string]bool)
	collectSelect(stmt, 0, found)

	out := make([]string, 0, len(found))
	for name := range found {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func collectSelect(stmt *pg_query.SelectStmt, depth int, found map[string]bool) {
	if stmt == nil || depth > maxRecursionDepth {
		return
	}

	if stmt.WithClause != nil {
		for _, cte := range stmt.WithClause.Ctes {
			if c := cte.GetCommonTableExpr(); c != nil {
				collectSelect(c.Ctequery.GetSelectStmt(), depth+1, found)
			}
		}
	}

	for _, item := range stmt.FromClause {
		collectFromItem(item, depth+1, found)
	}

	// Union/intersect/except branches.
	collectSelect(stmt.Larg, depth+1, found)
	collectSelect(stmt.Rarg, depth+1, found)
}

func collectFromItem(node *pg_query.Node, depth int, found map[string]bool) {
	if node == nil || depth > maxRecursionDepth {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_RangeVar:
		found[strings.ToLower(n.RangeVar.Relname)] = true
	case *pg_query.Node_RangeSubselect:
		collectSelect(n.RangeSubselect.Subquery.GetSelectStmt(), depth+1, found)
	case *pg_query.Node_JoinExpr:
		collectFromItem(n.JoinExpr.Larg, depth+1, found)
		collectFromItem(n.JoinExpr.Rarg, depth+1, found)
	}
}
