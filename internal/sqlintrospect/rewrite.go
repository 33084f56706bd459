// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Predicate Injector: rewrites a statement so every SELECT reading the
// partitioned dataset is restricted to a single partition value, by
// conjoining an equality predicate onto the existing WHERE clause at the AST
// level. Nested SELECTs are reached through set operations, FROM-clause
// sub-selects, joins and WITH clauses; sub-selects inside expressions (for
// example an IN (SELECT ...) in a WHERE clause) are not rewritten.

package sqlintrospect

import (
	pgquery "github.com/pganalyze/pg_query_go/v6"

	coorderrors "dbgrid/internal/errors"
)

// Rewrite parses sql, injects `col = '<val>'` into the WHERE clause of every
// SELECT whose FROM references the dataset's parquet-read function, and
// deparses the result back to SQL text. SELECTs reading something else are
// left untouched, as are SELECTs nested inside expressions.
func Rewrite(sql, col, val string) (string, error) {
	result, err := pgquery.Parse(sql)
	if err != nil {
		return "", coorderrors.NewMalformedQuery("sql did not parse: " + err.Error())
	}
	for _, raw := range result.Stmts {
		injectInto(raw.Stmt, col, val)
	}
	out, err := pgquery.Deparse(result)
	if err != nil {
		return "", coorderrors.NewMalformedQuery("rewritten sql did not deparse: " + err.Error())
	}
	return out, nil
}

func injectInto(n *pgquery.Node, col, val string) {
	if n == nil {
		return
	}
	if sel := n.GetSelectStmt(); sel != nil {
		injectIntoSelect(sel, col, val)
	}
}

func injectIntoSelect(sel *pgquery.SelectStmt, col, val string) {
	if sel == nil {
		return
	}
	if sel.Larg != nil || sel.Rarg != nil {
		injectIntoSelect(sel.Larg, col, val)
		injectIntoSelect(sel.Rarg, col, val)
		return
	}

	if _, _, err := findDatasetTable(sel.FromClause); err == nil {
		sel.WhereClause = conjoin(sel.WhereClause, equalsPredicate(col, val))
	}

	for _, item := range sel.FromClause {
		walkFromItem(item, col, val)
	}
	if sel.WithClause != nil {
		for _, cte := range sel.WithClause.Ctes {
			if c := cte.GetCommonTableExpr(); c != nil {
				injectInto(c.Ctequery, col, val)
			}
		}
	}
}

// walkFromItem descends into sub-selects and joins reachable from a FROM
// clause entry, looking for further SELECTs that read the dataset.
func walkFromItem(n *pgquery.Node, col, val string) {
	if n == nil {
		return
	}
	switch v := n.Node.(type) {
	case *pgquery.Node_RangeSubselect:
		injectInto(v.RangeSubselect.Subquery, col, val)
	case *pgquery.Node_JoinExpr:
		walkFromItem(v.JoinExpr.Larg, col, val)
		walkFromItem(v.JoinExpr.Rarg, col, val)
	}
}
