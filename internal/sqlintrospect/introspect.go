// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// SQL Introspector: classifies a statement as safely distributable and
// extracts the dataset reference it reads. Parsing is structural
// (pg_query_go's AST), never regex, so string literals and nested
// sub-selects cannot produce false positives.

package sqlintrospect

import (
	pgquery "github.com/pganalyze/pg_query_go/v6"

	coorderrors "dbgrid/internal/errors"
)

// Classification is the result of inspecting a single SQL statement.
type Classification struct {
	Distributable bool
	Aggregates    []string
	DatasetRef    string

	// ColumnKinds names the top-level aggregate function of each SELECT
	// target, in target-list order ("" for a non-aggregate target such as a
	// GROUP BY key). The merger uses this instead of guessing a column's
	// role from its alias, so an aggregate aliased without a sum_/count_/…
	// prefix (e.g. "SUM(x) AS s") still merges correctly.
	ColumnKinds []string
}

// Classify parses sql, collects the uppercase names of every aggregate
// function call it contains, and extracts the dataset reference literal
// from the single parquet-read table function in its FROM clause.
//
// The query is distributable iff the aggregate set is non-empty and a
// subset of {SUM, COUNT, AVG, MIN, MAX}.
func Classify(sql string) (*Classification, error) {
	result, err := pgquery.Parse(sql)
	if err != nil {
		return nil, coorderrors.NewMalformedQuery("sql did not parse: " + err.Error())
	}
	if len(result.Stmts) == 0 {
		return nil, coorderrors.NewMalformedQuery("empty statement")
	}
	sel := result.Stmts[0].Stmt.GetSelectStmt()
	if sel == nil {
		return nil, coorderrors.NewMalformedQuery("statement is not a SELECT")
	}

	_, ref, err := findDatasetTable(sel.FromClause)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var aggregates []string
	walkExpressions(sel, func(fc *pgquery.FuncCall) {
		name, ok := classifyFuncCall(fc)
		if !ok || seen[name] {
			return
		}
		seen[name] = true
		aggregates = append(aggregates, name)
	})

	distributable := len(aggregates) > 0
	for _, a := range aggregates {
		if !distributiveSet[a] {
			distributable = false
			break
		}
	}

	return &Classification{
		Distributable: distributable,
		Aggregates:    aggregates,
		DatasetRef:    ref,
		ColumnKinds:   targetListKinds(sel),
	}, nil
}

// targetListKinds classifies each SELECT target by its own top-level
// expression, independent of the alias it was given. A target is an
// aggregate only if the whole expression is a single recognized aggregate
// function call; anything else (a bare column, an arithmetic expression, a
// non-distributive aggregate wrapped some other way) reports "".
func targetListKinds(sel *pgquery.SelectStmt) []string {
	kinds := make([]string, len(sel.TargetList))
	for i, t := range sel.TargetList {
		rt := t.GetResTarget()
		if rt == nil {
			continue
		}
		fc := rt.Val.GetFuncCall()
		if fc == nil {
			continue
		}
		if kind, ok := classifyFuncCall(fc); ok && distributiveSet[kind] {
			kinds[i] = kind
		}
	}
	return kinds
}

var distributiveSet = map[string]bool{
	"SUM": true, "COUNT": true, "AVG": true, "MIN": true, "MAX": true,
}

// walkExpressions visits every FuncCall reachable from the SELECT's target
// list, WHERE clause, and HAVING clause and invokes fn on each. It does not
// descend into nested sub-selects: aggregate classification is scoped to
// the statement the client submitted, not to sub-queries it contains.
func walkExpressions(sel *pgquery.SelectStmt, fn func(*pgquery.FuncCall)) {
	for _, t := range sel.TargetList {
		walkNode(t, fn)
	}
	walkNode(sel.WhereClause, fn)
	walkNode(sel.HavingClause, fn)
	for _, g := range sel.GroupClause {
		walkNode(g, fn)
	}
}

func walkNode(n *pgquery.Node, fn func(*pgquery.FuncCall)) {
	if n == nil {
		return
	}
	switch v := n.Node.(type) {
	case *pgquery.Node_ResTarget:
		walkNode(v.ResTarget.Val, fn)
	case *pgquery.Node_FuncCall:
		fn(v.FuncCall)
		for _, a := range v.FuncCall.Args {
			walkNode(a, fn)
		}
	case *pgquery.Node_AExpr:
		walkNode(v.AExpr.Lexpr, fn)
		walkNode(v.AExpr.Rexpr, fn)
	case *pgquery.Node_BoolExpr:
		for _, a := range v.BoolExpr.Args {
			walkNode(a, fn)
		}
	case *pgquery.Node_CoalesceExpr:
		for _, a := range v.CoalesceExpr.Args {
			walkNode(a, fn)
		}
	case *pgquery.Node_CaseExpr:
		for _, w := range v.CaseExpr.Args {
			walkNode(w, fn)
		}
		walkNode(v.CaseExpr.Defresult, fn)
	case *pgquery.Node_CaseWhen:
		walkNode(v.CaseWhen.Expr, fn)
		walkNode(v.CaseWhen.Result, fn)
	case *pgquery.Node_TypeCast:
		walkNode(v.TypeCast.Arg, fn)
	}
}
