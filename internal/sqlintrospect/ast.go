// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Shared AST helpers for the introspector and predicate injector. Everything
// here walks the structural tree produced by pg_query_go; no regex touches
// the SQL text itself (see design notes on the rejected regex variant).

package sqlintrospect

import (
	pgquery "github.com/pganalyze/pg_query_go/v6"

	coorderrors "dbgrid/internal/errors"
)

func errMalformed(msg string) error {
	return coorderrors.NewMalformedQuery(msg)
}

// datasetFunctionNames are the table functions recognized as reading a
// partitioned parquet dataset from object storage. Either spelling appears
// in the wild; both are treated identically.
var datasetFunctionNames = map[string]bool{
	"read_parquet":  true,
	"parquet_read":  true,
}

// recognizedAggregates maps a lower-cased function name to its uppercase
// aggregate kind. Only SUM/COUNT/AVG/MIN/MAX are distributive; the rest are
// included so that classification can detect and reject them by name rather
// than silently ignoring them.
var recognizedAggregates = map[string]string{
	"sum":         "SUM",
	"count":       "COUNT",
	"avg":         "AVG",
	"min":         "MIN",
	"max":         "MAX",
	"median":      "MEDIAN",
	"stddev":      "STDDEV",
	"stddev_pop":  "STDDEV",
	"stddev_samp": "STDDEV",
	"variance":    "VARIANCE",
	"var_pop":     "VARIANCE",
	"var_samp":    "VARIANCE",
	"array_agg":   "ARRAY_AGG",
	"string_agg":  "STRING_AGG",
	"bool_and":    "BOOL_AND",
	"bool_or":     "BOOL_OR",
}

func funcCallName(fc *pgquery.FuncCall) string {
	if fc == nil || len(fc.Funcname) == 0 {
		return ""
	}
	last := fc.Funcname[len(fc.Funcname)-1]
	s := last.GetString_()
	if s == nil {
		return ""
	}
	return s.GetSval()
}

// classifyFuncCall reports the aggregate name this call should be recorded
// under, or ("", false) if it isn't one we recognize as an aggregate.
// COUNT(DISTINCT x) is reported as "COUNT(DISTINCT)" so that it never
// collides with the plain-COUNT distributive case.
func classifyFuncCall(fc *pgquery.FuncCall) (string, bool) {
	name := funcCallName(fc)
	if name == "" {
		return "", false
	}
	kind, known := recognizedAggregates[name]
	if !known {
		return "", false
	}
	if name == "count" && fc.AggDistinct {
		return "COUNT(DISTINCT)", true
	}
	return kind, true
}

// findDatasetTable scans a FROM clause for the single table whose source is
// a recognized parquet-read table function and returns its dataset
// reference literal. It does not recurse into sub-selects; callers that
// need to traverse nested SELECTs do so themselves.
func findDatasetTable(from []*pgquery.Node) (*pgquery.RangeFunction, string, error) {
	var rf *pgquery.RangeFunction
	for _, item := range from {
		if r := item.GetRangeFunction(); r != nil {
			rf = r
			break
		}
	}
	if rf == nil {
		return nil, "", errMalformed("FROM clause does not reference a parquet-read table function")
	}
	if len(rf.Functions) == 0 {
		return nil, "", errMalformed("FROM function entry has no function call")
	}
	// Functions[0] is a List node wrapping [FuncCall, coldeflist].
	lst := rf.Functions[0].GetList()
	if lst == nil || len(lst.Items) == 0 {
		return nil, "", errMalformed("FROM function entry malformed")
	}
	fc := lst.Items[0].GetFuncCall()
	if fc == nil {
		return nil, "", errMalformed("FROM entry is not a function call")
	}
	name := funcCallName(fc)
	if !datasetFunctionNames[name] {
		return nil, "", errMalformed("FROM function '" + name + "' is not a recognized parquet-read function")
	}
	if len(fc.Args) == 0 {
		return nil, "", errMalformed("parquet-read function call has no arguments")
	}
	aconst := fc.Args[0].GetAConst()
	if aconst == nil || aconst.GetSval() == nil {
		return nil, "", errMalformed("dataset reference argument is not a string literal")
	}
	return rf, aconst.GetSval().GetSval(), nil
}

func strNode(s string) *pgquery.Node {
	return &pgquery.Node{Node: &pgquery.Node_String_{String_: &pgquery.String{Sval: s}}}
}

func columnRefNode(col string) *pgquery.Node {
	return &pgquery.Node{Node: &pgquery.Node_ColumnRef{ColumnRef: &pgquery.ColumnRef{
		Fields:   []*pgquery.Node{strNode(col)},
		Location: -1,
	}}}
}

func stringConstNode(val string) *pgquery.Node {
	return &pgquery.Node{Node: &pgquery.Node_AConst{AConst: &pgquery.A_Const{
		Val:      &pgquery.A_Const_Sval{Sval: &pgquery.String{Sval: val}},
		Location: -1,
	}}}
}

func equalsPredicate(col, val string) *pgquery.Node {
	return &pgquery.Node{Node: &pgquery.Node_AExpr{AExpr: &pgquery.A_Expr{
		Kind:     pgquery.A_Expr_Kind_AEXPR_OP,
		Name:     []*pgquery.Node{strNode("=")},
		Lexpr:    columnRefNode(col),
		Rexpr:    stringConstNode(val),
		Location: -1,
	}}}
}

func conjoin(existing, addition *pgquery.Node) *pgquery.Node {
	if existing == nil {
		return addition
	}
	return &pgquery.Node{Node: &pgquery.Node_BoolExpr{BoolExpr: &pgquery.BoolExpr{
		Boolop:   pgquery.BoolExprType_AND_EXPR,
		Args:     []*pgquery.Node{existing, addition},
		Location: -1,
	}}}
}
