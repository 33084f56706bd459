// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Aggregate Merger: reduces one row per worker partition into a single
// output row, using the per-column aggregate identity and combine rule
// derived from the column's name prefix (spec §3, §4.5).

package aggregate

import "strings"

type Kind int

const (
	KindNone Kind = iota
	KindSum
	KindCount
	KindMin
	KindMax
	KindAvg
)

// ClassifyColumn derives the aggregate kind of an output column from its
// lower-cased leading identifier.
func ClassifyColumn(name string) Kind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "sum_") || lower == "sum":
		return KindSum
	case strings.HasPrefix(lower, "count_") || lower == "count":
		return KindCount
	case strings.HasPrefix(lower, "avg_") || lower == "avg":
		return KindAvg
	case strings.HasPrefix(lower, "min_") || lower == "min":
		return KindMin
	case strings.HasPrefix(lower, "max_") || lower == "max":
		return KindMax
	default:
		return KindNone
	}
}

// PartitionResult is one worker's response: a single row of named columns.
type PartitionResult struct {
	Columns []string
	Row     []any
}

// Merged is the coordinator-facing merged row, plus bookkeeping about
// columns the merger could not combine exactly.
type Merged struct {
	Columns     []string
	Row         []any
	Approximate []string
}

// Merge reduces results into a single row, one value per column in columns.
// AVG columns are combined from co-located SUM/COUNT sibling columns when
// present; lacking those, the merger falls back to an unweighted mean of
// partition averages and flags the column as approximate (spec §4.5, §9).
//
// kinds, when non-nil and the same length as columns, gives the aggregate
// kind of each column explicitly, as derived by the introspector from the
// query's own target list, and takes priority over name-prefix guessing.
// An aggregate aliased without a sum_/count_/avg_/ prefix still merges
// correctly. A KindNone entry, and every column when kinds is nil or of a
// different length, falls back to ClassifyColumn's prefix inference.
func Merge(results []PartitionResult, columns []string, kinds []Kind) Merged {
	out := Merged{Columns: columns, Row: make([]any, len(columns))}

	sumCountSiblings := findAvgSiblings(columns)
	useExplicitKinds := len(kinds) == len(columns)

	for i, col := range columns {
		kind := ClassifyColumn(col)
		if useExplicitKinds && kinds[i] != KindNone {
			kind = kinds[i]
		}
		switch kind {
		case KindSum:
			out.Row[i] = reduceSum(results, i)
		case KindCount:
			out.Row[i] = reduceCount(results, i)
		case KindMin:
			out.Row[i] = reduceMin(results, i)
		case KindMax:
			out.Row[i] = reduceMax(results, i)
		case KindAvg:
			if idx, ok := sumCountSiblings[col]; ok {
				out.Row[i] = finalizeAvg(reduceSum(results, idx[0]), reduceCount(results, idx[1]))
			} else {
				out.Row[i] = unweightedMean(results, i)
				out.Approximate = append(out.Approximate, col)
			}
		default:
			out.Row[i] = firstNonNull(results, i)
		}
	}
	return out
}

// findAvgSiblings maps an AVG column to the index of its co-located
// SUM/COUNT columns, matched by the identifier following the prefix (e.g.
// avg_x pairs with sum_x and count_x). This lookup only applies when the
// caller's output columns include both decomposed parts alongside the raw
// AVG column.
func findAvgSiblings(columns []string) map[string][2]int {
	sums := map[string]int{}
	counts := map[string]int{}
	for i, c := range columns {
		lower := strings.ToLower(c)
		switch {
		case strings.HasPrefix(lower, "sum_"):
			sums[strings.TrimPrefix(lower, "sum_")] = i
		case strings.HasPrefix(lower, "count_"):
			counts[strings.TrimPrefix(lower, "count_")] = i
		}
	}
	out := map[string][2]int{}
	for i, c := range columns {
		lower := strings.ToLower(c)
		if !strings.HasPrefix(lower, "avg_") {
			continue
		}
		suffix := strings.TrimPrefix(lower, "avg_")
		sumIdx, hasSum := sums[suffix]
		cntIdx, hasCnt := counts[suffix]
		if hasSum && hasCnt {
			out[columns[i]] = [2]int{sumIdx, cntIdx}
		}
	}
	return out
}

func reduceSum(results []PartitionResult, col int) any {
	var total float64
	for _, r := range results {
		v, ok := asFloat(valueAt(r, col))
		if !ok {
			continue
		}
		total += v
	}
	return total
}

func reduceCount(results []PartitionResult, col int) any {
	var total float64
	for _, r := range results {
		v, ok := asFloat(valueAt(r, col))
		if !ok {
			continue
		}
		total += v
	}
	return total
}

func reduceMin(results []PartitionResult, col int) any {
	var min float64
	set := false
	for _, r := range results {
		v, ok := asFloat(valueAt(r, col))
		if !ok {
			continue
		}
		if !set || v < min {
			min = v
			set = true
		}
	}
	if !set {
		return nil
	}
	return min
}

func reduceMax(results []PartitionResult, col int) any {
	var max float64
	set := false
	for _, r := range results {
		v, ok := asFloat(valueAt(r, col))
		if !ok {
			continue
		}
		if !set || v > max {
			max = v
			set = true
		}
	}
	if !set {
		return nil
	}
	return max
}

func finalizeAvg(sum, count any) any {
	s, _ := asFloat(sum)
	c, _ := asFloat(count)
	if c <= 0 {
		return nil
	}
	return s / c
}

func unweightedMean(results []PartitionResult, col int) any {
	var total float64
	var n int
	for _, r := range results {
		v, ok := asFloat(valueAt(r, col))
		if !ok {
			continue
		}
		total += v
		n++
	}
	if n == 0 {
		return nil
	}
	return total / float64(n)
}

func firstNonNull(results []PartitionResult, col int) any {
	for _, r := range results {
		v := valueAt(r, col)
		if v != nil {
			return v
		}
	}
	return nil
}

func valueAt(r PartitionResult, col int) any {
	if col < 0 || col >= len(r.Row) {
		return nil
	}
	return r.Row[col]
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
