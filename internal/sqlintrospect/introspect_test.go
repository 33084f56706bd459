// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Unit tests for SQL classification.

package sqlintrospect

import (
	"testing"
)

func TestClassifyDistributableSum(t *testing.T) {
	c, err := Classify(`SELECT SUM(x) AS sum_x FROM read_parquet('s3://b/t/**')`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Distributable {
		t.Fatalf("expected distributable, aggregates=%v", c.Aggregates)
	}
	if c.DatasetRef != "s3://b/t/**" {
		t.Fatalf("unexpected dataset ref %q", c.DatasetRef)
	}
	if len(c.Aggregates) != 1 || c.Aggregates[0] != "SUM" {
		t.Fatalf("unexpected aggregates %v", c.Aggregates)
	}
}

func TestClassifySumAndCount(t *testing.T) {
	c, err := Classify(`SELECT SUM(x) AS s, COUNT(x) AS c FROM read_parquet('s3://b/t/**')`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Distributable {
		t.Fatalf("expected distributable, aggregates=%v", c.Aggregates)
	}
}

func TestClassifyColumnKindsFollowTargetExpressionNotAlias(t *testing.T) {
	c, err := Classify(`SELECT SUM(x) AS s, COUNT(x) AS c, region FROM read_parquet('s3://b/t/**') GROUP BY region`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"SUM", "COUNT", ""}
	if len(c.ColumnKinds) != len(want) {
		t.Fatalf("unexpected column kinds %v", c.ColumnKinds)
	}
	for i, k := range want {
		if c.ColumnKinds[i] != k {
			t.Errorf("ColumnKinds[%d] = %q, want %q", i, c.ColumnKinds[i], k)
		}
	}
}

func TestClassifyCountDistinctRejected(t *testing.T) {
	c, err := Classify(`SELECT COUNT(DISTINCT x) FROM read_parquet('s3://b/t/**')`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Distributable {
		t.Fatalf("expected COUNT(DISTINCT) to be non-distributable")
	}
}

func TestClassifyMedianRejected(t *testing.T) {
	c, err := Classify(`SELECT MEDIAN(x) FROM read_parquet('s3://b/t/**')`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Distributable {
		t.Fatalf("expected MEDIAN to be non-distributable")
	}
}

func TestClassifyNoAggregatesNonDistributable(t *testing.T) {
	c, err := Classify(`SELECT x FROM read_parquet('s3://b/t/**')`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Distributable {
		t.Fatalf("a query with no aggregates is not distributable")
	}
}

func TestClassifyMissingFromFails(t *testing.T) {
	if _, err := Classify(`SELECT 1`); err == nil {
		t.Fatalf("expected malformed query error")
	}
}

func TestClassifyWrongFunctionFails(t *testing.T) {
	if _, err := Classify(`SELECT SUM(x) FROM some_table`); err == nil {
		t.Fatalf("expected malformed query error for non parquet-read source")
	}
}

func TestClassifyNonLiteralRefFails(t *testing.T) {
	if _, err := Classify(`SELECT SUM(x) FROM read_parquet(some_column)`); err == nil {
		t.Fatalf("expected malformed query error for non-literal dataset ref")
	}
}

func TestClassifyStringLiteralInsideQueryIsNotMisparsed(t *testing.T) {
	c, err := Classify(`SELECT SUM(x) AS s FROM read_parquet('s3://b/t/**') WHERE label = 'FROM some_table'`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.DatasetRef != "s3://b/t/**" {
		t.Fatalf("string literal content leaked into parsing: ref=%q", c.DatasetRef)
	}
}
