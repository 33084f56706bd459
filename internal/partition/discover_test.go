// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Unit tests for partition discovery.

package partition

import "testing"

func TestFirstPartitionSegment(t *testing.T) {
	col, val, ok := firstPartitionSegment("s3://bucket/table/k=a/part-0.parquet")
	if !ok || col != "k" || val != "a" {
		t.Fatalf("got col=%q val=%q ok=%v", col, val, ok)
	}
}

func TestFirstPartitionSegmentURLEncoded(t *testing.T) {
	col, val, ok := firstPartitionSegment("s3://bucket/table/region=us%20east/part-0.parquet")
	if !ok || col != "region" || val != "us east" {
		t.Fatalf("got col=%q val=%q ok=%v", col, val, ok)
	}
}

func TestFirstPartitionSegmentNone(t *testing.T) {
	if _, _, ok := firstPartitionSegment("s3://bucket/table/part-0.parquet"); ok {
		t.Fatalf("expected no match")
	}
}

func TestFromFilenamesSelectsFirstColumnAndSortsValues(t *testing.T) {
	rows := [][]any{
		{"s3://b/t/k=b/part.parquet"},
		{"s3://b/t/k=a/part.parquet"},
	}
	desc, err := fromFilenames(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.Column != "k" {
		t.Fatalf("expected column k, got %q", desc.Column)
	}
	if len(desc.Values) != 2 || desc.Values[0] != "a" || desc.Values[1] != "b" {
		t.Fatalf("unexpected values %v", desc.Values)
	}
}

func TestFromFilenamesRecordsAdvisoryColumns(t *testing.T) {
	rows := [][]any{
		{"s3://b/t/k=a/part.parquet"},
		{"s3://b/t/region=us/part.parquet"},
	}
	desc, err := fromFilenames(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.Column != "k" {
		t.Fatalf("expected first-seen column k to be selected, got %q", desc.Column)
	}
	if len(desc.Advisory) != 1 || desc.Advisory[0] != "region" {
		t.Fatalf("expected region recorded as advisory, got %v", desc.Advisory)
	}
}

func TestFromFilenamesUnpartitionedFails(t *testing.T) {
	rows := [][]any{{"s3://b/t/part.parquet"}}
	if _, err := fromFilenames(rows); err == nil {
		t.Fatalf("expected unpartitioned dataset error")
	}
}
