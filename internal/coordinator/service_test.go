// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Unit tests for the coordinator service.

package coordinator

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"dbgrid/internal/aggregate"
	"dbgrid/internal/sqlengine"
)

func TestDistributedQueryRejectsNonDistributiveAggregate(t *testing.T) {
	s := &Service{Logger: zap.NewNop()}
	_, err := s.DistributedQuery(context.Background(), sqlengine.Request{
		SQL: "SELECT COUNT(DISTINCT x) FROM read_parquet('s3://b/t/**')",
	}, "http://worker")
	if err == nil {
		t.Fatalf("expected non-distributive aggregate error")
	}
}

func TestDistributedQueryRejectsMalformedSQL(t *testing.T) {
	s := &Service{Logger: zap.NewNop()}
	_, err := s.DistributedQuery(context.Background(), sqlengine.Request{SQL: "not sql"}, "http://worker")
	if err == nil {
		t.Fatalf("expected malformed query error")
	}
}

func TestColumnKindsTranslatesIntrospectorNamesForAliasedAggregates(t *testing.T) {
	got := columnKinds([]string{"SUM", "COUNT", "", "AVG", "MIN", "MAX"})
	want := []aggregate.Kind{
		aggregate.KindSum, aggregate.KindCount, aggregate.KindNone,
		aggregate.KindAvg, aggregate.KindMin, aggregate.KindMax,
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected length %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("columnKinds[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if columnKinds(nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
}
