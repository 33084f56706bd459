// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Service wires the introspector, partition discoverer, predicate injector,
// fan-out scheduler, aggregate merger, result cache, and executor shim into
// the two request paths the HTTP surface exposes: a single-node (optionally
// cached) path and a distributed path.

package coordinator

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"dbgrid/internal/aggregate"
	coorderrors "dbgrid/internal/errors"
	"dbgrid/internal/fanout"
	"dbgrid/internal/partition"
	"dbgrid/internal/resultcache"
	"dbgrid/internal/sqlengine"
	"dbgrid/internal/sqlintrospect"
)

// Service is the coordinator's core orchestration object.
type Service struct {
	Executor   *sqlengine.Executor
	Discoverer *partition.Discoverer
	Cache      *resultcache.Cache
	Scheduler  *fanout.Scheduler
	Logger     *zap.Logger
}

// DistributedResult is the /distributed-query response shape (spec §6).
type DistributedResult struct {
	Columns        []string
	Rows           [][]any
	Hostname       string
	ExecutionTime  float64
	PartitionsUsed int
}

// Query runs a single-node request, transparently reading through and
// writing to the result cache when one is configured.
func (s *Service) Query(ctx context.Context, req sqlengine.Request, forceRefreshCache bool) (*sqlengine.Response, error) {
	if s.Cache == nil {
		return s.Executor.Query(ctx, req)
	}
	return s.Cache.Execute(ctx, req, forceRefreshCache)
}

// DistributedQuery classifies req.SQL, discovers the dataset's partitioning,
// rewrites one sub-query per partition value, fans them out to
// workerEndpoint, and merges the per-partition results into one row.
func (s *Service) DistributedQuery(ctx context.Context, req sqlengine.Request, workerEndpoint string) (*DistributedResult, error) {
	start := time.Now()

	classification, err := sqlintrospect.Classify(req.SQL)
	if err != nil {
		return nil, err
	}
	if !classification.Distributable {
		return nil, coorderrors.NewNonDistributiveAggregate(classification.Aggregates)
	}

	desc, err := s.Discoverer.Discover(ctx, classification.DatasetRef)
	if err != nil {
		return nil, err
	}

	subQueries := make([]fanout.SubQuery, 0, len(desc.Values))
	for _, v := range desc.Values {
		rewritten, err := sqlintrospect.Rewrite(req.SQL, desc.Column, v)
		if err != nil {
			return nil, err
		}
		subQueries = append(subQueries, fanout.SubQuery{PartitionValue: v, SQL: rewritten})
	}

	workerResps, err := s.Scheduler.Run(ctx, workerEndpoint, subQueries, req.Profiling, req.MaxRows, req.NumThreads)
	if err != nil {
		return nil, err
	}
	if len(workerResps) == 0 {
		return nil, coorderrors.NewUnpartitionedDataset(classification.DatasetRef)
	}

	columns := workerResps[0].Columns
	partitionResults := make([]aggregate.PartitionResult, len(workerResps))
	for i, wr := range workerResps {
		row := make([]any, len(columns))
		if len(wr.Rows) > 0 {
			row = wr.Rows[0]
		}
		partitionResults[i] = aggregate.PartitionResult{Columns: wr.Columns, Row: row}
	}

	merged := aggregate.Merge(partitionResults, columns, columnKinds(classification.ColumnKinds))
	if len(merged.Approximate) > 0 {
		s.Logger.Warn("coordinator.approximate_avg", zap.Strings("columns", merged.Approximate))
	}

	hostname, _ := os.Hostname()
	return &DistributedResult{
		Columns:        merged.Columns,
		Rows:           [][]any{merged.Row},
		Hostname:       hostname,
		ExecutionTime:  time.Since(start).Seconds(),
		PartitionsUsed: len(workerResps),
	}, nil
}

// columnKinds translates the introspector's per-target aggregate names into
// the merger's Kind enum, so a column's combine rule comes from what its
// SELECT expression actually is rather than a guess at its alias.
func columnKinds(names []string) []aggregate.Kind {
	if names == nil {
		return nil
	}
	kinds := make([]aggregate.Kind, len(names))
	for i, n := range names {
		switch n {
		case "SUM":
			kinds[i] = aggregate.KindSum
		case "COUNT":
			kinds[i] = aggregate.KindCount
		case "AVG":
			kinds[i] = aggregate.KindAvg
		case "MIN":
			kinds[i] = aggregate.KindMin
		case "MAX":
			kinds[i] = aggregate.KindMax
		default:
			kinds[i] = aggregate.KindNone
		}
	}
	return kinds
}
