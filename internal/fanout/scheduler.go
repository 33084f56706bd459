// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Scheduler dispatches one rewritten sub-query per partition to a worker
// endpoint, bounds in-flight concurrency, and fails the whole request on
// any single partition's failure (spec §4.4).

package fanout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	coorderrors "dbgrid/internal/errors"
)

// SubQuery is one partition's rewritten statement, paired with the value it
// was restricted to (for error attribution).
type SubQuery struct {
	PartitionValue string
	SQL            string
}

// WorkerRequest is the wire body posted to worker_endpoint/query; it must
// match the coordinator's own /query request shape since the coordinator is
// itself a valid worker (spec §6).
type WorkerRequest struct {
	SQL        string `json:"sql"`
	Profiling  bool   `json:"profiling"`
	MaxRows    int    `json:"max_rows"`
	NumThreads int    `json:"num_threads"`
}

// WorkerResponse is the coordinator-shaped /query response.
type WorkerResponse struct {
	Columns       []string `json:"columns"`
	Rows          [][]any  `json:"rows"`
	Hostname      string   `json:"hostname"`
	ExecutionTime float64  `json:"execution_time"`
}

const defaultSubQueryTimeout = 20 * time.Second

// Scheduler fans sub-queries out to a worker endpoint over HTTP.
type Scheduler struct {
	client           *http.Client
	concurrencyLimit int
	subQueryTimeout  time.Duration
}

func NewScheduler(concurrencyLimit int, subQueryTimeout time.Duration) *Scheduler {
	if subQueryTimeout <= 0 {
		subQueryTimeout = defaultSubQueryTimeout
	}
	return &Scheduler{
		client:           &http.Client{},
		concurrencyLimit: concurrencyLimit,
		subQueryTimeout:  subQueryTimeout,
	}
}

// Run dispatches one request per sub-query to workerEndpoint+"/query",
// propagating profiling/max_rows/num_threads unchanged. A failure on any
// one sub-query fails the whole call with PartitionFailure; cancellation of
// ctx aborts every outstanding call at the transport layer.
func (s *Scheduler) Run(ctx context.Context, workerEndpoint string, subQueries []SubQuery, profiling bool, maxRows, numThreads int) ([]WorkerResponse, error) {
	results, err := BoundedFanout(ctx, subQueries, s.concurrencyLimit, func(ctx context.Context, sq SubQuery) (WorkerResponse, error) {
		return s.dispatch(ctx, workerEndpoint, sq, profiling, maxRows, numThreads)
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Scheduler) dispatch(ctx context.Context, workerEndpoint string, sq SubQuery, profiling bool, maxRows, numThreads int) (WorkerResponse, error) {
	var zero WorkerResponse

	ctx, cancel := context.WithTimeout(ctx, s.subQueryTimeout)
	defer cancel()

	body, err := json.Marshal(WorkerRequest{
		SQL:        sq.SQL,
		Profiling:  profiling,
		MaxRows:    maxRows,
		NumThreads: numThreads,
	})
	if err != nil {
		return zero, coorderrors.NewPartitionFailure(sq.PartitionValue, err)
	}

	url := fmt.Sprintf("%s/query", workerEndpoint)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return zero, coorderrors.NewPartitionFailure(sq.PartitionValue, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return zero, coorderrors.NewPartitionFailure(sq.PartitionValue, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, coorderrors.NewPartitionFailure(sq.PartitionValue, err)
	}

	if resp.StatusCode >= 300 {
		return zero, coorderrors.NewPartitionFailure(sq.PartitionValue, fmt.Errorf("worker returned %d: %s", resp.StatusCode, string(payload)))
	}

	var out WorkerResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return zero, coorderrors.NewPartitionFailure(sq.PartitionValue, err)
	}
	return out, nil
}
