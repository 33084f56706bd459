// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Unit tests for the fan-out scheduler.

package fanout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSchedulerRunCollectsAllPartitions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req WorkerRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(WorkerResponse{
			Columns:       []string{"sum_x"},
			Rows:          [][]any{{float64(1)}},
			Hostname:      "worker",
			ExecutionTime: 0.01,
		})
	}))
	defer srv.Close()

	s := NewScheduler(4, time.Second)
	subs := []SubQuery{{PartitionValue: "a", SQL: "SELECT 1"}, {PartitionValue: "b", SQL: "SELECT 1"}}
	results, err := s.Run(context.Background(), srv.URL, subs, false, 50, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestSchedulerFailsWholeRequestOnPartitionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req WorkerRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if strings.Contains(req.SQL, "fail") {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(WorkerResponse{Columns: []string{"x"}, Rows: [][]any{{float64(1)}}})
	}))
	defer srv.Close()

	s := NewScheduler(4, time.Second)
	subs := []SubQuery{{PartitionValue: "a", SQL: "SELECT 1"}, {PartitionValue: "b", SQL: "fail"}}
	_, err := s.Run(context.Background(), srv.URL, subs, false, 50, -1)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "b") {
		t.Fatalf("expected error to mention partition value 'b', got %v", err)
	}
}

func TestSchedulerCancellationPropagates(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-block:
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(4, 5*time.Second)
	subs := []SubQuery{{PartitionValue: "a", SQL: "SELECT 1"}}

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(ctx, srv.URL, subs, false, 50, -1)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected cancellation error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not observe cancellation")
	}
}
