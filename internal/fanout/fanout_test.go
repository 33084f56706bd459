// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Unit tests for generic fan-out.

package fanout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestFanoutPreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4}
	res, err := Fanout(context.Background(), items, func(ctx context.Context, n int) (int, error) {
		return n * n, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{1, 4, 9, 16}
	for i, v := range want {
		if res[i] != v {
			t.Fatalf("index %d: got %d, want %d", i, res[i], v)
		}
	}
}

func TestFanoutFailsWholeCallOnAnyError(t *testing.T) {
	items := []string{"a", "b", "c"}
	_, err := Fanout(context.Background(), items, func(ctx context.Context, s string) (string, error) {
		if s == "b" {
			return "", errors.New("boom")
		}
		return s, nil
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestFanoutCancelsSiblingsOnError(t *testing.T) {
	items := []int{1, 2, 3}
	var started int32
	_, err := Fanout(context.Background(), items, func(ctx context.Context, n int) (int, error) {
		atomic.AddInt32(&started, 1)
		if n == 1 {
			return 0, errors.New("fail fast")
		}
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestBoundedFanoutRespectsLimit(t *testing.T) {
	items := make([]int, 8)
	for i := range items {
		items[i] = i
	}
	var current, maxSeen int32
	_, err := BoundedFanout(context.Background(), items, 2, func(ctx context.Context, n int) (int, error) {
		c := atomic.AddInt32(&current, 1)
		for {
			m := atomic.LoadInt32(&maxSeen)
			if c <= m || atomic.CompareAndSwapInt32(&maxSeen, m, c) {
				break
			}
		}
		defer atomic.AddInt32(&current, -1)
		return n, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if maxSeen > 2 {
		t.Fatalf("expected at most 2 concurrent calls, saw %d", maxSeen)
	}
}
