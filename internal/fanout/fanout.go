// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Generic concurrent fan-out over an arbitrary slice of inputs.

package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Fanout runs fn concurrently over items and returns results in the same
// order as items. The first error from any fn cancels the shared context
// and fails the whole call; partial success is not a return mode (the
// caller decides what, if anything, a partial set of results means).
func Fanout[In any, Out any](ctx context.Context, items []In, fn func(context.Context, In) (Out, error)) ([]Out, error) {
	g, gctx := errgroup.WithContext(ctx)
	results := make([]Out, len(items))
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			r, err := fn(gctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// BoundedFanout is Fanout with concurrency capped at limit in-flight calls.
// limit <= 0 means unbounded, matching Fanout.
func BoundedFanout[In any, Out any](ctx context.Context, items []In, limit int, fn func(context.Context, In) (Out, error)) ([]Out, error) {
	if limit <= 0 {
		return Fanout(ctx, items, fn)
	}
	sem := semaphore.NewWeighted(int64(limit))
	return Fanout(ctx, items, func(ctx context.Context, item In) (Out, error) {
		var zero Out
		if err := sem.Acquire(ctx, 1); err != nil {
			return zero, err
		}
		defer sem.Release(1)
		return fn(ctx, item)
	})
}
