// Package workerpool runs a function over a slice with bounded concurrency.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Process calls process for every item on at most workers goroutines.
// The first error cancels the context passed to the remaining calls and is returned.
// Items not yet started when ctx ends are skipped and ctx's error is returned.
func Process[T any](ctx context.Context, workers int, items []T, process func(context.Context, T) error) error {
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return process(gctx, item)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
