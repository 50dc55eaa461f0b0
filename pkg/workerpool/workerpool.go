// Package workerpool runs a function over items with bounded concurrency.
package workerpool

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// ErrStop ends the pool early without failing it. Items not yet started are
// skipped and Process returns nil.
var ErrStop = errors.New("workerpool: stop")

// Process calls fn for every item on at most workers goroutines. The first
// error cancels the context passed to the remaining calls and is returned.
// Cancellation of ctx itself is reported as ctx.Err().
func Process[T any](ctx context.Context, workers int, items []T, fn func(context.Context, T) error) error {
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
			if gctx.Err() != nil {
				return nil
			}
			return fn(gctx, item)
		})
	}

	err := g.Wait()
	switch {
	case errors.Is(err, ErrStop):
		return nil
	case err != nil:
		return err
	default:
		return ctx.Err()
	}
}
