package benchmark

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// parallelRange splits [0,n) into at most workers contiguous chunks and
// runs fn on each concurrently. fn receives the group context and should
// check it between units of work.
func parallelRange(ctx context.Context, workers, n int, fn func(ctx context.Context, worker, lo, hi int) error) error {
	if n <= 0 {
		return ctx.Err()
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w*chunk < n; w++ {
		lo, hi := w*chunk, min((w+1)*chunk, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, w, lo, hi)
		})
	}
	return g.Wait()
}

// chunks reports how many chunks parallelRange will use.
func chunks(workers, n int) int {
	if n <= 0 {
		return 0
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers
	return (n + chunk - 1) / chunk
}
