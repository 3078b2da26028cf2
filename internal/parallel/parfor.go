// Package parallel provides the hierarchical parallel-for used by the
// exchange kernels: an outer range dispatched across workers and a flat inner
// index range walked by each unit of work. Work functions must not capture
// mutable state beyond the slices they exclusively own; the engine guarantees
// outer indices map to disjoint buffer slots.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// TeamFor runs fn(b) for b in [0, outer) across up to GOMAXPROCS workers.
// The first error cancels remaining work.
func TeamFor(ctx context.Context, outer int, fn func(b int) error) error {
	if outer <= 0 {
		return nil
	}
	workers := runtime.GOMAXPROCS(0)
	if workers > outer {
		workers = outer
	}
	if workers <= 1 {
		for b := 0; b < outer; b++ {
			if err := fn(b); err != nil {
				return err
			}
		}
		return nil
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for b := 0; b < outer; b++ {
		b := b
		g.Go(func() error {
			return fn(b)
		})
	}
	return g.Wait()
}

// FlatRange walks the flat inner index space [0, n), decomposing idx into the
// caller's loop structure. Serial by construction: inner work for one outer
// index shares a nonzero reduction and a single buffer.
func FlatRange(n int, fn func(idx int)) {
	for idx := 0; idx < n; idx++ {
		fn(idx)
	}
}
