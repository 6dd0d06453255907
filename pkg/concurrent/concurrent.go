package concurrent

import "golang.org/x/sync/errgroup"

// ParallelMap applies mapFn to every item with at most workers goroutines and
// returns the results in input order.
func ParallelMap[T any, R any](items []T, workers int, mapFn func(T) R) []R {
	out := make([]R, len(items))
	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, item := range items {
		g.Go(func() error {
			out[i] = mapFn(item)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
