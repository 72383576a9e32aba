package dynamo

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// Pool runs data-parallel loops on at most Workers goroutines.
type Pool struct {
	workers int
}

// NewPool returns a pool with the given worker limit. A non-positive limit
// uses one worker per CPU.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{workers: workers}
}

func (p *Pool) Workers() int { return p.workers }

// For calls fn for every index in [0, n) and returns the first error.
// Cancellation is checked before each index is started.
func (p *Pool) For(ctx context.Context, n int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}
	if n == 1 || p.workers == 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ParallelFor splits [0, n) into contiguous chunks of at least minChunk
// indices and runs fn on each chunk concurrently.
func (p *Pool) ParallelFor(n, minChunk int, fn func(start, end int)) {
	if minChunk < 1 {
		minChunk = 1
	}
	if n <= minChunk || p.workers <= 1 {
		fn(0, n)
		return
	}

	workers := p.workers
	if n/minChunk < workers {
		workers = n / minChunk
	}
	if workers < 1 {
		workers = 1
	}
	chunkSize := (n + workers - 1) / workers

	var g errgroup.Group
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		g.Go(func() error {
			fn(start, end)
			return nil
		})
	}
	_ = g.Wait()
}

// TreeReduce sums vecs pairwise and returns vecs[0], which holds the total.
// The other vectors are clobbered. At every level the element left over by an
// odd count is folded into its left neighbour before the pairs are added in
// parallel; each level finishes before the next one starts.
func (p *Pool) TreeReduce(vecs [][]float64) []float64 {
	n := len(vecs)
	if n == 0 {
		return nil
	}

	stride := 2
	for n/2 > 0 {
		half := stride / 2
		if n%2 == 1 {
			floats.Add(vecs[(n/2)*stride-half], vecs[(n/2)*stride])
		}
		n /= 2

		var g errgroup.Group
		g.SetLimit(p.workers)
		for i := 0; i < n; i++ {
			dst, src := vecs[i*stride], vecs[i*stride+half]
			g.Go(func() error {
				floats.Add(dst, src)
				return nil
			})
		}
		_ = g.Wait()
		stride *= 2
	}
	return vecs[0]
}
