package compute

import (
	"context"
	"fmt"

	"github.com/san-kum/stiffnet/internal/dynamo"
	"github.com/san-kum/stiffnet/internal/sparse"
)

// rowChunk is the smallest row block handed to a worker in MatVec.
const rowChunk = 256

type CPUBackend struct {
	pool *dynamo.Pool
}

// NewCPUBackend returns a backend using at most workers goroutines; zero
// means one per CPU.
func NewCPUBackend(workers int) *CPUBackend {
	return &CPUBackend{pool: dynamo.NewPool(workers)}
}

func (c *CPUBackend) Name() string    { return "cpu" }
func (c *CPUBackend) Available() bool { return true }
func (c *CPUBackend) Cleanup()        {}
func (c *CPUBackend) Workers() int    { return c.pool.Workers() }

func (c *CPUBackend) MatVec(m *sparse.Matrix, x []float64) []float64 {
	rows, _ := m.Dims()
	dst := make([]float64, rows)
	c.pool.ParallelFor(rows, rowChunk, func(start, end int) {
		m.MulRowsInto(dst, x, start, end)
	})
	return dst
}

// SumMatVec multiplies every matrix by x concurrently and combines the
// products with a pairwise tree reduction.
func (c *CPUBackend) SumMatVec(matrices []*sparse.Matrix, x []float64) []float64 {
	switch len(matrices) {
	case 0:
		return make([]float64, len(x))
	case 1:
		return c.MatVec(matrices[0], x)
	}

	products := make([][]float64, len(matrices))
	_ = c.pool.For(context.Background(), len(matrices), func(i int) error {
		products[i] = matrices[i].MulVec(x)
		return nil
	})
	return c.pool.TreeReduce(products)
}

// SumOperator applies Σ matrices[i] through a backend.
type SumOperator struct {
	backend  Backend
	matrices []*sparse.Matrix
	n        int
}

// NewSumOperator checks that every matrix is square and of the same size.
func NewSumOperator(b Backend, matrices []*sparse.Matrix) (*SumOperator, error) {
	if len(matrices) == 0 {
		return nil, fmt.Errorf("sum operator without matrices: %w", dynamo.ErrDimensionMismatch)
	}
	n, _ := matrices[0].Dims()
	for i, m := range matrices {
		r, c := m.Dims()
		if r != n || c != n {
			return nil, fmt.Errorf("matrix %d is %dx%d, want %dx%d: %w", i, r, c, n, n, dynamo.ErrDimensionMismatch)
		}
	}
	if b == nil {
		b = GetBackend()
	}
	return &SumOperator{backend: b, matrices: matrices, n: n}, nil
}

func (o *SumOperator) Dim() int { return o.n }

func (o *SumOperator) Apply(dst, x []float64) {
	copy(dst, o.backend.SumMatVec(o.matrices, x))
}
