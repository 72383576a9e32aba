package expm

import (
	"math"
	"testing"

	"github.com/san-kum/stiffnet/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type denseOp struct {
	a *mat.Dense
}

func (d denseOp) Dim() int {
	r, _ := d.a.Dims()
	return r
}

func (d denseOp) Apply(dst, x []float64) {
	var y mat.VecDense
	y.MulVec(d.a, mat.NewVecDense(len(x), append([]float64(nil), x...)))
	copy(dst, y.RawVector().Data)
}

func TestSolveScalarDecay(t *testing.T) {
	op := denseOp{mat.NewDense(1, 1, []float64{-3})}
	x, err := New().Solve(op, []float64{2}, nil, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 2*math.Exp(-1.5), x[0], 1e-12)
}

func TestSolveWithConstantTerm(t *testing.T) {
	lambda, c := 2.0, 4.0
	op := denseOp{mat.NewDense(1, 1, []float64{-lambda})}
	x, err := New().Solve(op, []float64{1}, []float64{c}, 1.25)
	require.NoError(t, err)

	want := c/lambda + (1-c/lambda)*math.Exp(-lambda*1.25)
	assert.InDelta(t, want, x[0], 1e-10)
}

func TestSolveMatchesDenseExponential(t *testing.T) {
	// a decay chain with a feeding source
	a := mat.NewDense(4, 4, []float64{
		-1, 0, 0, 0,
		1, -0.5, 0, 0,
		0, 0.5, -0.1, 0,
		0, 0, 0.1, 0,
	})
	x0 := []float64{1, 0.2, 0, 0}
	t0 := 3.0

	var scaled, e mat.Dense
	scaled.Scale(t0, a)
	e.Exp(&scaled)
	var want mat.VecDense
	want.MulVec(&e, mat.NewVecDense(4, x0))

	phi := New()
	phi.Workspace = 3
	got, err := phi.Solve(denseOp{a}, x0, make([]float64, 4), t0)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want.RawVector().Data, got, 1e-8)

	total := 0.0
	for _, v := range got {
		total += v
	}
	assert.InDelta(t, 1.2, total, 1e-10, "the chain conserves the total")
}

func TestSolveSmallWorkspaceLongChain(t *testing.T) {
	const n = 12
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n-1; i++ {
		r := 1 / float64(i+1)
		a.Set(i, i, a.At(i, i)-r)
		a.Set(i+1, i, r)
	}
	x0 := make([]float64, n)
	x0[0] = 1

	var scaled, e mat.Dense
	scaled.Scale(2, a)
	e.Exp(&scaled)
	var want mat.VecDense
	want.MulVec(&e, mat.NewVecDense(n, x0))

	phi := New()
	phi.Workspace = 4
	got, err := phi.Solve(denseOp{a}, x0, nil, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want.RawVector().Data, got, 1e-8)

	total := 0.0
	for _, v := range got {
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-10)
}

func TestLocalError(t *testing.T) {
	tests := []struct {
		name   string
		p1, p2 float64
		err    float64
		order  float64
	}{
		{"second term much smaller", 1e-6, 1e-9, 1e-9, 5},
		{"comparable terms", 4e-8, 2e-8, 4e-8, 5},
		{"second term dominates", 1e-9, 1e-8, 1e-9, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err, order := localError(tt.p1, tt.p2, 5)
			assert.InDelta(t, tt.err, err, 1e-20)
			assert.Equal(t, tt.order, order)
		})
	}
	_, order := localError(0, 1, 1)
	assert.Equal(t, 1.0, order)
}

func TestSolveZeroTimeReturnsCopy(t *testing.T) {
	x0 := []float64{1, 2}
	got, err := New().Solve(denseOp{mat.NewDense(2, 2, nil)}, x0, nil, 0)
	require.NoError(t, err)
	got[0] = 7
	assert.Equal(t, 1.0, x0[0])
}

func TestSolveIterationLimit(t *testing.T) {
	a := mat.NewDense(3, 3, []float64{
		-1, 2, 0,
		0, -3, 1,
		1, 0, -2,
	})
	phi := New()
	phi.MaxIterations = 1
	_, err := phi.Solve(denseOp{a}, []float64{1, 1, 1}, nil, 10)
	assert.ErrorIs(t, err, ErrIterationLimit)
}

func TestSolveRejectsBadInput(t *testing.T) {
	op := denseOp{mat.NewDense(2, 2, nil)}
	_, err := New().Solve(op, []float64{1}, nil, 1)
	assert.ErrorIs(t, err, dynamo.ErrDimensionMismatch)

	_, err = New().Solve(op, []float64{1, 1}, nil, -1)
	assert.ErrorIs(t, err, dynamo.ErrInvalidInterval)
}
