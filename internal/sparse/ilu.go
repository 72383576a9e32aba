package sparse

import (
	"cmp"
	"container/heap"
	"fmt"
	"math"
	"slices"

	"github.com/san-kum/stiffnet/internal/dynamo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ILU is an incomplete LU factorization with threshold dropping (ILUT).
// L has an implicit unit diagonal; U's diagonal is stored separately.
type ILU struct {
	n     int
	lCols [][]int
	lVals [][]float64
	uCols [][]int
	uVals [][]float64
	diag  []float64
	// Padded counts the zero pivots that were replaced.
	Padded int
}

// NewILU factors the square matrix a. Each row keeps at most fill entries
// beyond its original count in each of L and U, and entries smaller than
// dropTol times the row norm are discarded. Zero pivots are replaced by a
// small multiple of the row norm so the factorization always completes.
func NewILU(a *Matrix, fill int, dropTol float64) (*ILU, error) {
	n, c := a.Dims()
	if n != c {
		return nil, fmt.Errorf("ilu of %dx%d matrix: %w", n, c, dynamo.ErrDimensionMismatch)
	}
	if fill < 0 || dropTol < 0 {
		return nil, fmt.Errorf("ilu fill %d, drop tolerance %g: %w", fill, dropTol, dynamo.ErrInvalidConfig)
	}

	f := &ILU{
		n:     n,
		lCols: make([][]int, n),
		lVals: make([][]float64, n),
		uCols: make([][]int, n),
		uVals: make([][]float64, n),
		diag:  make([]float64, n),
	}

	w := dynamo.Vectors.Get(n)
	defer dynamo.Vectors.Put(w)
	mark := make([]bool, n)
	pattern := make([]int, 0, 16)
	lower := &colHeap{}

	for i := 0; i < n; i++ {
		cols, vals := a.Row(i)
		rowNorm := 0.0
		if len(vals) > 0 {
			rowNorm = floats.Norm(vals, 2)
		}
		tau := dropTol * rowNorm

		nL, nU := 0, 0
		pattern = pattern[:0]
		*lower = (*lower)[:0]
		for k, j := range cols {
			w[j] = vals[k]
			mark[j] = true
			pattern = append(pattern, j)
			switch {
			case j < i:
				nL++
				heap.Push(lower, j)
			case j > i:
				nU++
			}
		}
		if !mark[i] {
			mark[i] = true
			pattern = append(pattern, i)
		}

		for lower.Len() > 0 {
			k := heap.Pop(lower).(int)
			if w[k] == 0 {
				continue
			}
			l := w[k] / f.diag[k]
			if math.Abs(l) < tau {
				w[k] = 0
				continue
			}
			w[k] = l
			for p, j := range f.uCols[k] {
				if !mark[j] {
					mark[j] = true
					pattern = append(pattern, j)
					if j < i {
						heap.Push(lower, j)
					}
				}
				w[j] -= l * f.uVals[k][p]
			}
		}

		var lEntries, uEntries []entry
		for _, j := range pattern {
			v := w[j]
			switch {
			case j == i:
				f.diag[i] = v
			case v == 0 || math.Abs(v) < tau:
			case j < i:
				lEntries = append(lEntries, entry{j, v})
			default:
				uEntries = append(uEntries, entry{j, v})
			}
			w[j] = 0
			mark[j] = false
		}

		f.lCols[i], f.lVals[i] = keepLargest(lEntries, nL+fill)
		f.uCols[i], f.uVals[i] = keepLargest(uEntries, nU+fill)

		if f.diag[i] == 0 {
			f.Padded++
			f.diag[i] = (1e-4 + dropTol) * rowNorm
			if f.diag[i] == 0 {
				f.diag[i] = 1
			}
		}
	}
	return f, nil
}

// Solve applies (LU)⁻¹ to b, writing the result into dst.
func (f *ILU) Solve(dst, b []float64) {
	copy(dst, b)
	for i := 0; i < f.n; i++ {
		s := dst[i]
		for p, j := range f.lCols[i] {
			s -= f.lVals[i][p] * dst[j]
		}
		dst[i] = s
	}
	for i := f.n - 1; i >= 0; i-- {
		s := dst[i]
		for p, j := range f.uCols[i] {
			s -= f.uVals[i][p] * dst[j]
		}
		dst[i] = s / f.diag[i]
	}
}

// SolveTrans applies (LU)⁻ᵀ to b, writing the result into dst.
func (f *ILU) SolveTrans(dst, b []float64) {
	copy(dst, b)
	for i := 0; i < f.n; i++ {
		dst[i] /= f.diag[i]
		for p, j := range f.uCols[i] {
			dst[j] -= f.uVals[i][p] * dst[i]
		}
	}
	for i := f.n - 1; i >= 0; i-- {
		for p, j := range f.lCols[i] {
			dst[j] -= f.lVals[i][p] * dst[i]
		}
	}
}

// PreconSolve applies the factorization as a linsolve preconditioner.
func (f *ILU) PreconSolve(dst *mat.VecDense, trans bool, rhs mat.Vector) error {
	if dst.Len() != f.n || rhs.Len() != f.n {
		return fmt.Errorf("ilu of dimension %d applied to %d values: %w", f.n, rhs.Len(), dynamo.ErrDimensionMismatch)
	}
	out := make([]float64, f.n)
	if trans {
		f.SolveTrans(out, vecData(rhs))
	} else {
		f.Solve(out, vecData(rhs))
	}
	setVec(dst, out)
	return nil
}

// Release drops the factor storage.
func (f *ILU) Release() {
	f.lCols, f.lVals, f.uCols, f.uVals, f.diag = nil, nil, nil, nil, nil
}

type entry struct {
	col int
	val float64
}

func keepLargest(es []entry, limit int) ([]int, []float64) {
	if len(es) > limit {
		slices.SortFunc(es, func(a, b entry) int {
			return cmp.Compare(math.Abs(b.val), math.Abs(a.val))
		})
		es = es[:limit]
	}
	slices.SortFunc(es, func(a, b entry) int { return a.col - b.col })
	cols := make([]int, len(es))
	vals := make([]float64, len(es))
	for k, e := range es {
		cols[k], vals[k] = e.col, e.val
	}
	return cols, vals
}

// colHeap is a min-heap of column indices.
type colHeap []int

func (h colHeap) Len() int           { return len(h) }
func (h colHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h colHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *colHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *colHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}
