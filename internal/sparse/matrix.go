package sparse

import (
	"fmt"
	"slices"
	"sync"

	spm "github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// Matrix is a sparse matrix assembled in a dictionary of keys. Products and
// row access go through a compressed-row copy that is rebuilt after the
// first read following a mutation. Entries that become zero are skipped by
// every reader.
//
// Mutations must not run concurrently with anything else; concurrent reads
// are safe.
type Matrix struct {
	rows, cols int
	dok        *spm.DOK

	mu  sync.Mutex
	csr *spm.CSR
}

var _ mat.Matrix = (*Matrix)(nil)

func New(rows, cols int) *Matrix {
	if rows < 0 || cols < 0 {
		panic(mat.ErrNegativeDimension)
	}
	return &Matrix{rows: rows, cols: cols, dok: spm.NewDOK(rows, cols)}
}

func (m *Matrix) Dims() (int, int) { return m.rows, m.cols }

func (m *Matrix) T() mat.Matrix { return mat.Transpose{Matrix: m} }

func (m *Matrix) check(i, j int) {
	if i < 0 || i >= m.rows {
		panic(mat.ErrRowAccess)
	}
	if j < 0 || j >= m.cols {
		panic(mat.ErrColAccess)
	}
}

func (m *Matrix) At(i, j int) float64 {
	m.check(i, j)
	return m.dok.At(i, j)
}

// Set stores v at (i, j); a zero value clears the entry.
func (m *Matrix) Set(i, j int, v float64) {
	m.check(i, j)
	if v == 0 && m.dok.At(i, j) == 0 {
		return
	}
	m.dok.Set(i, j, v)
	m.csr = nil
}

// Add accumulates v into (i, j).
func (m *Matrix) Add(i, j int, v float64) {
	m.check(i, j)
	if v == 0 {
		return
	}
	m.Set(i, j, m.dok.At(i, j)+v)
}

func (m *Matrix) Scale(f float64) {
	m.dok.DoNonZero(func(i, j int, v float64) {
		m.dok.Set(i, j, v*f)
	})
	m.csr = nil
}

// AddToDiagonal adds v to every diagonal element.
func (m *Matrix) AddToDiagonal(v float64) {
	for i := 0; i < min(m.rows, m.cols); i++ {
		m.Add(i, i, v)
	}
}

// Insert adds every entry of sub into m with sub's origin placed at
// (row, col).
func (m *Matrix) Insert(sub *Matrix, row, col int) error {
	r, c := sub.Dims()
	if row < 0 || col < 0 || row+r > m.rows || col+c > m.cols {
		return fmt.Errorf("insert %dx%d at (%d, %d) into %dx%d: out of bounds", r, c, row, col, m.rows, m.cols)
	}
	sub.dok.DoNonZero(func(i, j int, v float64) {
		m.Add(row+i, col+j, v)
	})
	return nil
}

// NonZero returns the number of non-zero entries.
func (m *Matrix) NonZero() int {
	n := 0
	m.dok.DoNonZero(func(_, _ int, v float64) {
		if v != 0 {
			n++
		}
	})
	return n
}

func (m *Matrix) Diagonal() []float64 {
	d := make([]float64, min(m.rows, m.cols))
	for i := range d {
		d[i] = m.dok.At(i, i)
	}
	return d
}

// compressed returns the compressed-row form of m, building it when a
// mutation invalidated the last one. Explicit zeros are dropped.
func (m *Matrix) compressed() *spm.CSR {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.csr != nil {
		return m.csr
	}
	var ri, ci []int
	var vs []float64
	m.dok.DoNonZero(func(i, j int, v float64) {
		if v != 0 {
			ri = append(ri, i)
			ci = append(ci, j)
			vs = append(vs, v)
		}
	})
	if len(vs) == 0 {
		m.csr = spm.NewCSR(m.rows, m.cols, make([]int, m.rows+1), nil, nil)
		return m.csr
	}
	m.csr = spm.NewCOO(m.rows, m.cols, ri, ci, vs).ToCSR()
	return m.csr
}

// Row returns the column indices and values of row i in column order.
func (m *Matrix) Row(i int) ([]int, []float64) {
	if i < 0 || i >= m.rows {
		panic(mat.ErrRowAccess)
	}
	raw := m.compressed().RawMatrix()
	lo, hi := raw.Indptr[i], raw.Indptr[i+1]
	order := make([]int, hi-lo)
	for k := range order {
		order[k] = lo + k
	}
	slices.SortFunc(order, func(a, b int) int { return raw.Ind[a] - raw.Ind[b] })
	cols := make([]int, len(order))
	vals := make([]float64, len(order))
	for k, p := range order {
		cols[k], vals[k] = raw.Ind[p], raw.Data[p]
	}
	return cols, vals
}

// DoNonZero calls fn for each non-zero entry in row-major order.
func (m *Matrix) DoNonZero(fn func(i, j int, v float64)) {
	for i := 0; i < m.rows; i++ {
		cols, vals := m.Row(i)
		for k, j := range cols {
			fn(i, j, vals[k])
		}
	}
}

func (m *Matrix) Clone() *Matrix {
	c := New(m.rows, m.cols)
	m.dok.DoNonZero(func(i, j int, v float64) {
		if v != 0 {
			c.dok.Set(i, j, v)
		}
	})
	return c
}

// MulVec returns m·x.
func (m *Matrix) MulVec(x []float64) []float64 {
	dst := make([]float64, m.rows)
	m.MulVecInto(dst, x)
	return dst
}

// MulVecInto writes m·x into dst.
func (m *Matrix) MulVecInto(dst, x []float64) {
	if len(x) != m.cols || len(dst) != m.rows {
		panic(mat.ErrShape)
	}
	clear(dst)
	m.compressed().MulVecTo(dst, false, x)
}

// MulRowsInto writes rows [start, end) of m·x into dst[start:end].
func (m *Matrix) MulRowsInto(dst, x []float64, start, end int) {
	raw := m.compressed().RawMatrix()
	for i := start; i < end; i++ {
		s := 0.0
		for p := raw.Indptr[i]; p < raw.Indptr[i+1]; p++ {
			s += raw.Data[p] * x[raw.Ind[p]]
		}
		dst[i] = s
	}
}

// MulTransVecInto writes mᵀ·x into dst.
func (m *Matrix) MulTransVecInto(dst, x []float64) {
	if len(x) != m.rows || len(dst) != m.cols {
		panic(mat.ErrShape)
	}
	clear(dst)
	m.compressed().MulVecTo(dst, true, x)
}

// MulVecTo computes m·x or mᵀ·x into dst, so a Matrix can drive the
// iterative methods of linsolve.
func (m *Matrix) MulVecTo(dst *mat.VecDense, trans bool, x mat.Vector) {
	in := vecData(x)
	out := make([]float64, dst.Len())
	if trans {
		m.MulTransVecInto(out, in)
	} else {
		m.MulVecInto(out, in)
	}
	setVec(dst, out)
}

// TransferMatrix returns the off-diagonal entries of m divided by the
// diagonal element of their column. Columns with a zero diagonal are skipped.
func (m *Matrix) TransferMatrix() *Matrix {
	t := New(m.rows, m.cols)
	diag := m.Diagonal()
	m.dok.DoNonZero(func(i, j int, v float64) {
		if i == j || v == 0 || j >= len(diag) || diag[j] == 0 {
			return
		}
		t.Set(i, j, v/diag[j])
	})
	return t
}

// Dense copies m into a gonum dense matrix.
func (m *Matrix) Dense() *mat.Dense {
	if m.rows == 0 || m.cols == 0 {
		return mat.NewDense(max(m.rows, 1), max(m.cols, 1), nil)
	}
	return m.dok.ToDense()
}

func vecData(x mat.Vector) []float64 {
	if v, ok := x.(*mat.VecDense); ok {
		if raw := v.RawVector(); raw.Inc == 1 {
			return raw.Data[:v.Len()]
		}
	}
	out := make([]float64, x.Len())
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out
}

func setVec(dst *mat.VecDense, src []float64) {
	for i, v := range src {
		dst.SetVec(i, v)
	}
}
