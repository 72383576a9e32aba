// Package expm computes the action of the matrix exponential on a vector
// with a restarted Arnoldi (Krylov) method.
//
// Phi.Solve integrates dx/dt = A·x + c exactly for a constant c by working
// with the augmented generator [[A, c], [0, 0]], so both the homogeneous and
// the particular solution come from a single exponential action.
package expm

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/stiffnet/internal/dynamo"
	"github.com/san-kum/stiffnet/internal/telemetry"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	DefaultWorkspace     = 30
	DefaultTolerance     = 1e-10
	DefaultMaxIterations = 10000

	// maxRejects bounds consecutive error-estimate rejections of one
	// sub-step.
	maxRejects = 60
)

// ErrIterationLimit is returned when the operator application budget runs
// out before t is reached. The partial result is discarded.
var ErrIterationLimit = errors.New("expm: maximum number of iterations exceeded")

// Operator is a linear operator of dimension Dim.
type Operator interface {
	Dim() int
	Apply(dst, x []float64)
}

// Phi is a Krylov exponential integrator. The zero value is not usable; use
// New.
type Phi struct {
	// Workspace is the Krylov subspace dimension.
	Workspace int
	// Tolerance bounds the estimated local error of each sub-step relative
	// to the norm of the propagated vector.
	Tolerance float64
	// MaxIterations caps operator applications per Solve.
	MaxIterations int
	Debug         bool
	Logger        *slog.Logger
}

func New() *Phi {
	return &Phi{
		Workspace:     DefaultWorkspace,
		Tolerance:     DefaultTolerance,
		MaxIterations: DefaultMaxIterations,
	}
}

func (p *Phi) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// augmented applies [[A, c], [0, 0]] to vectors of length n+1.
type augmented struct {
	op  Operator
	c   []float64
	n   int
	tmp []float64
}

func (a *augmented) apply(dst, v []float64) {
	if a.c == nil {
		a.op.Apply(dst, v)
		return
	}
	a.op.Apply(a.tmp, v[:a.n])
	s := v[a.n]
	for i := 0; i < a.n; i++ {
		dst[i] = a.tmp[i] + a.c[i]*s
	}
	dst[a.n] = 0
}

// Solve returns x(t) for dx/dt = A·x + c with x(0) = x0, where A is op.
// A nil or all-zero c skips the augmentation.
func (p *Phi) Solve(op Operator, x0, c []float64, t float64) ([]float64, error) {
	n := op.Dim()
	if len(x0) != n || (c != nil && len(c) != n) {
		return nil, fmt.Errorf("expm: operator of dimension %d, x0 %d, c %d: %w", n, len(x0), len(c), dynamo.ErrDimensionMismatch)
	}
	if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		return nil, fmt.Errorf("expm: t = %g: %w", t, dynamo.ErrInvalidInterval)
	}
	if t == 0 || n == 0 {
		return append([]float64(nil), x0...), nil
	}

	aug := &augmented{op: op, n: n}
	size := n
	if c != nil && floats.Norm(c, math.Inf(1)) > 0 {
		aug.c = c
		aug.tmp = make([]float64, n)
		size = n + 1
	}

	w := make([]float64, size)
	copy(w, x0)
	if aug.c != nil {
		w[n] = 1
	}

	m := p.Workspace
	if m <= 0 {
		m = DefaultWorkspace
	}
	m = min(m, size)
	tol := p.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	maxIter := p.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	v := make([][]float64, m+1)
	for i := range v {
		v[i] = dynamo.Vectors.Get(size)
	}
	defer func() {
		for _, vec := range v {
			dynamo.Vectors.Put(vec)
		}
	}()
	h := mat.NewDense(m+1, m, nil)

	products := 0
	defer func() { telemetry.KrylovProducts.Observe(float64(products)) }()

	tk := 0.0
	tau := t
	steps := 0
	for tk < t && !dynamo.WithinEpsilon(tk, t, 1e-14) {
		beta := floats.Norm(w, 2)
		if beta == 0 {
			break
		}

		// Arnoldi
		h.Zero()
		floats.ScaleTo(v[0], 1/beta, w)
		k := m
		breakdown := false
		for j := 0; j < m; j++ {
			if products >= maxIter {
				return nil, fmt.Errorf("%w after %d products (t = %g of %g)", ErrIterationLimit, products, tk, t)
			}
			aug.apply(v[j+1], v[j])
			products++
			for i := 0; i <= j; i++ {
				hij := floats.Dot(v[j+1], v[i])
				h.Set(i, j, hij)
				floats.AddScaled(v[j+1], -hij, v[i])
			}
			s := floats.Norm(v[j+1], 2)
			if s <= 1e-14*beta {
				k = j + 1
				breakdown = true
				break
			}
			h.Set(j+1, j, s)
			floats.Scale(1/s, v[j+1])
		}

		// corrected scheme: ‖A·v(k)‖ scales the second error term
		avnorm := 0.0
		if !breakdown {
			if products >= maxIter {
				return nil, fmt.Errorf("%w after %d products (t = %g of %g)", ErrIterationLimit, products, tk, t)
			}
			av := dynamo.Vectors.Get(size)
			aug.apply(av, v[k])
			products++
			avnorm = floats.Norm(av, 2)
			dynamo.Vectors.Put(av)
		}

		tau = math.Min(tau, t-tk)
		var e mat.Dense
		var errEst, order float64
		for rejects := 0; ; rejects++ {
			e = p.expHessenberg(h, k, tau, breakdown)
			errEst, order = 0, float64(k)
			if !breakdown {
				errEst, order = localError(beta*math.Abs(e.At(k, 0)), beta*math.Abs(e.At(k+1, 0))*avnorm, k)
			}
			if errEst <= tol*beta || errEst == 0 {
				break
			}
			if rejects >= maxRejects {
				return nil, fmt.Errorf("%w: step size collapsed at t = %g", ErrIterationLimit, tk)
			}
			shrink := 0.9 * math.Pow(tol*beta/errEst, 1/order)
			tau *= math.Min(0.5, math.Max(0.1, shrink))
		}

		basis := k
		if !breakdown {
			basis = k + 1
		}
		next := dynamo.Vectors.Get(size)
		for i := 0; i < basis; i++ {
			floats.AddScaled(next, beta*e.At(i, 0), v[i])
		}
		copy(w, next)
		dynamo.Vectors.Put(next)

		tk += tau
		steps++
		if p.Debug {
			p.logger().Debug("krylov sub-step", "t", tk, "tau", tau, "dimension", k, "error", errEst, "products", products)
		}

		grow := 2.0
		if errEst > 0 {
			grow = math.Min(2, math.Max(1, 0.9*math.Pow(tol*beta/errEst, 1/order)))
		}
		tau *= grow
	}

	if p.Debug {
		p.logger().Info("krylov exponential done", "t", t, "steps", steps, "products", products)
	}
	out := make([]float64, n)
	copy(out, w[:n])
	if !dynamo.Vector(out).IsValid() {
		return nil, fmt.Errorf("expm: %w", dynamo.ErrInvalidState)
	}
	return out, nil
}

// localError combines the two truncation estimates of a sub-step over a
// k-dimensional subspace. p1 comes from entry (k, 0) of the extended
// exponential and p2 from entry (k+1, 0) scaled by ‖A·v(k)‖. It returns the
// estimate and the order used for step-size control.
func localError(p1, p2 float64, k int) (float64, float64) {
	switch {
	case p1 > 10*p2:
		return p2, float64(k)
	case p1 > p2:
		return p1 * p2 / (p1 - p2), float64(k)
	default:
		return p1, float64(max(k-1, 1))
	}
}

// expHessenberg exponentiates τ·H over the first k Arnoldi vectors. Unless
// the process broke down, the matrix gets two extra rows and columns: row k
// holds h(k, k-1) and entry (k+1, k) is one. Column 0 of the result then
// carries the coefficient of v(k) in row k and the second error term in row
// k+1.
func (p *Phi) expHessenberg(h *mat.Dense, k int, tau float64, breakdown bool) mat.Dense {
	size := k + 2
	if breakdown {
		size = k
	}
	small := mat.NewDense(size, size, nil)
	for i := 0; i < min(k+1, size); i++ {
		for j := 0; j < k; j++ {
			small.Set(i, j, tau*h.At(i, j))
		}
	}
	if !breakdown {
		small.Set(k+1, k, tau)
	}
	var e mat.Dense
	e.Exp(small)
	return e
}
