package sparse

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/san-kum/stiffnet/internal/dynamo"
	"github.com/san-kum/stiffnet/internal/telemetry"
	"gonum.org/v1/exp/linsolve"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Iterative solver names accepted in Settings.Method.
const (
	MethodGMRES    = "gmres"
	MethodBiCGStab = "bicgstab"
	MethodBiCG     = "bicg"
	MethodCG       = "cg"

	// MethodDirect labels dense LU solves in telemetry.
	MethodDirect = "direct"
)

// Convergence tests accepted in Settings.Convergence.
const (
	ConvergenceRelative = "relative"
	ConvergenceAbsolute = "absolute"
)

const (
	DefaultMaxIterations     = 1000
	DefaultRelativeTolerance = 1e-10
	DefaultRestart           = 30
	DefaultILUFill           = 1

	// residualSlack bounds how far the recomputed residual may exceed the
	// tolerance after the solver reported convergence.
	residualSlack = 10.0
)

// Settings controls one iterative solve.
type Settings struct {
	Method            string
	MaxIterations     int
	RelativeTolerance float64
	AbsoluteTolerance float64
	Convergence       string
	Restart           int
	Debug             bool
	Logger            *slog.Logger
}

// DefaultSettings returns tunings with no method selected.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations:     DefaultMaxIterations,
		RelativeTolerance: DefaultRelativeTolerance,
		Convergence:       ConvergenceRelative,
		Restart:           DefaultRestart,
	}
}

// ILUParams are the preconditioner parameters.
type ILUParams struct {
	Fill          int
	DropTolerance float64
}

func DefaultILUParams() ILUParams {
	return ILUParams{Fill: DefaultILUFill}
}

// SolverConfigurer fills solver settings and returns the preconditioner
// parameters for one solve.
type SolverConfigurer interface {
	Configure(s *Settings) (ILUParams, error)
}

// ConfigFunc adapts a function to SolverConfigurer.
type ConfigFunc func(s *Settings) (ILUParams, error)

func (f ConfigFunc) Configure(s *Settings) (ILUParams, error) { return f(s) }

// StaticConfig applies fixed settings. Zero fields keep their defaults.
type StaticConfig struct {
	Settings Settings
	ILU      ILUParams
}

func (c StaticConfig) Configure(s *Settings) (ILUParams, error) {
	if c.Settings.Method != "" {
		s.Method = c.Settings.Method
	}
	if c.Settings.MaxIterations > 0 {
		s.MaxIterations = c.Settings.MaxIterations
	}
	if c.Settings.RelativeTolerance > 0 {
		s.RelativeTolerance = c.Settings.RelativeTolerance
	}
	if c.Settings.AbsoluteTolerance > 0 {
		s.AbsoluteTolerance = c.Settings.AbsoluteTolerance
	}
	if c.Settings.Convergence != "" {
		s.Convergence = c.Settings.Convergence
	}
	if c.Settings.Restart > 0 {
		s.Restart = c.Settings.Restart
	}
	if c.Settings.Logger != nil {
		s.Logger = c.Settings.Logger
	}
	s.Debug = s.Debug || c.Settings.Debug
	return c.ILU, nil
}

// NormalizeMethod maps accepted aliases onto the canonical method names.
func NormalizeMethod(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return "", dynamo.ErrNoSolverMethod
	case MethodGMRES:
		return MethodGMRES, nil
	case MethodBiCGStab, "bcgstab":
		return MethodBiCGStab, nil
	case MethodBiCG, "bcg":
		return MethodBiCG, nil
	case MethodCG:
		return MethodCG, nil
	}
	return "", fmt.Errorf("%q: %w", name, dynamo.ErrUnknownSolverMethod)
}

func (s Settings) threshold(bNorm float64) (float64, error) {
	switch s.Convergence {
	case "", ConvergenceRelative:
		if s.RelativeTolerance <= 0 {
			return 0, fmt.Errorf("relative tolerance %g: %w", s.RelativeTolerance, dynamo.ErrInvalidConfig)
		}
		return s.RelativeTolerance * bNorm, nil
	case ConvergenceAbsolute:
		if s.AbsoluteTolerance <= 0 {
			return 0, fmt.Errorf("absolute tolerance %g: %w", s.AbsoluteTolerance, dynamo.ErrInvalidConfig)
		}
		return s.AbsoluteTolerance, nil
	}
	return 0, fmt.Errorf("convergence method %q: %w", s.Convergence, dynamo.ErrInvalidConfig)
}

var solveMu sync.Mutex

// SolveWithPreconditioner solves a·x = b with an ILU-preconditioned linsolve
// method chosen by cfg. It returns (nil, nil) when the method does not
// converge and a non-nil error only for configuration problems. Calls are
// serialized.
func SolveWithPreconditioner(a *Matrix, b []float64, cfg SolverConfigurer) ([]float64, error) {
	solveMu.Lock()
	defer solveMu.Unlock()

	s := DefaultSettings()
	params, err := cfg.Configure(&s)
	if err != nil {
		return nil, err
	}
	method, err := NormalizeMethod(s.Method)
	if err != nil {
		return nil, err
	}
	if s.MaxIterations <= 0 || s.Restart <= 0 {
		return nil, fmt.Errorf("max iterations %d, restart %d: %w", s.MaxIterations, s.Restart, dynamo.ErrInvalidConfig)
	}

	n, c := a.Dims()
	if n != c || len(b) != n {
		return nil, fmt.Errorf("solve %dx%d system with rhs of length %d: %w", n, c, len(b), dynamo.ErrDimensionMismatch)
	}

	bNorm := floats.Norm(b, 2)
	tol, err := s.threshold(bNorm)
	if err != nil {
		return nil, err
	}
	if bNorm == 0 {
		return make([]float64, n), nil
	}

	// linsolve measures convergence relative to ‖b‖, so the system is solved
	// for b/‖b‖ with the absolute threshold rescaled to match
	rel := tol / bNorm
	if rel >= 1 {
		return make([]float64, n), nil
	}

	ilu, err := NewILU(a, params.Fill, params.DropTolerance)
	if err != nil {
		return nil, err
	}
	defer ilu.Release()

	unit := mat.NewVecDense(n, nil)
	unit.ScaleVec(1/bNorm, mat.NewVecDense(n, b))
	result, err := linsolve.Iterative(a, unit, krylovMethod(method, min(s.Restart, n)), &linsolve.Settings{
		Tolerance:     rel,
		MaxIterations: s.MaxIterations,
		PreconSolve:   ilu.PreconSolve,
	})
	ok := err == nil
	if err != nil && s.Debug {
		s.logger().Debug("krylov method stopped", "method", method, "err", err)
	}
	if result == nil || result.X == nil {
		telemetry.SolverFailures.WithLabelValues(method).Inc()
		return nil, nil
	}
	iters := result.Stats.Iterations
	telemetry.SolverIterations.WithLabelValues(method).Observe(float64(iters))
	x := make([]float64, n)
	floats.ScaleTo(x, bNorm, result.X.RawVector().Data)

	residual := residualNorm(a, x, b)
	if ok && residual > residualSlack*tol {
		ok = false
	}
	if s.Debug {
		s.logger().Info("sparse solve",
			"method", method,
			"size", n,
			"nonzero", a.NonZero(),
			"iterations", iters,
			"residual", residual,
			"tolerance", tol,
			"converged", ok,
			"padded_pivots", ilu.Padded,
		)
	}
	if !ok || !dynamo.Vector(x).IsValid() {
		telemetry.SolverFailures.WithLabelValues(method).Inc()
		return nil, nil
	}
	return x, nil
}

// SolveDirect solves a·x = b by LU factorization of the dense form of a. It
// returns (nil, nil) when a is singular or too ill-conditioned for the
// solution to be trusted.
func SolveDirect(a *Matrix, b []float64) ([]float64, error) {
	n, c := a.Dims()
	if n != c || len(b) != n {
		return nil, fmt.Errorf("solve %dx%d system with rhs of length %d: %w", n, c, len(b), dynamo.ErrDimensionMismatch)
	}
	if n == 0 {
		return []float64{}, nil
	}

	var lu mat.LU
	lu.Factorize(a.Dense())
	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, mat.NewVecDense(n, slices.Clone(b))); err != nil {
		telemetry.SolverFailures.WithLabelValues(MethodDirect).Inc()
		return nil, nil
	}
	out := x.RawVector().Data
	if !dynamo.Vector(out).IsValid() {
		telemetry.SolverFailures.WithLabelValues(MethodDirect).Inc()
		return nil, nil
	}
	return out, nil
}

func (s Settings) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func krylovMethod(method string, restart int) linsolve.Method {
	switch method {
	case MethodBiCGStab:
		return &linsolve.BiCGStab{}
	case MethodBiCG:
		return &linsolve.BiCG{}
	case MethodCG:
		return &linsolve.CG{}
	}
	return &linsolve.GMRES{Restart: restart}
}

func residualNorm(a *Matrix, x, b []float64) float64 {
	r := dynamo.Vectors.Get(len(b))
	defer dynamo.Vectors.Put(r)
	a.MulVecInto(r, x)
	floats.SubTo(r, b, r)
	return floats.Norm(r, 2)
}
