package integrators

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/san-kum/stiffnet/internal/dynamo"
	"github.com/san-kum/stiffnet/internal/network"
	"github.com/san-kum/stiffnet/internal/sparse"
)

// Stepper advances zones over dt. A false result with a nil error means the
// step was not accepted and the zones hold their pre-step abundances.
type Stepper interface {
	Step(zones []*network.Zone, dt float64) (bool, error)
}

// AssemblyStrategy supplies the inter-zone part of the implicit system at the
// current full vector x: the matrix -∂f/∂x and the right-hand side f(x). An
// error wrapping dynamo.ErrStepRejected asks for a smaller step; any other
// error is fatal.
type AssemblyStrategy interface {
	Assemble(x []float64, dt float64) (*sparse.Matrix, []float64, error)
}

// AssemblyFunc adapts a function to AssemblyStrategy.
type AssemblyFunc func(x []float64, dt float64) (*sparse.Matrix, []float64, error)

func (f AssemblyFunc) Assemble(x []float64, dt float64) (*sparse.Matrix, []float64, error) {
	return f(x, dt)
}

// ValidationStrategy accepts or rejects the abundances of a trial step.
type ValidationStrategy interface {
	Validate(zones []*network.Zone) bool
}

type ValidationFunc func(zones []*network.Zone) bool

func (f ValidationFunc) Validate(zones []*network.Zone) bool { return f(zones) }

// ExponentialMatrixStrategy returns one full-size matrix per zone holding the
// inter-zone part of the generator dx/dt = Σ M_i·x.
type ExponentialMatrixStrategy interface {
	Matrices(zones []*network.Zone) ([]*sparse.Matrix, error)
}

// ConstantStrategy returns the constant source term c of dx/dt = A·x + c.
type ConstantStrategy interface {
	Constant(zones []*network.Zone) ([]float64, error)
}

// Modifier may alter the assembled implicit system before each solve.
type Modifier interface {
	Modify(a *sparse.Matrix, rhs []float64)
}

// NoCoupling treats zones as independent.
type NoCoupling struct{}

func (NoCoupling) Assemble(x []float64, _ float64) (*sparse.Matrix, []float64, error) {
	return sparse.New(len(x), len(x)), make([]float64, len(x)), nil
}

func (NoCoupling) Matrices(zones []*network.Zone) ([]*sparse.Matrix, error) {
	l, err := LayoutOf(zones)
	if err != nil {
		return nil, err
	}
	out := make([]*sparse.Matrix, len(zones))
	for i := range out {
		out[i] = sparse.New(l.Size(), l.Size())
	}
	return out, nil
}

// AcceptAll accepts every trial step.
type AcceptAll struct{}

func (AcceptAll) Validate([]*network.Zone) bool { return true }

// NonNegative rejects trial steps leaving any abundance below -Tolerance.
type NonNegative struct {
	Tolerance float64
}

func (n NonNegative) Validate(zones []*network.Zone) bool {
	for _, z := range zones {
		for _, y := range z.Abundances() {
			if y < -n.Tolerance || y != y {
				return false
			}
		}
	}
	return true
}

// ZeroConstant supplies a zero source term.
type ZeroConstant struct{}

func (ZeroConstant) Constant(zones []*network.Zone) ([]float64, error) {
	l, err := LayoutOf(zones)
	if err != nil {
		return nil, err
	}
	return make([]float64, l.Size()), nil
}

// LinearSolver solves the Newton system of one implicit iteration. A nil
// solution with a nil error means no solution was found.
type LinearSolver interface {
	Solve(a *sparse.Matrix, b []float64) ([]float64, error)
}

// ZoneLinearSolver chooses between the ILU-preconditioned iterative solve
// and a direct LU solve for a zone. The iterative solve runs only while the
// zone's t9 lies below its PropSolverT9 property, or always when that is
// unset. A direct solve covers the hotter zones and every iterative solve
// that finds no solution.
type ZoneLinearSolver struct {
	Zone *network.Zone
	// Config tunes the iterative solve; nil reads it from Zone.
	Config sparse.SolverConfigurer
	Logger *slog.Logger
}

func (s ZoneLinearSolver) Solve(a *sparse.Matrix, b []float64) ([]float64, error) {
	iterative, err := s.iterative()
	if err != nil {
		return nil, err
	}
	if iterative {
		x, err := sparse.SolveWithPreconditioner(a, b, s.config())
		if err != nil || x != nil {
			return x, err
		}
		loggerOr(s.Logger).Debug("iterative solve found no solution, solving directly")
	}
	return sparse.SolveDirect(a, b)
}

func (s ZoneLinearSolver) iterative() (bool, error) {
	if s.Zone == nil {
		return true, nil
	}
	if _, ok := s.Zone.Property(PropSolverT9); !ok {
		return true, nil
	}
	limit, err := s.Zone.FloatProperty(PropSolverT9, 0)
	if err != nil {
		return false, err
	}
	return s.Zone.T9() < limit, nil
}

func (s ZoneLinearSolver) config() sparse.SolverConfigurer {
	if s.Config != nil {
		return s.Config
	}
	return ZoneSolverConfig{Zone: s.Zone, Logger: s.Logger}
}

// Zone properties read by ZoneSolverConfig and ZoneLinearSolver.
const (
	PropSolver            = "iterative solver"
	PropSolverMaxIter     = "iterative solver maximum iterations"
	PropSolverRelTol      = "iterative solver relative tolerance"
	PropSolverAbsTol      = "iterative solver absolute tolerance"
	PropSolverConvergence = "iterative solver convergence method"
	PropSolverRestart     = "iterative solver restart"
	PropSolverDebug       = "iterative solver debug"
	PropSolverT9          = "iterative solver t9"
	PropILUDelta          = "ilu delta"
	PropILUDropTol        = "ilu drop tolerance"
)

// ZoneSolverConfig reads solver settings from the properties of Zone. The
// solver method is required.
type ZoneSolverConfig struct {
	Zone   *network.Zone
	Logger *slog.Logger
}

func (c ZoneSolverConfig) Configure(s *sparse.Settings) (sparse.ILUParams, error) {
	ilu := sparse.DefaultILUParams()
	z := c.Zone
	if z == nil {
		return ilu, fmt.Errorf("zone solver config without a zone: %w", dynamo.ErrNoZones)
	}

	method, ok := z.Property(PropSolver)
	if !ok || strings.TrimSpace(method) == "" {
		return ilu, fmt.Errorf("zone %s: %w", z, dynamo.ErrNoSolverMethod)
	}
	s.Method = method

	if v, ok := z.Property(PropSolverMaxIter); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return ilu, fmt.Errorf("zone %s: %s: %w", z, PropSolverMaxIter, err)
		}
		s.MaxIterations = n
	}
	var err error
	if s.RelativeTolerance, err = z.FloatProperty(PropSolverRelTol, s.RelativeTolerance); err != nil {
		return ilu, err
	}
	if s.AbsoluteTolerance, err = z.FloatProperty(PropSolverAbsTol, 0); err != nil {
		return ilu, err
	}
	if v, ok := z.Property(PropSolverConvergence); ok {
		s.Convergence = strings.TrimSpace(v)
	}
	if v, ok := z.Property(PropSolverRestart); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return ilu, fmt.Errorf("zone %s: %s: %w", z, PropSolverRestart, err)
		}
		s.Restart = n
	}
	if v, ok := z.Property(PropSolverDebug); ok && v == "yes" {
		s.Debug = true
		s.Logger = c.Logger
	}

	if v, ok := z.Property(PropILUDelta); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return ilu, fmt.Errorf("zone %s: %s: %w", z, PropILUDelta, err)
		}
		ilu.Fill = n
	}
	if ilu.DropTolerance, err = z.FloatProperty(PropILUDropTol, 0); err != nil {
		return ilu, err
	}
	return ilu, nil
}
