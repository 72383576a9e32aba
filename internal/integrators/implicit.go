package integrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/stiffnet/internal/dynamo"
	"github.com/san-kum/stiffnet/internal/network"
	"github.com/san-kum/stiffnet/internal/sparse"
	"github.com/san-kum/stiffnet/internal/telemetry"
	"gonum.org/v1/gonum/floats"
)

const methodImplicit = "implicit"

// Implicit is a backward-Euler Newton-Raphson stepper. Each iteration solves
//
//	(J + I/dt)·δ = f(x) - (x - x_old)/dt
//
// where J and f combine the assembly strategy with every zone's own Jacobian
// and right-hand side.
type Implicit struct {
	Assembly AssemblyStrategy
	// Linear solves each Newton system; nil picks a ZoneLinearSolver on the
	// first zone configured by Solver.
	Linear     LinearSolver
	Solver     sparse.SolverConfigurer
	Validation ValidationStrategy
	Modifier   Modifier
	Options    Options
	Logger     *slog.Logger
}

func NewImplicit(opts Options) *Implicit {
	return &Implicit{Options: opts}
}

// Step advances zones by dt. On any failure the zones are restored to their
// pre-step abundances.
func (s *Implicit) Step(zones []*network.Zone, dt float64) (bool, error) {
	if len(zones) == 0 {
		return false, dynamo.ErrNoZones
	}
	if dt < 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return false, fmt.Errorf("implicit step dt = %g: %w", dt, dynamo.ErrInvalidInterval)
	}
	if dt == 0 {
		return true, nil
	}
	if err := s.Options.Validate(); err != nil {
		return false, err
	}
	opts := s.Options.withDefaults()
	log := loggerOr(s.Logger)

	layout, err := LayoutOf(zones)
	if err != nil {
		return false, err
	}
	old, err := Pack(zones)
	if err != nil {
		return false, err
	}
	current := dynamo.Vectors.GetAndCopy(old)
	defer dynamo.Vectors.Put(current)
	saved := saveZones(zones)

	reject := func(result string) (bool, error) {
		restoreZones(zones, saved)
		telemetry.StepAttempts.WithLabelValues(methodImplicit, result).Inc()
		return false, nil
	}

	pool := dynamo.NewPool(opts.Workers)
	jacobians := make([]*sparse.Matrix, len(zones))
	rhs := make([][]float64, len(zones))

	for iter := 1; iter <= opts.MaxNewtonIterations; iter++ {
		a, b, err := s.assembly().Assemble(current, dt)
		if err != nil {
			if errors.Is(err, dynamo.ErrStepRejected) {
				log.Debug("assembly rejected step", "dt", dt, "err", err)
				return reject("rejected")
			}
			_, _ = reject("error")
			return false, fmt.Errorf("assemble implicit system: %w", err)
		}
		if r, c := a.Dims(); r != layout.Size() || c != layout.Size() || len(b) != layout.Size() {
			_, _ = reject("error")
			return false, fmt.Errorf("assembled %dx%d system with rhs %d for full vector %d: %w", r, c, len(b), layout.Size(), dynamo.ErrDimensionMismatch)
		}

		_ = pool.For(context.Background(), len(zones), func(i int) error {
			rhs[i], jacobians[i] = zones[i].Evaluate()
			return nil
		})
		for i := range zones {
			block := layout.Block(i)
			if err := a.Insert(jacobians[i], block, block); err != nil {
				_, _ = reject("error")
				return false, err
			}
			floats.Add(b[block:block+layout.Species], rhs[i])
		}

		a.AddToDiagonal(1 / dt)
		for k := range b {
			b[k] -= (current[k] - old[k]) / dt
		}
		if s.Modifier != nil {
			s.Modifier.Modify(a, b)
		}

		delta, err := s.linear(zones).Solve(a, b)
		if err != nil {
			_, _ = reject("error")
			return false, fmt.Errorf("implicit solve: %w", err)
		}
		if delta == nil {
			log.Debug("sparse solve did not converge", "dt", dt, "iteration", iter)
			return reject("no_solution")
		}

		floats.Add(current, delta)
		if err := Unpack(current, zones, FieldAbundances); err != nil {
			_, _ = reject("error")
			return false, err
		}

		check := floats.Norm(delta, 2)
		if norm := floats.Norm(current, 2); norm > 0 {
			check /= norm
		}
		log.Debug("newton iteration", "dt", dt, "iteration", iter, "check", check)
		if check < opts.NewtonTolerance {
			telemetry.NewtonIterations.Observe(float64(iter))
			if !s.validation().Validate(zones) {
				log.Debug("validation rejected step", "dt", dt)
				return reject("invalid")
			}
			telemetry.StepAttempts.WithLabelValues(methodImplicit, "ok").Inc()
			return true, nil
		}
	}

	log.Debug("newton iteration diverged", "dt", dt, "iterations", opts.MaxNewtonIterations)
	return reject("diverged")
}

func (s *Implicit) assembly() AssemblyStrategy {
	if s.Assembly != nil {
		return s.Assembly
	}
	return NoCoupling{}
}

func (s *Implicit) validation() ValidationStrategy {
	if s.Validation != nil {
		return s.Validation
	}
	return AcceptAll{}
}

func (s *Implicit) linear(zones []*network.Zone) LinearSolver {
	if s.Linear != nil {
		return s.Linear
	}
	return ZoneLinearSolver{Zone: zones[0], Config: s.solver(zones), Logger: s.Logger}
}

func (s *Implicit) solver(zones []*network.Zone) sparse.SolverConfigurer {
	if s.Solver != nil {
		return s.Solver
	}
	return ZoneSolverConfig{Zone: zones[0], Logger: s.Logger}
}
