package integrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/stiffnet/internal/compute"
	"github.com/san-kum/stiffnet/internal/dynamo"
	"github.com/san-kum/stiffnet/internal/expm"
	"github.com/san-kum/stiffnet/internal/network"
	"github.com/san-kum/stiffnet/internal/sparse"
	"github.com/san-kum/stiffnet/internal/telemetry"
)

const methodExponential = "exponential"

// Exponential advances zones with the exact solution of the linearized
// system dx/dt = (Σ M_i)·x + c, where each M_i holds zone i's negated
// Jacobian plus the inter-zone terms from the matrix strategy.
type Exponential struct {
	Matrices   ExponentialMatrixStrategy
	Constant   ConstantStrategy
	Validation ValidationStrategy
	Solver     *expm.Phi
	Backend    compute.Backend
	Options    Options
	Logger     *slog.Logger
}

func NewExponential(opts Options) *Exponential {
	return &Exponential{Options: opts, Solver: expm.New()}
}

// Step integrates over dt in sub-steps. A sub-step that yields no solution
// or fails validation is retried with a smaller size; after MaxShrinks
// consecutive reductions the step fails and the zones are restored.
func (e *Exponential) Step(zones []*network.Zone, dt float64) (bool, error) {
	if len(zones) == 0 {
		return false, dynamo.ErrNoZones
	}
	if dt < 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return false, fmt.Errorf("exponential step dt = %g: %w", dt, dynamo.ErrInvalidInterval)
	}
	if dt == 0 {
		return true, nil
	}
	if err := e.Options.Validate(); err != nil {
		return false, err
	}
	opts := e.Options.withDefaults()
	log := loggerOr(e.Logger)

	layout, err := LayoutOf(zones)
	if err != nil {
		return false, err
	}
	matrices, err := e.matrixStrategy().Matrices(zones)
	if err != nil {
		return false, fmt.Errorf("exponential matrices: %w", err)
	}
	if len(matrices) != len(zones) {
		return false, fmt.Errorf("%d matrices for %d zones: %w", len(matrices), len(zones), dynamo.ErrDimensionMismatch)
	}

	pool := dynamo.NewPool(opts.Workers)
	err = pool.For(context.Background(), len(zones), func(i int) error {
		jac := zones[i].Jacobian()
		jac.Scale(-1)
		block := layout.Block(i)
		return matrices[i].Insert(jac, block, block)
	})
	if err != nil {
		return false, err
	}

	constant, err := e.constantStrategy().Constant(zones)
	if err != nil {
		return false, fmt.Errorf("exponential constant: %w", err)
	}
	if len(constant) != layout.Size() {
		return false, fmt.Errorf("constant of length %d for full vector %d: %w", len(constant), layout.Size(), dynamo.ErrDimensionMismatch)
	}

	op, err := compute.NewSumOperator(e.backend(opts), matrices)
	if err != nil {
		return false, err
	}

	start, err := Pack(zones)
	if err != nil {
		return false, err
	}
	prev := start
	saved := saveZones(zones)
	phi := e.phi()

	sub, cum := dt, 0.0
	shrinks := 0
	for cum < dt && !dynamo.WithinEpsilon(cum, dt, opts.Epsilon) {
		sol, err := phi.Solve(op, prev, constant, sub)
		if err != nil {
			if !errors.Is(err, expm.ErrIterationLimit) || opts.FailOnIterationLimit {
				restoreZones(zones, saved)
				telemetry.StepAttempts.WithLabelValues(methodExponential, "error").Inc()
				return false, fmt.Errorf("exponential sub-step %g at t = %g: %w", sub, cum, err)
			}
			log.Warn("krylov iteration limit reached", "sub_step", sub, "t", cum)
			sol = nil
		}

		accepted := false
		if sol != nil {
			if err := Unpack(sol, zones, FieldAbundances); err != nil {
				restoreZones(zones, saved)
				return false, err
			}
			accepted = e.validation().Validate(zones)
		}
		if !accepted {
			if err := Unpack(prev, zones, FieldAbundances); err != nil {
				restoreZones(zones, saved)
				return false, err
			}
			shrinks++
			if shrinks > opts.MaxShrinks {
				log.Debug("exponential step failed", "dt", dt, "reached", cum, "shrinks", shrinks)
				restoreZones(zones, saved)
				telemetry.StepAttempts.WithLabelValues(methodExponential, "exhausted").Inc()
				return false, nil
			}
			sub /= opts.ShrinkFactor
			log.Debug("exponential sub-step rejected", "sub_step", sub, "t", cum)
			continue
		}

		shrinks = 0
		cum += sub
		prev = sol
		telemetry.SubStepSize.WithLabelValues(methodExponential).Observe(sub)
		log.Debug("exponential sub-step committed", "t", cum, "dt", dt)
		sub = dt - cum
	}

	telemetry.StepAttempts.WithLabelValues(methodExponential, "ok").Inc()
	return true, nil
}

func (e *Exponential) matrixStrategy() ExponentialMatrixStrategy {
	if e.Matrices != nil {
		return e.Matrices
	}
	return NoCoupling{}
}

func (e *Exponential) constantStrategy() ConstantStrategy {
	if e.Constant != nil {
		return e.Constant
	}
	return ZeroConstant{}
}

func (e *Exponential) validation() ValidationStrategy {
	if e.Validation != nil {
		return e.Validation
	}
	return AcceptAll{}
}

func (e *Exponential) backend(opts Options) compute.Backend {
	if e.Backend != nil {
		return e.Backend
	}
	if opts.Workers > 0 {
		return compute.NewCPUBackend(opts.Workers)
	}
	return compute.GetBackend()
}

func (e *Exponential) phi() *expm.Phi {
	if e.Solver != nil {
		return e.Solver
	}
	return expm.New()
}

var _ Stepper = (*Exponential)(nil)
var _ Stepper = (*Implicit)(nil)
var _ sparse.SolverConfigurer = ZoneSolverConfig{}
