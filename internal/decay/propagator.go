package decay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/stiffnet/internal/compute"
	"github.com/san-kum/stiffnet/internal/dynamo"
	"github.com/san-kum/stiffnet/internal/expm"
	"github.com/san-kum/stiffnet/internal/network"
	"github.com/san-kum/stiffnet/internal/sparse"
	"github.com/san-kum/stiffnet/internal/telemetry"
	"gonum.org/v1/gonum/floats"
)

const (
	DefaultReferenceT9      = 1e-10
	DefaultReferenceRho     = 1e-10
	DefaultMaxIterations    = 1000
	DefaultMassFloor        = 1e-20
	DefaultExpMaxIterations = 100000
	DefaultZeroNorm         = 1e-300
	DefaultAbundanceFloor   = 0.0
)

type Options struct {
	// ReferenceT9 and ReferenceRho are the conditions decay rates are
	// evaluated at.
	ReferenceT9  float64
	ReferenceRho float64
	// MaxIterations caps the feed-matrix generations followed when pushing
	// to daughters.
	MaxIterations int
	// MassFloor is the smallest final mass fraction counted towards the
	// radioactive mass property.
	MassFloor float64
	// ZeroNorm is the norm below which a generation is treated as empty.
	ZeroNorm float64
	// AbundanceFloor: abundances below it are zeroed after DecayAbundances.
	AbundanceFloor   float64
	ExpMaxIterations int
	Workers          int
}

func DefaultOptions() Options {
	return Options{
		ReferenceT9:      DefaultReferenceT9,
		ReferenceRho:     DefaultReferenceRho,
		MaxIterations:    DefaultMaxIterations,
		MassFloor:        DefaultMassFloor,
		ZeroNorm:         DefaultZeroNorm,
		AbundanceFloor:   DefaultAbundanceFloor,
		ExpMaxIterations: DefaultExpMaxIterations,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReferenceT9 == 0 {
		o.ReferenceT9 = d.ReferenceT9
	}
	if o.ReferenceRho == 0 {
		o.ReferenceRho = d.ReferenceRho
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.MassFloor == 0 {
		o.MassFloor = d.MassFloor
	}
	if o.ZeroNorm == 0 {
		o.ZeroNorm = d.ZeroNorm
	}
	if o.ExpMaxIterations == 0 {
		o.ExpMaxIterations = d.ExpMaxIterations
	}
	return o
}

// Propagator applies decays to every zone of a model in parallel.
type Propagator struct {
	Options Options
	Backend compute.Backend
	Logger  *slog.Logger
}

func NewPropagator(opts Options) *Propagator {
	return &Propagator{Options: opts}
}

func (p *Propagator) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// PushToDaughters moves the mass of every unstable species in each zone to
// its stable descendants. Each zone's "radioactive mass" property is set to
// the mass fraction that arrived in stable species.
func (p *Propagator) PushToDaughters(ctx context.Context, model *network.Model, cutoff float64, filter network.ReactionFilter) error {
	opts := p.Options.withDefaults()
	if opts.MaxIterations < 0 {
		return fmt.Errorf("push iterations %d: %w", opts.MaxIterations, dynamo.ErrInvalidConfig)
	}
	m := BuildMatrices(model.Network(), filter, cutoff, opts.ReferenceT9, opts.ReferenceRho)
	zones := model.Zones()

	return dynamo.NewPool(opts.Workers).For(ctx, len(zones), func(i int) error {
		z := zones[i]
		x := z.MassFractions()
		total := append([]float64(nil), x...)
		generation := append([]float64(nil), x...)

		iterations := 0
		for iterations < opts.MaxIterations {
			iterations++
			next := m.Feed.MulVec(generation)
			floats.Add(total, next)
			generation = next
			if floats.Norm(generation, 2) < opts.ZeroNorm {
				break
			}
		}
		telemetry.DecayPushIterations.Observe(float64(iterations))
		if iterations == opts.MaxIterations && floats.Norm(generation, 2) >= opts.ZeroNorm {
			p.logger().Warn("decay push hit iteration cap", "zone", z.String(), "iterations", iterations)
		}

		final := m.Stable.MulVec(total)
		mass := 0.0
		for j, c := range final {
			if c > opts.MassFloor {
				mass += c - x[j]
			}
		}
		z.SetFloatProperty(network.PropRadioactiveMass, mass)
		return z.SetMassFractions(final)
	})
}

// DecayAbundances evolves every zone over dt under the decays selected by
// filter, evaluated at the reference conditions on the first zone's
// abundances. A zone for which the exponential yields no solution is an
// error.
func (p *Propagator) DecayAbundances(ctx context.Context, model *network.Model, dt float64, filter network.ReactionFilter, debug bool) error {
	if dt < 0 {
		return fmt.Errorf("decay over %g: %w", dt, dynamo.ErrInvalidInterval)
	}
	zones := model.Zones()
	if len(zones) == 0 {
		return nil
	}
	opts := p.Options.withDefaults()
	net := model.Network()

	reactions := net.Filter(filter)
	rates := network.Rates(reactions, opts.ReferenceT9, opts.ReferenceRho)
	_, jac := net.Evaluate(reactions, rates, zones[0].Abundances(), opts.ReferenceRho)
	if jac.NonZero() == 0 {
		return nil
	}
	jac.Scale(-1)

	backend := p.Backend
	if backend == nil {
		backend = compute.GetBackend()
	}
	op, err := compute.NewSumOperator(backend, []*sparse.Matrix{jac})
	if err != nil {
		return err
	}

	return dynamo.NewPool(opts.Workers).For(ctx, len(zones), func(i int) error {
		z := zones[i]
		phi := expm.New()
		phi.MaxIterations = opts.ExpMaxIterations
		phi.Debug = debug
		phi.Logger = p.Logger

		y, err := phi.Solve(op, z.Abundances(), nil, dt)
		if err != nil {
			return &dynamo.ZoneError{Labels: z.Labels(), Wrapped: fmt.Errorf("decay over %g: %w: %w", dt, dynamo.ErrNoSolution, err)}
		}
		if err := z.SetAbundances(y); err != nil {
			return err
		}
		z.ZeroOutSmall(opts.AbundanceFloor)
		if debug {
			p.logger().Info("decayed zone", "zone", z.String(), "dt", dt)
		}
		return nil
	})
}
