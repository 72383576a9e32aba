package integrators

import (
	"fmt"
	"log/slog"

	"github.com/san-kum/stiffnet/internal/dynamo"
)

const (
	DefaultNewtonTolerance     = 1e-4
	DefaultMaxNewtonIterations = 10
	DefaultShrinkFactor        = 2.0
	DefaultGrowthFactor        = 1.5
	DefaultEpsilon             = 1e-10
	DefaultMinStepRatio        = 1e-12
	DefaultMaxShrinks          = 50
)

// Options holds the tuning shared by the steppers and the retry controller.
// Zero fields take their defaults.
type Options struct {
	NewtonTolerance     float64
	MaxNewtonIterations int
	ShrinkFactor        float64
	GrowthFactor        float64
	// Epsilon is the relative tolerance used to decide that accumulated
	// sub-steps cover the requested interval.
	Epsilon float64
	// MinStep is the absolute sub-step floor of the retry controller. When
	// zero the floor is MinStepRatio times the interval.
	MinStep      float64
	MinStepRatio float64
	// MaxShrinks caps consecutive sub-step reductions in the exponential
	// stepper.
	MaxShrinks int
	// FailOnIterationLimit makes an exhausted Krylov budget a fatal error
	// instead of a shrink.
	FailOnIterationLimit bool
	// Workers limits per-zone parallelism; zero means one per CPU.
	Workers int
}

func DefaultOptions() Options {
	return Options{
		NewtonTolerance:     DefaultNewtonTolerance,
		MaxNewtonIterations: DefaultMaxNewtonIterations,
		ShrinkFactor:        DefaultShrinkFactor,
		GrowthFactor:        DefaultGrowthFactor,
		Epsilon:             DefaultEpsilon,
		MinStepRatio:        DefaultMinStepRatio,
		MaxShrinks:          DefaultMaxShrinks,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.NewtonTolerance == 0 {
		o.NewtonTolerance = d.NewtonTolerance
	}
	if o.MaxNewtonIterations == 0 {
		o.MaxNewtonIterations = d.MaxNewtonIterations
	}
	if o.ShrinkFactor == 0 {
		o.ShrinkFactor = d.ShrinkFactor
	}
	if o.GrowthFactor == 0 {
		o.GrowthFactor = d.GrowthFactor
	}
	if o.Epsilon == 0 {
		o.Epsilon = d.Epsilon
	}
	if o.MinStepRatio == 0 {
		o.MinStepRatio = d.MinStepRatio
	}
	if o.MaxShrinks == 0 {
		o.MaxShrinks = d.MaxShrinks
	}
	return o
}

// Validate reports tuning values outside their valid range.
func (o Options) Validate() error {
	o = o.withDefaults()
	switch {
	case o.NewtonTolerance < 0:
		return fmt.Errorf("newton tolerance %g: %w", o.NewtonTolerance, dynamo.ErrInvalidConfig)
	case o.MaxNewtonIterations < 0:
		return fmt.Errorf("max newton iterations %d: %w", o.MaxNewtonIterations, dynamo.ErrInvalidConfig)
	case o.ShrinkFactor <= 1:
		return fmt.Errorf("shrink factor %g must exceed 1: %w", o.ShrinkFactor, dynamo.ErrInvalidConfig)
	case o.GrowthFactor <= 1:
		return fmt.Errorf("growth factor %g must exceed 1: %w", o.GrowthFactor, dynamo.ErrInvalidConfig)
	case o.Epsilon < 0 || o.MinStep < 0 || o.MinStepRatio < 0:
		return fmt.Errorf("epsilon %g, min step %g, min step ratio %g: %w", o.Epsilon, o.MinStep, o.MinStepRatio, dynamo.ErrInvalidConfig)
	case o.MaxShrinks < 0 || o.Workers < 0:
		return fmt.Errorf("max shrinks %d, workers %d: %w", o.MaxShrinks, o.Workers, dynamo.ErrInvalidConfig)
	}
	return nil
}

func (o Options) minStep(interval float64) float64 {
	if o.MinStep > 0 {
		return o.MinStep
	}
	return interval * o.MinStepRatio
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
