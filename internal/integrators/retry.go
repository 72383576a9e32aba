package integrators

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/stiffnet/internal/dynamo"
	"github.com/san-kum/stiffnet/internal/network"
	"github.com/san-kum/stiffnet/internal/telemetry"
	"gonum.org/v1/gonum/floats"
)

// IntegrationError reports an interval the retry controller could not cover.
type IntegrationError struct {
	Labels   [][3]string
	Interval float64
	Reached  float64
	MinStep  float64
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("integration of zones %v over %g stopped at %g: sub-step below %g", e.Labels, e.Interval, e.Reached, e.MinStep)
}

func (e *IntegrationError) Unwrap() error {
	return dynamo.ErrStepTooSmall
}

// Attempt is one stepper invocation made by the retry controller.
type Attempt struct {
	Dt float64
	OK bool
}

type RetryStats struct {
	Attempts  []Attempt
	Committed []float64
}

func (s *RetryStats) Failures() int {
	n := 0
	for _, a := range s.Attempts {
		if !a.OK {
			n++
		}
	}
	return n
}

// Retry covers an interval with an inner stepper, shrinking the sub-step
// after failures and growing it after successes.
type Retry struct {
	Stepper Stepper
	Options Options
	Logger  *slog.Logger
}

func NewRetry(stepper Stepper, opts Options) *Retry {
	return &Retry{Stepper: stepper, Options: opts}
}

// Evolve advances zones over dt. The full interval is tried first and halved
// (by ShrinkFactor) until a step succeeds. The same sub-step is then tried
// again, growing by GrowthFactor after each success and shrinking by it
// after each failure, until the interval is covered. The net change of each
// zone is stored as its abundance changes.
func (r *Retry) Evolve(zones []*network.Zone, dt float64) (*RetryStats, error) {
	if len(zones) == 0 {
		return nil, dynamo.ErrNoZones
	}
	if dt < 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return nil, fmt.Errorf("evolve dt = %g: %w", dt, dynamo.ErrInvalidInterval)
	}
	if err := r.Options.Validate(); err != nil {
		return nil, err
	}
	opts := r.Options.withDefaults()
	log := loggerOr(r.Logger)
	stats := &RetryStats{}

	before, err := Pack(zones)
	if err != nil {
		return nil, err
	}

	// the exponential stepper records its own sub-steps
	_, exponential := r.Stepper.(*Exponential)
	attempt := func(sub float64) (bool, error) {
		ok, err := r.Stepper.Step(zones, sub)
		stats.Attempts = append(stats.Attempts, Attempt{Dt: sub, OK: ok && err == nil})
		if ok && err == nil {
			stats.Committed = append(stats.Committed, sub)
			if !exponential {
				telemetry.SubStepSize.WithLabelValues(methodImplicit).Observe(sub)
			}
		}
		return ok, err
	}
	floor := opts.minStep(dt)
	exhausted := func(reached, sub float64) error {
		labels := make([][3]string, len(zones))
		for i, z := range zones {
			labels[i] = z.Labels()
		}
		telemetry.RetryExhausted.Inc()
		log.Error("sub-step fell below minimum", "zones", labels, "interval", dt, "reached", reached, "sub_step", sub)
		return &IntegrationError{Labels: labels, Interval: dt, Reached: reached, MinStep: floor}
	}

	if dt > 0 {
		sub := dt
		for {
			ok, err := attempt(sub)
			if err != nil {
				return stats, err
			}
			if ok {
				break
			}
			sub /= opts.ShrinkFactor
			log.Debug("shrinking sub-step", "sub_step", sub, "interval", dt)
			if sub < floor {
				return stats, exhausted(0, sub)
			}
		}

		cum := sub
		for cum < dt && !dynamo.WithinEpsilon(cum, dt, opts.Epsilon) {
			sub = math.Min(sub, dt-cum)
			ok, err := attempt(sub)
			if err != nil {
				return stats, err
			}
			if ok {
				cum += sub
				sub *= opts.GrowthFactor
				continue
			}
			sub /= opts.GrowthFactor
			log.Debug("sub-step failed", "sub_step", sub, "t", cum, "interval", dt)
			if sub < floor {
				return stats, exhausted(cum, sub)
			}
		}
	}

	after, err := Pack(zones)
	if err != nil {
		return stats, err
	}
	floats.Sub(after, before)
	if err := Unpack(after, zones, FieldAbundanceChanges); err != nil {
		return stats, err
	}
	return stats, nil
}

// EvolveIndependent runs the retry controller over independent zone groups
// concurrently. Each group gets its own controller from newRetry. Results
// are indexed like groups; the first error cancels groups not yet started.
func EvolveIndependent(ctx context.Context, groups [][]*network.Zone, dt float64, workers int, newRetry func() *Retry) ([]*RetryStats, error) {
	stats := make([]*RetryStats, len(groups))
	err := dynamo.NewPool(workers).For(ctx, len(groups), func(i int) error {
		s, err := newRetry().Evolve(groups[i], dt)
		stats[i] = s
		return err
	})
	return stats, err
}
