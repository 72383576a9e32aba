// Package experiment drives a model through a configured run, recording
// abundance snapshots and metrics after each interval.
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/stiffnet/internal/config"
	"github.com/san-kum/stiffnet/internal/dynamo"
	"github.com/san-kum/stiffnet/internal/integrators"
	"github.com/san-kum/stiffnet/internal/metrics"
	"github.com/san-kum/stiffnet/internal/network"
)

// Progress describes a run after a committed interval. Zones are live;
// observers that hand them to another goroutine must copy them first.
type Progress struct {
	T, Duration float64
	Attempts    int
	Failures    int
	Zones       []*network.Zone
}

// Observer is called after every committed interval.
type Observer func(p Progress)

type Result struct {
	Species []string
	Zones   [][3]string
	Times   []float64
	// Abundances is indexed by time, zone, species.
	Abundances [][][]float64
	Metrics    map[string]float64
	Attempts   int
	Failures   int
}

type Experiment struct {
	cfg       *config.Config
	model     *network.Model
	registry  *Registry
	metrics   []metrics.Metric
	observers []Observer
	Logger    *slog.Logger
}

func New(cfg *config.Config, model *network.Model) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(model.Zones()) == 0 {
		return nil, dynamo.ErrNoZones
	}
	return &Experiment{cfg: cfg, model: model, registry: NewRegistry()}, nil
}

func (e *Experiment) AddMetric(m metrics.Metric) {
	e.metrics = append(e.metrics, m)
}

func (e *Experiment) AddObserver(o Observer) {
	e.observers = append(e.observers, o)
}

func (e *Experiment) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Run evolves the model over the configured duration in intervals of at
// most cfg.Dt. Context cancellation is checked between intervals.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	log := e.logger()
	zones := e.model.Zones()
	groups := Groups(e.model)

	var links *integrators.Links
	if len(e.model.Links()) > 0 {
		var err error
		if links, err = integrators.NewLinks(zones, e.model.Links()); err != nil {
			return nil, err
		}
	}
	stepper, err := e.registry.GetStepper(e.cfg.Method, e.cfg, links, log)
	if err != nil {
		return nil, err
	}
	newRetry := func() *integrators.Retry {
		r := integrators.NewRetry(stepper, Options(e.cfg))
		r.Logger = log
		return r
	}

	result := &Result{
		Metrics: make(map[string]float64),
	}
	for _, s := range e.model.Network().Species() {
		result.Species = append(result.Species, s.Name)
	}
	for _, z := range zones {
		result.Zones = append(result.Zones, z.Labels())
	}
	for _, m := range e.metrics {
		m.Reset()
	}

	record := func(t float64) {
		snap := make([][]float64, len(zones))
		for i, z := range zones {
			snap[i] = z.Abundances()
		}
		result.Times = append(result.Times, t)
		result.Abundances = append(result.Abundances, snap)
		for _, m := range e.metrics {
			m.Observe(zones, t)
		}
		p := Progress{T: t, Duration: e.cfg.Duration, Attempts: result.Attempts, Failures: result.Failures, Zones: zones}
		for _, o := range e.observers {
			o(p)
		}
	}

	record(0)
	duration := e.cfg.Duration
	t := 0.0
	for t < duration && !dynamo.WithinEpsilon(t, duration, e.cfg.Retry.Epsilon) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		dt := math.Min(e.cfg.Dt, duration-t)
		stats, err := integrators.EvolveIndependent(ctx, groups, dt, e.cfg.Workers, newRetry)
		for _, s := range stats {
			if s == nil {
				continue
			}
			result.Attempts += len(s.Attempts)
			result.Failures += s.Failures()
		}
		if err != nil {
			return result, fmt.Errorf("interval at t = %g: %w", t, err)
		}
		t += dt
		log.Debug("interval committed", "t", t, "dt", dt)
		record(t)
	}

	for _, m := range e.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	return result, nil
}
