package experiment

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/san-kum/stiffnet/internal/config"
	"github.com/san-kum/stiffnet/internal/decay"
	"github.com/san-kum/stiffnet/internal/expm"
	"github.com/san-kum/stiffnet/internal/integrators"
	"github.com/san-kum/stiffnet/internal/network"
	"github.com/san-kum/stiffnet/internal/sparse"
)

// StepperFactory builds a stepper for zones coupled by links. links may be
// nil.
type StepperFactory func(cfg *config.Config, links *integrators.Links, log *slog.Logger) integrators.Stepper

type Registry struct {
	steppers map[string]StepperFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		steppers: make(map[string]StepperFactory),
	}

	r.steppers[config.MethodImplicit] = func(cfg *config.Config, links *integrators.Links, log *slog.Logger) integrators.Stepper {
		s := integrators.NewImplicit(Options(cfg))
		if links != nil {
			s.Assembly = links
		}
		if !cfg.Solver.FromZone {
			s.Solver = SolverConfig(cfg, log)
		}
		s.Validation = Validation(cfg)
		s.Logger = log
		return s
	}
	r.steppers[config.MethodExponential] = func(cfg *config.Config, links *integrators.Links, log *slog.Logger) integrators.Stepper {
		s := integrators.NewExponential(Options(cfg))
		if links != nil {
			s.Matrices = links
		}
		s.Solver = &expm.Phi{
			Workspace:     cfg.Exponential.Workspace,
			Tolerance:     cfg.Exponential.Tolerance,
			MaxIterations: cfg.Exponential.MaxIterations,
			Debug:         cfg.Exponential.Debug,
			Logger:        log,
		}
		s.Validation = Validation(cfg)
		s.Logger = log
		return s
	}

	return r
}

func (r *Registry) GetStepper(method string, cfg *config.Config, links *integrators.Links, log *slog.Logger) (integrators.Stepper, error) {
	fn, ok := r.steppers[method]
	if !ok {
		return nil, fmt.Errorf("unknown method: %s", method)
	}
	return fn(cfg, links, log), nil
}

func (r *Registry) Register(method string, fn StepperFactory) {
	r.steppers[method] = fn
}

func (r *Registry) ListMethods() []string {
	names := make([]string, 0, len(r.steppers))
	for name := range r.steppers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Options converts the retry section of cfg.
func Options(cfg *config.Config) integrators.Options {
	rc := cfg.Retry
	return integrators.Options{
		NewtonTolerance:      rc.NewtonTolerance,
		MaxNewtonIterations:  rc.MaxNewtonIterations,
		ShrinkFactor:         rc.ShrinkFactor,
		GrowthFactor:         rc.GrowthFactor,
		Epsilon:              rc.Epsilon,
		MinStep:              rc.MinStep,
		MinStepRatio:         rc.MinStepRatio,
		MaxShrinks:           rc.MaxShrinks,
		FailOnIterationLimit: rc.FailOnIterationLimit,
		Workers:              cfg.Workers,
	}
}

func SolverConfig(cfg *config.Config, log *slog.Logger) sparse.StaticConfig {
	sc := cfg.Solver
	return sparse.StaticConfig{
		Settings: sparse.Settings{
			Method:            sc.Method,
			MaxIterations:     sc.MaxIterations,
			RelativeTolerance: sc.RelativeTolerance,
			AbsoluteTolerance: sc.AbsoluteTolerance,
			Convergence:       sc.Convergence,
			Restart:           sc.Restart,
			Debug:             sc.Debug,
			Logger:            log,
		},
		ILU: sparse.ILUParams{Fill: sc.ILUFill, DropTolerance: sc.ILUDropTolerance},
	}
}

func Validation(cfg *config.Config) integrators.ValidationStrategy {
	if cfg.Validation == config.ValidationNonNegative {
		return integrators.NonNegative{Tolerance: cfg.Retry.Epsilon}
	}
	return integrators.AcceptAll{}
}

// DecayOptions converts the decay section of cfg.
func DecayOptions(cfg *config.Config) decay.Options {
	dc := cfg.Decay
	opts := decay.DefaultOptions()
	if dc.MaxIterations > 0 {
		opts.MaxIterations = dc.MaxIterations
	}
	if dc.MassFloor > 0 {
		opts.MassFloor = dc.MassFloor
	}
	if dc.ExpMaxIterations > 0 {
		opts.ExpMaxIterations = dc.ExpMaxIterations
	}
	opts.AbundanceFloor = dc.AbundanceFloor
	opts.Workers = cfg.Workers
	return opts
}

// Groups splits zones into independently evolvable groups: a single group
// when any links exist, one group per zone otherwise.
func Groups(model *network.Model) [][]*network.Zone {
	zones := model.Zones()
	if len(model.Links()) > 0 {
		return [][]*network.Zone{zones}
	}
	groups := make([][]*network.Zone, len(zones))
	for i, z := range zones {
		groups[i] = []*network.Zone{z}
	}
	return groups
}
