package config

import (
	"fmt"
	"os"

	"github.com/san-kum/stiffnet/internal/dynamo"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMethod           = "implicit"
	DefaultDt               = 1.0
	DefaultDuration         = 10.0
	DefaultSolverMethod     = "gmres"
	DefaultSolverIterations = 1000
	DefaultRelTolerance     = 1e-10
	DefaultRestart          = 30
	DefaultILUFill          = 1
	DefaultNewtonTolerance  = 1e-4
	DefaultNewtonIterations = 10
	DefaultShrinkFactor     = 2.0
	DefaultGrowthFactor     = 1.5
	DefaultEpsilon          = 1e-10
	DefaultMinStepRatio     = 1e-12
	DefaultMaxShrinks       = 50
	DefaultKrylovWorkspace  = 30
	DefaultKrylovTolerance  = 1e-10
	DefaultKrylovIterations = 10000
	DefaultDecayIterations  = 1000
	DefaultDecayExpIter     = 100000
	DefaultMassFloor        = 1e-20
	DefaultDataDir          = "runs"
)

// Integration methods.
const (
	MethodImplicit    = "implicit"
	MethodExponential = "exponential"
)

// Validation strategies.
const (
	ValidationNone        = "none"
	ValidationNonNegative = "non_negative"
)

type Config struct {
	Network     string            `yaml:"network"`
	Zones       string            `yaml:"zones"`
	Method      string            `yaml:"method"`
	Dt          float64           `yaml:"dt"`
	Duration    float64           `yaml:"duration"`
	Workers     int               `yaml:"workers"`
	Validation  string            `yaml:"validation"`
	DataDir     string            `yaml:"data_dir"`
	Solver      SolverConfig      `yaml:"solver"`
	Retry       RetryConfig       `yaml:"retry"`
	Exponential ExponentialConfig `yaml:"exponential"`
	Decay       DecayConfig       `yaml:"decay"`
}

// SolverConfig tunes the sparse solver of the implicit method. With
// FromZone set the settings are read from the first zone's properties
// instead.
type SolverConfig struct {
	FromZone          bool    `yaml:"from_zone"`
	Method            string  `yaml:"method"`
	MaxIterations     int     `yaml:"max_iterations"`
	RelativeTolerance float64 `yaml:"relative_tolerance"`
	AbsoluteTolerance float64 `yaml:"absolute_tolerance"`
	Convergence       string  `yaml:"convergence"`
	Restart           int     `yaml:"restart"`
	ILUFill           int     `yaml:"ilu_fill"`
	ILUDropTolerance  float64 `yaml:"ilu_drop_tolerance"`
	Debug             bool    `yaml:"debug"`
}

type RetryConfig struct {
	NewtonTolerance      float64 `yaml:"newton_tolerance"`
	MaxNewtonIterations  int     `yaml:"max_newton_iterations"`
	ShrinkFactor         float64 `yaml:"shrink_factor"`
	GrowthFactor         float64 `yaml:"growth_factor"`
	Epsilon              float64 `yaml:"epsilon"`
	MinStep              float64 `yaml:"min_step"`
	MinStepRatio         float64 `yaml:"min_step_ratio"`
	MaxShrinks           int     `yaml:"max_shrinks"`
	FailOnIterationLimit bool    `yaml:"fail_on_iteration_limit"`
}

type ExponentialConfig struct {
	Workspace     int     `yaml:"workspace"`
	Tolerance     float64 `yaml:"tolerance"`
	MaxIterations int     `yaml:"max_iterations"`
	Debug         bool    `yaml:"debug"`
}

type DecayConfig struct {
	Cutoff           float64 `yaml:"cutoff"`
	MaxIterations    int     `yaml:"max_iterations"`
	MassFloor        float64 `yaml:"mass_floor"`
	AbundanceFloor   float64 `yaml:"abundance_floor"`
	ExpMaxIterations int     `yaml:"exp_max_iterations"`
}

func DefaultConfig() *Config {
	return &Config{
		Method:     DefaultMethod,
		Dt:         DefaultDt,
		Duration:   DefaultDuration,
		Validation: ValidationNone,
		DataDir:    DefaultDataDir,
		Solver: SolverConfig{
			Method:            DefaultSolverMethod,
			MaxIterations:     DefaultSolverIterations,
			RelativeTolerance: DefaultRelTolerance,
			Convergence:       "relative",
			Restart:           DefaultRestart,
			ILUFill:           DefaultILUFill,
		},
		Retry: RetryConfig{
			NewtonTolerance:     DefaultNewtonTolerance,
			MaxNewtonIterations: DefaultNewtonIterations,
			ShrinkFactor:        DefaultShrinkFactor,
			GrowthFactor:        DefaultGrowthFactor,
			Epsilon:             DefaultEpsilon,
			MinStepRatio:        DefaultMinStepRatio,
			MaxShrinks:          DefaultMaxShrinks,
		},
		Exponential: ExponentialConfig{
			Workspace:     DefaultKrylovWorkspace,
			Tolerance:     DefaultKrylovTolerance,
			MaxIterations: DefaultKrylovIterations,
		},
		Decay: DecayConfig{
			MaxIterations:    DefaultDecayIterations,
			MassFloor:        DefaultMassFloor,
			ExpMaxIterations: DefaultDecayExpIter,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the run parameters. Solver and retry tunings are checked
// again by the components that use them.
func (c *Config) Validate() error {
	switch c.Method {
	case MethodImplicit, MethodExponential:
	default:
		return fmt.Errorf("method %q: %w", c.Method, dynamo.ErrInvalidConfig)
	}
	switch c.Validation {
	case "", ValidationNone, ValidationNonNegative:
	default:
		return fmt.Errorf("validation %q: %w", c.Validation, dynamo.ErrInvalidConfig)
	}
	if c.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %g: %w", c.Dt, dynamo.ErrInvalidConfig)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %g: %w", c.Duration, dynamo.ErrInvalidConfig)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers %d: %w", c.Workers, dynamo.ErrInvalidConfig)
	}
	// zero picks the default; anything else must shrink or grow the sub-step
	if r := c.Retry; r.ShrinkFactor != 0 && r.ShrinkFactor <= 1 || r.GrowthFactor != 0 && r.GrowthFactor <= 1 {
		return fmt.Errorf("retry shrink factor %g, growth factor %g must exceed 1: %w", r.ShrinkFactor, r.GrowthFactor, dynamo.ErrInvalidConfig)
	}
	if !c.Solver.FromZone && c.Method == MethodImplicit && c.Solver.Method == "" {
		return fmt.Errorf("solver: %w", dynamo.ErrNoSolverMethod)
	}
	return nil
}
