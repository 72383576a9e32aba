package config

import "slices"

func preset(method string, mutate func(*Config)) *Config {
	cfg := DefaultConfig()
	cfg.Method = method
	mutate(cfg)
	return cfg
}

// Presets holds named tunings per integration method.
var Presets = map[string]map[string]*Config{
	MethodImplicit: {
		"default": preset(MethodImplicit, func(*Config) {}),
		"tight": preset(MethodImplicit, func(c *Config) {
			c.Retry.NewtonTolerance = 1e-8
			c.Retry.MaxNewtonIterations = 20
			c.Solver.RelativeTolerance = 1e-12
			c.Solver.ILUFill = 4
		}),
		"stiff": preset(MethodImplicit, func(c *Config) {
			c.Solver.Method = "bicgstab"
			c.Solver.MaxIterations = 5000
			c.Solver.ILUFill = 8
			c.Retry.ShrinkFactor = 4
			c.Retry.GrowthFactor = 1.2
			c.Validation = ValidationNonNegative
		}),
		"fast": preset(MethodImplicit, func(c *Config) {
			c.Retry.NewtonTolerance = 1e-3
			c.Retry.MaxNewtonIterations = 5
			c.Retry.GrowthFactor = 2
			c.Solver.RelativeTolerance = 1e-8
			c.Solver.ILUFill = 0
		}),
	},
	MethodExponential: {
		"default": preset(MethodExponential, func(*Config) {}),
		"accurate": preset(MethodExponential, func(c *Config) {
			c.Exponential.Workspace = 50
			c.Exponential.Tolerance = 1e-13
			c.Exponential.MaxIterations = 100000
		}),
		"strict": preset(MethodExponential, func(c *Config) {
			c.Retry.FailOnIterationLimit = true
			c.Validation = ValidationNonNegative
		}),
	},
}

func GetPreset(method, name string) *Config {
	methodPresets, ok := Presets[method]
	if !ok {
		return nil
	}
	cfg, ok := methodPresets[name]
	if !ok {
		return nil
	}
	return cfg
}

// ListPresets returns the preset names for method in sorted order.
func ListPresets(method string) []string {
	methodPresets, ok := Presets[method]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(methodPresets))
	for name := range methodPresets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
