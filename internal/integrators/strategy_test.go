package integrators

import (
	"testing"

	"github.com/san-kum/stiffnet/internal/dynamo"
	"github.com/san-kum/stiffnet/internal/network"
	"github.com/san-kum/stiffnet/internal/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZoneSolverConfigReadsProperties(t *testing.T) {
	z := newZone(t, decayNetwork(t, 1), "0")
	z.SetProperty(PropSolver, "bcgstab")
	z.SetProperty(PropSolverMaxIter, "250")
	z.SetProperty(PropSolverRelTol, "1e-8")
	z.SetProperty(PropSolverConvergence, sparse.ConvergenceRelative)
	z.SetProperty(PropSolverDebug, "yes")
	z.SetProperty(PropILUDelta, "3")
	z.SetProperty(PropILUDropTol, "1e-4")

	s := sparse.DefaultSettings()
	ilu, err := ZoneSolverConfig{Zone: z}.Configure(&s)
	require.NoError(t, err)
	assert.Equal(t, "bcgstab", s.Method)
	assert.Equal(t, 250, s.MaxIterations)
	assert.Equal(t, 1e-8, s.RelativeTolerance)
	assert.True(t, s.Debug)
	assert.Equal(t, sparse.ILUParams{Fill: 3, DropTolerance: 1e-4}, ilu)
}

func TestZoneSolverConfigDefaults(t *testing.T) {
	z := newZone(t, decayNetwork(t, 1), "0")
	s := sparse.DefaultSettings()
	ilu, err := ZoneSolverConfig{Zone: z}.Configure(&s)
	require.NoError(t, err)
	assert.Equal(t, sparse.DefaultILUParams(), ilu)
	assert.Equal(t, sparse.DefaultRelativeTolerance, s.RelativeTolerance)
}

func TestZoneSolverConfigRequiresMethod(t *testing.T) {
	z := network.NewZone(decayNetwork(t, 1), "0")
	s := sparse.DefaultSettings()
	_, err := ZoneSolverConfig{Zone: z}.Configure(&s)
	assert.ErrorIs(t, err, dynamo.ErrNoSolverMethod)

	z.SetProperty(PropSolver, "gmres")
	z.SetProperty(PropILUDelta, "many")
	_, err = ZoneSolverConfig{Zone: z}.Configure(&s)
	assert.Error(t, err)
}

// stalledConfig lets GMRES take a single restart cycle of length one
// against a diagonal preconditioner, which cannot solve a coupled system.
var stalledConfig = sparse.StaticConfig{
	Settings: sparse.Settings{Method: sparse.MethodGMRES, MaxIterations: 1, Restart: 1},
	ILU:      sparse.ILUParams{DropTolerance: 10},
}

func coupledSystem() (*sparse.Matrix, []float64) {
	a := sparse.New(3, 3)
	a.Set(0, 0, 3)
	a.Set(1, 0, -1)
	a.Set(1, 1, 2)
	a.Set(2, 2, 2)
	return a, []float64{-1, 1, 0}
}

func TestZoneLinearSolverIterativeBelowThreshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold string
		iterative bool
	}{
		{"no threshold", "", true},
		{"cooler than threshold", "2", true},
		{"at threshold", "1", false},
		{"hotter than threshold", "0.5", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z := newZone(t, decayNetwork(t, 1), "0")
			if tt.threshold != "" {
				z.SetProperty(PropSolverT9, tt.threshold)
			}
			calls := 0
			cfg := sparse.ConfigFunc(func(s *sparse.Settings) (sparse.ILUParams, error) {
				calls++
				s.Method = sparse.MethodGMRES
				return sparse.DefaultILUParams(), nil
			})

			a, b := coupledSystem()
			x, err := ZoneLinearSolver{Zone: z, Config: cfg}.Solve(a, b)
			require.NoError(t, err)
			assert.InDeltaSlice(t, []float64{-1.0 / 3, 1.0 / 3, 0}, x, 1e-9)
			assert.Equal(t, tt.iterative, calls == 1)
		})
	}
}

func TestZoneLinearSolverFallsBackToDirect(t *testing.T) {
	a, b := coupledSystem()
	x, err := sparse.SolveWithPreconditioner(a, b, stalledConfig)
	require.NoError(t, err)
	require.Nil(t, x, "the stalled configuration should not converge")

	z := newZone(t, decayNetwork(t, 1), "0")
	x, err = ZoneLinearSolver{Zone: z, Config: stalledConfig}.Solve(a, b)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-1.0 / 3, 1.0 / 3, 0}, x, 1e-12)
}

func TestZoneLinearSolverBadThreshold(t *testing.T) {
	z := newZone(t, decayNetwork(t, 1), "0")
	z.SetProperty(PropSolverT9, "warm")
	a, b := coupledSystem()
	_, err := ZoneLinearSolver{Zone: z}.Solve(a, b)
	assert.Error(t, err)
}

func TestImplicitStepUsesDirectFallback(t *testing.T) {
	z := newZone(t, decayNetwork(t, 1), "0", 1)
	s := NewImplicit(DefaultOptions())
	s.Solver = stalledConfig

	ok, err := s.Step([]*network.Zone{z}, 0.5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 1/1.5, z.Abundances()[0], 1e-9)
}

func TestImplicitHotZoneSkipsIterativeSolver(t *testing.T) {
	hot := newZone(t, decayNetwork(t, 1), "0", 1)
	hot.RemoveProperty(PropSolver)
	hot.SetProperty(PropSolverT9, "0.5")

	ok, err := NewImplicit(DefaultOptions()).Step([]*network.Zone{hot}, 0.5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 1/1.5, hot.Abundances()[0], 1e-9)

	cold := newZone(t, decayNetwork(t, 1), "1", 1)
	cold.RemoveProperty(PropSolver)
	cold.SetProperty(PropSolverT9, "2")
	_, err = NewImplicit(DefaultOptions()).Step([]*network.Zone{cold}, 0.5)
	assert.ErrorIs(t, err, dynamo.ErrNoSolverMethod)
}

func TestNonNegative(t *testing.T) {
	net := decayNetwork(t, 1)
	good := newZone(t, net, "0", 0.5, 0, 1e-30)
	bad := newZone(t, net, "1", 0.5, -1e-3)

	assert.True(t, NonNegative{}.Validate([]*network.Zone{good}))
	assert.False(t, NonNegative{}.Validate([]*network.Zone{good, bad}))
	assert.True(t, NonNegative{Tolerance: 1e-2}.Validate([]*network.Zone{bad}))
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		ok   bool
	}{
		{"zero value", Options{}, true},
		{"defaults", DefaultOptions(), true},
		{"shrink of one", Options{ShrinkFactor: 1}, false},
		{"growth below one", Options{GrowthFactor: 0.5}, false},
		{"growth of one", Options{GrowthFactor: 1}, false},
		{"negative min step", Options{MinStep: -1}, false},
	}
	for _, tt := range tests {
		err := tt.opts.Validate()
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}
