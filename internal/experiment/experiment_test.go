package experiment

import (
	"context"
	"math"
	"testing"

	"github.com/san-kum/stiffnet/internal/config"
	"github.com/san-kum/stiffnet/internal/dynamo"
	"github.com/san-kum/stiffnet/internal/integrators"
	"github.com/san-kum/stiffnet/internal/metrics"
	"github.com/san-kum/stiffnet/internal/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decayModel(t *testing.T, lambda float64, zones int, links ...network.Link) *network.Model {
	t.Helper()
	net, err := network.New(
		[]network.Species{{Name: "a", Z: 1, A: 1}, {Name: "b", Z: 1, A: 1}},
		[]*network.Reaction{{Reactants: []string{"a"}, Products: []string{"b"}, Rate: network.ConstantRate(lambda)}},
	)
	require.NoError(t, err)
	model := network.NewModel(net)
	for i := 0; i < zones; i++ {
		z := network.NewZone(net, string(rune('1'+i)))
		require.NoError(t, z.SetAbundances([]float64{1, 0}))
		z.SetFloatProperty(network.PropT9, 1)
		z.SetFloatProperty(network.PropRho, 1)
		require.NoError(t, model.AddZone(z))
	}
	for _, l := range links {
		require.NoError(t, model.AddLink(l))
	}
	return model
}

func runConfig(method string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Method = method
	cfg.Dt = 0.5
	cfg.Duration = 1
	cfg.Workers = 2
	return cfg
}

func TestRunExponentialMatchesAnalytic(t *testing.T) {
	model := decayModel(t, 1, 2)
	exp, err := New(runConfig(config.MethodExponential), model)
	require.NoError(t, err)
	for _, m := range metrics.Defaults() {
		exp.AddMetric(m)
	}

	result, err := exp.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, []float64{0, 0.5, 1}, result.Times)
	require.Len(t, result.Abundances, 3)
	assert.Equal(t, []string{"a", "b"}, result.Species)
	for _, z := range model.Zones() {
		y := z.Abundances()
		assert.InDelta(t, math.Exp(-1), y[0], 1e-8)
		assert.InDelta(t, 1-math.Exp(-1), y[1], 1e-8)
	}
	assert.InDelta(t, 0, result.Metrics["mass_drift"], 1e-8)
	assert.Zero(t, result.Metrics["negative_fraction"])
	assert.Zero(t, result.Failures)
}

func TestRunImplicitConservesAbundance(t *testing.T) {
	model := decayModel(t, 1, 1)
	exp, err := New(runConfig(config.MethodImplicit), model)
	require.NoError(t, err)

	var seen []float64
	var last Progress
	exp.AddObserver(func(p Progress) {
		seen = append(seen, p.T)
		last = p
	})
	result, err := exp.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, result.Times, seen)
	assert.Equal(t, result.Attempts, last.Attempts)
	assert.Equal(t, result.Failures, last.Failures)
	assert.Positive(t, last.Attempts)
	assert.InDelta(t, last.Duration, last.T, 1e-12)
	y := model.Zones()[0].Abundances()
	assert.InDelta(t, 1, y[0]+y[1], 1e-8)
	assert.Less(t, y[0], 1.0)
	assert.Greater(t, y[0], math.Exp(-1))
}

func TestRunWithLinksCouplesZones(t *testing.T) {
	link := network.Link{From: [3]string{"1", "0", "0"}, To: [3]string{"2", "0", "0"}, Rate: 0.5}
	model := decayModel(t, 0.1, 2, link)
	require.Len(t, Groups(model), 1)

	for _, method := range []string{config.MethodImplicit, config.MethodExponential} {
		t.Run(method, func(t *testing.T) {
			m := decayModel(t, 0.1, 2, link)
			exp, err := New(runConfig(method), m)
			require.NoError(t, err)
			_, err = exp.Run(context.Background())
			require.NoError(t, err)

			zones := m.Zones()
			total := 0.0
			for _, z := range zones {
				for _, y := range z.Abundances() {
					total += y
				}
			}
			assert.InDelta(t, 2, total, 1e-8)
			a1, a2 := zones[0].Abundances()[0], zones[1].Abundances()[0]
			assert.Less(t, a1, a2)
		})
	}
}

func TestRunCancelled(t *testing.T) {
	exp, err := New(runConfig(config.MethodImplicit), decayModel(t, 1, 1))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := exp.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, result.Times, 1)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := runConfig("rk4")
	_, err := New(cfg, decayModel(t, 1, 1))
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)

	net, err := network.New([]network.Species{{Name: "a", A: 1}}, nil)
	require.NoError(t, err)
	_, err = New(runConfig(config.MethodImplicit), network.NewModel(net))
	assert.ErrorIs(t, err, dynamo.ErrNoZones)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{config.MethodExponential, config.MethodImplicit}, r.ListMethods())

	_, err := r.GetStepper("rk4", config.DefaultConfig(), nil, nil)
	assert.Error(t, err)

	s, err := r.GetStepper(config.MethodImplicit, config.DefaultConfig(), nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &integrators.Implicit{}, s)
}

func TestValidationSelection(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.IsType(t, integrators.AcceptAll{}, Validation(cfg))
	cfg.Validation = config.ValidationNonNegative
	assert.IsType(t, integrators.NonNegative{}, Validation(cfg))
}

func TestDecayOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Decay.MaxIterations = 7
	cfg.Workers = 3
	opts := DecayOptions(cfg)
	assert.Equal(t, 7, opts.MaxIterations)
	assert.Equal(t, 3, opts.Workers)
}
