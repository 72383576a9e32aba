package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/stiffnet/internal/compute"
	"github.com/san-kum/stiffnet/internal/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialDecayMatchesAnalytic(t *testing.T) {
	lambda, dt := 0.3, 2.0
	z := newZone(t, decayNetwork(t, lambda), "0", 1)

	ok, err := NewExponential(DefaultOptions()).Step([]*network.Zone{z}, dt)
	require.NoError(t, err)
	require.True(t, ok)

	y := z.Abundances()
	assert.InDelta(t, math.Exp(-lambda*dt), y[0], 1e-9)
	assert.InDelta(t, 1-math.Exp(-lambda*dt), y[1], 1e-9)
}

func TestExponentialMassWeightedProducts(t *testing.T) {
	// a (A=8) -> 2 b (A=4)
	net, err := network.New(
		[]network.Species{{Name: "a", Z: 4, A: 8}, {Name: "b", Z: 2, A: 4}},
		[]*network.Reaction{{Reactants: []string{"a"}, Products: []string{"b", "b"}, Rate: network.ConstantRate(1)}},
	)
	require.NoError(t, err)
	z := network.NewZone(net, "0")
	require.NoError(t, z.SetMassFractions([]float64{1, 0}))

	ok, err := NewExponential(DefaultOptions()).Step([]*network.Zone{z}, 0.7)
	require.NoError(t, err)
	require.True(t, ok)

	x := z.MassFractions()
	lost := 1 - x[0]
	assert.InDelta(t, 1-math.Exp(-0.7), lost, 1e-9)
	assert.InDelta(t, lost, x[1], 1e-9)
}

func TestExponentialZonesEvolveIndependently(t *testing.T) {
	net, err := network.New(
		[]network.Species{{Name: "a", A: 1}, {Name: "b", A: 1}},
		[]*network.Reaction{{Reactants: []string{"a"}, Products: []string{"b"}, Rate: func(t9, _ float64) float64 { return t9 }}},
	)
	require.NoError(t, err)
	hot := newZone(t, net, "0", 1)
	cold := newZone(t, net, "1", 1)
	hot.SetFloatProperty(network.PropT9, 2)
	cold.SetFloatProperty(network.PropT9, 0.5)

	s := NewExponential(DefaultOptions())
	s.Backend = compute.NewCPUBackend(2)
	ok, err := s.Step([]*network.Zone{hot, cold}, 1)
	require.NoError(t, err)
	require.True(t, ok)

	assert.InDelta(t, math.Exp(-2), hot.Abundances()[0], 1e-9)
	assert.InDelta(t, math.Exp(-0.5), cold.Abundances()[0], 1e-9)
}

func TestExponentialLinksMix(t *testing.T) {
	net := decayNetwork(t, 0)
	zones := []*network.Zone{newZone(t, net, "0", 0, 0, 1), newZone(t, net, "1", 0, 0, 0.5)}
	links, err := NewLinks(zones, []network.Link{{From: zones[0].Labels(), To: zones[1].Labels(), Rate: 0.4}})
	require.NoError(t, err)

	s := NewExponential(DefaultOptions())
	s.Matrices = links
	ok, err := s.Step(zones, 1.5)
	require.NoError(t, err)
	require.True(t, ok)

	left := math.Exp(-0.4 * 1.5)
	assert.InDelta(t, left, zones[0].Abundances()[2], 1e-9)
	assert.InDelta(t, 0.5+(1-left), zones[1].Abundances()[2], 1e-9)
}

func TestExponentialZeroInterval(t *testing.T) {
	z := newZone(t, decayNetwork(t, 1), "0", 1)
	ok, err := NewExponential(DefaultOptions()).Step([]*network.Zone{z}, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float64{1, 0, 0}, z.Abundances())
}

func TestExponentialRejectionExhaustsShrinks(t *testing.T) {
	z := newZone(t, decayNetwork(t, 1), "0", 1)
	opts := DefaultOptions()
	opts.MaxShrinks = 3
	s := NewExponential(opts)

	calls := 0
	s.Validation = ValidationFunc(func([]*network.Zone) bool {
		calls++
		return false
	})
	ok, err := s.Step([]*network.Zone{z}, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []float64{1, 0, 0}, z.Abundances())
}

func TestExponentialShrinksThenCovers(t *testing.T) {
	z := newZone(t, decayNetwork(t, 1), "0", 1)
	s := NewExponential(DefaultOptions())

	// reject any trial that decays more than 30% of a at once
	prev := 1.0
	s.Validation = ValidationFunc(func(zones []*network.Zone) bool {
		a := zones[0].Abundances()[0]
		if a < 0.7*prev {
			return false
		}
		prev = a
		return true
	})
	ok, err := s.Step([]*network.Zone{z}, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, math.Exp(-2), z.Abundances()[0], 1e-8)
}

func TestExponentialMultiMassKeepsMass(t *testing.T) {
	z := newZone(t, decayNetwork(t, 1), "0", 1)
	z.SetProperty(network.PropMultiMass, "yes")
	z.SetFloatProperty(network.PropMass, 3)

	ok, err := NewExponential(DefaultOptions()).Step([]*network.Zone{z}, 1)
	require.NoError(t, err)
	require.True(t, ok)

	assert.InDelta(t, math.Exp(-1), z.Abundances()[0], 1e-9)
	mass, err := z.FloatProperty(network.PropMass, 0)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, mass, 1e-12)
}

func TestExponentialRestoresZonesWhenLayoutChanges(t *testing.T) {
	z := newZone(t, decayNetwork(t, 1), "0", 1)
	s := NewExponential(DefaultOptions())
	s.Validation = ValidationFunc(func(zones []*network.Zone) bool {
		zones[0].SetProperty(network.PropMultiMass, "yes")
		return false
	})

	ok, err := s.Step([]*network.Zone{z}, 1)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, []float64{1, 0, 0}, z.Abundances())
	assert.False(t, z.IsMultiMass())
}
