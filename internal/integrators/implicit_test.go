package integrators

import (
	"fmt"
	"math"
	"testing"

	"github.com/san-kum/stiffnet/internal/dynamo"
	"github.com/san-kum/stiffnet/internal/network"
	"github.com/san-kum/stiffnet/internal/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImplicitZeroIntervalLeavesZones(t *testing.T) {
	z := newZone(t, decayNetwork(t, 1), "0", 1)
	ok, err := NewImplicit(DefaultOptions()).Step([]*network.Zone{z}, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float64{1, 0, 0}, z.Abundances())
}

func TestImplicitNegativeInterval(t *testing.T) {
	z := newZone(t, decayNetwork(t, 1), "0", 1)
	_, err := NewImplicit(DefaultOptions()).Step([]*network.Zone{z}, -1)
	assert.ErrorIs(t, err, dynamo.ErrInvalidInterval)
}

func TestImplicitBackwardEulerDecay(t *testing.T) {
	lambda, dt := 2.0, 1e-3
	z := newZone(t, decayNetwork(t, lambda), "0", 1)

	ok, err := NewImplicit(DefaultOptions()).Step([]*network.Zone{z}, dt)
	require.NoError(t, err)
	require.True(t, ok)

	y := z.Abundances()
	assert.InDelta(t, 1/(1+lambda*dt), y[0], 1e-9)
	assert.InDelta(t, 1.0, y[0]+y[1], 1e-12)
	assert.Equal(t, 0.0, y[2])
}

func TestImplicitDivergenceRollsBack(t *testing.T) {
	z := newZone(t, decayNetwork(t, 1), "0", 1)
	opts := DefaultOptions()
	opts.MaxNewtonIterations = 1

	ok, err := NewImplicit(opts).Step([]*network.Zone{z}, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []float64{1, 0, 0}, z.Abundances())
}

func TestImplicitValidationRejection(t *testing.T) {
	z := newZone(t, decayNetwork(t, 1), "0", 1)
	s := NewImplicit(DefaultOptions())
	s.Validation = ValidationFunc(func([]*network.Zone) bool { return false })

	ok, err := s.Step([]*network.Zone{z}, 0.01)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []float64{1, 0, 0}, z.Abundances())
}

func TestImplicitAssemblyErrors(t *testing.T) {
	z := newZone(t, decayNetwork(t, 1), "0", 1)
	s := NewImplicit(DefaultOptions())

	s.Assembly = AssemblyFunc(func([]float64, float64) (*sparse.Matrix, []float64, error) {
		return nil, nil, fmt.Errorf("too large: %w", dynamo.ErrStepRejected)
	})
	ok, err := s.Step([]*network.Zone{z}, 0.01)
	require.NoError(t, err)
	assert.False(t, ok)

	s.Assembly = AssemblyFunc(func([]float64, float64) (*sparse.Matrix, []float64, error) {
		return sparse.New(1, 1), []float64{0}, nil
	})
	_, err = s.Step([]*network.Zone{z}, 0.01)
	assert.ErrorIs(t, err, dynamo.ErrDimensionMismatch)
}

func TestImplicitMissingSolverIsFatal(t *testing.T) {
	z := newZone(t, decayNetwork(t, 1), "0", 1)
	z.RemoveProperty(PropSolver)
	_, err := NewImplicit(DefaultOptions()).Step([]*network.Zone{z}, 0.01)
	assert.ErrorIs(t, err, dynamo.ErrNoSolverMethod)
	assert.Equal(t, []float64{1, 0, 0}, z.Abundances())
}

func TestImplicitModifierSeesSystem(t *testing.T) {
	z := newZone(t, decayNetwork(t, 1), "0", 1)
	s := NewImplicit(DefaultOptions())
	var diag []float64
	s.Modifier = modifierFunc(func(a *sparse.Matrix, _ []float64) {
		if diag == nil {
			diag = a.Diagonal()
		}
	})
	ok, err := s.Step([]*network.Zone{z}, 0.5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{3, 2, 2}, diag, 1e-12)
}

type modifierFunc func(a *sparse.Matrix, rhs []float64)

func (f modifierFunc) Modify(a *sparse.Matrix, rhs []float64) { f(a, rhs) }

func TestImplicitLinkedZonesConserveTotal(t *testing.T) {
	net := decayNetwork(t, 0.5)
	zones := []*network.Zone{newZone(t, net, "0", 1, 0, 0.2), newZone(t, net, "1", 0, 0, 0)}
	links, err := NewLinks(zones, []network.Link{{From: zones[0].Labels(), To: zones[1].Labels(), Rate: 3}})
	require.NoError(t, err)

	s := NewImplicit(DefaultOptions())
	s.Assembly = links
	ok, err := s.Step(zones, 0.1)
	require.NoError(t, err)
	require.True(t, ok)

	assert.InDelta(t, 1.2, totalAbundance(zones), 1e-10)
	// backward Euler on the inert species: c0 = 0.2/(1+w dt)
	assert.InDelta(t, 0.2/1.3, zones[0].Abundances()[2], 1e-9)
	assert.False(t, math.IsNaN(zones[1].Abundances()[0]))
}

func TestImplicitMultiMassKeepsMass(t *testing.T) {
	z := newZone(t, decayNetwork(t, 1), "0", 1)
	z.SetProperty(network.PropMultiMass, "yes")
	z.SetFloatProperty(network.PropMass, 3)

	ok, err := NewImplicit(DefaultOptions()).Step([]*network.Zone{z}, 1e-3)
	require.NoError(t, err)
	require.True(t, ok)

	assert.InDelta(t, 0.999000999, z.Abundances()[0], 1e-9)
	mass, err := z.FloatProperty(network.PropMass, 0)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, mass, 1e-12)
}

func TestImplicitRestoresZonesWhenLayoutChanges(t *testing.T) {
	z := newZone(t, decayNetwork(t, 1), "0", 1)
	s := NewImplicit(DefaultOptions())
	s.Validation = ValidationFunc(func(zones []*network.Zone) bool {
		zones[0].SetProperty(network.PropMultiMass, "yes")
		return false
	})

	ok, err := s.Step([]*network.Zone{z}, 0.01)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []float64{1, 0, 0}, z.Abundances())
	assert.False(t, z.IsMultiMass())
}
