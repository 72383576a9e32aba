package integrators

import (
	"testing"

	"github.com/san-kum/stiffnet/internal/network"
	"github.com/stretchr/testify/require"
)

// decayNetwork is a -> b at rate lambda plus an inert species c.
func decayNetwork(t testing.TB, lambda float64) *network.Network {
	t.Helper()
	net, err := network.New(
		[]network.Species{{Name: "a", Z: 6, A: 14}, {Name: "b", Z: 7, A: 14}, {Name: "c", Z: 2, A: 4}},
		[]*network.Reaction{{Reactants: []string{"a"}, Products: []string{"b"}, Rate: network.ConstantRate(lambda)}},
	)
	require.NoError(t, err)
	return net
}

func newZone(t testing.TB, net *network.Network, label string, y ...float64) *network.Zone {
	t.Helper()
	z := network.NewZone(net, label)
	full := make([]float64, net.NumberOfSpecies())
	copy(full, y)
	require.NoError(t, z.SetAbundances(full))
	z.SetProperty(PropSolver, "gmres")
	z.SetFloatProperty(network.PropT9, 1)
	z.SetFloatProperty(network.PropRho, 1)
	return z
}

func totalAbundance(zones []*network.Zone) float64 {
	sum := 0.0
	for _, z := range zones {
		for _, y := range z.Abundances() {
			sum += y
		}
	}
	return sum
}
