// Package decay propagates radioactive decays through the zones of a model.
//
// PushToDaughters moves all unstable material to its stable end points with
// a truncated series of the feed matrix; DecayAbundances evolves abundances
// over a finite time with the Krylov exponential.
package decay

import (
	"github.com/san-kum/stiffnet/internal/network"
	"github.com/san-kum/stiffnet/internal/sparse"
)

// diagonalPad keeps the transfer matrix finite for stable species.
const diagonalPad = 1e-300

// Matrices is the stable mask and feed operator of a decay network.
type Matrices struct {
	// Stable is 1 on the diagonal of species that do not decay.
	Stable *sparse.Matrix
	// Feed maps the mass fractions of parents onto the mass fractions
	// their decays deliver to daughters in one generation.
	Feed *sparse.Matrix
}

// BuildMatrices scans the reactions accepted by filter (all when nil) that
// have exactly one nuclide reactant and a rate above cutoff at (t9, rho).
// The destruction rate of each parent goes on the diagonal of a work matrix
// and rate·A_daughter/A_parent below it for every daughter nuclide.
func BuildMatrices(net *network.Network, filter network.ReactionFilter, cutoff, t9, rho float64) Matrices {
	n := net.NumberOfSpecies()
	mass := net.MassNumbers()
	work := sparse.New(n, n)

	for _, r := range net.Filter(filter) {
		react := r.NuclideReactants()
		if len(react) != 1 {
			continue
		}
		rate := r.RateAt(t9, rho)
		if rate <= cutoff {
			continue
		}
		j := react[0]
		work.Add(j, j, rate)
		for _, p := range r.NuclideProducts() {
			work.Add(p, j, -rate*mass[p]/mass[j])
		}
	}

	stable := sparse.New(n, n)
	for i, d := range work.Diagonal() {
		if d == 0 {
			stable.Set(i, i, 1)
		}
	}

	work.AddToDiagonal(diagonalPad)
	feed := work.TransferMatrix()
	feed.Scale(-1)
	return Matrices{Stable: stable, Feed: feed}
}
