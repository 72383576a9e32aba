package network

import (
	"math"

	"github.com/san-kum/stiffnet/internal/sparse"
)

// Evaluate returns f(Y) = dY/dt and the Jacobian J = -∂f/∂Y for the given
// reactions, their rates and the abundances y at density rho.
func (n *Network) Evaluate(reactions []*Reaction, rates, y []float64, rho float64) ([]float64, *sparse.Matrix) {
	size := len(n.species)
	f := make([]float64, size)
	jac := sparse.New(size, size)

	for k, r := range reactions {
		react := r.reactants
		if len(react) == 0 || rates[k] == 0 {
			continue
		}
		pre := rates[k] / r.dup
		if len(react) > 1 {
			pre *= math.Pow(rho, float64(len(react)-1))
		}

		flux := pre
		for _, i := range react {
			flux *= y[i]
		}
		for _, i := range react {
			f[i] -= flux
		}
		for _, i := range r.products {
			f[i] += flux
		}

		for p, j := range react {
			d := pre
			for q, i := range react {
				if q != p {
					d *= y[i]
				}
			}
			if d == 0 {
				continue
			}
			for _, i := range react {
				jac.Add(i, j, d)
			}
			for _, i := range r.products {
				jac.Add(i, j, -d)
			}
		}
	}
	return f, jac
}

// Rates evaluates every reaction at (t9, rho).
func Rates(reactions []*Reaction, t9, rho float64) []float64 {
	rates := make([]float64, len(reactions))
	for k, r := range reactions {
		rates[k] = r.RateAt(t9, rho)
	}
	return rates
}
