package network

import (
	"math"
	"strings"
)

// RateFunc returns a reaction rate at temperature t9 (10⁹ K) and density rho
// (g/cc).
type RateFunc func(t9, rho float64) float64

// ConstantRate returns a temperature-independent rate, typical of decays.
func ConstantRate(k float64) RateFunc {
	return func(float64, float64) float64 { return k }
}

// ReaclibSet is one seven-coefficient Reaclib fit.
type ReaclibSet [7]float64

// Reaclib sums the fits
//
//	exp(a0 + a1/T9 + a2·T9^(-1/3) + a3·T9^(1/3) + a4·T9 + a5·T9^(5/3) + a6·ln T9).
func Reaclib(sets ...ReaclibSet) RateFunc {
	return func(t9, _ float64) float64 {
		if t9 <= 0 {
			return 0
		}
		t13 := math.Cbrt(t9)
		lnT9 := math.Log(t9)
		sum := 0.0
		for _, a := range sets {
			sum += math.Exp(a[0] + a[1]/t9 + a[2]/t13 + a[3]*t13 + a[4]*t9 + a[5]*t9*t13*t13 + a[6]*lnT9)
		}
		return sum
	}
}

type Reaction struct {
	Name      string
	Reactants []string
	Products  []string
	Rate      RateFunc

	reactants []int
	products  []int
	dup       float64
}

// ReactionFilter selects reactions from a network.
type ReactionFilter func(r *Reaction) bool

// SingleReactant accepts reactions with exactly one reactant of any kind.
func SingleReactant(r *Reaction) bool { return len(r.Reactants) == 1 }

func (r *Reaction) String() string {
	if r.Name != "" {
		return r.Name
	}
	return strings.Join(r.Reactants, " + ") + " -> " + strings.Join(r.Products, " + ")
}

// RateAt evaluates the rate; a reaction without a rate function has rate 0.
func (r *Reaction) RateAt(t9, rho float64) float64 {
	if r.Rate == nil {
		return 0
	}
	return r.Rate(t9, rho)
}

// NuclideReactants returns the species indices of the reactants, with
// repeats for identical reactants.
func (r *Reaction) NuclideReactants() []int { return r.reactants }

func (r *Reaction) NuclideProducts() []int { return r.products }

func (r *Reaction) resolve(index map[string]int) {
	r.reactants, r.products = r.reactants[:0], r.products[:0]
	counts := make(map[int]int)
	for _, name := range r.Reactants {
		if i, ok := index[name]; ok {
			r.reactants = append(r.reactants, i)
			counts[i]++
		}
	}
	for _, name := range r.Products {
		if i, ok := index[name]; ok {
			r.products = append(r.products, i)
		}
	}
	// identical reactants are counted once per distinct pair
	r.dup = 1
	for _, c := range counts {
		for k := 2; k <= c; k++ {
			r.dup *= float64(k)
		}
	}
}
