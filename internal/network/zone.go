package network

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/san-kum/stiffnet/internal/dynamo"
	"github.com/san-kum/stiffnet/internal/sparse"
)

// Zone property names.
const (
	PropT9              = "t9"
	PropRho             = "rho"
	PropMultiMass       = "multi-mass"
	PropMass            = "mass"
	PropMassChange      = "mass change"
	PropRadioactiveMass = "radioactive mass"
)

type propKey struct {
	name, tag1, tag2 string
}

// Property is one named, optionally tagged, zone property.
type Property struct {
	Name  string
	Tags  []string
	Value string
}

// Zone is one independently evolving region. A zone is owned by a single
// goroutine at a time.
type Zone struct {
	labels [3]string
	net    *Network
	y      []float64
	dy     []float64
	props  map[propKey]string

	reactions []*Reaction
	rates     []float64
	rateT9    float64
	rateRho   float64
}

// NewZone returns a zone with zero abundances. Missing labels default to "0".
func NewZone(net *Network, labels ...string) *Zone {
	z := &Zone{
		labels:    [3]string{"0", "0", "0"},
		net:       net,
		y:         make([]float64, net.NumberOfSpecies()),
		dy:        make([]float64, net.NumberOfSpecies()),
		props:     make(map[propKey]string),
		reactions: net.Reactions(),
	}
	for i := 0; i < len(labels) && i < 3; i++ {
		z.labels[i] = labels[i]
	}
	return z
}

func (z *Zone) Labels() [3]string    { return z.labels }
func (z *Zone) Network() *Network    { return z.net }
func (z *Zone) NumberOfSpecies() int { return len(z.y) }

func (z *Zone) String() string {
	return "(" + strings.Join(z.labels[:], ", ") + ")"
}

// SetReactionFilter restricts the reactions the zone evaluates.
func (z *Zone) SetReactionFilter(fn ReactionFilter) {
	z.reactions = z.net.Filter(fn)
	z.rates = nil
}

func (z *Zone) Abundances() []float64 { return slices.Clone(z.y) }

func (z *Zone) SetAbundances(y []float64) error {
	if len(y) != len(z.y) {
		return fmt.Errorf("zone %s: %d abundances for %d species: %w", z, len(y), len(z.y), dynamo.ErrDimensionMismatch)
	}
	copy(z.y, y)
	return nil
}

func (z *Zone) AbundanceChanges() []float64 { return slices.Clone(z.dy) }

func (z *Zone) SetAbundanceChanges(dy []float64) error {
	if len(dy) != len(z.dy) {
		return fmt.Errorf("zone %s: %d abundance changes for %d species: %w", z, len(dy), len(z.dy), dynamo.ErrDimensionMismatch)
	}
	copy(z.dy, dy)
	return nil
}

// MassFractions returns X_i = A_i·Y_i.
func (z *Zone) MassFractions() []float64 {
	x := make([]float64, len(z.y))
	for i, s := range z.net.species {
		x[i] = float64(s.A) * z.y[i]
	}
	return x
}

func (z *Zone) SetMassFractions(x []float64) error {
	if len(x) != len(z.y) {
		return fmt.Errorf("zone %s: %d mass fractions for %d species: %w", z, len(x), len(z.y), dynamo.ErrDimensionMismatch)
	}
	for i, s := range z.net.species {
		z.y[i] = x[i] / float64(s.A)
	}
	return nil
}

// ZeroOutSmall sets abundances below floor to zero.
func (z *Zone) ZeroOutSmall(floor float64) {
	for i, v := range z.y {
		if v < floor {
			z.y[i] = 0
		}
	}
}

func keyOf(name string, tags []string) propKey {
	k := propKey{name: name}
	if len(tags) > 0 {
		k.tag1 = tags[0]
	}
	if len(tags) > 1 {
		k.tag2 = tags[1]
	}
	return k
}

func (z *Zone) Property(name string, tags ...string) (string, bool) {
	v, ok := z.props[keyOf(name, tags)]
	return v, ok
}

func (z *Zone) SetProperty(name, value string, tags ...string) {
	z.props[keyOf(name, tags)] = value
}

func (z *Zone) RemoveProperty(name string, tags ...string) {
	delete(z.props, keyOf(name, tags))
}

// FloatProperty parses a numeric property, returning def when it is unset.
func (z *Zone) FloatProperty(name string, def float64, tags ...string) (float64, error) {
	v, ok := z.Property(name, tags...)
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("zone %s: property %q: %w", z, name, err)
	}
	return f, nil
}

func (z *Zone) SetFloatProperty(name string, v float64, tags ...string) {
	z.SetProperty(name, strconv.FormatFloat(v, 'g', -1, 64), tags...)
}

// Properties lists every property ordered by name then tags.
func (z *Zone) Properties() []Property {
	out := make([]Property, 0, len(z.props))
	for k, v := range z.props {
		p := Property{Name: k.name, Value: v}
		if k.tag1 != "" || k.tag2 != "" {
			p.Tags = []string{k.tag1}
			if k.tag2 != "" {
				p.Tags = append(p.Tags, k.tag2)
			}
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Property) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return slices.Compare(a.Tags, b.Tags)
	})
	return out
}

// T9 returns the zone temperature in 10⁹ K; unset or malformed reads as 0.
func (z *Zone) T9() float64 {
	v, _ := z.FloatProperty(PropT9, 0)
	return v
}

func (z *Zone) Rho() float64 {
	v, _ := z.FloatProperty(PropRho, 0)
	return v
}

// IsMultiMass reports whether the zone carries a leading mass scalar in
// full vectors.
func (z *Zone) IsMultiMass() bool {
	v, ok := z.Property(PropMultiMass)
	return ok && v == "yes"
}

// ComputeRates evaluates and caches the zone's reaction rates.
func (z *Zone) ComputeRates(t9, rho float64) {
	z.rates = Rates(z.reactions, t9, rho)
	z.rateT9, z.rateRho = t9, rho
}

// Evaluate returns the zone's right-hand side and Jacobian at its current
// abundances. Rates are recomputed when the zone conditions changed since
// the last ComputeRates call.
func (z *Zone) Evaluate() ([]float64, *sparse.Matrix) {
	t9, rho := z.T9(), z.Rho()
	if z.rates == nil || t9 != z.rateT9 || rho != z.rateRho {
		z.ComputeRates(t9, rho)
	}
	return z.net.Evaluate(z.reactions, z.rates, z.y, rho)
}

func (z *Zone) Jacobian() *sparse.Matrix {
	_, jac := z.Evaluate()
	return jac
}

func (z *Zone) RHS() []float64 {
	f, _ := z.Evaluate()
	return f
}
