package network

import (
	"fmt"

	"github.com/san-kum/stiffnet/internal/dynamo"
)

// Species is one evolved nuclide. Index is its position in every abundance
// vector.
type Species struct {
	Name  string
	Z     int
	A     int
	Index int
}

type Network struct {
	species   []Species
	index     map[string]int
	reactions []*Reaction
}

// New builds a network and resolves each reaction's reactants and products
// against the species list. Names that are not species (electrons,
// neutrinos, gammas) are kept on the reaction but take no part in the
// matrices.
func New(species []Species, reactions []*Reaction) (*Network, error) {
	n := &Network{
		species: make([]Species, len(species)),
		index:   make(map[string]int, len(species)),
	}
	for i, s := range species {
		if s.Name == "" {
			return nil, fmt.Errorf("species %d has no name: %w", i, dynamo.ErrInvalidConfig)
		}
		if s.A <= 0 {
			return nil, fmt.Errorf("species %s: mass number %d: %w", s.Name, s.A, dynamo.ErrInvalidConfig)
		}
		if _, dup := n.index[s.Name]; dup {
			return nil, fmt.Errorf("duplicate species %s: %w", s.Name, dynamo.ErrInvalidConfig)
		}
		s.Index = i
		n.species[i] = s
		n.index[s.Name] = i
	}
	for _, r := range reactions {
		r.resolve(n.index)
		n.reactions = append(n.reactions, r)
	}
	return n, nil
}

func (n *Network) NumberOfSpecies() int { return len(n.species) }

func (n *Network) Species() []Species {
	out := make([]Species, len(n.species))
	copy(out, n.species)
	return out
}

func (n *Network) SpeciesByName(name string) (Species, bool) {
	i, ok := n.index[name]
	if !ok {
		return Species{}, false
	}
	return n.species[i], true
}

func (n *Network) Reactions() []*Reaction { return n.reactions }

// Filter returns the reactions accepted by fn. A nil fn accepts all.
func (n *Network) Filter(fn ReactionFilter) []*Reaction {
	if fn == nil {
		return n.reactions
	}
	var out []*Reaction
	for _, r := range n.reactions {
		if fn(r) {
			out = append(out, r)
		}
	}
	return out
}

// MassNumbers returns A for every species in index order.
func (n *Network) MassNumbers() []float64 {
	a := make([]float64, len(n.species))
	for i, s := range n.species {
		a[i] = float64(s.A)
	}
	return a
}
