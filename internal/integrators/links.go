package integrators

import (
	"fmt"

	"github.com/san-kum/stiffnet/internal/dynamo"
	"github.com/san-kum/stiffnet/internal/network"
	"github.com/san-kum/stiffnet/internal/sparse"
)

type link struct {
	from, to int
	rate     float64
}

// Links mixes material between zones. Every species of the source zone
// flows into the same species of the target zone at the link rate. Links
// serves as the assembly strategy of the implicit stepper and the matrix
// strategy of the exponential stepper for the zones it was built with.
type Links struct {
	layout Layout
	links  []link
}

// NewLinks resolves the zone labels of links against zones.
func NewLinks(zones []*network.Zone, links []network.Link) (*Links, error) {
	layout, err := LayoutOf(zones)
	if err != nil {
		return nil, err
	}
	index := make(map[[3]string]int, len(zones))
	for i, z := range zones {
		index[z.Labels()] = i
	}
	l := &Links{layout: layout}
	for _, nl := range links {
		from, ok := index[nl.From]
		if !ok {
			return nil, fmt.Errorf("link source %v not among zones: %w", nl.From, dynamo.ErrInvalidConfig)
		}
		to, ok := index[nl.To]
		if !ok {
			return nil, fmt.Errorf("link target %v not among zones: %w", nl.To, dynamo.ErrInvalidConfig)
		}
		if from == to || nl.Rate == 0 {
			continue
		}
		l.links = append(l.links, link{from: from, to: to, rate: nl.Rate})
	}
	return l, nil
}

// Assemble returns the mixing terms of the implicit system at x.
func (l *Links) Assemble(x []float64, _ float64) (*sparse.Matrix, []float64, error) {
	n := l.layout.Size()
	if len(x) != n {
		return nil, nil, fmt.Errorf("links for full vector %d given %d values: %w", n, len(x), dynamo.ErrDimensionMismatch)
	}
	a := sparse.New(n, n)
	rhs := make([]float64, n)
	for _, lk := range l.links {
		src, dst := l.layout.Block(lk.from), l.layout.Block(lk.to)
		for s := 0; s < l.layout.Species; s++ {
			flow := lk.rate * x[src+s]
			a.Add(src+s, src+s, lk.rate)
			a.Add(dst+s, src+s, -lk.rate)
			rhs[src+s] -= flow
			rhs[dst+s] += flow
		}
	}
	return a, rhs, nil
}

// Matrices returns one generator matrix per zone holding the outflow of the
// links leaving that zone.
func (l *Links) Matrices(zones []*network.Zone) ([]*sparse.Matrix, error) {
	if len(zones) != l.layout.Zones {
		return nil, fmt.Errorf("links built for %d zones given %d: %w", l.layout.Zones, len(zones), dynamo.ErrDimensionMismatch)
	}
	n := l.layout.Size()
	out := make([]*sparse.Matrix, len(zones))
	for i := range out {
		out[i] = sparse.New(n, n)
	}
	for _, lk := range l.links {
		m := out[lk.from]
		src, dst := l.layout.Block(lk.from), l.layout.Block(lk.to)
		for s := 0; s < l.layout.Species; s++ {
			m.Add(src+s, src+s, -lk.rate)
			m.Add(dst+s, src+s, lk.rate)
		}
	}
	return out, nil
}
