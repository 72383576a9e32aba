package integrators

import (
	"fmt"

	"github.com/san-kum/stiffnet/internal/dynamo"
	"github.com/san-kum/stiffnet/internal/network"
)

// Field selects which zone vector Unpack writes.
type Field int

const (
	FieldAbundances Field = iota
	FieldAbundanceChanges
)

func (f Field) String() string {
	switch f {
	case FieldAbundances:
		return "abundances"
	case FieldAbundanceChanges:
		return "abundance changes"
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

// Layout describes how zones are laid out in a full vector.
type Layout struct {
	Zones   int
	Species int
	// Offset is the stride between zones: Species, plus one when a mass
	// scalar leads each zone.
	Offset int
	// Shift is 1 when a mass scalar leads each zone.
	Shift int
}

// LayoutOf returns the full-vector layout of zones. All zones must carry the
// same species count.
func LayoutOf(zones []*network.Zone) (Layout, error) {
	if len(zones) == 0 {
		return Layout{}, dynamo.ErrNoZones
	}
	l := Layout{Zones: len(zones), Species: zones[0].NumberOfSpecies()}
	for _, z := range zones {
		if z.NumberOfSpecies() != l.Species {
			return Layout{}, fmt.Errorf("zone %s has %d species, want %d: %w", z, z.NumberOfSpecies(), l.Species, dynamo.ErrDimensionMismatch)
		}
		if z.IsMultiMass() {
			l.Shift = 1
		}
	}
	l.Offset = l.Species + l.Shift
	return l, nil
}

// Size is the length of the full vector.
func (l Layout) Size() int { return l.Zones * l.Offset }

// Block is the index of the first abundance of zone i.
func (l Layout) Block(i int) int { return i*l.Offset + l.Shift }

// Pack concatenates the abundances of zones. When any zone is multi-mass,
// each zone's block is preceded by its mass property.
func Pack(zones []*network.Zone) ([]float64, error) {
	l, err := LayoutOf(zones)
	if err != nil {
		return nil, err
	}
	v := make([]float64, l.Size())
	for i, z := range zones {
		if l.Shift == 1 {
			m, err := z.FloatProperty(network.PropMass, 0)
			if err != nil {
				return nil, err
			}
			v[i*l.Offset] = m
		}
		copy(v[l.Block(i):l.Block(i)+l.Species], z.Abundances())
	}
	return v, nil
}

// Unpack writes v back into zones. FieldAbundances sets abundances and the
// mass property; FieldAbundanceChanges sets abundance changes and the mass
// change property.
func Unpack(v []float64, zones []*network.Zone, field Field) error {
	l, err := LayoutOf(zones)
	if err != nil {
		return err
	}
	if len(v) != l.Size() {
		return fmt.Errorf("unpack %d values into %d zones of stride %d: %w", len(v), l.Zones, l.Offset, dynamo.ErrDimensionMismatch)
	}
	for i, z := range zones {
		block := v[l.Block(i) : l.Block(i)+l.Species]
		switch field {
		case FieldAbundances:
			err = z.SetAbundances(block)
			if l.Shift == 1 {
				z.SetFloatProperty(network.PropMass, v[i*l.Offset])
			}
		case FieldAbundanceChanges:
			err = z.SetAbundanceChanges(block)
			if l.Shift == 1 {
				z.SetFloatProperty(network.PropMassChange, v[i*l.Offset])
			}
		default:
			return fmt.Errorf("unpack field %s: %w", field, dynamo.ErrInvalidConfig)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// zoneState is the part of a zone a step may overwrite. It is kept apart
// from Pack so a zone can be restored even after its layout changed.
type zoneState struct {
	y           []float64
	mass, multi string
	hasMass     bool
	hasMulti    bool
}

func saveZones(zones []*network.Zone) []zoneState {
	saved := make([]zoneState, len(zones))
	for i, z := range zones {
		s := &saved[i]
		s.y = z.Abundances()
		s.mass, s.hasMass = z.Property(network.PropMass)
		s.multi, s.hasMulti = z.Property(network.PropMultiMass)
	}
	return saved
}

func restoreZones(zones []*network.Zone, saved []zoneState) {
	for i, z := range zones {
		s := saved[i]
		_ = z.SetAbundances(s.y)
		restoreProperty(z, network.PropMass, s.mass, s.hasMass)
		restoreProperty(z, network.PropMultiMass, s.multi, s.hasMulti)
	}
}

func restoreProperty(z *network.Zone, name, value string, ok bool) {
	if ok {
		z.SetProperty(name, value)
	} else {
		z.RemoveProperty(name)
	}
}
