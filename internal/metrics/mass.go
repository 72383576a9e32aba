package metrics

import (
	"math"

	"github.com/san-kum/stiffnet/internal/network"
	"gonum.org/v1/gonum/floats"
)

// MassDrift tracks the largest relative change of a zone's total mass
// fraction since its first observation.
type MassDrift struct {
	name     string
	initial  map[[3]string]float64
	maxDrift float64
}

func NewMassDrift() *MassDrift {
	return &MassDrift{
		name:    "mass_drift",
		initial: make(map[[3]string]float64),
	}
}

func (m *MassDrift) Name() string { return m.name }

func (m *MassDrift) Observe(zones []*network.Zone, t float64) {
	for _, z := range zones {
		total := floats.Sum(z.MassFractions())
		x0, seen := m.initial[z.Labels()]
		if !seen {
			m.initial[z.Labels()] = total
			continue
		}
		if x0 != 0 {
			m.maxDrift = math.Max(m.maxDrift, math.Abs(total-x0)/math.Abs(x0))
		}
	}
}

func (m *MassDrift) Value() float64 {
	return m.maxDrift
}

func (m *MassDrift) Reset() {
	clear(m.initial)
	m.maxDrift = 0
}
