package network

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"

	"github.com/san-kum/stiffnet/internal/dynamo"
)

// Link mixes material from one zone into another at Rate (per second).
type Link struct {
	From [3]string
	To   [3]string
	Rate float64
}

// Model is a network together with its zones and inter-zone links.
type Model struct {
	net   *Network
	zones []*Zone
	byKey map[[3]string]*Zone
	links []Link
}

func NewModel(net *Network) *Model {
	return &Model{net: net, byKey: make(map[[3]string]*Zone)}
}

func (m *Model) Network() *Network { return m.net }

func (m *Model) AddZone(z *Zone) error {
	if z.net != m.net {
		return fmt.Errorf("zone %s belongs to a different network: %w", z, dynamo.ErrInvalidConfig)
	}
	if _, dup := m.byKey[z.labels]; dup {
		return fmt.Errorf("duplicate zone %s: %w", z, dynamo.ErrInvalidConfig)
	}
	m.byKey[z.labels] = z
	m.zones = append(m.zones, z)
	return nil
}

func (m *Model) Zone(labels [3]string) (*Zone, bool) {
	z, ok := m.byKey[labels]
	return z, ok
}

// Zones returns the zones ordered by their first label.
func (m *Model) Zones() []*Zone {
	out := slices.Clone(m.zones)
	slices.SortStableFunc(out, func(a, b *Zone) int {
		return CompareLabel(a.labels[0], b.labels[0])
	})
	return out
}

func (m *Model) AddLink(l Link) error {
	if _, ok := m.byKey[l.From]; !ok {
		return fmt.Errorf("link source %v: unknown zone: %w", l.From, dynamo.ErrInvalidConfig)
	}
	if _, ok := m.byKey[l.To]; !ok {
		return fmt.Errorf("link target %v: unknown zone: %w", l.To, dynamo.ErrInvalidConfig)
	}
	if l.Rate < 0 {
		return fmt.Errorf("link rate %g: %w", l.Rate, dynamo.ErrInvalidConfig)
	}
	m.links = append(m.links, l)
	return nil
}

func (m *Model) Links() []Link { return m.links }

// CompareLabel orders labels numerically when both parse as numbers and
// lexically otherwise.
func CompareLabel(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		return cmp.Compare(fa, fb)
	}
	return cmp.Compare(a, b)
}
