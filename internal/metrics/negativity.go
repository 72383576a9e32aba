package metrics

import "github.com/san-kum/stiffnet/internal/network"

// Negativity is the fraction of zone observations holding an abundance
// below -threshold.
type Negativity struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewNegativity(threshold float64) *Negativity {
	return &Negativity{
		name:      "negative_fraction",
		threshold: threshold,
	}
}

func (n *Negativity) Name() string {
	return n.name
}

func (n *Negativity) Observe(zones []*network.Zone, t float64) {
	for _, z := range zones {
		n.samples++
		for _, y := range z.Abundances() {
			if y < -n.threshold {
				n.violations++
				break
			}
		}
	}
}

func (n *Negativity) Value() float64 {
	if n.samples == 0 {
		return 0
	}
	return float64(n.violations) / float64(n.samples)
}

func (n *Negativity) Reset() {
	n.violations = 0
	n.samples = 0
}
