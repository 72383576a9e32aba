package metrics

import (
	"github.com/san-kum/stiffnet/internal/network"
	"gonum.org/v1/gonum/floats"
)

// Activity is the mean L1 norm of the abundance changes per zone
// observation.
type Activity struct {
	name    string
	sum     float64
	samples int
}

func NewActivity() *Activity {
	return &Activity{
		name: "activity",
	}
}

func (a *Activity) Name() string {
	return a.name
}

func (a *Activity) Observe(zones []*network.Zone, t float64) {
	for _, z := range zones {
		a.sum += floats.Norm(z.AbundanceChanges(), 1)
		a.samples++
	}
}

func (a *Activity) Value() float64 {
	if a.samples == 0 {
		return 0
	}
	return a.sum / float64(a.samples)
}

func (a *Activity) Reset() {
	a.sum = 0
	a.samples = 0
}
