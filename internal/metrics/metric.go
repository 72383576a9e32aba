// Package metrics holds run diagnostics observed after every committed
// interval.
package metrics

import "github.com/san-kum/stiffnet/internal/network"

// Metric accumulates a scalar over the observations of a run.
type Metric interface {
	Name() string
	Observe(zones []*network.Zone, t float64)
	Value() float64
	Reset()
}

// Defaults returns the metrics recorded for every run.
func Defaults() []Metric {
	return []Metric{
		NewMassDrift(),
		NewNegativity(0),
		NewActivity(),
	}
}
