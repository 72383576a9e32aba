package dynamo

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// Vector is a dense abundance or full-system vector.
type Vector []float64

func (v Vector) Clone() Vector {
	c := make(Vector, len(v))
	copy(c, v)
	return c
}

func (v Vector) IsValid() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Norm returns the Euclidean norm.
func (v Vector) Norm() float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, 2)
}

func (v Vector) Add(other Vector) Vector {
	result := v.Clone()
	floats.Add(result, other)
	return result
}

func (v Vector) Sub(other Vector) Vector {
	result := v.Clone()
	floats.Sub(result, other)
	return result
}

func (v Vector) Scale(factor float64) Vector {
	result := v.Clone()
	floats.Scale(factor, result)
	return result
}

// Sum returns the sum of all entries.
func (v Vector) Sum() float64 {
	return floats.Sum(v)
}

// WithinEpsilon reports whether a and b agree to the relative tolerance eps.
// Accumulated sub-step times are compared with it instead of ==.
func WithinEpsilon(a, b, eps float64) bool {
	if a == b {
		return true
	}
	return scalar.EqualWithinRel(a, b, eps)
}
