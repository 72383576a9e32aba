// Package network models the species, reactions and zones an integrator
// evolves.
//
// A [Network] is immutable once built and shared by pointer between zones.
// Each [Zone] owns its abundance vectors and a string property bag, and can
// evaluate its right-hand side and Jacobian:
//
//	rhs, jac := zone.Evaluate()
//
// The Jacobian follows the J = -∂f/∂Y convention: destruction terms sit on a
// positive diagonal.
package network
