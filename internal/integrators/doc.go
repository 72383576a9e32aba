// Package integrators advances the abundances of a set of zones over a time
// interval.
//
// Two steppers share the [Stepper] interface:
//
//   - [Implicit]: backward-Euler Newton-Raphson on the coupled sparse system
//   - [Exponential]: Krylov matrix-exponential action on the summed rate
//     matrices
//
// [Retry] wraps either stepper with adaptive sub-stepping. Coupling between
// zones, solver tuning and acceptance of a trial step are supplied through
// the strategy interfaces in strategy.go; the zero value of each stepper
// uses the no-coupling defaults.
//
// Zones are concatenated into one full vector whose layout is described by
// [Layout]: every zone contributes its N abundances, preceded by a mass
// scalar when any zone takes part in a multi-mass calculation.
package integrators
