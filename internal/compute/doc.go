// Package compute provides the matrix-vector backends used by the
// exponential integrators.
//
// A rate operator split across several sparse matrices is applied by
// multiplying each matrix concurrently and summing the products with a
// pairwise tree reduction:
//
//	backend := compute.GetBackend()
//	y := backend.SumMatVec(matrices, x)
//
// [SumOperator] adapts a backend and a matrix set to the operator interface
// expected by the Krylov exponential solver.
package compute
