// Package dynamo provides the shared primitives of the stiff network engine.
//
// The package defines the small building blocks every integrator relies on:
//
//   - [Vector]: dense abundance vector helpers
//   - [Pool]: bounded worker pool for data-parallel loops
//   - [Pool.TreeReduce]: pairwise summation of per-matrix products
//   - [VectorPool]: reusable scratch vectors keyed by length
//   - sentinel errors shared by the solver, integrator and decay packages
//
// # Example
//
//	pool := dynamo.NewPool(0)
//	sum := pool.TreeReduce(products)
//
// # Thread Safety
//
// Pool and VectorPool are safe for concurrent use. Vector values are not;
// each goroutine must own the vectors it writes.
package dynamo
