// Package sparse provides sparse matrices stored as bowman DOK/CSR pairs, an
// ILUT preconditioner and preconditioned Krylov solves through linsolve.
//
// The solver entry point is [SolveWithPreconditioner]. Its tuning comes from a
// [SolverConfigurer], which fills a [Settings] value and returns the ILU
// parameters:
//
//	x, err := sparse.SolveWithPreconditioner(a, b, sparse.StaticConfig{
//		Settings: sparse.Settings{Method: "gmres"},
//		ILU:      sparse.DefaultILUParams(),
//	})
//	if err != nil {
//		return err // configuration failure
//	}
//	if x == nil {
//		// no convergence; the caller decides how to recover
//	}
//
// [SolveDirect] factors a dense copy of the system. Callers use it when the
// iterative solve gives up.
//
// A [Matrix] implements gonum's mat.Matrix so small systems can be formatted
// or compared with mat helpers in tests and debug output.
package sparse
