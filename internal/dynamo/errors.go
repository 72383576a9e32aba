package dynamo

import "errors"

// Domain errors for integration operations.
var (
	// ErrInvalidState indicates a vector holding NaN or Inf entries.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrDimensionMismatch indicates vectors or matrices that do not line up.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between vector and system")

	// ErrInvalidInterval indicates a negative or non-finite time interval.
	ErrInvalidInterval = errors.New("dynamo: time interval must be finite and non-negative")

	// ErrStepTooSmall indicates the adaptive sub-step fell below its minimum.
	ErrStepTooSmall = errors.New("dynamo: adaptive timestep below minimum")

	// ErrStepRejected may be wrapped by assembly strategies to signal that a
	// trial step should be retried with a smaller interval.
	ErrStepRejected = errors.New("dynamo: step rejected")

	// ErrNoSolverMethod indicates a solver configuration without a method.
	ErrNoSolverMethod = errors.New("dynamo: no iterative solver method configured")

	// ErrUnknownSolverMethod indicates an unsupported iterative solver name.
	ErrUnknownSolverMethod = errors.New("dynamo: unknown iterative solver method")

	// ErrInvalidConfig indicates tuning values outside their valid range.
	ErrInvalidConfig = errors.New("dynamo: invalid configuration")

	// ErrNoZones indicates an operation invoked with an empty zone set.
	ErrNoZones = errors.New("dynamo: no zones supplied")

	// ErrNoSolution indicates the exponential propagator produced no result.
	ErrNoSolution = errors.New("dynamo: no solution found")
)

// ZoneError wraps an error with the labels of the zone it occurred in.
type ZoneError struct {
	Labels  [3]string
	Wrapped error
}

func (e *ZoneError) Error() string {
	return "zone (" + e.Labels[0] + ", " + e.Labels[1] + ", " + e.Labels[2] + "): " + e.Wrapped.Error()
}

func (e *ZoneError) Unwrap() error {
	return e.Wrapped
}
