package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors shared across the model, integrators and training loop.
var (
	// ErrInvalidInputShape indicates a rollout whose channel axis is not channels*seq_len.
	ErrInvalidInputShape = errors.New("dynamo: rollout channel dimension must equal channels*seq_len")

	// ErrShapeMismatch indicates position and momentum tensors of different shapes.
	ErrShapeMismatch = errors.New("dynamo: position and momentum shapes differ")

	// ErrUnsupportedMethod indicates an unknown integration method name.
	ErrUnsupportedMethod = errors.New("dynamo: unsupported integration method")

	// ErrNotImplemented is returned by persistence operations.
	ErrNotImplemented = errors.New("dynamo: not implemented")

	// ErrInvalidStep indicates a non-positive integration step.
	ErrInvalidStep = errors.New("dynamo: integration step must be positive")

	// ErrInvalidState indicates a state with NaN or Inf values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrMissingComponent indicates a model built without one of its collaborators.
	ErrMissingComponent = errors.New("dynamo: missing model component")

	// ErrContextCanceled indicates training was interrupted.
	ErrContextCanceled = errors.New("dynamo: training canceled by context")
)

// TrainingError wraps an error with the iteration that produced it.
type TrainingError struct {
	Iteration int
	Phase     string
	Wrapped   error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("iteration %d (%s): %v", e.Iteration, e.Phase, e.Wrapped)
}

func (e *TrainingError) Unwrap() error {
	return e.Wrapped
}
