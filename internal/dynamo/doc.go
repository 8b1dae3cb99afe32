// Package dynamo holds the primitives shared by the model and its data
// pipeline.
//
//   - the error taxonomy ([ErrInvalidInputShape], [ErrShapeMismatch],
//     [ErrUnsupportedMethod], [ErrNotImplemented]) and [TrainingError]
//   - ground-truth ODE types used to synthesise rollouts: [State],
//     [System], [Hamiltonian] and [Stepper]
//   - [ParallelFor] for data-parallel work across independent rollouts
//
// # Errors
//
// Every error returned by the model wraps one of the sentinels so callers
// can branch with errors.Is:
//
//	traj, err := model.Forward(rollout)
//	if errors.Is(err, dynamo.ErrInvalidInputShape) {
//	    // malformed batch, nothing was computed
//	}
package dynamo
