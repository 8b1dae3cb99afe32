// Package physics provides the ground-truth environments used to generate
// training rollouts.
//
// Each environment is a canonical Hamiltonian system with state laid out as
// [q..., p...]. It implements [dynamo.System] for integration,
// [dynamo.Hamiltonian] for energy checks and knows where its visible objects
// are so a [Renderer] can turn a state into a frame:
//
//   - [Pendulum]: frictionless pendulum, one bob
//   - [SpringMass]: masses on springs along a line
//   - [NBody]: planar gravitational bodies (two by default)
//
// Rollouts are integrated with [RK4] at a fine internal step and sampled at
// the training dt:
//
//	env, _ := physics.Get("pendulum")
//	states := physics.Simulate(env, env.SampleInitial(rng), physics.NewRK4(), 0.1, 30, 10)
package physics
