package dynamo

import "math"

// State is a ground-truth phase vector laid out as [q..., p...].
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Split returns the position and momentum halves.
func (s State) Split() (q, p []float64) {
	half := len(s) / 2
	return s[:half], s[half:]
}

// System is an ODE dX/dt = f(X, t) used to generate training rollouts.
type System interface {
	Derive(x State, t float64) State
	StateDim() int
}

// Hamiltonian reports the total energy of a ground-truth state.
type Hamiltonian interface {
	Energy(x State) float64
}

// Stepper advances a ground-truth state by dt.
type Stepper interface {
	Step(dyn System, x State, t, dt float64) State
}
