package physics

import "github.com/san-kum/hgn/internal/dynamo"

// RK4 is the classical Runge-Kutta stepper for ground-truth rollouts. It
// reuses scratch buffers and is not safe for concurrent use.
type RK4 struct {
	k1, k2, k3, k4 dynamo.State
	scratch        dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make(dynamo.State, n)
		r.k2 = make(dynamo.State, n)
		r.k3 = make(dynamo.State, n)
		r.k4 = make(dynamo.State, n)
		r.scratch = make(dynamo.State, n)
	}
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
	n := len(x)
	r.ensureScratch(n)

	copy(r.k1, dyn.Derive(x, t))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k1[i]
	}
	copy(r.k2, dyn.Derive(r.scratch, t+dt*0.5))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k2[i]
	}
	copy(r.k3, dyn.Derive(r.scratch, t+dt*0.5))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*r.k3[i]
	}
	copy(r.k4, dyn.Derive(r.scratch, t+dt))

	result := make(dynamo.State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}

	return result
}

// Simulate integrates x0 and returns steps+1 states spaced dt apart. Each
// interval is split into substeps stepper calls.
func Simulate(dyn dynamo.System, x0 dynamo.State, stepper dynamo.Stepper, dt float64, steps, substeps int) []dynamo.State {
	if substeps < 1 {
		substeps = 1
	}
	h := dt / float64(substeps)

	states := make([]dynamo.State, 0, steps+1)
	x := x0.Clone()
	states = append(states, x)

	t := 0.0
	for i := 0; i < steps; i++ {
		for j := 0; j < substeps; j++ {
			x = stepper.Step(dyn, x, t, h)
			t += h
		}
		states = append(states, x)
	}
	return states
}
