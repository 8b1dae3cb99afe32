// Package integrators advances canonical coordinates (q, p) under a
// Hamiltonian energy function.
//
// Each method reads the vector field (∂H/∂p, -∂H/∂q) through autograd and
// keeps the derivatives attached to the graph, so a loss computed after
// many unrolled steps can be backpropagated through every step.
package integrators

import (
	"fmt"
	"sort"

	"github.com/san-kum/hgn/internal/autograd"
	"github.com/san-kum/hgn/internal/dynamo"
	"github.com/san-kum/hgn/internal/hamiltonian"
)

// Method names an integration scheme.
type Method string

const (
	Euler    Method = "euler"
	Leapfrog Method = "leapfrog"
	RK4      Method = "rk4"
)

type stepFunc func(h hamiltonian.Func, q, p *autograd.Tensor, dt float64) (*autograd.Tensor, *autograd.Tensor, error)

var methods = map[Method]stepFunc{
	Euler:    symplecticEuler,
	Leapfrog: leapfrog,
	RK4:      rk4,
}

// Methods lists the supported method names in sorted order.
func Methods() []Method {
	names := make([]Method, 0, len(methods))
	for m := range methods {
		names = append(names, m)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// ParseMethod validates a method name.
func ParseMethod(name string) (Method, error) {
	m := Method(name)
	if _, ok := methods[m]; !ok {
		return "", fmt.Errorf("%w: %q (available: %v)", dynamo.ErrUnsupportedMethod, name, Methods())
	}
	return m, nil
}

// Integrator advances (q, p) by a fixed dt with one method.
type Integrator struct {
	method Method
	dt     float64
	step   stepFunc
}

// New validates the method and step size up front, so a bad configuration
// fails before any rollout.
func New(method string, dt float64) (*Integrator, error) {
	m, err := ParseMethod(method)
	if err != nil {
		return nil, err
	}
	if dt <= 0 {
		return nil, fmt.Errorf("%w: got %g", dynamo.ErrInvalidStep, dt)
	}
	return &Integrator{method: m, dt: dt, step: methods[m]}, nil
}

func (i *Integrator) Method() Method { return i.method }
func (i *Integrator) Dt() float64    { return i.dt }

// Step returns the next (q, p). Inputs are not modified; untracked inputs
// are wrapped in tracked views so the energy gradients exist.
func (i *Integrator) Step(q, p *autograd.Tensor, h hamiltonian.Func) (*autograd.Tensor, *autograd.Tensor, error) {
	if !q.SameShape(p) {
		return nil, nil, fmt.Errorf("%w: q is %dx%d, p is %dx%d", dynamo.ErrShapeMismatch, q.Rows(), q.Cols(), p.Rows(), p.Cols())
	}
	return i.step(h, q.Track(), p.Track(), i.dt)
}

// gradients returns the partial derivatives ∂H/∂q and ∂H/∂p of the batch
// energy, still attached to the graph.
func gradients(h hamiltonian.Func, q, p *autograd.Tensor) (*autograd.Tensor, *autograd.Tensor, error) {
	total, err := hamiltonian.Total(h, q, p)
	if err != nil {
		return nil, nil, err
	}
	grads, err := autograd.Grad(total, []*autograd.Tensor{q, p}, true)
	if err != nil {
		return nil, nil, err
	}
	return grads[0], grads[1], nil
}

// axpy returns x + a*y.
func axpy(x *autograd.Tensor, a float64, y *autograd.Tensor) *autograd.Tensor {
	return autograd.Add(x, autograd.Scale(y, a))
}
