package integrators

import (
	"github.com/san-kum/hgn/internal/autograd"
	"github.com/san-kum/hgn/internal/hamiltonian"
)

// field evaluates Hamilton's equations: dq/dt = ∂H/∂p, dp/dt = -∂H/∂q.
func field(h hamiltonian.Func, q, p *autograd.Tensor) (*autograd.Tensor, *autograd.Tensor, error) {
	dHdq, dHdp, err := gradients(h, q, p)
	if err != nil {
		return nil, nil, err
	}
	return dHdp, autograd.Neg(dHdq), nil
}

// rk4 is the classical fourth order Runge-Kutta scheme. It is accurate but
// not symplectic; energy drifts slowly over long rollouts.
func rk4(h hamiltonian.Func, q, p *autograd.Tensor, dt float64) (*autograd.Tensor, *autograd.Tensor, error) {
	k1q, k1p, err := field(h, q, p)
	if err != nil {
		return nil, nil, err
	}

	k2q, k2p, err := field(h, axpy(q, 0.5*dt, k1q), axpy(p, 0.5*dt, k1p))
	if err != nil {
		return nil, nil, err
	}

	k3q, k3p, err := field(h, axpy(q, 0.5*dt, k2q), axpy(p, 0.5*dt, k2p))
	if err != nil {
		return nil, nil, err
	}

	k4q, k4p, err := field(h, axpy(q, dt, k3q), axpy(p, dt, k3p))
	if err != nil {
		return nil, nil, err
	}

	dt6 := dt / 6.0
	qNext := axpy(q, dt6, combine(k1q, k2q, k3q, k4q))
	pNext := axpy(p, dt6, combine(k1p, k2p, k3p, k4p))
	return qNext, pNext, nil
}

// combine returns k1 + 2*k2 + 2*k3 + k4.
func combine(k1, k2, k3, k4 *autograd.Tensor) *autograd.Tensor {
	return autograd.Add(autograd.Add(k1, autograd.Scale(autograd.Add(k2, k3), 2)), k4)
}
