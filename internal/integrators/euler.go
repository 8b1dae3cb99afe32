package integrators

import (
	"github.com/san-kum/hgn/internal/autograd"
	"github.com/san-kum/hgn/internal/hamiltonian"
)

// symplecticEuler kicks the momentum with the force at the current position,
// then drifts the position with the updated momentum.
func symplecticEuler(h hamiltonian.Func, q, p *autograd.Tensor, dt float64) (*autograd.Tensor, *autograd.Tensor, error) {
	dHdq, _, err := gradients(h, q, p)
	if err != nil {
		return nil, nil, err
	}
	pNext := axpy(p, -dt, dHdq)

	_, dHdp, err := gradients(h, q, pNext)
	if err != nil {
		return nil, nil, err
	}
	qNext := axpy(q, dt, dHdp)

	return qNext, pNext, nil
}
