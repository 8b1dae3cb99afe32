package integrators

import (
	"github.com/san-kum/hgn/internal/autograd"
	"github.com/san-kum/hgn/internal/hamiltonian"
)

// leapfrog is kick-drift-kick: half momentum step, full position step,
// half momentum step at the new position.
func leapfrog(h hamiltonian.Func, q, p *autograd.Tensor, dt float64) (*autograd.Tensor, *autograd.Tensor, error) {
	halfDt := 0.5 * dt

	dHdq, _, err := gradients(h, q, p)
	if err != nil {
		return nil, nil, err
	}
	pHalf := axpy(p, -halfDt, dHdq)

	_, dHdp, err := gradients(h, q, pHalf)
	if err != nil {
		return nil, nil, err
	}
	qNext := axpy(q, dt, dHdp)

	dHdq, _, err = gradients(h, qNext, pHalf)
	if err != nil {
		return nil, nil, err
	}
	pNext := axpy(pHalf, -halfDt, dHdq)

	return qNext, pNext, nil
}
