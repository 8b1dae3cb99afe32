// Package hamiltonian defines learned and analytic energy functions over
// canonical coordinates.
//
// An energy function takes batched position and momentum tensors of equal
// shape [batch, dim] and returns one energy per batch element [batch, 1].
// Results are built from autograd ops so dH/dq and dH/dp are available
// through autograd.Grad.
package hamiltonian

import (
	"fmt"
	"math/rand"

	"github.com/san-kum/hgn/internal/autograd"
	"github.com/san-kum/hgn/internal/dynamo"
	"github.com/san-kum/hgn/internal/networks"
)

// Func is a differentiable scalar energy H(q, p) per batch element.
type Func interface {
	Energy(q, p *autograd.Tensor) (*autograd.Tensor, error)
}

func checkShapes(q, p *autograd.Tensor) error {
	if !q.SameShape(p) {
		return fmt.Errorf("%w: q is %dx%d, p is %dx%d", dynamo.ErrShapeMismatch, q.Rows(), q.Cols(), p.Rows(), p.Cols())
	}
	return nil
}

// Network is an MLP energy: tanh(q·Wq + p·Wp + b1) -> tanh(·W2 + b2) -> ·W3 + b3.
type Network struct {
	wq, wp *autograd.Tensor
	b1     *autograd.Tensor
	hidden *networks.Linear
	out    *networks.Linear
}

func NewNetwork(stateDim, hiddenDim int, rng *rand.Rand) *Network {
	in := networks.NewLinear(2*stateDim, hiddenDim, rng)
	w := in.W.Data()

	// split the joint input layer so q and p never need concatenating
	wq := make([]float64, stateDim*hiddenDim)
	wp := make([]float64, stateDim*hiddenDim)
	copy(wq, w[:stateDim*hiddenDim])
	copy(wp, w[stateDim*hiddenDim:])

	return &Network{
		wq:     autograd.Param(stateDim, hiddenDim, wq),
		wp:     autograd.Param(stateDim, hiddenDim, wp),
		b1:     in.B,
		hidden: networks.NewLinear(hiddenDim, hiddenDim, rng),
		out:    networks.NewLinear(hiddenDim, 1, rng),
	}
}

func (n *Network) Energy(q, p *autograd.Tensor) (*autograd.Tensor, error) {
	if err := checkShapes(q, p); err != nil {
		return nil, err
	}
	if q.Cols() != n.wq.Rows() {
		return nil, fmt.Errorf("%w: network expects %d coordinates, got %d", dynamo.ErrShapeMismatch, n.wq.Rows(), q.Cols())
	}
	h := autograd.Tanh(autograd.AddBias(autograd.Add(autograd.MatMul(q, n.wq), autograd.MatMul(p, n.wp)), n.b1))
	h = autograd.Tanh(n.hidden.Forward(h))
	return n.out.Forward(h), nil
}

func (n *Network) Params() []*autograd.Tensor {
	params := []*autograd.Tensor{n.wq, n.wp, n.b1}
	params = append(params, n.hidden.Params()...)
	return append(params, n.out.Params()...)
}

// Harmonic is the unit harmonic oscillator H = ½Σ(q² + p²).
type Harmonic struct{}

func (Harmonic) Energy(q, p *autograd.Tensor) (*autograd.Tensor, error) {
	if err := checkShapes(q, p); err != nil {
		return nil, err
	}
	return autograd.Scale(autograd.SumCols(autograd.Add(autograd.Mul(q, q), autograd.Mul(p, p))), 0.5), nil
}

// Zero is the constant-zero energy: no forces, no motion.
type Zero struct{}

func (Zero) Energy(q, p *autograd.Tensor) (*autograd.Tensor, error) {
	if err := checkShapes(q, p); err != nil {
		return nil, err
	}
	return autograd.Zeros(q.Rows(), 1), nil
}

// Total sums the per-element energies of a batch into a 1x1 tensor.
func Total(h Func, q, p *autograd.Tensor) (*autograd.Tensor, error) {
	e, err := h.Energy(q, p)
	if err != nil {
		return nil, err
	}
	return autograd.Sum(e), nil
}
