package networks

import (
	"math"
	"math/rand"

	"github.com/san-kum/hgn/internal/autograd"
)

// Linear is an affine layer y = x·W + b.
type Linear struct {
	W *autograd.Tensor
	B *autograd.Tensor
}

// NewLinear initialises W with Glorot-uniform values and b with zeros.
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	limit := math.Sqrt(6.0 / float64(in+out))
	w := make([]float64, in*out)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * limit
	}
	return &Linear{
		W: autograd.Param(in, out, w),
		B: autograd.Param(1, out, make([]float64, out)),
	}
}

func (l *Linear) Forward(x *autograd.Tensor) *autograd.Tensor {
	return autograd.AddBias(autograd.MatMul(x, l.W), l.B)
}

func (l *Linear) In() int  { return l.W.Rows() }
func (l *Linear) Out() int { return l.W.Cols() }

func (l *Linear) Params() []*autograd.Tensor {
	return []*autograd.Tensor{l.W, l.B}
}

// collect flattens the parameters of several layers.
func collect(layers ...*Linear) []*autograd.Tensor {
	params := make([]*autograd.Tensor, 0, 2*len(layers))
	for _, l := range layers {
		params = append(params, l.Params()...)
	}
	return params
}
