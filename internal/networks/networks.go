package networks

import (
	"fmt"
	"math/rand"

	"github.com/san-kum/hgn/internal/autograd"
)

// Latent is a reparameterised sample together with the parameters of the
// Gaussian it was drawn from.
type Latent struct {
	Sample *autograd.Tensor
	Mean   *autograd.Tensor
	Std    *autograd.Tensor
}

// Encoder maps a flattened rollout [batch, channels*seq_len*H*W] to a latent
// distribution.
type Encoder interface {
	Encode(rollout *autograd.Tensor) (Latent, error)
	Params() []*autograd.Tensor
}

// Transformer maps a latent sample to the initial canonical state.
type Transformer interface {
	ToPhaseSpace(z *autograd.Tensor) (q, p *autograd.Tensor, err error)
	Params() []*autograd.Tensor
}

// Decoder maps a position tensor to a flattened frame [batch, channels*H*W].
type Decoder interface {
	Decode(q *autograd.Tensor) (*autograd.Tensor, error)
	Params() []*autograd.Tensor
}

// NoiseFunc draws one standard normal value.
type NoiseFunc func() float64

// MLPEncoder is tanh hidden layer followed by mean and log-std heads.
type MLPEncoder struct {
	hidden *Linear
	mean   *Linear
	logStd *Linear
	noise  NoiseFunc
}

type EncoderOption func(*MLPEncoder)

// WithNoise replaces the sampling noise source.
func WithNoise(fn NoiseFunc) EncoderOption {
	return func(e *MLPEncoder) { e.noise = fn }
}

// ZeroNoise makes Encode return the mean as the sample.
func ZeroNoise() EncoderOption {
	return WithNoise(func() float64 { return 0 })
}

func NewMLPEncoder(inputDim, hiddenDim, latentDim int, rng *rand.Rand, opts ...EncoderOption) *MLPEncoder {
	e := &MLPEncoder{
		hidden: NewLinear(inputDim, hiddenDim, rng),
		mean:   NewLinear(hiddenDim, latentDim, rng),
		logStd: NewLinear(hiddenDim, latentDim, rng),
		noise:  rng.NormFloat64,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *MLPEncoder) Encode(rollout *autograd.Tensor) (Latent, error) {
	if rollout.Cols() != e.hidden.In() {
		return Latent{}, fmt.Errorf("encoder expects %d features, got %d", e.hidden.In(), rollout.Cols())
	}
	h := autograd.Tanh(e.hidden.Forward(rollout))
	mean := e.mean.Forward(h)
	std := autograd.Exp(e.logStd.Forward(h))

	eps := make([]float64, mean.Len())
	for i := range eps {
		eps[i] = e.noise()
	}
	noise := autograd.New(mean.Rows(), mean.Cols(), eps)
	sample := autograd.Add(mean, autograd.Mul(std, noise))

	return Latent{Sample: sample, Mean: mean, Std: std}, nil
}

func (e *MLPEncoder) Params() []*autograd.Tensor {
	return collect(e.hidden, e.mean, e.logStd)
}

// LinearTransformer projects the latent sample with two independent heads.
type LinearTransformer struct {
	q *Linear
	p *Linear
}

func NewLinearTransformer(latentDim, stateDim int, rng *rand.Rand) *LinearTransformer {
	return &LinearTransformer{
		q: NewLinear(latentDim, stateDim, rng),
		p: NewLinear(latentDim, stateDim, rng),
	}
}

func (t *LinearTransformer) ToPhaseSpace(z *autograd.Tensor) (*autograd.Tensor, *autograd.Tensor, error) {
	if z.Cols() != t.q.In() {
		return nil, nil, fmt.Errorf("transformer expects %d latent features, got %d", t.q.In(), z.Cols())
	}
	return t.q.Forward(z), t.p.Forward(z), nil
}

func (t *LinearTransformer) Params() []*autograd.Tensor {
	return collect(t.q, t.p)
}

// MLPDecoder renders a position with a tanh hidden layer and sigmoid pixels.
type MLPDecoder struct {
	hidden *Linear
	out    *Linear
}

func NewMLPDecoder(stateDim, hiddenDim, frameDim int, rng *rand.Rand) *MLPDecoder {
	return &MLPDecoder{
		hidden: NewLinear(stateDim, hiddenDim, rng),
		out:    NewLinear(hiddenDim, frameDim, rng),
	}
}

func (d *MLPDecoder) Decode(q *autograd.Tensor) (*autograd.Tensor, error) {
	if q.Cols() != d.hidden.In() {
		return nil, fmt.Errorf("decoder expects %d position features, got %d", d.hidden.In(), q.Cols())
	}
	return autograd.Sigmoid(d.out.Forward(autograd.Tanh(d.hidden.Forward(q)))), nil
}

func (d *MLPDecoder) Params() []*autograd.Tensor {
	return collect(d.hidden, d.out)
}
