package hgn

import (
	"github.com/san-kum/hgn/internal/autograd"
	"github.com/san-kum/hgn/internal/networks"
	"gorgonia.org/tensor"
)

// LatentDistribution is the encoder output: mean, std and one
// reparameterised sample shared by every downstream step.
type LatentDistribution = networks.Latent

// PhaseState is (q, p) at one time index, both [batch, stateDim].
type PhaseState struct {
	Q *autograd.Tensor
	P *autograd.Tensor
}

// Trajectory is the result of one forward pass. States and
// Reconstructions are in time order and always have the same length; index
// 0 comes from the transformer, the rest from integration.
type Trajectory struct {
	Input           *tensor.Dense
	Latent          LatentDistribution
	States          []PhaseState
	Reconstructions []*autograd.Tensor

	channels, height, width int
}

// NewTrajectory returns an empty trajectory for frames of the given shape.
func NewTrajectory(input *tensor.Dense, latent LatentDistribution, channels, height, width, capacity int) *Trajectory {
	return &Trajectory{
		Input:           input,
		Latent:          latent,
		States:          make([]PhaseState, 0, capacity),
		Reconstructions: make([]*autograd.Tensor, 0, capacity),
		channels:        channels,
		height:          height,
		width:           width,
	}
}

// Append adds one state and its decoded frame.
func (t *Trajectory) Append(q, p, frame *autograd.Tensor) {
	t.States = append(t.States, PhaseState{Q: q, P: p})
	t.Reconstructions = append(t.Reconstructions, frame)
}

// Len is the number of time steps, initial state included.
func (t *Trajectory) Len() int { return len(t.States) }

// BatchSize is the number of rollouts in the pass.
func (t *Trajectory) BatchSize() int {
	if t.Input == nil {
		return 0
	}
	return t.Input.Shape()[0]
}

func (t *Trajectory) frameSize() int { return t.channels * t.height * t.width }

// InputFrames splits the input rollout into per-step constant tensors
// shaped like the reconstructions.
func (t *Trajectory) InputFrames() []*autograd.Tensor {
	shape := t.Input.Shape()
	batch, steps := shape[0], shape[1]/t.channels
	frame := t.frameSize()
	data := t.Input.Data().([]float64)

	frames := make([]*autograd.Tensor, steps)
	for s := 0; s < steps; s++ {
		buf := make([]float64, batch*frame)
		for n := 0; n < batch; n++ {
			src := n*steps*frame + s*frame
			copy(buf[n*frame:(n+1)*frame], data[src:src+frame])
		}
		frames[s] = autograd.New(batch, frame, buf)
	}
	return frames
}

// ReconstructedRollout stacks the reconstructions back into the input
// layout (batch, channels*steps, H, W). The result is detached.
func (t *Trajectory) ReconstructedRollout() *tensor.Dense {
	steps := len(t.Reconstructions)
	batch := t.BatchSize()
	frame := t.frameSize()

	buf := make([]float64, batch*steps*frame)
	for s, rec := range t.Reconstructions {
		data := rec.Data()
		for n := 0; n < batch; n++ {
			dst := n*steps*frame + s*frame
			copy(buf[dst:dst+frame], data[n*frame:(n+1)*frame])
		}
	}
	return tensor.New(
		tensor.WithShape(batch, t.channels*steps, t.height, t.width),
		tensor.WithBacking(buf),
	)
}

// Positions returns q for batch element n at every step.
func (t *Trajectory) Positions(n int) [][]float64 {
	out := make([][]float64, len(t.States))
	for i, s := range t.States {
		out[i] = s.Q.Row(n)
	}
	return out
}

// Momenta returns p for batch element n at every step.
func (t *Trajectory) Momenta(n int) [][]float64 {
	out := make([][]float64, len(t.States))
	for i, s := range t.States {
		out[i] = s.P.Row(n)
	}
	return out
}
