// Package hgn composes an encoder, a transformer, a Hamiltonian energy, an
// integrator and a decoder into a generative model of image sequences.
//
// A forward pass encodes a rollout into a latent sample, maps it to an
// initial (q, p), integrates that state through the learned energy and
// decodes every position into a frame:
//
//	traj, err := model.Forward(rollout, hgn.WithSteps(30))
//
// Training differentiates the reconstruction loss through every unrolled
// integration step.
package hgn

import (
	"fmt"

	"github.com/san-kum/hgn/internal/autograd"
	"github.com/san-kum/hgn/internal/dynamo"
	"github.com/san-kum/hgn/internal/hamiltonian"
	"github.com/san-kum/hgn/internal/integrators"
	"github.com/san-kum/hgn/internal/losses"
	"github.com/san-kum/hgn/internal/networks"
	"github.com/san-kum/hgn/internal/optim"
	"gorgonia.org/tensor"
)

// HyperParameters is the configuration snapshot the model is built with.
type HyperParameters struct {
	ExperimentID string
	Dt           float64
	Method       string
	SeqLen       int
	Channels     int
	Height       int
	Width        int
	KLWeight     float64
}

func (hp HyperParameters) validate() error {
	if hp.SeqLen < 1 {
		return fmt.Errorf("seq_len must be positive, got %d", hp.SeqLen)
	}
	if hp.Channels < 1 || hp.Height < 1 || hp.Width < 1 {
		return fmt.Errorf("frame shape must be positive, got %dx%dx%d", hp.Channels, hp.Height, hp.Width)
	}
	if hp.KLWeight < 0 {
		return fmt.Errorf("kl_weight must be non-negative, got %g", hp.KLWeight)
	}
	return nil
}

// Components are the collaborators injected into the model.
type Components struct {
	Encoder     networks.Encoder
	Transformer networks.Transformer
	Hamiltonian hamiltonian.Func
	Decoder     networks.Decoder
	Integrator  *integrators.Integrator
	Optimizer   optim.Optimizer
	Loss        losses.Reconstruction
}

type parameterised interface {
	Params() []*autograd.Tensor
}

// Parameters collects the trainable tensors of the networks in c, so the
// optimizer can be built before the model.
func Parameters(c Components) []*autograd.Tensor {
	params := make([]*autograd.Tensor, 0)
	for _, part := range []any{c.Encoder, c.Transformer, c.Hamiltonian, c.Decoder} {
		if p, ok := part.(parameterised); ok {
			params = append(params, p.Params()...)
		}
	}
	return params
}

// Losses are the scalar terms of one evaluation.
type Losses struct {
	Reconstruction float64
	KL             float64
	Total          float64
}

// Model is a Hamiltonian generative network built from injected components.
type Model struct {
	hp         HyperParameters
	encoder    networks.Encoder
	transform  networks.Transformer
	hnn        hamiltonian.Func
	decoder    networks.Decoder
	integrator *integrators.Integrator
	optimizer  optim.Optimizer
	loss       losses.Reconstruction
	params     []*autograd.Tensor
}

// New validates hp and wires the components into a model. Every component
// is required, and the integrator must match hp's method and dt.
func New(hp HyperParameters, c Components) (*Model, error) {
	if err := hp.validate(); err != nil {
		return nil, err
	}

	required := []struct {
		name    string
		missing bool
	}{
		{"encoder", c.Encoder == nil},
		{"transformer", c.Transformer == nil},
		{"hamiltonian", c.Hamiltonian == nil},
		{"decoder", c.Decoder == nil},
		{"integrator", c.Integrator == nil},
		{"optimizer", c.Optimizer == nil},
		{"loss", c.Loss == nil},
	}
	for _, r := range required {
		if r.missing {
			return nil, fmt.Errorf("%w: %s", dynamo.ErrMissingComponent, r.name)
		}
	}

	if string(c.Integrator.Method()) != hp.Method || c.Integrator.Dt() != hp.Dt {
		return nil, fmt.Errorf("integrator is %s/dt=%g but hyper-parameters say %s/dt=%g",
			c.Integrator.Method(), c.Integrator.Dt(), hp.Method, hp.Dt)
	}

	return &Model{
		hp:         hp,
		encoder:    c.Encoder,
		transform:  c.Transformer,
		hnn:        c.Hamiltonian,
		decoder:    c.Decoder,
		integrator: c.Integrator,
		optimizer:  c.Optimizer,
		loss:       c.Loss,
		params:     Parameters(c),
	}, nil
}

// HyperParameters returns the snapshot the model was built with.
func (m *Model) HyperParameters() HyperParameters { return m.hp }

// Hamiltonian returns the learned energy function.
func (m *Model) Hamiltonian() hamiltonian.Func { return m.hnn }

// Optimizer returns the optimizer stepped by Fit.
func (m *Model) Optimizer() optim.Optimizer { return m.optimizer }

// Parameters returns the trainable tensors in a stable order.
func (m *Model) Parameters() []*autograd.Tensor { return m.params }

type forwardOptions struct {
	steps int
}

type ForwardOption func(*forwardOptions)

// WithSteps overrides the number of integration steps (default seq_len).
func WithSteps(n int) ForwardOption {
	return func(o *forwardOptions) { o.steps = n }
}

// flatten validates the rollout layout and returns it as [batch, features].
func (m *Model) flatten(rollout *tensor.Dense) (*autograd.Tensor, error) {
	if rollout == nil {
		return nil, fmt.Errorf("%w: nil rollout", dynamo.ErrInvalidInputShape)
	}
	shape := rollout.Shape()
	want := m.hp.Channels * m.hp.SeqLen
	if len(shape) != 4 {
		return nil, fmt.Errorf("%w: expected (batch, %d, %d, %d), got %v", dynamo.ErrInvalidInputShape, want, m.hp.Height, m.hp.Width, shape)
	}
	if shape[1] != want {
		return nil, fmt.Errorf("%w: channel dimension %d, want %d*%d=%d", dynamo.ErrInvalidInputShape, shape[1], m.hp.Channels, m.hp.SeqLen, want)
	}
	if shape[2] != m.hp.Height || shape[3] != m.hp.Width {
		return nil, fmt.Errorf("%w: frame %dx%d, want %dx%d", dynamo.ErrInvalidInputShape, shape[2], shape[3], m.hp.Height, m.hp.Width)
	}
	if shape[0] < 1 {
		return nil, fmt.Errorf("%w: empty batch", dynamo.ErrInvalidInputShape)
	}
	if rollout.Dtype() != tensor.Float64 {
		return nil, fmt.Errorf("%w: dtype %v, want float64", dynamo.ErrInvalidInputShape, rollout.Dtype())
	}
	data, ok := rollout.Data().([]float64)
	if !ok || len(data) != shape.TotalSize() {
		return nil, fmt.Errorf("%w: rollout is not a contiguous float64 tensor", dynamo.ErrInvalidInputShape)
	}
	return autograd.New(shape[0], shape.TotalSize()/shape[0], data), nil
}

// Forward encodes the rollout, integrates the latent state for the given
// number of steps and decodes every position. The returned trajectory holds
// steps+1 states and frames.
func (m *Model) Forward(rollout *tensor.Dense, opts ...ForwardOption) (*Trajectory, error) {
	o := forwardOptions{steps: m.hp.SeqLen}
	for _, opt := range opts {
		opt(&o)
	}
	if o.steps < 0 {
		return nil, fmt.Errorf("steps must be non-negative, got %d", o.steps)
	}

	flat, err := m.flatten(rollout)
	if err != nil {
		return nil, err
	}

	latent, err := m.encoder.Encode(flat)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	q, p, err := m.transform.ToPhaseSpace(latent.Sample)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	if !q.SameShape(p) {
		return nil, fmt.Errorf("transform: %w", dynamo.ErrShapeMismatch)
	}

	traj := NewTrajectory(rollout, latent, m.hp.Channels, m.hp.Height, m.hp.Width, o.steps+1)

	frame, err := m.decode(q)
	if err != nil {
		return nil, err
	}
	traj.Append(q, p, frame)

	q, p = q.Track(), p.Track()
	for i := 0; i < o.steps; i++ {
		q, p, err = m.integrator.Step(q, p, m.hnn)
		if err != nil {
			return nil, fmt.Errorf("integrate step %d: %w", i+1, err)
		}

		frame, err = m.decode(q)
		if err != nil {
			return nil, err
		}
		traj.Append(q, p, frame)
	}

	return traj, nil
}

func (m *Model) decode(q *autograd.Tensor) (*autograd.Tensor, error) {
	frame, err := m.decoder.Decode(q)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	want := m.hp.Channels * m.hp.Height * m.hp.Width
	if frame.Rows() != q.Rows() || frame.Cols() != want {
		return nil, fmt.Errorf("decode: frame is %dx%d, want %dx%d", frame.Rows(), frame.Cols(), q.Rows(), want)
	}
	return frame, nil
}

// objective returns reconstruction + kl_weight*KL as a graph node.
func (m *Model) objective(traj *Trajectory) (*autograd.Tensor, Losses, error) {
	observed := traj.InputFrames()
	reconstructed := traj.Reconstructions
	if len(reconstructed) > len(observed) {
		reconstructed = reconstructed[:len(observed)]
	}

	rec, err := m.loss.Loss(observed, reconstructed)
	if err != nil {
		return nil, Losses{}, fmt.Errorf("%s loss: %w", m.loss.Name(), err)
	}
	kl, err := losses.KLDivergence(traj.Latent.Mean, traj.Latent.Std)
	if err != nil {
		return nil, Losses{}, fmt.Errorf("kl: %w", err)
	}

	total := rec
	if m.hp.KLWeight > 0 {
		total = autograd.Add(rec, autograd.Scale(kl, m.hp.KLWeight))
	}
	return total, Losses{Reconstruction: rec.Item(), KL: kl.Item(), Total: total.Item()}, nil
}

// fitSteps aligns the reconstructions one-to-one with the seq_len inputs.
func (m *Model) fitSteps() int { return m.hp.SeqLen - 1 }

// Fit runs one optimisation step on a batch and returns the losses measured
// before the update.
func (m *Model) Fit(rollout *tensor.Dense) (Losses, *Trajectory, error) {
	m.optimizer.ZeroGrad()

	traj, err := m.Forward(rollout, WithSteps(m.fitSteps()))
	if err != nil {
		return Losses{}, nil, err
	}

	total, l, err := m.objective(traj)
	if err != nil {
		return Losses{}, nil, err
	}

	if err := autograd.Backward(total, m.params); err != nil {
		return Losses{}, nil, fmt.Errorf("backward: %w", err)
	}
	m.optimizer.Step()

	return l, traj, nil
}

// Evaluate computes the training losses without touching the parameters.
func (m *Model) Evaluate(rollout *tensor.Dense) (Losses, *Trajectory, error) {
	traj, err := m.Forward(rollout, WithSteps(m.fitSteps()))
	if err != nil {
		return Losses{}, nil, err
	}
	_, l, err := m.objective(traj)
	if err != nil {
		return Losses{}, nil, err
	}
	return l, traj, nil
}

// Load restores model weights. There is no checkpoint format yet.
func (m *Model) Load(name string) error {
	return fmt.Errorf("load %q: %w", name, dynamo.ErrNotImplemented)
}

// Save persists model weights. There is no checkpoint format yet.
func (m *Model) Save(name string) error {
	return fmt.Errorf("save %q: %w", name, dynamo.ErrNotImplemented)
}
