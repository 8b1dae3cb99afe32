package experiment

import (
	"fmt"
	"math/rand"

	"github.com/san-kum/hgn/internal/config"
	"github.com/san-kum/hgn/internal/hamiltonian"
	"github.com/san-kum/hgn/internal/hgn"
	"github.com/san-kum/hgn/internal/integrators"
	"github.com/san-kum/hgn/internal/losses"
	"github.com/san-kum/hgn/internal/networks"
	"github.com/san-kum/hgn/internal/optim"
	"github.com/san-kum/hgn/internal/physics"
)

// BuildEnvironment returns the configured ground-truth environment and a
// renderer for its frames.
func BuildEnvironment(cfg *config.Config) (physics.Environment, *physics.Renderer, error) {
	env, err := physics.Get(cfg.Environment)
	if err != nil {
		return nil, nil, err
	}
	if err := physics.ApplyParams(env, cfg.EnvParams); err != nil {
		return nil, nil, err
	}
	r, err := physics.NewRenderer(cfg.Frame.Height, cfg.Frame.Width, cfg.Frame.Channels)
	if err != nil {
		return nil, nil, err
	}
	return env, r, nil
}

// BuildComponents creates freshly initialised networks and the training
// collaborators described by cfg. Weights are drawn from cfg.Seed.
func BuildComponents(cfg *config.Config) (hgn.Components, error) {
	rng := rand.New(rand.NewSource(cfg.Seed))
	frame := cfg.Frame.Channels * cfg.Frame.Height * cfg.Frame.Width
	n := cfg.Network

	integ, err := integrators.New(cfg.Integrator, cfg.Dt)
	if err != nil {
		return hgn.Components{}, err
	}
	loss, err := losses.Get(cfg.Training.Loss)
	if err != nil {
		return hgn.Components{}, err
	}

	c := hgn.Components{
		Encoder:     networks.NewMLPEncoder(frame*cfg.SeqLen, n.HiddenDim, n.LatentDim, rng),
		Transformer: networks.NewLinearTransformer(n.LatentDim, n.StateDim, rng),
		Hamiltonian: hamiltonian.NewNetwork(n.StateDim, n.HiddenDim, rng),
		Decoder:     networks.NewMLPDecoder(n.StateDim, n.HiddenDim, frame, rng),
		Integrator:  integ,
		Loss:        loss,
	}

	c.Optimizer, err = optim.New(cfg.Training.Optimizer, hgn.Parameters(c), cfg.Training.LearningRate)
	if err != nil {
		return hgn.Components{}, err
	}
	return c, nil
}

// BuildModel validates cfg and returns a fully injected model.
func BuildModel(cfg *config.Config) (*hgn.Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	c, err := BuildComponents(cfg)
	if err != nil {
		return nil, err
	}
	return hgn.New(cfg.HyperParameters(), c)
}
