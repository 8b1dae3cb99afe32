package config

import (
	"fmt"
	"os"

	"github.com/san-kum/hgn/internal/hgn"
	"github.com/san-kum/hgn/internal/integrators"
	"github.com/san-kum/hgn/internal/losses"
	"github.com/san-kum/hgn/internal/physics"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDt           = 0.1
	DefaultSeqLen       = 10
	DefaultChannels     = 3
	DefaultFrameSize    = 16
	DefaultLatentDim    = 16
	DefaultStateDim     = 2
	DefaultHiddenDim    = 64
	DefaultLearningRate = 1.5e-4
	DefaultIterations   = 2000
	DefaultBatchSize    = 8
	DefaultRollouts     = 256
	DefaultSubsteps     = 10
	DefaultLossFreq     = 10
	DefaultRolloutFreq  = 100
)

type Config struct {
	ExperimentID string             `yaml:"experiment_id"`
	Environment  string             `yaml:"environment"`
	EnvParams    map[string]float64 `yaml:"env_params,omitempty"`
	Integrator   string             `yaml:"integrator"`
	Dt           float64            `yaml:"dt"`
	SeqLen       int                `yaml:"seq_len"`
	Seed         int64              `yaml:"seed"`
	Frame        FrameConfig        `yaml:"frame"`
	Network      NetworkConfig      `yaml:"network"`
	Training     TrainingConfig     `yaml:"training"`
	Data         DataConfig         `yaml:"data"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type FrameConfig struct {
	Channels int `yaml:"channels"`
	Height   int `yaml:"height"`
	Width    int `yaml:"width"`
}

type NetworkConfig struct {
	LatentDim int `yaml:"latent_dim"`
	StateDim  int `yaml:"state_dim"`
	HiddenDim int `yaml:"hidden_dim"`
}

type TrainingConfig struct {
	Optimizer    string  `yaml:"optimizer"`
	LearningRate float64 `yaml:"learning_rate"`
	Loss         string  `yaml:"loss"`
	KLWeight     float64 `yaml:"kl_weight"`
	Iterations   int     `yaml:"iterations"`
	BatchSize    int     `yaml:"batch_size"`
}

type DataConfig struct {
	Rollouts int `yaml:"rollouts"`
	Substeps int `yaml:"substeps"`
}

type LoggingConfig struct {
	LossFreq    int    `yaml:"loss_freq"`
	RolloutFreq int    `yaml:"rollout_freq"`
	OutputDir   string `yaml:"output_dir"`
}

func DefaultConfig() *Config {
	return &Config{
		ExperimentID: "default",
		Environment:  "pendulum",
		Integrator:   string(integrators.Euler),
		Dt:           DefaultDt,
		SeqLen:       DefaultSeqLen,
		Seed:         1,
		Frame: FrameConfig{
			Channels: DefaultChannels,
			Height:   DefaultFrameSize,
			Width:    DefaultFrameSize,
		},
		Network: NetworkConfig{
			LatentDim: DefaultLatentDim,
			StateDim:  DefaultStateDim,
			HiddenDim: DefaultHiddenDim,
		},
		Training: TrainingConfig{
			Optimizer:    "adam",
			LearningRate: DefaultLearningRate,
			Loss:         "mse",
			KLWeight:     0,
			Iterations:   DefaultIterations,
			BatchSize:    DefaultBatchSize,
		},
		Data: DataConfig{
			Rollouts: DefaultRollouts,
			Substeps: DefaultSubsteps,
		},
		Logging: LoggingConfig{
			LossFreq:    DefaultLossFreq,
			RolloutFreq: DefaultRolloutFreq,
			OutputDir:   "runs",
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	if c.EnvParams != nil {
		cp.EnvParams = make(map[string]float64, len(c.EnvParams))
		for k, v := range c.EnvParams {
			cp.EnvParams[k] = v
		}
	}
	return &cp
}

func (c *Config) Validate() error {
	if _, err := physics.Get(c.Environment); err != nil {
		return err
	}
	if _, err := integrators.ParseMethod(c.Integrator); err != nil {
		return err
	}
	if _, err := losses.Get(c.Training.Loss); err != nil {
		return err
	}
	switch c.Training.Optimizer {
	case "sgd", "adam":
	default:
		return fmt.Errorf("unknown optimizer %q", c.Training.Optimizer)
	}

	positive := []struct {
		name  string
		value float64
	}{
		{"dt", c.Dt},
		{"seq_len", float64(c.SeqLen)},
		{"frame.height", float64(c.Frame.Height)},
		{"frame.width", float64(c.Frame.Width)},
		{"network.latent_dim", float64(c.Network.LatentDim)},
		{"network.state_dim", float64(c.Network.StateDim)},
		{"network.hidden_dim", float64(c.Network.HiddenDim)},
		{"training.learning_rate", c.Training.LearningRate},
		{"training.iterations", float64(c.Training.Iterations)},
		{"training.batch_size", float64(c.Training.BatchSize)},
		{"data.rollouts", float64(c.Data.Rollouts)},
		{"data.substeps", float64(c.Data.Substeps)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %g", p.name, p.value)
		}
	}

	if c.Frame.Channels != 1 && c.Frame.Channels != 3 {
		return fmt.Errorf("frame.channels must be 1 or 3, got %d", c.Frame.Channels)
	}
	if c.Training.KLWeight < 0 {
		return fmt.Errorf("training.kl_weight must be non-negative, got %g", c.Training.KLWeight)
	}
	if c.Logging.LossFreq < 0 || c.Logging.RolloutFreq < 0 {
		return fmt.Errorf("logging frequencies must be non-negative")
	}
	return nil
}

// HyperParameters is the snapshot handed to the model.
func (c *Config) HyperParameters() hgn.HyperParameters {
	return hgn.HyperParameters{
		ExperimentID: c.ExperimentID,
		Dt:           c.Dt,
		Method:       c.Integrator,
		SeqLen:       c.SeqLen,
		Channels:     c.Frame.Channels,
		Height:       c.Frame.Height,
		Width:        c.Frame.Width,
		KLWeight:     c.Training.KLWeight,
	}
}
