package config

import "sort"

// Preset adjusts a default configuration.
type Preset func(c *Config)

var Presets = map[string]map[string]Preset{
	"pendulum": {
		"quick": func(c *Config) {
			c.Frame = FrameConfig{Channels: 1, Height: 8, Width: 8}
			c.Network.HiddenDim = 32
			c.Data.Rollouts = 64
			c.Training.Iterations = 300
		},
		"leapfrog": func(c *Config) {
			c.Integrator = "leapfrog"
		},
		"long": func(c *Config) {
			c.SeqLen = 30
			c.Dt = 0.05
			c.Training.Iterations = 5000
		},
	},
	"spring": {
		"bounce": func(c *Config) {
			c.Environment = "spring"
		},
		"stiff": func(c *Config) {
			c.Environment = "spring"
			c.EnvParams = map[string]float64{"stiffness": 8}
			c.Dt = 0.05
		},
	},
	"two_body": {
		"binary": func(c *Config) {
			c.Environment = "two_body"
			c.Network.StateDim = 4
			c.Integrator = "leapfrog"
			c.Dt = 0.1
		},
		"tight": func(c *Config) {
			c.Environment = "two_body"
			c.Network.StateDim = 4
			c.Integrator = "rk4"
			c.EnvParams = map[string]float64{"g": 2}
			c.Dt = 0.05
		},
	},
}

// GetPreset returns the default configuration with a named preset applied,
// or nil when the environment or preset is unknown.
func GetPreset(env, preset string) *Config {
	envPresets, ok := Presets[env]
	if !ok {
		return nil
	}
	apply, ok := envPresets[preset]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	cfg.Environment = env
	cfg.ExperimentID = env + "-" + preset
	apply(cfg)
	return cfg
}

func ListPresets(env string) []string {
	envPresets, ok := Presets[env]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(envPresets))
	for name := range envPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Environments lists the environments that have presets.
func Environments() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
