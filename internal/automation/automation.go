// Package automation runs scripted sequences of training runs.
package automation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/san-kum/hgn/internal/config"
	"github.com/san-kum/hgn/internal/dynamo"
	"github.com/san-kum/hgn/internal/experiment"
	"github.com/san-kum/hgn/internal/metrics"
	"github.com/san-kum/hgn/internal/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Scenario defines a scripted training sequence
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is a single training run. The configuration is built from
// the preset (or defaults), then Config, then Overrides.
type ScenarioStep struct {
	Name        string             `yaml:"name"`
	Environment string             `yaml:"environment"`
	Preset      string             `yaml:"preset"`
	Config      string             `yaml:"config"`
	Overrides   map[string]float64 `yaml:"overrides"`
	Iterations  int                `yaml:"iterations"`
}

// StepResult pairs a step with the outcome of its run.
type StepResult struct {
	Step   ScenarioStep
	Result *experiment.Result
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}

	return &scenario, nil
}

// StepConfig resolves the configuration of one step.
func StepConfig(step ScenarioStep) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if step.Environment != "" {
		cfg.Environment = step.Environment
	}
	if step.Preset != "" {
		cfg = config.GetPreset(cfg.Environment, step.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %s/%s", step.Environment, step.Preset)
		}
	}
	if step.Config != "" {
		loaded, err := config.Load(step.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if step.Name != "" {
		cfg.ExperimentID = step.Name
	}
	if step.Iterations > 0 {
		cfg.Training.Iterations = step.Iterations
	}

	cfg, err := experiment.Override(cfg, step.Overrides)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// RunScenario executes all steps in order. It stops at the first failing
// step and returns the results gathered so far.
func RunScenario(ctx context.Context, scenario *Scenario, store *storage.Store, log logrus.FieldLogger) ([]StepResult, error) {
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		stepLog := log.WithFields(logrus.Fields{
			"scenario": scenario.Name,
			"step":     fmt.Sprintf("%d/%d", i+1, len(scenario.Steps)),
		})

		cfg, err := StepConfig(step)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		stepLog.WithField("experiment", cfg.ExperimentID).Info("running step")

		var opts []experiment.Option
		if store != nil {
			opts = append(opts, experiment.WithStore(store))
		}
		exp, err := experiment.New(cfg, stepLog, opts...)
		if err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}

		result, err := exp.Run(ctx)
		if result != nil {
			results = append(results, StepResult{Step: step, Result: result})
		}
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}
	}

	return results, nil
}

// SeedTrial is the outcome of training with one seed.
type SeedTrial struct {
	Seed           int64
	Reconstruction float64
	Stable         bool
	Err            error
}

// RunSeeds trains the same configuration once per seed, varying both the
// dataset and the network initialisation. At most parallel runs train at
// once; trials are returned in seed order.
func RunSeeds(ctx context.Context, base *config.Config, seeds []int64, parallel int, log logrus.FieldLogger) ([]SeedTrial, error) {
	trials := make([]SeedTrial, len(seeds))

	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}

	for i, seed := range seeds {
		i, seed := i, seed
		g.Go(func() error {
			cfg := base.Clone()
			cfg.Seed = seed
			trials[i] = SeedTrial{Seed: seed}

			exp, err := experiment.New(cfg, log.WithField("seed", seed))
			if err != nil {
				return err
			}

			result, err := exp.Run(ctx)
			switch {
			case errors.Is(err, dynamo.ErrInvalidState):
				trials[i].Err = err
			case err != nil:
				return err
			default:
				r := result.Final.Reconstruction
				trials[i].Reconstruction = r
				trials[i].Stable = !math.IsNaN(r) && !math.IsInf(r, 0)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return trials, nil
}

// SeedStats summarizes the final reconstruction over stable trials.
func SeedStats(trials []SeedTrial) (summary metrics.Summary, stableCount int, unstableCount int) {
	values := make([]float64, 0, len(trials))
	for _, t := range trials {
		if t.Stable {
			stableCount++
			values = append(values, t.Reconstruction)
		} else {
			unstableCount++
		}
	}
	if len(values) > 0 {
		summary = metrics.Summarize(values)
	}
	return
}
