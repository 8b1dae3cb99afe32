// Package experiment wires configuration, data, model and telemetry into a
// training run.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/hgn/internal/analysis"
	"github.com/san-kum/hgn/internal/config"
	"github.com/san-kum/hgn/internal/dataset"
	"github.com/san-kum/hgn/internal/dynamo"
	"github.com/san-kum/hgn/internal/export"
	"github.com/san-kum/hgn/internal/hgn"
	"github.com/san-kum/hgn/internal/metrics"
	"github.com/san-kum/hgn/internal/physics"
	"github.com/san-kum/hgn/internal/storage"
	"github.com/san-kum/hgn/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// maxEvalRollouts bounds the final evaluation batch.
const maxEvalRollouts = 32

// lyapunovSteps is the horizon of the ground-truth chaos estimate.
const lyapunovSteps = 500

// latentBound is the box a healthy latent rollout stays inside.
const latentBound = 1e3

type Result struct {
	RunID      string
	Iterations int
	Final      hgn.Losses
	History    []hgn.Losses
	Drift      metrics.Summary
	Metrics    map[string]float64
}

type Experiment struct {
	cfg   *config.Config
	log   logrus.FieldLogger
	env   physics.Environment
	data  *dataset.Dataset
	model *hgn.Model

	store     *storage.Store
	observers []func(telemetry.Progress)
}

type Option func(*Experiment)

// WithStore persists the run under the store's base directory.
func WithStore(s *storage.Store) Option {
	return func(e *Experiment) { e.store = s }
}

// WithObserver receives a progress snapshot at every logged iteration.
func WithObserver(fn func(telemetry.Progress)) Option {
	return func(e *Experiment) { e.observers = append(e.observers, fn) }
}

// New validates cfg, generates the training set and builds the model.
func New(cfg *config.Config, log logrus.FieldLogger, opts ...Option) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	env, renderer, err := BuildEnvironment(cfg)
	if err != nil {
		return nil, err
	}

	gen := &dataset.Generator{
		Env:      env,
		Renderer: renderer,
		Dt:       cfg.Dt,
		SeqLen:   cfg.SeqLen,
		Substeps: cfg.Data.Substeps,
		Seed:     cfg.Seed,
	}
	data, err := gen.Generate(cfg.Data.Rollouts)
	if err != nil {
		return nil, fmt.Errorf("generate dataset: %w", err)
	}
	log.WithFields(logrus.Fields{
		"environment": env.Name(),
		"rollouts":    data.Len(),
		"seq_len":     cfg.SeqLen,
	}).Info("dataset ready")

	model, err := BuildModel(cfg)
	if err != nil {
		return nil, err
	}

	e := &Experiment{
		cfg:   cfg,
		log:   log,
		env:   env,
		data:  data,
		model: model,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Experiment) Model() *hgn.Model                { return e.model }
func (e *Experiment) Dataset() *dataset.Dataset        { return e.data }
func (e *Experiment) Environment() physics.Environment { return e.env }

func (e *Experiment) openRun() (*storage.Run, error) {
	if e.store == nil {
		return nil, nil
	}
	if err := e.store.Init(); err != nil {
		return nil, err
	}
	run, err := e.store.Create(storage.RunMetadata{
		ExperimentID: e.cfg.ExperimentID,
		Environment:  e.cfg.Environment,
		Seed:         e.cfg.Seed,
		Dt:           e.cfg.Dt,
		SeqLen:       e.cfg.SeqLen,
		Integrator:   e.cfg.Integrator,
		Optimizer:    e.cfg.Training.Optimizer,
		LearningRate: e.cfg.Training.LearningRate,
		Iterations:   e.cfg.Training.Iterations,
	})
	if err != nil {
		return nil, err
	}
	if err := run.WriteConfig(e.cfg); err != nil {
		return nil, err
	}
	return run, nil
}

// Run trains for the configured number of iterations. On cancellation the
// partial result is returned together with an error wrapping
// dynamo.ErrContextCanceled.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	run, err := e.openRun()
	if err != nil {
		return nil, fmt.Errorf("open run: %w", err)
	}

	opts := []telemetry.Option{telemetry.WithEnergy(e.model.Hamiltonian())}
	if run != nil {
		opts = append(opts, telemetry.WithSink(telemetry.RunSink{Run: run, Channels: e.cfg.Frame.Channels}))
	}
	for _, fn := range e.observers {
		opts = append(opts, telemetry.WithObserver(fn))
	}
	tlog := telemetry.NewTrainingLogger(e.log, e.model.HyperParameters(), e.cfg.Logging.LossFreq, e.cfg.Logging.RolloutFreq, opts...)

	result := &Result{History: make([]hgn.Losses, 0, e.cfg.Training.Iterations)}
	if run != nil {
		result.RunID = run.ID()
	}

	loader := dataset.NewLoader(e.data, e.cfg.Training.BatchSize, e.cfg.Seed)
	runErr := e.train(ctx, loader, tlog, result)

	if errors.Is(runErr, dynamo.ErrContextCanceled) || runErr == nil {
		if err := e.finish(run, result); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}
	return result, runErr
}

func (e *Experiment) train(ctx context.Context, loader *dataset.Loader, tlog *telemetry.TrainingLogger, result *Result) error {
	for i := 0; i < e.cfg.Training.Iterations; i++ {
		select {
		case <-ctx.Done():
			return &dynamo.TrainingError{Iteration: i, Phase: "train", Wrapped: fmt.Errorf("%w: %v", dynamo.ErrContextCanceled, ctx.Err())}
		default:
		}

		batch, err := loader.Next()
		if err != nil {
			return &dynamo.TrainingError{Iteration: i, Phase: "batch", Wrapped: err}
		}

		losses, traj, err := e.model.Fit(batch)
		if err != nil {
			return &dynamo.TrainingError{Iteration: i, Phase: "fit", Wrapped: err}
		}
		if math.IsNaN(losses.Total) || math.IsInf(losses.Total, 0) {
			return &dynamo.TrainingError{Iteration: i, Phase: "fit", Wrapped: dynamo.ErrInvalidState}
		}

		result.History = append(result.History, losses)
		result.Iterations = i + 1

		if err := tlog.Step(losses, batch, traj); err != nil {
			e.log.WithError(err).Warn("telemetry failed")
		}
	}
	return nil
}

// finish evaluates the model, records summary metrics and closes the run.
func (e *Experiment) finish(run *storage.Run, result *Result) error {
	n := e.data.Len()
	if n > maxEvalRollouts {
		n = maxEvalRollouts
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	batch, err := e.data.Batch(idx)
	if err != nil {
		return err
	}

	final, traj, err := e.model.Evaluate(batch)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	drift, err := metrics.LearnedDrift(e.model.Hamiltonian(), traj)
	if err != nil {
		return fmt.Errorf("drift: %w", err)
	}
	states := e.data.States(0)
	truth := metrics.Observe(states, e.cfg.Dt, metrics.NewEnergyDrift(e.env))

	truthQ := make([]float64, len(states))
	for i, s := range states {
		q, _ := s.Split()
		truthQ[i] = q[0]
	}
	learned := metrics.Observe(metrics.PhaseStates(traj, 0), e.cfg.Dt, metrics.NewStability(latentBound))

	fineDt := e.cfg.Dt / float64(max(e.cfg.Data.Substeps, 1))
	lyapunov := analysis.LyapunovExponent(e.env, physics.NewRK4(), states[0], fineDt, lyapunovSteps, 1e-8)

	result.Final = final
	result.Drift = drift
	result.Metrics = map[string]float64{
		"final_reconstruction": final.Reconstruction,
		"final_kl":             final.KL,
		"learned_drift_mean":   drift.Mean,
		"learned_drift_max":    drift.Max,
		"data_energy_drift":    truth["energy_drift"],
		"data_frequency":       analysis.DominantFrequency(truthQ, e.cfg.Dt),
		"learned_frequency":    analysis.DominantFrequency(analysis.Column(traj.Positions(0), 0), e.cfg.Dt),
		"data_lyapunov":        lyapunov,
		"learned_stability":    learned["stability"],
	}

	e.log.WithFields(logrus.Fields{
		"iterations":     result.Iterations,
		"reconstruction": final.Reconstruction,
		"kl":             final.KL,
		"drift_max":      drift.Max,
	}).Info("training finished")

	if run == nil {
		return nil
	}

	shown := traj.BatchSize()
	if shown > 4 {
		shown = 4
	}
	qs, ps := make([][][]float64, shown), make([][][]float64, shown)
	for k := 0; k < shown; k++ {
		qs[k], ps[k] = traj.Positions(k), traj.Momenta(k)
	}
	if svg := export.PhasePortraitSVG(qs, ps, 0, 480, 480); svg != "" {
		if _, err := run.WriteFile("phase.svg", []byte(svg)); err != nil {
			return err
		}
	}
	if _, err := run.WriteRollout("final_reconstruction", result.Iterations, traj.ReconstructedRollout(), e.cfg.Frame.Channels); err != nil {
		return err
	}
	return run.Finish(result.Metrics)
}
