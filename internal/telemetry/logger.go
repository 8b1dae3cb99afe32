// Package telemetry records training progress at fixed cadences: loss
// scalars every loss_freq iterations, input and reconstructed rollouts every
// rollout_freq iterations.
package telemetry

import (
	"errors"
	"fmt"

	"github.com/san-kum/hgn/internal/hamiltonian"
	"github.com/san-kum/hgn/internal/hgn"
	"github.com/san-kum/hgn/internal/metrics"
	"github.com/san-kum/hgn/internal/storage"
	"github.com/sirupsen/logrus"
	"gorgonia.org/tensor"
)

// Sink persists what the logger decides to record.
type Sink interface {
	Scalars(iteration int, losses hgn.Losses) error
	Rollouts(iteration int, input, reconstruction *tensor.Dense) error
}

// Progress is an immutable snapshot passed to observers.
type Progress struct {
	Iteration      int
	Reconstruction float64
	KL             float64
	Drift          *metrics.Summary
}

type Option func(*TrainingLogger)

func WithSink(s Sink) Option {
	return func(l *TrainingLogger) { l.sinks = append(l.sinks, s) }
}

// WithEnergy enables learned-energy drift reporting on rollout steps.
func WithEnergy(h hamiltonian.Func) Option {
	return func(l *TrainingLogger) { l.energy = h }
}

// WithObserver registers a callback run after every recorded loss.
func WithObserver(fn func(Progress)) Option {
	return func(l *TrainingLogger) { l.observers = append(l.observers, fn) }
}

type TrainingLogger struct {
	log         logrus.FieldLogger
	lossFreq    int
	rolloutFreq int
	iteration   int

	sinks     []Sink
	energy    hamiltonian.Func
	observers []func(Progress)
}

// NewTrainingLogger logs the hyper-parameters once. A frequency of zero
// disables that kind of record.
func NewTrainingLogger(log logrus.FieldLogger, hp hgn.HyperParameters, lossFreq, rolloutFreq int, opts ...Option) *TrainingLogger {
	l := &TrainingLogger{
		log:         log,
		lossFreq:    lossFreq,
		rolloutFreq: rolloutFreq,
	}
	for _, opt := range opts {
		opt(l)
	}

	log.WithFields(logrus.Fields{
		"experiment_id": hp.ExperimentID,
		"dt":            hp.Dt,
		"method":        hp.Method,
		"seq_len":       hp.SeqLen,
		"frame":         fmt.Sprintf("%dx%dx%d", hp.Channels, hp.Height, hp.Width),
		"kl_weight":     hp.KLWeight,
	}).Info("hyper-parameters")
	return l
}

func due(iteration, freq int) bool {
	return freq > 0 && iteration%freq == 0
}

// Iteration is the index the next Step call will record under.
func (l *TrainingLogger) Iteration() int { return l.iteration }

// Step records the current iteration if a cadence is due and advances the
// counter. Sink failures are reported but the counter still advances.
func (l *TrainingLogger) Step(losses hgn.Losses, rollout *tensor.Dense, traj *hgn.Trajectory) error {
	defer func() { l.iteration++ }()
	it := l.iteration

	var errs []error
	progress := Progress{Iteration: it, Reconstruction: losses.Reconstruction, KL: losses.KL}

	if due(it, l.rolloutFreq) && traj != nil {
		recon := traj.ReconstructedRollout()
		for _, s := range l.sinks {
			if err := s.Rollouts(it, rollout, recon); err != nil {
				errs = append(errs, err)
			}
		}

		if l.energy != nil {
			drift, err := metrics.LearnedDrift(l.energy, traj)
			if err != nil {
				errs = append(errs, err)
			} else {
				progress.Drift = &drift
				l.log.WithFields(logrus.Fields{
					"iteration":  it,
					"drift_mean": drift.Mean,
					"drift_max":  drift.Max,
					"trajectory": traj.Len(),
				}).Debug("learned energy drift")
			}
		}
	}

	if due(it, l.lossFreq) {
		l.log.WithFields(logrus.Fields{
			"iteration":      it,
			"reconstruction": losses.Reconstruction,
			"kl":             losses.KL,
		}).Info("loss")

		for _, s := range l.sinks {
			if err := s.Scalars(it, losses); err != nil {
				errs = append(errs, err)
			}
		}
		for _, fn := range l.observers {
			fn(progress)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("telemetry at iteration %d: %w", it, errors.Join(errs...))
	}
	return nil
}

// RunSink writes records into a storage run directory.
type RunSink struct {
	Run      *storage.Run
	Channels int
}

func (s RunSink) Scalars(iteration int, losses hgn.Losses) error {
	return s.Run.AppendLoss(iteration, losses.Reconstruction, losses.KL)
}

func (s RunSink) Rollouts(iteration int, input, reconstruction *tensor.Dense) error {
	if _, err := s.Run.WriteRollout("input", iteration, input, s.Channels); err != nil {
		return err
	}
	_, err := s.Run.WriteRollout("reconstruction", iteration, reconstruction, s.Channels)
	return err
}
