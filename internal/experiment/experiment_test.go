package experiment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/san-kum/hgn/internal/config"
	"github.com/san-kum/hgn/internal/dynamo"
	"github.com/san-kum/hgn/internal/storage"
	"github.com/san-kum/hgn/internal/telemetry"
)

func smallConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.ExperimentID = "unit"
	cfg.SeqLen = 4
	cfg.Frame = config.FrameConfig{Channels: 1, Height: 4, Width: 4}
	cfg.Network = config.NetworkConfig{LatentDim: 4, StateDim: 1, HiddenDim: 8}
	cfg.Training.Iterations = 6
	cfg.Training.BatchSize = 4
	cfg.Training.LearningRate = 1e-3
	cfg.Data = config.DataConfig{Rollouts: 8, Substeps: 2}
	cfg.Logging = config.LoggingConfig{LossFreq: 2, RolloutFreq: 3}
	return cfg
}

func TestBuildModelMatchesConfig(t *testing.T) {
	g := NewWithT(t)

	m, err := BuildModel(smallConfig())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(m.HyperParameters().SeqLen).To(Equal(4))
	g.Expect(m.Parameters()).NotTo(BeEmpty())

	cfg := smallConfig()
	cfg.Integrator = "verlet"
	_, err = BuildModel(cfg)
	g.Expect(errors.Is(err, dynamo.ErrUnsupportedMethod)).To(BeTrue())
}

func TestRunWritesArtifacts(t *testing.T) {
	g := NewWithT(t)
	logger, _ := test.NewNullLogger()
	st := storage.New(t.TempDir())

	var progress []telemetry.Progress
	exp, err := New(smallConfig(), logger,
		WithStore(st),
		WithObserver(func(p telemetry.Progress) { progress = append(progress, p) }),
	)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(exp.Dataset().Len()).To(Equal(8))

	res, err := exp.Run(context.Background())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Iterations).To(Equal(6))
	g.Expect(res.History).To(HaveLen(6))
	g.Expect(res.Metrics).To(HaveKey("final_reconstruction"))
	g.Expect(res.Metrics["data_energy_drift"]).To(BeNumerically("<", 1e-3))
	g.Expect(res.Metrics).To(HaveKey("learned_frequency"))
	g.Expect(res.Metrics["learned_stability"]).To(Equal(1.0))
	g.Expect(res.Metrics["data_lyapunov"]).To(BeNumerically("<", 0.5))
	g.Expect(progress).To(HaveLen(3))

	dir := filepath.Join(st.BaseDir(), res.RunID)
	for _, name := range []string{"metadata.json", "config.yaml", "losses.csv", "phase.svg", "input_000000.gif", "reconstruction_000003.gif"} {
		_, err := os.Stat(filepath.Join(dir, name))
		g.Expect(err).NotTo(HaveOccurred(), name)
	}

	runs, err := st.List()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(runs).To(HaveLen(1))
	g.Expect(runs[0].Metrics).To(HaveKey("learned_drift_max"))
}

func TestRunCanceled(t *testing.T) {
	g := NewWithT(t)
	logger, _ := test.NewNullLogger()

	exp, err := New(smallConfig(), logger)
	g.Expect(err).NotTo(HaveOccurred())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := exp.Run(ctx)
	g.Expect(errors.Is(err, dynamo.ErrContextCanceled)).To(BeTrue())

	var te *dynamo.TrainingError
	g.Expect(errors.As(err, &te)).To(BeTrue())
	g.Expect(te.Iteration).To(Equal(0))
	g.Expect(res.Iterations).To(BeZero())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := smallConfig()
	cfg.Environment = "lorenz"

	if _, err := New(cfg, logger); err == nil {
		t.Error("expected error for unknown environment")
	}
}

func TestOverride(t *testing.T) {
	g := NewWithT(t)
	base := smallConfig()

	cfg, err := Override(base, map[string]float64{"learning_rate": 0.01, "hidden_dim": 12})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cfg.Training.LearningRate).To(Equal(0.01))
	g.Expect(cfg.Network.HiddenDim).To(Equal(12))
	g.Expect(base.Training.LearningRate).To(Equal(1e-3))

	_, err = Override(base, map[string]float64{"seed": 1})
	g.Expect(err).To(HaveOccurred())
}

func TestSweep(t *testing.T) {
	g := NewWithT(t)
	logger, _ := test.NewNullLogger()
	cfg := smallConfig()
	cfg.Training.Iterations = 2

	best, score, trials, err := Sweep(context.Background(), cfg, logger, []string{"learning_rate"}, [][]float64{{1e-4, 1e-3}})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(trials).To(HaveLen(2))
	g.Expect(best).To(HaveKey("learning_rate"))
	g.Expect(score).To(BeNumerically(">", 0))
}
