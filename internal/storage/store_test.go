package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gorgonia.org/tensor"
)

func TestStoreCreateLoad(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	run, err := st.Create(RunMetadata{ExperimentID: "pendulum", Dt: 0.1, SeqLen: 10, Integrator: "euler"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !strings.HasPrefix(run.ID(), "pendulum_") {
		t.Errorf("expected experiment prefix, got %s", run.ID())
	}

	meta, err := st.Load(run.ID())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Integrator != "euler" || meta.SeqLen != 10 {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if meta.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestLossHistory(t *testing.T) {
	st := New(t.TempDir())
	run, err := st.Create(RunMetadata{})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := run.AppendLoss(i*10, 1/float64(i+1), 0.01); err != nil {
			t.Fatal(err)
		}
	}
	if err := run.Finish(map[string]float64{"final_reconstruction": 1.0 / 3}); err != nil {
		t.Fatal(err)
	}

	h, err := st.LoadLosses(run.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Iterations) != 3 || h.Iterations[2] != 20 {
		t.Errorf("unexpected iterations %v", h.Iterations)
	}
	if h.Reconstruction[1] != 0.5 {
		t.Errorf("expected 0.5, got %f", h.Reconstruction[1])
	}

	meta, _ := st.Load(run.ID())
	if meta.Metrics["final_reconstruction"] == 0 || meta.Finished.IsZero() {
		t.Errorf("finish not recorded: %+v", meta)
	}
}

func TestWriteRolloutAndConfig(t *testing.T) {
	st := New(t.TempDir())
	run, err := st.Create(RunMetadata{})
	if err != nil {
		t.Fatal(err)
	}

	rollout := tensor.New(tensor.WithShape(1, 3, 4, 4), tensor.WithBacking(make([]float64, 48)))
	path, err := run.WriteRollout("input", 100, rollout, 1)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "input_000100.gif" {
		t.Errorf("unexpected path %s", path)
	}

	if err := run.WriteConfig(map[string]int{"seq_len": 3}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(run.Dir(), "config.yaml"))
	if err != nil || !strings.Contains(string(data), "seq_len: 3") {
		t.Errorf("config not written: %q, %v", data, err)
	}
}

func TestListSkipsForeignDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if _, err := st.Create(RunMetadata{ExperimentID: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Create(RunMetadata{ExperimentID: "b"}); err != nil {
		t.Fatal(err)
	}
	os.MkdirAll(filepath.Join(tmpDir, "junk"), 0755)

	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
}

func TestListMissingDir(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "missing"))
	runs, err := st.List()
	if err != nil || len(runs) != 0 {
		t.Errorf("expected empty list, got %v, %v", runs, err)
	}
}

func TestLoadNotFound(t *testing.T) {
	st := New(t.TempDir())
	if _, err := st.Load("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestExport(t *testing.T) {
	st := New(t.TempDir())
	run, _ := st.Create(RunMetadata{ExperimentID: "x"})
	run.AppendLoss(0, 0.3, 0.1)
	run.Finish(nil)

	data, err := st.Export(run.ID())
	if err != nil {
		t.Fatal(err)
	}
	out, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"reconstruction":[0.3]`) {
		t.Errorf("unexpected export %s", out)
	}
}
