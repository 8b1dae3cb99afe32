// Package storage keeps one directory per training run under a base
// directory: metadata, the resolved configuration, loss history, rollout
// animations and plots.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/hgn/internal/export"
	"gopkg.in/yaml.v3"
	"gorgonia.org/tensor"
)

const (
	metadataFile = "metadata.json"
	configFile   = "config.yaml"
	lossFile     = "losses.csv"
)

var ErrRunNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) BaseDir() string { return s.baseDir }

type RunMetadata struct {
	ID           string             `json:"id"`
	ExperimentID string             `json:"experiment_id"`
	Environment  string             `json:"environment"`
	Timestamp    time.Time          `json:"timestamp"`
	Finished     time.Time          `json:"finished,omitempty"`
	Seed         int64              `json:"seed"`
	Dt           float64            `json:"dt"`
	SeqLen       int                `json:"seq_len"`
	Integrator   string             `json:"integrator"`
	Optimizer    string             `json:"optimizer"`
	LearningRate float64            `json:"learning_rate"`
	Iterations   int                `json:"iterations"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// Run is an open run directory. Its methods are safe for concurrent use.
type Run struct {
	mu   sync.Mutex
	dir  string
	meta RunMetadata

	lossFile *os.File
	losses   *csv.Writer
}

// Create allocates a new run directory named <experiment>_<uuid> and writes
// its metadata.
func (s *Store) Create(meta RunMetadata) (*Run, error) {
	id := uuid.NewString()
	if meta.ExperimentID != "" {
		id = meta.ExperimentID + "_" + id
	}
	meta.ID = id
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}

	dir := filepath.Join(s.baseDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	r := &Run{dir: dir, meta: meta}
	if err := r.writeMetadata(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Run) ID() string  { return r.meta.ID }
func (r *Run) Dir() string { return r.dir }

func (r *Run) writeMetadata() error {
	f, err := os.Create(filepath.Join(r.dir, metadataFile))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(r.meta)
}

// WriteConfig stores the resolved configuration as YAML.
func (r *Run) WriteConfig(cfg any) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(r.dir, configFile), data, 0644)
}

// AppendLoss records one row of the loss history.
func (r *Run) AppendLoss(iteration int, reconstruction, kl float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.losses == nil {
		f, err := os.Create(filepath.Join(r.dir, lossFile))
		if err != nil {
			return err
		}
		r.lossFile = f
		r.losses = csv.NewWriter(f)
		if err := r.losses.Write([]string{"iteration", "reconstruction", "kl"}); err != nil {
			return err
		}
	}

	row := []string{
		strconv.Itoa(iteration),
		strconv.FormatFloat(reconstruction, 'g', 10, 64),
		strconv.FormatFloat(kl, 'g', 10, 64),
	}
	if err := r.losses.Write(row); err != nil {
		return err
	}
	r.losses.Flush()
	return r.losses.Error()
}

// WriteRollout saves batch element 0 of a rollout tensor as
// <name>_<iteration>.gif.
func (r *Run) WriteRollout(name string, iteration int, rollout *tensor.Dense, channels int) (string, error) {
	path := filepath.Join(r.dir, fmt.Sprintf("%s_%06d.gif", name, iteration))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := export.RolloutGIF(f, rollout, 0, channels, 8, 10); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return path, nil
}

// WriteFile stores an arbitrary artifact such as an SVG plot.
func (r *Run) WriteFile(name string, data []byte) (string, error) {
	path := filepath.Join(r.dir, name)
	return path, os.WriteFile(path, data, 0644)
}

// Finish records final metrics and closes the loss history.
func (r *Run) Finish(metrics map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var closeErr error
	if r.lossFile != nil {
		r.losses.Flush()
		closeErr = errors.Join(r.losses.Error(), r.lossFile.Close())
		r.lossFile, r.losses = nil, nil
	}

	r.meta.Metrics = metrics
	r.meta.Finished = time.Now()
	return errors.Join(closeErr, r.writeMetadata())
}

// List returns the metadata of every run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%s: %w", runID, err)
	}
	return &meta, nil
}

// LossHistory is the parsed losses.csv of a run.
type LossHistory struct {
	Iterations     []int
	Reconstruction []float64
	KL             []float64
}

func (s *Store) LoadLosses(runID string) (*LossHistory, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, lossFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s has no loss history", ErrRunNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}

	h := &LossHistory{}
	for i := 1; i < len(records); i++ {
		record := records[i]
		if len(record) < 3 {
			continue
		}
		iter, err := strconv.Atoi(record[0])
		if err != nil {
			continue
		}
		rec, err1 := strconv.ParseFloat(record[1], 64)
		kl, err2 := strconv.ParseFloat(record[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		h.Iterations = append(h.Iterations, iter)
		h.Reconstruction = append(h.Reconstruction, rec)
		h.KL = append(h.KL, kl)
	}
	return h, nil
}

// ExportData is the JSON summary of a run.
type ExportData struct {
	Metadata       RunMetadata `json:"metadata"`
	Iterations     []int       `json:"iterations"`
	Reconstruction []float64   `json:"reconstruction"`
	KL             []float64   `json:"kl"`
}

// Export loads a run with its loss history for JSON encoding.
func (s *Store) Export(runID string) (*ExportData, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	data := &ExportData{Metadata: *meta}

	h, err := s.LoadLosses(runID)
	if err != nil && !errors.Is(err, ErrRunNotFound) {
		return nil, err
	}
	if h != nil {
		data.Iterations, data.Reconstruction, data.KL = h.Iterations, h.Reconstruction, h.KL
	}
	return data, nil
}
