// Package dataset renders ground-truth rollouts into image-sequence tensors
// laid out as (batch, channels*seq_len, height, width).
package dataset

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/san-kum/hgn/internal/dynamo"
	"github.com/san-kum/hgn/internal/physics"
	"gorgonia.org/tensor"
)

var ErrEmpty = errors.New("dataset: no rollouts")

// Generator produces rollouts of one environment.
type Generator struct {
	Env      physics.Environment
	Renderer *physics.Renderer
	Dt       float64
	SeqLen   int
	// Substeps is the number of RK4 steps per dt.
	Substeps int
	Seed     int64
}

func (g *Generator) validate() error {
	if g.Env == nil || g.Renderer == nil {
		return fmt.Errorf("%w: environment and renderer are required", dynamo.ErrMissingComponent)
	}
	if g.Dt <= 0 {
		return fmt.Errorf("%w: dt=%g", dynamo.ErrInvalidStep, g.Dt)
	}
	if g.SeqLen < 1 {
		return fmt.Errorf("seq_len must be positive, got %d", g.SeqLen)
	}
	return nil
}

// Dataset is a set of rendered rollouts together with the states that
// produced them.
type Dataset struct {
	frames   []float64
	states   [][]dynamo.State
	n        int
	seqLen   int
	channels int
	height   int
	width    int
}

// Generate integrates and renders n rollouts in parallel. Rollout i is
// seeded from Seed+i so the result does not depend on scheduling.
func (g *Generator) Generate(n int) (*Dataset, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, ErrEmpty
	}

	r := g.Renderer
	frameSize := r.FrameSize()
	rolloutSize := frameSize * g.SeqLen

	ds := &Dataset{
		frames:   make([]float64, n*rolloutSize),
		states:   make([][]dynamo.State, n),
		n:        n,
		seqLen:   g.SeqLen,
		channels: r.Channels,
		height:   r.Height,
		width:    r.Width,
	}

	dynamo.ParallelFor(n, 4, func(start, end int) {
		stepper := physics.NewRK4()
		for i := start; i < end; i++ {
			rng := rand.New(rand.NewSource(g.Seed + int64(i)))
			x0 := g.Env.SampleInitial(rng)
			states := physics.Simulate(g.Env, x0, stepper, g.Dt, g.SeqLen-1, g.Substeps)
			ds.states[i] = states

			base := i * rolloutSize
			for t, x := range states {
				dst := ds.frames[base+t*frameSize : base+(t+1)*frameSize]
				r.Render(dst, g.Env.Objects(x), g.Env.Extent())
			}
		}
	})

	for i, states := range ds.states {
		for t, x := range states {
			if !x.IsValid() {
				return nil, fmt.Errorf("rollout %d step %d: %w", i, t, dynamo.ErrInvalidState)
			}
		}
	}
	return ds, nil
}

func (d *Dataset) Len() int { return d.n }

func (d *Dataset) rolloutSize() int {
	return d.channels * d.seqLen * d.height * d.width
}

// States returns the ground-truth states of rollout i.
func (d *Dataset) States(i int) []dynamo.State { return d.states[i] }

// Batch copies the selected rollouts into a new tensor.
func (d *Dataset) Batch(indices []int) (*tensor.Dense, error) {
	if len(indices) == 0 {
		return nil, ErrEmpty
	}
	size := d.rolloutSize()
	buf := make([]float64, len(indices)*size)
	for k, i := range indices {
		if i < 0 || i >= d.n {
			return nil, fmt.Errorf("rollout index %d out of range [0, %d)", i, d.n)
		}
		copy(buf[k*size:(k+1)*size], d.frames[i*size:(i+1)*size])
	}
	return tensor.New(
		tensor.WithShape(len(indices), d.channels*d.seqLen, d.height, d.width),
		tensor.WithBacking(buf),
	), nil
}

// All returns every rollout as one batch.
func (d *Dataset) All() (*tensor.Dense, error) {
	idx := make([]int, d.n)
	for i := range idx {
		idx[i] = i
	}
	return d.Batch(idx)
}

// Batches shuffles the rollout indices with rng and splits them into
// batches of at most size. The last batch may be short.
func (d *Dataset) Batches(size int, rng *rand.Rand) [][]int {
	if size < 1 {
		size = 1
	}
	perm := rng.Perm(d.n)
	out := make([][]int, 0, (d.n+size-1)/size)
	for start := 0; start < d.n; start += size {
		end := start + size
		if end > d.n {
			end = d.n
		}
		out = append(out, perm[start:end])
	}
	return out
}

// Loader cycles through shuffled batches forever.
type Loader struct {
	ds      *Dataset
	size    int
	rng     *rand.Rand
	pending [][]int
	epoch   int
}

func NewLoader(ds *Dataset, batchSize int, seed int64) *Loader {
	return &Loader{ds: ds, size: batchSize, rng: rand.New(rand.NewSource(seed))}
}

// Next returns the next batch, reshuffling at each epoch boundary.
func (l *Loader) Next() (*tensor.Dense, error) {
	if len(l.pending) == 0 {
		l.pending = l.ds.Batches(l.size, l.rng)
		l.epoch++
	}
	idx := l.pending[0]
	l.pending = l.pending[1:]
	return l.ds.Batch(idx)
}

// Epoch is the number of passes started so far.
func (l *Loader) Epoch() int { return l.epoch }
