package metrics

import (
	"fmt"
	"math"

	"github.com/san-kum/hgn/internal/autograd"
	"github.com/san-kum/hgn/internal/dynamo"
	"github.com/san-kum/hgn/internal/hamiltonian"
	"github.com/san-kum/hgn/internal/hgn"
)

// EnergyDrift tracks the largest relative deviation of a ground-truth
// energy from its first observed value.
type EnergyDrift struct {
	name          string
	initialEnergy float64
	maxDrift      float64
	samples       int
	dyn           dynamo.Hamiltonian
}

func NewEnergyDrift(dyn dynamo.Hamiltonian) *EnergyDrift {
	return &EnergyDrift{
		name: "energy_drift",
		dyn:  dyn,
	}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(x dynamo.State, t float64) {
	energy := e.dyn.Energy(x)

	if e.samples == 0 {
		e.initialEnergy = energy
	}
	e.samples++

	e.maxDrift = math.Max(e.maxDrift, relativeDrift(energy, e.initialEnergy))
}

func (e *EnergyDrift) Value() float64 {
	return e.maxDrift
}

func (e *EnergyDrift) Reset() {
	e.initialEnergy = 0
	e.maxDrift = 0
	e.samples = 0
}

func relativeDrift(energy, initial float64) float64 {
	if initial == 0 {
		return math.Abs(energy)
	}
	return math.Abs(energy-initial) / math.Abs(initial)
}

// LearnedEnergies evaluates h at every state of the trajectory. The result
// is indexed [step][batch].
func LearnedEnergies(h hamiltonian.Func, traj *hgn.Trajectory) ([][]float64, error) {
	out := make([][]float64, len(traj.States))
	for i, s := range traj.States {
		e, err := h.Energy(s.Q.Detach(), s.P.Detach())
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		out[i] = append([]float64(nil), e.Data()...)
	}
	return out, nil
}

// LearnedDrift summarises, over the batch, the maximum relative drift of the
// learned energy along each rollout.
func LearnedDrift(h hamiltonian.Func, traj *hgn.Trajectory) (Summary, error) {
	energies, err := LearnedEnergies(h, traj)
	if err != nil {
		return Summary{}, err
	}
	if len(energies) == 0 {
		return Summary{}, nil
	}

	batch := len(energies[0])
	drifts := make([]float64, batch)
	for n := 0; n < batch; n++ {
		initial := energies[0][n]
		for _, step := range energies[1:] {
			drifts[n] = math.Max(drifts[n], relativeDrift(step[n], initial))
		}
	}
	return Summarize(drifts), nil
}

// PhaseStates flattens rollout n of a trajectory into ground-truth style
// [q..., p...] states, so the state metrics can score latent dynamics.
func PhaseStates(traj *hgn.Trajectory, n int) []dynamo.State {
	qs, ps := traj.Positions(n), traj.Momenta(n)
	out := make([]dynamo.State, len(qs))
	for i := range qs {
		x := make(dynamo.State, 0, len(qs[i])+len(ps[i]))
		x = append(x, qs[i]...)
		out[i] = append(x, ps[i]...)
	}
	return out
}

// latentEnergy adapts a learned energy to the ground-truth interface for a
// single unbatched state.
type latentEnergy struct {
	h hamiltonian.Func
}

// AsHamiltonian exposes h as a dynamo.Hamiltonian over [q..., p...] states.
func AsHamiltonian(h hamiltonian.Func) dynamo.Hamiltonian { return latentEnergy{h: h} }

func (l latentEnergy) Energy(x dynamo.State) float64 {
	q, p := x.Split()
	e, err := l.h.Energy(autograd.New(1, len(q), append([]float64(nil), q...)), autograd.New(1, len(p), append([]float64(nil), p...)))
	if err != nil {
		return math.NaN()
	}
	return e.Item()
}
