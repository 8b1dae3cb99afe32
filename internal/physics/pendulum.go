package physics

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/hgn/internal/dynamo"
)

// Pendulum is a frictionless pendulum in canonical coordinates: q is the
// angle from the downward vertical, p = m L² ω.
type Pendulum struct {
	Mass    float64
	Length  float64
	Gravity float64
}

func NewPendulum() *Pendulum {
	return &Pendulum{
		Mass:    1.0,
		Length:  1.0,
		Gravity: 3.0,
	}
}

func (p *Pendulum) Name() string  { return "pendulum" }
func (p *Pendulum) StateDim() int { return 2 }

func (p *Pendulum) Derive(x dynamo.State, t float64) dynamo.State {
	theta, mom := x[0], x[1]
	inertia := p.Mass * p.Length * p.Length

	return dynamo.State{
		mom / inertia,
		-p.Mass * p.Gravity * p.Length * math.Sin(theta),
	}
}

func (p *Pendulum) Energy(x dynamo.State) float64 {
	// T = p² / 2mL², V = mgL(1 - cos θ)
	ke := x[1] * x[1] / (2 * p.Mass * p.Length * p.Length)
	pe := p.Mass * p.Gravity * p.Length * (1.0 - math.Cos(x[0]))
	return ke + pe
}

func (p *Pendulum) Objects(x dynamo.State) []Point {
	return []Point{{X: p.Length * math.Sin(x[0]), Y: -p.Length * math.Cos(x[0])}}
}

func (p *Pendulum) Extent() float64 { return 1.2 * p.Length }

// SampleInitial draws an energy level that keeps the bob below horizontal,
// then splits it between angle and momentum at random.
func (p *Pendulum) SampleInitial(rng *rand.Rand) dynamo.State {
	maxEnergy := p.Mass * p.Gravity * p.Length
	e := (0.3 + 0.7*rng.Float64()) * maxEnergy

	share := rng.Float64()
	theta := math.Acos(1 - share*e/maxEnergy)
	if rng.Intn(2) == 0 {
		theta = -theta
	}
	mom := math.Sqrt(2 * p.Mass * p.Length * p.Length * (1 - share) * e)
	if rng.Intn(2) == 0 {
		mom = -mom
	}
	return dynamo.State{theta, mom}
}

func (p *Pendulum) GetParams() map[string]float64 {
	return map[string]float64{
		"mass":    p.Mass,
		"length":  p.Length,
		"gravity": p.Gravity,
	}
}

func (p *Pendulum) SetParam(name string, value float64) error {
	if value <= 0 {
		return fmt.Errorf("param %s must be positive, got %g", name, value)
	}
	switch name {
	case "mass":
		p.Mass = value
	case "length":
		p.Length = value
	case "gravity":
		p.Gravity = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
