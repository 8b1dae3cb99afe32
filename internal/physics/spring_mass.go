package physics

import (
	"fmt"
	"math/rand"

	"github.com/san-kum/hgn/internal/dynamo"
)

const (
	DefaultMass      = 1.0
	DefaultStiffness = 2.0
)

// SpringMass is a chain of masses between two walls joined by springs. The
// walls carry springs only when there are more stiffness values than masses.
// State is [x1..xn, p1..pn] with p = m v.
type SpringMass struct {
	NumMasses int
	Masses    []float64
	Stiffness []float64
}

// NewSpringMass returns a single mass on a spring anchored at the origin.
func NewSpringMass() *SpringMass {
	return &SpringMass{
		NumMasses: 1,
		Masses:    []float64{DefaultMass},
		Stiffness: []float64{DefaultStiffness},
	}
}

func NewSpringMassChain(n int) *SpringMass {
	masses := make([]float64, n)
	stiffness := make([]float64, n+1)
	for i := 0; i < n; i++ {
		masses[i] = DefaultMass
		stiffness[i] = DefaultStiffness
	}
	stiffness[n] = DefaultStiffness

	return &SpringMass{
		NumMasses: n,
		Masses:    masses,
		Stiffness: stiffness,
	}
}

func (s *SpringMass) Name() string  { return "spring" }
func (s *SpringMass) StateDim() int { return s.NumMasses * 2 }

// force returns the spring force on every mass.
func (s *SpringMass) force(x dynamo.State) []float64 {
	n := s.NumMasses
	f := make([]float64, n)

	for i := 0; i < n; i++ {
		pos := x[i]

		if i == 0 {
			f[i] -= s.Stiffness[0] * pos
		} else {
			f[i] -= s.Stiffness[i] * (pos - x[i-1])
		}

		if i == n-1 {
			if len(s.Stiffness) > n {
				f[i] -= s.Stiffness[n] * pos
			}
		} else {
			f[i] -= s.Stiffness[i+1] * (pos - x[i+1])
		}
	}
	return f
}

func (s *SpringMass) Derive(x dynamo.State, t float64) dynamo.State {
	n := s.NumMasses
	dx := make(dynamo.State, n*2)
	f := s.force(x)

	for i := 0; i < n; i++ {
		dx[i] = x[n+i] / s.Masses[i]
		dx[n+i] = f[i]
	}
	return dx
}

func (s *SpringMass) Energy(x dynamo.State) float64 {
	n := s.NumMasses
	energy := 0.0

	for i := 0; i < n; i++ {
		mom := x[n+i]
		energy += mom * mom / (2 * s.Masses[i])
	}

	for i := 0; i < n; i++ {
		pos := x[i]
		if i == 0 {
			energy += 0.5 * s.Stiffness[0] * pos * pos
		} else {
			stretch := pos - x[i-1]
			energy += 0.5 * s.Stiffness[i] * stretch * stretch
		}
	}

	if len(s.Stiffness) > n {
		energy += 0.5 * s.Stiffness[n] * x[n-1] * x[n-1]
	}

	return energy
}

// Objects spaces the masses evenly along y so displacements read as
// horizontal motion.
func (s *SpringMass) Objects(x dynamo.State) []Point {
	pts := make([]Point, s.NumMasses)
	for i := range pts {
		y := 0.0
		if s.NumMasses > 1 {
			y = s.Extent() * (0.5 - float64(i)/float64(s.NumMasses-1))
		}
		pts[i] = Point{X: x[i], Y: y}
	}
	return pts
}

func (s *SpringMass) Extent() float64 { return 1.5 }

func (s *SpringMass) SampleInitial(rng *rand.Rand) dynamo.State {
	n := s.NumMasses
	x := make(dynamo.State, 2*n)
	for i := 0; i < n; i++ {
		x[i] = 0.3 + 0.7*rng.Float64()
		if rng.Intn(2) == 0 {
			x[i] = -x[i]
		}
		x[n+i] = 0.5 * rng.NormFloat64() * s.Masses[i]
	}
	return x
}

func (s *SpringMass) GetParams() map[string]float64 {
	return map[string]float64{
		"mass":      s.Masses[0],
		"stiffness": s.Stiffness[0],
	}
}

// SetParam applies a value to every mass or every spring.
func (s *SpringMass) SetParam(name string, value float64) error {
	if value <= 0 {
		return fmt.Errorf("param %s must be positive, got %g", name, value)
	}
	var dst []float64
	switch name {
	case "mass":
		dst = s.Masses
	case "stiffness":
		dst = s.Stiffness
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	for i := range dst {
		dst[i] = value
	}
	return nil
}
