package physics

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/hgn/internal/dynamo"
)

// NBody is planar gravity between point masses. State is
// [x1, y1, ..., xn, yn, px1, py1, ..., pxn, pyn].
type NBody struct {
	NumBodies int
	Masses    []float64
	G         float64
	Softening float64
}

func NewNBody(n int) *NBody {
	masses := make([]float64, n)
	for i := range masses {
		masses[i] = 1.0
	}
	return &NBody{
		NumBodies: n,
		Masses:    masses,
		G:         1.0,
		Softening: 0.05,
	}
}

func (nb *NBody) Name() string {
	if nb.NumBodies == 2 {
		return "two_body"
	}
	return fmt.Sprintf("%d_body", nb.NumBodies)
}

func (nb *NBody) StateDim() int { return nb.NumBodies * 4 }

func (nb *NBody) accelerations(x dynamo.State) ([]float64, []float64) {
	n := nb.NumBodies
	ax := make([]float64, n)
	ay := make([]float64, n)
	eps2 := nb.Softening * nb.Softening

	for i := 0; i < n; i++ {
		xi, yi := x[i*2], x[i*2+1]

		for j := i + 1; j < n; j++ {
			xj, yj := x[j*2], x[j*2+1]

			rx := xj - xi
			ry := yj - yi
			r2 := rx*rx + ry*ry + eps2

			rInv := 1.0 / math.Sqrt(r2)
			r3Inv := rInv * rInv * rInv

			fij := nb.G * nb.Masses[j] * r3Inv
			ax[i] += fij * rx
			ay[i] += fij * ry

			fji := nb.G * nb.Masses[i] * r3Inv
			ax[j] -= fji * rx
			ay[j] -= fji * ry
		}
	}

	return ax, ay
}

func (nb *NBody) Derive(x dynamo.State, t float64) dynamo.State {
	n := nb.NumBodies
	dx := make(dynamo.State, len(x))
	ax, ay := nb.accelerations(x)

	for i := 0; i < n; i++ {
		m := nb.Masses[i]
		dx[i*2] = x[2*n+i*2] / m
		dx[i*2+1] = x[2*n+i*2+1] / m
		dx[2*n+i*2] = m * ax[i]
		dx[2*n+i*2+1] = m * ay[i]
	}
	return dx
}

func (nb *NBody) Energy(x dynamo.State) float64 {
	n := nb.NumBodies
	ke, pe := 0.0, 0.0
	eps2 := nb.Softening * nb.Softening

	for i := 0; i < n; i++ {
		px, py := x[2*n+i*2], x[2*n+i*2+1]
		ke += (px*px + py*py) / (2 * nb.Masses[i])

		for j := i + 1; j < n; j++ {
			rx := x[j*2] - x[i*2]
			ry := x[j*2+1] - x[i*2+1]
			pe -= nb.G * nb.Masses[i] * nb.Masses[j] / math.Sqrt(rx*rx+ry*ry+eps2)
		}
	}
	return ke + pe
}

func (nb *NBody) Objects(x dynamo.State) []Point {
	pts := make([]Point, nb.NumBodies)
	for i := range pts {
		pts[i] = Point{X: x[i*2], Y: x[i*2+1]}
	}
	return pts
}

func (nb *NBody) Extent() float64 { return 2.0 }

// SampleInitial places the bodies on a ring around the centre of mass with
// near-circular velocities and zero total momentum.
func (nb *NBody) SampleInitial(rng *rand.Rand) dynamo.State {
	n := nb.NumBodies
	x := make(dynamo.State, 4*n)

	radius := 0.5 + 0.5*rng.Float64()
	phase := 2 * math.Pi * rng.Float64()
	totalMass := 0.0
	for _, m := range nb.Masses {
		totalMass += m
	}
	// circular speed for two equal masses, jittered
	speed := math.Sqrt(nb.G*totalMass/(8*radius)) * (0.8 + 0.4*rng.Float64())

	var px, py float64
	for i := 0; i < n; i++ {
		angle := phase + 2*math.Pi*float64(i)/float64(n)
		x[i*2] = radius * math.Cos(angle)
		x[i*2+1] = radius * math.Sin(angle)
		x[2*n+i*2] = -nb.Masses[i] * speed * math.Sin(angle)
		x[2*n+i*2+1] = nb.Masses[i] * speed * math.Cos(angle)
		px += x[2*n+i*2]
		py += x[2*n+i*2+1]
	}
	for i := 0; i < n; i++ {
		share := nb.Masses[i] / totalMass
		x[2*n+i*2] -= share * px
		x[2*n+i*2+1] -= share * py
	}
	return x
}

func (nb *NBody) GetParams() map[string]float64 {
	return map[string]float64{
		"g":         nb.G,
		"softening": nb.Softening,
		"mass":      nb.Masses[0],
	}
}

func (nb *NBody) SetParam(name string, value float64) error {
	if value <= 0 {
		return fmt.Errorf("param %s must be positive, got %g", name, value)
	}
	switch name {
	case "g":
		nb.G = value
	case "softening":
		nb.Softening = value
	case "mass":
		for i := range nb.Masses {
			nb.Masses[i] = value
		}
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
