package analysis

import (
	"math"

	"github.com/san-kum/hgn/internal/dynamo"
)

// LyapunovExponent estimates the largest Lyapunov exponent using the
// trajectory separation method. A positive value indicates chaos.
//
// Algorithm:
// 1. Run two nearby trajectories
// 2. Measure their divergence after every step
// 3. Pull the perturbed trajectory back to the initial separation
// 4. λ ≈ mean(ln(|δx|/δ0)) / dt
func LyapunovExponent(
	dyn dynamo.System,
	stepper dynamo.Stepper,
	x0 dynamo.State,
	dt float64,
	steps int,
	perturbation float64,
) float64 {
	if len(x0) == 0 {
		return 0
	}
	xp := x0.Clone()
	xp[0] += perturbation
	return separationRate(dyn, stepper, x0, xp, dt, steps, perturbation)
}

// LyapunovSpectrum computes one exponent per state dimension by perturbing
// each dimension independently.
func LyapunovSpectrum(
	dyn dynamo.System,
	stepper dynamo.Stepper,
	x0 dynamo.State,
	dt float64,
	steps int,
	perturbation float64,
) []float64 {
	spectrum := make([]float64, len(x0))
	for i := range x0 {
		xp := x0.Clone()
		xp[i] += perturbation
		spectrum[i] = separationRate(dyn, stepper, x0, xp, dt, steps, perturbation)
	}
	return spectrum
}

func separationRate(
	dyn dynamo.System,
	stepper dynamo.Stepper,
	x0, x0p dynamo.State,
	dt float64,
	steps int,
	d0 float64,
) float64 {
	if steps <= 0 || dt <= 0 || d0 <= 0 {
		return 0
	}
	x := x0.Clone()
	xp := x0p.Clone()

	t := 0.0
	sumLog := 0.0
	count := 0

	for i := 0; i < steps; i++ {
		x = stepper.Step(dyn, x, t, dt).Clone()
		xp = stepper.Step(dyn, xp, t, dt).Clone()
		t += dt

		if !x.IsValid() || !xp.IsValid() {
			break
		}

		sep := 0.0
		for j := range x {
			diff := xp[j] - x[j]
			sep += diff * diff
		}
		sep = math.Sqrt(sep)
		if sep == 0 {
			continue
		}

		sumLog += math.Log(sep / d0)
		count++

		scale := d0 / sep
		for j := range xp {
			xp[j] = x[j] + (xp[j]-x[j])*scale
		}
	}

	if count == 0 {
		return 0
	}
	return sumLog / (float64(count) * dt)
}
