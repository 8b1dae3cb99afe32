// Package metrics scores rollouts: energy drift of ground-truth and learned
// dynamics, boundedness of latent states and summary statistics.
package metrics

import (
	"github.com/san-kum/hgn/internal/dynamo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metric accumulates a scalar over observed states.
type Metric interface {
	Name() string
	Observe(x dynamo.State, t float64)
	Value() float64
	Reset()
}

// Summary describes a sample of values.
type Summary struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	mean, std := stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		std = 0
	}
	return Summary{
		Mean: mean,
		Std:  std,
		Min:  floats.Min(values),
		Max:  floats.Max(values),
	}
}

// Observe feeds every state of a rollout spaced dt apart into each metric
// and returns their values by name.
func Observe(states []dynamo.State, dt float64, ms ...Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		m.Reset()
		for i, x := range states {
			m.Observe(x, float64(i)*dt)
		}
		out[m.Name()] = m.Value()
	}
	return out
}
