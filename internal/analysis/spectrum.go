package analysis

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// PowerSpectrum returns the magnitude of the real FFT of the series with
// its mean removed. Element i holds frequency i/len(series) cycles per
// sample.
func PowerSpectrum(series []float64) []float64 {
	n := len(series)
	if n == 0 {
		return nil
	}
	mean := stat.Mean(series, nil)
	centered := make([]float64, n)
	for i, v := range series {
		centered[i] = v - mean
	}

	coeffs := fourier.NewFFT(n).Coefficients(nil, centered)
	ps := make([]float64, len(coeffs))
	for i, c := range coeffs {
		ps[i] = cmplx.Abs(c)
	}
	return ps
}

// DominantFrequency returns the strongest frequency of a series sampled
// every dt, in cycles per unit time. Flat or too short series give 0.
func DominantFrequency(series []float64, dt float64) float64 {
	n := len(series)
	if n < 4 || dt <= 0 {
		return 0
	}
	ps := PowerSpectrum(series)

	best, peak := 0, 1e-12
	for i := 1; i < len(ps); i++ {
		if ps[i] > peak {
			best, peak = i, ps[i]
		}
	}
	return float64(best) / (float64(n) * dt)
}

// Column extracts component k of every vector in rows. Rows that are too
// short yield 0.
func Column(rows [][]float64, k int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		if k < len(r) {
			out[i] = r[k]
		}
	}
	return out
}
