// Package analysis characterizes trajectories of ground-truth and learned
// systems.
//
//   - [LyapunovExponent]: largest Lyapunov exponent via trajectory separation
//   - [LyapunovSpectrum]: one exponent per perturbed state dimension
//   - [PowerSpectrum]: magnitude spectrum of a sampled series
//   - [DominantFrequency]: strongest non-zero frequency of a series
//
// # Chaos Detection
//
// A positive largest Lyapunov exponent indicates chaotic dynamics:
//
//	lambda := analysis.LyapunovExponent(env, physics.NewRK4(), x0, dt, steps, 1e-8)
//	if lambda > 0 {
//	    // System is chaotic
//	}
package analysis
