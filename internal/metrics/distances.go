// Package metrics scores approximate posteriors against exact ones.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// klFloor keeps KL finite when the approximation has never visited a
// state that the exact posterior gives mass to.
const klFloor = 1e-12

// TotalVariation is the total variation distance between two distributions
// over the same states.
//
// TV(p, q) = 1/2 * sum_i |p_i - q_i|
//
// 0 = identical, 1 = disjoint support. Mismatched lengths return 1.
func TotalVariation(p, q []float64) float64 {
	if len(p) != len(q) || len(p) == 0 {
		return 1.0
	}
	return 0.5 * floats.Distance(p, q, 1)
}

// KLDivergence computes KL(p || q) in nats, where p is the reference
// (exact) distribution and q the estimate. Entries of q are floored at
// 1e-12 and renormalized so an unvisited state costs a large but finite
// penalty.
func KLDivergence(p, q []float64) float64 {
	if len(p) != len(q) || len(p) == 0 {
		return math.Inf(1)
	}
	smoothed := make([]float64, len(q))
	for i, v := range q {
		smoothed[i] = math.Max(v, klFloor)
	}
	floats.Scale(1/floats.Sum(smoothed), smoothed)
	return math.Max(0, stat.KullbackLeibler(p, smoothed))
}

// Hellinger distance, in [0, 1].
//
// H(p, q) = sqrt(1 - sum_i sqrt(p_i * q_i))
func Hellinger(p, q []float64) float64 {
	if len(p) != len(q) || len(p) == 0 {
		return 1.0
	}
	h := stat.Hellinger(p, q)
	if math.IsNaN(h) {
		// rounding can push the Bhattacharyya coefficient just above 1
		return 0
	}
	return h
}

// MaxAbsError is the largest per-state absolute difference.
func MaxAbsError(p, q []float64) float64 {
	if len(p) != len(q) || len(p) == 0 {
		return 1.0
	}
	return floats.Distance(p, q, math.Inf(1))
}

// MonteCarloStdError is the binomial standard error of a proportion p
// estimated from n draws, sqrt(p(1-p)/n). It ignores autocorrelation, so
// for a Markov chain it is a lower bound.
func MonteCarloStdError(p float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	return math.Sqrt(math.Max(0, p*(1-p)) / float64(n))
}
