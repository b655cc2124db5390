package mcmc

import (
	"math"

	"github.com/montanaflynn/stats"
)

// SplitRHat computes the split-chain potential-scale-reduction statistic for
// one scalar parameter. Each chain is split in half so within-chain drift
// shows up as between-sequence variance. Values near 1 indicate the
// sequences agree; the caller owns the acceptance threshold.
func SplitRHat(chains [][]float64) float64 {
	sequences := splitChains(chains)
	if len(sequences) < 2 {
		return math.NaN()
	}
	n := float64(len(sequences[0]))
	if n < 2 {
		return math.NaN()
	}

	means := make([]float64, len(sequences))
	variances := make([]float64, len(sequences))
	for i, seq := range sequences {
		means[i], _ = stats.Mean(seq)
		variances[i], _ = stats.SampleVariance(seq)
	}

	w, _ := stats.Mean(variances)
	meanVar, _ := stats.SampleVariance(means)
	b := n * meanVar

	if w == 0 {
		if b == 0 {
			return 1
		}
		return math.Inf(1)
	}

	varPlus := (n-1)/n*w + b/n
	return math.Sqrt(varPlus / w)
}

// EffectiveSampleSize estimates the number of independent draws equivalent
// to the pooled retained draws, using the multi-chain variogram estimator
// with Geyer's initial-positive-sequence truncation.
func EffectiveSampleSize(chains [][]float64) float64 {
	sequences := splitChains(chains)
	m := len(sequences)
	if m == 0 {
		return 0
	}
	n := len(sequences[0])
	if n < 4 {
		return float64(m * n)
	}

	variances := make([]float64, m)
	means := make([]float64, m)
	for i, seq := range sequences {
		means[i], _ = stats.Mean(seq)
		variances[i], _ = stats.SampleVariance(seq)
	}
	w, _ := stats.Mean(variances)
	meanVar, _ := stats.SampleVariance(means)
	nn := float64(n)
	varPlus := (nn-1)/nn*w + meanVar
	if varPlus <= 0 {
		return 0
	}

	// rho_t = 1 - V_t / (2 var+), V_t the cross-chain variogram at lag t.
	rho := make([]float64, n)
	rho[0] = 1
	for t := 1; t < n; t++ {
		vt := 0.0
		for _, seq := range sequences {
			for k := t; k < n; k++ {
				d := seq[k] - seq[k-t]
				vt += d * d
			}
		}
		vt /= float64(m * (n - t))
		rho[t] = 1 - vt/(2*varPlus)
	}

	// Sum paired autocorrelations while the pairs stay positive.
	sum := 0.0
	for t := 1; t+1 < n; t += 2 {
		pair := rho[t] + rho[t+1]
		if pair < 0 {
			break
		}
		sum += pair
	}

	ess := float64(m*n) / (1 + 2*sum)
	if ess > float64(m*n) {
		ess = float64(m * n)
	}
	if ess < 1 {
		ess = 1
	}
	return ess
}

// splitChains halves every chain, discarding a trailing odd draw.
func splitChains(chains [][]float64) [][]float64 {
	// Truncate to the shortest chain so sequences are comparable.
	minLen := math.MaxInt
	for _, c := range chains {
		if len(c) < minLen {
			minLen = len(c)
		}
	}
	if minLen == math.MaxInt || minLen < 2 {
		return nil
	}
	half := minLen / 2

	out := make([][]float64, 0, 2*len(chains))
	for _, c := range chains {
		out = append(out, c[:half], c[half:2*half])
	}
	return out
}
