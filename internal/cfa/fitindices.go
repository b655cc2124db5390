package cfa

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"latentfit/domain/model"
)

// rmseaConfidence is the two-sided confidence level of the RMSEA interval.
const rmseaConfidence = 0.90

// fitIndices computes the chi-square test, RMSEA with its noncentral
// chi-square confidence interval, and CFI against the zero-covariance
// baseline. The test statistic is (N-1) times the minimized discrepancy.
func fitIndices(n, m, df int, fMin float64, sampleCov *mat.SymDense, logDetS float64) model.FitIndices {
	chi2 := float64(n-1) * fMin
	if chi2 < 0 {
		chi2 = 0
	}

	indices := model.FitIndices{
		ChiSquare:        chi2,
		DegreesOfFreedom: df,
		PValue:           1,
		CFI:              1,
	}

	if df > 0 {
		dist := distuv.ChiSquared{K: float64(df)}
		indices.PValue = 1 - dist.CDF(chi2)

		indices.RMSEA = math.Sqrt(math.Max(0, chi2/float64(df)-1) / float64(n-1))
		lower, upper := rmseaInterval(chi2, df, n)
		indices.RMSEALower = lower
		indices.RMSEAUpper = upper
	}

	// Baseline model: all covariances zero, variances and means free.
	// tr(S diag(S)^-1) = M, so its discrepancy reduces to sum log S_ii - log|S|.
	fBaseline := -logDetS
	for i := 0; i < m; i++ {
		fBaseline += math.Log(sampleCov.At(i, i))
	}
	chi2Baseline := float64(n-1) * fBaseline
	dfBaseline := m * (m - 1) / 2

	numer := math.Max(chi2-float64(df), 0)
	denom := math.Max(chi2Baseline-float64(dfBaseline), numer)
	if denom > 0 {
		indices.CFI = 1 - numer/denom
	}

	return indices
}

// rmseaInterval inverts the noncentral chi-square CDF in the noncentrality
// parameter to bound the population discrepancy.
func rmseaInterval(chi2 float64, df, n int) (lower, upper float64) {
	toRMSEA := func(lambda float64) float64 {
		return math.Sqrt(math.Max(0, lambda) / (float64(df) * float64(n-1)))
	}

	// Lower bound: noncentrality where the observed statistic sits at the
	// upper tail; zero when even the central distribution puts the statistic
	// below that quantile.
	lo := solveNoncentrality(chi2, df, 1-(1-rmseaConfidence)/2)
	hi := solveNoncentrality(chi2, df, (1-rmseaConfidence)/2)
	return toRMSEA(lo), toRMSEA(hi)
}

// solveNoncentrality finds lambda with P(X <= chi2 | ncx2(df, lambda)) = p,
// by bisection; the CDF is strictly decreasing in lambda.
func solveNoncentrality(chi2 float64, df int, p float64) float64 {
	if chi2 <= 0 {
		return 0
	}
	if noncentralChiSquaredCDF(chi2, df, 0) <= p {
		return 0
	}

	lo, hi := 0.0, 1.0
	for noncentralChiSquaredCDF(chi2, df, hi) > p {
		hi *= 2
		if hi > 1e7 {
			break
		}
	}
	for i := 0; i < 200; i++ {
		mid := 0.5 * (lo + hi)
		if noncentralChiSquaredCDF(chi2, df, mid) > p {
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo < 1e-8*(1+hi) {
			break
		}
	}
	return 0.5 * (lo + hi)
}

// noncentralChiSquaredCDF evaluates the noncentral chi-square CDF as a
// Poisson mixture of central chi-square CDFs.
func noncentralChiSquaredCDF(x float64, df int, lambda float64) float64 {
	if x <= 0 {
		return 0
	}
	if lambda <= 0 {
		return distuv.ChiSquared{K: float64(df)}.CDF(x)
	}

	half := lambda / 2
	// Poisson weights around the mode keep the series short for large lambda.
	weight := math.Exp(-half)
	sum := 0.0
	cumWeight := 0.0
	for j := 0; j < 10000; j++ {
		if j > 0 {
			weight *= half / float64(j)
		}
		cumWeight += weight
		if weight > 0 {
			sum += weight * distuv.ChiSquared{K: float64(df + 2*j)}.CDF(x)
		}
		if j > int(half) && (cumWeight > 1-1e-12 || weight < 1e-300) {
			break
		}
	}
	return sum
}
