// Package cfa fits the one-factor covariance-structure model by maximum
// likelihood. The latent scale is identified by fixing the factor variance,
// so all M loadings, M intercepts and M residual variances are free.
package cfa

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// impliedModel maps the free parameter vector to model-implied moments.
// The parameter layout is [intercepts (M), loadings (M), log residual
// variances (M)]; residual variances ride on the log scale so the optimizer
// works unconstrained.
type impliedModel struct {
	items          int
	factorVariance float64
}

func (m impliedModel) dim() int { return 3 * m.items }

func (m impliedModel) unpack(theta []float64) (intercepts, loadings, residuals []float64) {
	M := m.items
	intercepts = theta[0:M]
	loadings = theta[M : 2*M]
	residuals = make([]float64, M)
	for i := 0; i < M; i++ {
		residuals[i] = math.Exp(theta[2*M+i])
	}
	return intercepts, loadings, residuals
}

func (m impliedModel) pack(intercepts, loadings, residuals []float64) []float64 {
	M := m.items
	theta := make([]float64, 3*M)
	copy(theta[0:M], intercepts)
	copy(theta[M:2*M], loadings)
	for i := 0; i < M; i++ {
		theta[2*M+i] = math.Log(residuals[i])
	}
	return theta
}

// sigma builds the implied covariance phi*lambda*lambda' + diag(psi).
func (m impliedModel) sigma(loadings, residuals []float64) *mat.SymDense {
	M := m.items
	sigma := mat.NewSymDense(M, nil)
	for i := 0; i < M; i++ {
		for j := i; j < M; j++ {
			v := m.factorVariance * loadings[i] * loadings[j]
			if i == j {
				v += residuals[i]
			}
			sigma.SetSym(i, j, v)
		}
	}
	return sigma
}

// discrepancy evaluates the ML fit function
//
//	F = log|Sigma| + tr(S Sigma^-1) - log|S| - M + (xbar-mu)' Sigma^-1 (xbar-mu)
//
// returning +Inf when the implied covariance is not positive definite so
// line searches back away from inadmissible regions.
func (m impliedModel) discrepancy(theta []float64, sampleMean []float64, sampleCov *mat.SymDense, logDetS float64) float64 {
	intercepts, loadings, residuals := m.unpack(theta)
	sigma := m.sigma(loadings, residuals)

	var chol mat.Cholesky
	if !chol.Factorize(sigma) {
		return math.Inf(1)
	}

	M := m.items
	var solved mat.Dense
	if err := chol.SolveTo(&solved, sampleCov); err != nil {
		return math.Inf(1)
	}
	trace := 0.0
	for i := 0; i < M; i++ {
		trace += solved.At(i, i)
	}

	diff := mat.NewVecDense(M, nil)
	for i := 0; i < M; i++ {
		diff.SetVec(i, sampleMean[i]-intercepts[i])
	}
	var solvedVec mat.VecDense
	if err := chol.SolveVecTo(&solvedVec, diff); err != nil {
		return math.Inf(1)
	}
	meanTerm := mat.Dot(diff, &solvedVec)

	f := chol.LogDet() + trace - logDetS - float64(M) + meanTerm
	if math.IsNaN(f) {
		return math.Inf(1)
	}
	return f
}

// startValues produces method-of-moments initial estimates: intercepts from
// sample means, loadings from the leading eigenpair of S, residual variances
// from the remaining item variance.
func (m impliedModel) startValues(sampleMean []float64, sampleCov *mat.SymDense) ([]float64, error) {
	M := m.items

	var es mat.EigenSym
	if !es.Factorize(sampleCov, true) {
		return nil, errEigenFailed
	}
	values := es.Values(nil) // ascending
	var vectors mat.Dense
	es.VectorsTo(&vectors)

	leading := values[M-1]
	if leading < 0 {
		leading = 0
	}
	scale := math.Sqrt(leading / m.factorVariance)

	loadings := make([]float64, M)
	signSum := 0.0
	for i := 0; i < M; i++ {
		loadings[i] = vectors.At(i, M-1) * scale
		signSum += loadings[i]
	}
	// Start in the positive orientation; the likelihood is invariant under
	// a global sign flip, so this just picks a deterministic branch.
	if signSum < 0 {
		for i := range loadings {
			loadings[i] = -loadings[i]
		}
	}

	residuals := make([]float64, M)
	for i := 0; i < M; i++ {
		implied := m.factorVariance * loadings[i] * loadings[i]
		rv := sampleCov.At(i, i) - implied
		floor := 0.05 * sampleCov.At(i, i)
		if rv < floor {
			rv = floor
		}
		residuals[i] = rv
	}

	return m.pack(sampleMean, loadings, residuals), nil
}
