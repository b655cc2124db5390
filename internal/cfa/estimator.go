package cfa

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"latentfit/domain/model"
	"latentfit/internal/config"
	"latentfit/internal/errors"
	"latentfit/ports"
)

var errEigenFailed = errors.SingularCovariance("eigendecomposition of the sample covariance failed")

// Estimator fits the one-factor model to a dataset's sample moments using a
// pluggable minimizer.
type Estimator struct {
	cfg       config.CFAConfig
	minimizer ports.Minimizer
}

// NewEstimator creates an estimator around the given minimizer.
func NewEstimator(cfg config.CFAConfig, minimizer ports.Minimizer) *Estimator {
	return &Estimator{cfg: cfg, minimizer: minimizer}
}

// DegreesOfFreedom returns M(M+3)/2 observed moments minus the 3M free
// parameters (intercepts, loadings, residual variances; factor variance
// fixed).
func DegreesOfFreedom(items int) int {
	return items*(items+3)/2 - 3*items
}

// Fit maximizes the multivariate-normal likelihood under the one-factor
// covariance structure and computes fit statistics. Cancellation is honored
// between optimizer iterations.
func (e *Estimator) Fit(ctx context.Context, data *model.Dataset) (*model.MLFitResult, error) {
	if data == nil || data.Subjects < 2 || data.Items < 1 {
		return nil, errors.InvalidParameter("dataset must have at least 2 subjects and 1 item")
	}
	for _, v := range data.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.InvalidParameter("dataset contains non-finite entries")
		}
	}

	M := data.Items
	N := data.Subjects

	df := DegreesOfFreedom(M)
	if df < 0 {
		return nil, errors.UnderidentifiedModel("more free parameters than observed moments").
			WithDiagnostic("items", M).
			WithDiagnostic("degrees_of_freedom", df)
	}

	sampleMean, sampleCov := sampleMoments(data)

	logDetS, minEigen, err := logDetPD(sampleCov)
	if err != nil {
		return nil, errors.SingularCovariance("sample covariance matrix is not positive definite").
			WithDiagnostic("min_eigenvalue", minEigen)
	}

	m := impliedModel{items: M, factorVariance: e.cfg.FactorVariance}
	theta0, err := m.startValues(sampleMean, sampleCov)
	if err != nil {
		return nil, err
	}

	objective := func(theta []float64) float64 {
		return m.discrepancy(theta, sampleMean, sampleCov, logDetS)
	}

	res, err := e.minimizer.Minimize(ctx, objective, theta0)
	if err != nil {
		return nil, errors.Wrap(err, "covariance-structure optimization failed")
	}

	intercepts, loadings, residuals := m.unpack(res.X)
	fit := &model.MLFitResult{
		Loadings:          append([]float64(nil), loadings...),
		Intercepts:        append([]float64(nil), intercepts...),
		ResidualVariances: residuals,
		FactorVariance:    e.cfg.FactorVariance,
		Discrepancy:       res.Value,
		Iterations:        res.Iterations,
	}
	fit.LogLikelihood = logLikelihood(N, M, res.Value, logDetS)
	fit.Indices = fitIndices(N, M, df, res.Value, sampleCov, logDetS)
	fit.LatentScores = factorScores(data, m, intercepts, loadings, residuals)

	return fit, nil
}

// sampleMoments returns the column means and the (N-1)-denominator sample
// covariance matrix.
func sampleMoments(data *model.Dataset) ([]float64, *mat.SymDense) {
	x := mat.NewDense(data.Subjects, data.Items, data.Values)
	cov := mat.NewSymDense(data.Items, nil)
	stat.CovarianceMatrix(cov, x, nil)

	means := make([]float64, data.Items)
	for i := 0; i < data.Items; i++ {
		means[i] = stat.Mean(data.Column(i), nil)
	}
	return means, cov
}

// logDetPD returns log|S| and the smallest eigenvalue, failing when S has a
// non-positive eigenvalue.
func logDetPD(s *mat.SymDense) (logDet, minEigen float64, err error) {
	var es mat.EigenSym
	if !es.Factorize(s, false) {
		return 0, math.NaN(), errEigenFailed
	}
	values := es.Values(nil)
	minEigen = values[0]
	for _, v := range values {
		if v <= 0 {
			return 0, minEigen, errEigenFailed
		}
		logDet += math.Log(v)
	}
	return logDet, minEigen, nil
}

// logLikelihood reconstructs the multivariate-normal log-likelihood at the
// optimum from the minimized discrepancy.
func logLikelihood(n, m int, fMin, logDetS float64) float64 {
	// F = log|Sigma| + tr(S Sigma^-1) - log|S| - M + mean term, so the
	// saturated-model constant re-enters here.
	nn := float64(n)
	return -0.5 * nn * (float64(m)*math.Log(2*math.Pi) + fMin + logDetS + float64(m))
}

// factorScores computes regression-method latent score predictions
// phi * lambda' Sigma^-1 (x - mu).
func factorScores(data *model.Dataset, m impliedModel, intercepts, loadings, residuals []float64) []float64 {
	sigma := m.sigma(loadings, residuals)
	var chol mat.Cholesky
	if !chol.Factorize(sigma) {
		return nil
	}

	lambda := mat.NewVecDense(m.items, append([]float64(nil), loadings...))
	var weights mat.VecDense
	if err := chol.SolveVecTo(&weights, lambda); err != nil {
		return nil
	}

	scores := make([]float64, data.Subjects)
	for s := 0; s < data.Subjects; s++ {
		acc := 0.0
		for i := 0; i < data.Items; i++ {
			acc += weights.AtVec(i) * (data.At(s, i) - intercepts[i])
		}
		scores[s] = m.factorVariance * acc
	}
	return scores
}
