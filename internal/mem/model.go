// Package mem fits the one-factor model in its mixed-effects re-expression:
// value(s,i) = intercept_i + loading_i*latent_s + noise, with the latent
// score a per-subject random effect and loadings/intercepts per-item random
// effects. Estimation is by MCMC over the joint posterior; the latent
// random-effect SD is fixed to the same identification anchor the ML fit
// uses for the factor variance.
package mem

import (
	"math"

	"latentfit/domain/model"
	"latentfit/internal/config"
)

// hierTarget is the joint log-posterior over the unconstrained vector
//
//	[eta_1..eta_N, lambda_1..lambda_M, beta_1..beta_M,
//	 log sigma, mu_lambda, log tau_lambda, mu_beta, log tau_beta]
//
// Scale parameters ride on the log scale with their Jacobian folded into
// the density. The hyperprior on mu_lambda is centered above zero, which
// breaks the invariance under jointly flipping all loadings and latents.
type hierTarget struct {
	data     *model.Dataset
	priors   config.PriorConfig
	latentSD float64 // fixed identification anchor
}

func newTarget(data *model.Dataset, priors config.PriorConfig, latentSD float64) *hierTarget {
	return &hierTarget{data: data, priors: priors, latentSD: latentSD}
}

// Parameter-vector offsets.
func (t *hierTarget) etaOff() int     { return 0 }
func (t *hierTarget) lambdaOff() int  { return t.data.Subjects }
func (t *hierTarget) betaOff() int    { return t.data.Subjects + t.data.Items }
func (t *hierTarget) sigmaOff() int   { return t.data.Subjects + 2*t.data.Items }
func (t *hierTarget) muLamOff() int   { return t.sigmaOff() + 1 }
func (t *hierTarget) tauLamOff() int  { return t.sigmaOff() + 2 }
func (t *hierTarget) muBetaOff() int  { return t.sigmaOff() + 3 }
func (t *hierTarget) tauBetaOff() int { return t.sigmaOff() + 4 }

func (t *hierTarget) Dim() int {
	return t.data.Subjects + 2*t.data.Items + 5
}

// LogDensity evaluates the joint log-posterior up to an additive constant.
func (t *hierTarget) LogDensity(x []float64) float64 {
	N, M := t.data.Subjects, t.data.Items
	eta := x[t.etaOff():t.lambdaOff()]
	lambda := x[t.lambdaOff():t.betaOff()]
	beta := x[t.betaOff():t.sigmaOff()]
	uSigma := x[t.sigmaOff()]
	muLam := x[t.muLamOff()]
	uTauLam := x[t.tauLamOff()]
	muBeta := x[t.muBetaOff()]
	uTauBeta := x[t.tauBetaOff()]

	sigma := math.Exp(uSigma)
	tauLam := math.Exp(uTauLam)
	tauBeta := math.Exp(uTauBeta)

	// Residual likelihood.
	ssr := 0.0
	for s := 0; s < N; s++ {
		for i := 0; i < M; i++ {
			r := t.data.At(s, i) - beta[i] - lambda[i]*eta[s]
			ssr += r * r
		}
	}
	lp := -float64(N*M)*uSigma - ssr/(2*sigma*sigma)

	// Latent random effect, SD fixed by the anchor.
	tau0sq := t.latentSD * t.latentSD
	for s := 0; s < N; s++ {
		lp -= eta[s] * eta[s] / (2 * tau0sq)
	}

	// Per-item random effects.
	for i := 0; i < M; i++ {
		dl := lambda[i] - muLam
		lp += -uTauLam - dl*dl/(2*tauLam*tauLam)
		db := beta[i] - muBeta
		lp += -uTauBeta - db*db/(2*tauBeta*tauBeta)
	}

	// Hyperpriors; log-scale parameters carry +u from the Jacobian.
	p := t.priors
	lp -= sq(muLam-p.LoadingMeanLoc) / (2 * sq(p.LoadingMeanScale))
	lp -= sq(muBeta-p.InterceptMeanLoc) / (2 * sq(p.InterceptMeanScale))
	lp += -sq(tauLam)/(2*sq(p.LoadingSDScale)) + uTauLam
	lp += -sq(tauBeta)/(2*sq(p.InterceptSDScale)) + uTauBeta
	lp += -sq(sigma)/(2*sq(p.ResidualSDScale)) + uSigma

	return lp
}

// Gradient writes the analytic gradient of LogDensity into grad.
func (t *hierTarget) Gradient(grad, x []float64) {
	N, M := t.data.Subjects, t.data.Items
	eta := x[t.etaOff():t.lambdaOff()]
	lambda := x[t.lambdaOff():t.betaOff()]
	beta := x[t.betaOff():t.sigmaOff()]
	uSigma := x[t.sigmaOff()]
	muLam := x[t.muLamOff()]
	uTauLam := x[t.tauLamOff()]
	muBeta := x[t.muBetaOff()]
	uTauBeta := x[t.tauBetaOff()]

	sigma := math.Exp(uSigma)
	invSigmaSq := 1 / (sigma * sigma)
	tauLam := math.Exp(uTauLam)
	tauBeta := math.Exp(uTauBeta)
	invTauLamSq := 1 / (tauLam * tauLam)
	invTauBetaSq := 1 / (tauBeta * tauBeta)
	tau0sq := t.latentSD * t.latentSD

	for i := range grad {
		grad[i] = 0
	}

	ssr := 0.0
	for s := 0; s < N; s++ {
		for i := 0; i < M; i++ {
			r := t.data.At(s, i) - beta[i] - lambda[i]*eta[s]
			ssr += r * r
			grad[t.etaOff()+s] += lambda[i] * r * invSigmaSq
			grad[t.lambdaOff()+i] += eta[s] * r * invSigmaSq
			grad[t.betaOff()+i] += r * invSigmaSq
		}
	}

	for s := 0; s < N; s++ {
		grad[t.etaOff()+s] -= eta[s] / tau0sq
	}

	sumDL, sumDLSq := 0.0, 0.0
	sumDB, sumDBSq := 0.0, 0.0
	for i := 0; i < M; i++ {
		dl := lambda[i] - muLam
		grad[t.lambdaOff()+i] -= dl * invTauLamSq
		sumDL += dl
		sumDLSq += dl * dl
		db := beta[i] - muBeta
		grad[t.betaOff()+i] -= db * invTauBetaSq
		sumDB += db
		sumDBSq += db * db
	}

	p := t.priors
	grad[t.sigmaOff()] = -float64(N*M) + ssr*invSigmaSq - sq(sigma)/sq(p.ResidualSDScale) + 1
	grad[t.muLamOff()] = sumDL*invTauLamSq - (muLam-p.LoadingMeanLoc)/sq(p.LoadingMeanScale)
	grad[t.tauLamOff()] = -float64(M) + sumDLSq*invTauLamSq - sq(tauLam)/sq(p.LoadingSDScale) + 1
	grad[t.muBetaOff()] = sumDB*invTauBetaSq - (muBeta-p.InterceptMeanLoc)/sq(p.InterceptMeanScale)
	grad[t.tauBetaOff()] = -float64(M) + sumDBSq*invTauBetaSq - sq(tauBeta)/sq(p.InterceptSDScale) + 1
}

func sq(v float64) float64 { return v * v }
