package mem

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latentfit/domain/model"
	"latentfit/internal/config"
	"latentfit/internal/testkit"
)

func smallTruth() model.GenerativeParameters {
	return model.GenerativeParameters{
		Loadings:          []float64{0.5, 0.6, 0.7},
		Intercepts:        []float64{1, 2, 3},
		ResidualVariances: []float64{0.3, 0.3, 0.3},
		FactorVariance:    1,
	}
}

func smallTarget(subjects int) *hierTarget {
	_, _, data := testkit.FixedTruthDataset(smallTruth(), subjects, 17)
	return newTarget(data, config.DefaultPriors(), 1)
}

func randomPoint(t *hierTarget, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	x := make([]float64, t.Dim())
	for i := range x {
		x[i] = 0.5 * rng.NormFloat64()
	}
	// Keep scales in a sane range so finite differences stay stable.
	x[t.sigmaOff()] = math.Log(0.6) + 0.1*rng.NormFloat64()
	x[t.tauLamOff()] = math.Log(0.5) + 0.1*rng.NormFloat64()
	x[t.tauBetaOff()] = math.Log(0.8) + 0.1*rng.NormFloat64()
	return x
}

func TestTargetDim(t *testing.T) {
	target := smallTarget(6)
	assert.Equal(t, 6+2*3+5, target.Dim())
}

func TestLogDensityFiniteAtRandomPoints(t *testing.T) {
	target := smallTarget(6)
	for seed := int64(1); seed <= 5; seed++ {
		lp := target.LogDensity(randomPoint(target, seed))
		require.False(t, math.IsNaN(lp) || math.IsInf(lp, 0), "seed %d", seed)
	}
}

func TestGradientMatchesFiniteDifferences(t *testing.T) {
	target := smallTarget(6)

	for seed := int64(1); seed <= 3; seed++ {
		x := randomPoint(target, seed)
		analytic := make([]float64, target.Dim())
		target.Gradient(analytic, x)

		const h = 1e-6
		for d := 0; d < target.Dim(); d++ {
			orig := x[d]
			x[d] = orig + h
			up := target.LogDensity(x)
			x[d] = orig - h
			down := target.LogDensity(x)
			x[d] = orig

			numeric := (up - down) / (2 * h)
			tol := 1e-4 * (1 + math.Abs(numeric))
			assert.InDelta(t, numeric, analytic[d], tol, "seed %d dim %d", seed, d)
		}
	}
}

func TestLogDensitySignFlipBroken(t *testing.T) {
	// The positive-mean hyperprior on the loading center must break the
	// symmetry under jointly negating loadings, latents, and their center.
	target := smallTarget(10)
	x := randomPoint(target, 4)
	for i := target.lambdaOff(); i < target.betaOff(); i++ {
		x[i] = math.Abs(x[i]) + 0.3
	}
	x[target.muLamOff()] = 0.5

	flipped := append([]float64(nil), x...)
	for s := target.etaOff(); s < target.lambdaOff(); s++ {
		flipped[s] = -flipped[s]
	}
	for i := target.lambdaOff(); i < target.betaOff(); i++ {
		flipped[i] = -flipped[i]
	}
	flipped[target.muLamOff()] = -flipped[target.muLamOff()]

	assert.Greater(t, target.LogDensity(x), target.LogDensity(flipped))
}

func TestToSampleNaturalScale(t *testing.T) {
	target := smallTarget(4)
	x := make([]float64, target.Dim())
	x[target.sigmaOff()] = math.Log(0.55)
	x[target.tauLamOff()] = math.Log(0.2)
	x[target.tauBetaOff()] = math.Log(1.5)
	x[target.muLamOff()] = 0.6

	sample := target.toSample(x)
	assert.Len(t, sample.Latent, 4)
	assert.Len(t, sample.Loadings, 3)
	assert.Len(t, sample.Intercepts, 3)
	assert.InDelta(t, 0.55, sample.ResidualSD, 1e-12)
	assert.InDelta(t, 0.2, sample.LoadingSD, 1e-12)
	assert.InDelta(t, 1.5, sample.InterceptSD, 1e-12)
	assert.Equal(t, 0.6, sample.LoadingMean)
}

func TestParameterNames(t *testing.T) {
	target := smallTarget(2)
	assert.Equal(t, "latent[0]", target.parameterName(0))
	assert.Equal(t, "loading[0]", target.parameterName(target.lambdaOff()))
	assert.Equal(t, "intercept[2]", target.parameterName(target.betaOff()+2))
	assert.Equal(t, "sigma", target.parameterName(target.sigmaOff()))
	assert.Equal(t, "loading_mean", target.parameterName(target.muLamOff()))
	assert.Equal(t, "loading_sd", target.parameterName(target.tauLamOff()))
	assert.Equal(t, "intercept_mean", target.parameterName(target.muBetaOff()))
	assert.Equal(t, "intercept_sd", target.parameterName(target.tauBetaOff()))
}
