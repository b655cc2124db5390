// Package testkit provides seeded fixtures for the estimation tests,
// including the fixed-parameter reference scenario used to pin down
// recovery behavior.
package testkit

import (
	"math"

	"latentfit/adapters/rng"
	"latentfit/domain/model"
)

// ReferenceTruth is the fixed-parameter scenario: 5 items with known
// loadings and intercepts, homogeneous residual variance, unit factor
// variance.
func ReferenceTruth() model.GenerativeParameters {
	return model.GenerativeParameters{
		Loadings:          []float64{0.5, 0.6, 0.7, 0.5, 0.6},
		Intercepts:        []float64{1, 2, 3, 2, 1},
		ResidualVariances: []float64{0.3, 0.3, 0.3, 0.3, 0.3},
		FactorVariance:    1,
	}
}

// ReferenceDataset generates the 200-subject reference dataset from the
// fixed truth. Unlike the simulator, the parameters are not drawn; only the
// latent scores and noise are random.
func ReferenceDataset(seed int64) (model.GenerativeParameters, model.LatentFactorDraw, *model.Dataset) {
	return FixedTruthDataset(ReferenceTruth(), 200, seed)
}

// FixedTruthDataset draws latent scores and noise for the given truth.
func FixedTruthDataset(truth model.GenerativeParameters, subjects int, seed int64) (model.GenerativeParameters, model.LatentFactorDraw, *model.Dataset) {
	adapter := rng.NewAdapter()
	latentRNG := adapter.SeededStream("testkit/latent", seed)
	noiseRNG := adapter.SeededStream("testkit/noise", seed)

	M := truth.Items()
	latent := model.LatentFactorDraw{Scores: make([]float64, subjects)}
	factorSD := math.Sqrt(truth.FactorVariance)
	for s := range latent.Scores {
		latent.Scores[s] = latentRNG.NormFloat64() * factorSD
	}

	data := model.NewDataset(subjects, M)
	for s := 0; s < subjects; s++ {
		for i := 0; i < M; i++ {
			noise := noiseRNG.NormFloat64() * math.Sqrt(truth.ResidualVariances[i])
			data.Set(s, i, truth.Intercepts[i]+truth.Loadings[i]*latent.Scores[s]+noise)
		}
	}
	return truth, latent, data
}

// ConstantColumnDataset returns a dataset whose first item never varies,
// making the sample covariance singular.
func ConstantColumnDataset(subjects int) *model.Dataset {
	adapter := rng.NewAdapter()
	noise := adapter.SeededStream("testkit/constant", 7)

	data := model.NewDataset(subjects, 3)
	for s := 0; s < subjects; s++ {
		data.Set(s, 0, 1.0)
		data.Set(s, 1, noise.NormFloat64())
		data.Set(s, 2, noise.NormFloat64())
	}
	return data
}
