// Package simulate generates synthetic item-response data from a known
// one-factor generative model. The ground-truth parameters and latent draw
// are returned alongside the dataset for downstream recovery comparison.
package simulate

import (
	"math"
	"math/rand"

	"latentfit/domain/model"
	"latentfit/internal/config"
	"latentfit/internal/errors"
	"latentfit/ports"
)

// minResidualVariance is the clamp floor for uniformly drawn residual
// variances whose range dips below zero.
const minResidualVariance = 1e-4

// Simulator draws one-factor datasets from seeded streams.
type Simulator struct {
	rng ports.RNGPort
}

// NewSimulator creates a simulator backed by the given RNG port.
func NewSimulator(rng ports.RNGPort) *Simulator {
	return &Simulator{rng: rng}
}

// Simulate draws generative parameters, per-subject latent scores, and the
// observed N x M dataset. Randomness is fully determined by cfg.Seed.
func (s *Simulator) Simulate(cfg config.SimulationConfig) (model.GenerativeParameters, model.LatentFactorDraw, *model.Dataset, error) {
	if err := validate(cfg); err != nil {
		return model.GenerativeParameters{}, model.LatentFactorDraw{}, nil, err
	}

	paramRNG := s.rng.SeededStream("simulate/params", cfg.Seed)
	latentRNG := s.rng.SeededStream("simulate/latent", cfg.Seed)
	noiseRNG := s.rng.SeededStream("simulate/noise", cfg.Seed)

	params := model.GenerativeParameters{
		Loadings:          make([]float64, cfg.Items),
		Intercepts:        make([]float64, cfg.Items),
		ResidualVariances: make([]float64, cfg.Items),
		FactorVariance:    cfg.FactorVariance,
	}
	for i := 0; i < cfg.Items; i++ {
		params.Loadings[i] = uniform(paramRNG, cfg.LoadingCenter, cfg.LoadingSpread)
		rv := uniform(paramRNG, cfg.ErrorCenter, cfg.ErrorSpread)
		if rv < minResidualVariance {
			rv = minResidualVariance
		}
		params.ResidualVariances[i] = rv
		params.Intercepts[i] = uniform(paramRNG, cfg.ItemMeanCenter, cfg.ItemMeanSpread)
	}

	latent := model.LatentFactorDraw{Scores: make([]float64, cfg.Subjects)}
	factorSD := math.Sqrt(cfg.FactorVariance)
	for s := range latent.Scores {
		latent.Scores[s] = latentRNG.NormFloat64() * factorSD
	}

	data := model.NewDataset(cfg.Subjects, cfg.Items)
	for subj := 0; subj < cfg.Subjects; subj++ {
		eta := latent.Scores[subj]
		for i := 0; i < cfg.Items; i++ {
			noise := noiseRNG.NormFloat64() * math.Sqrt(params.ResidualVariances[i])
			data.Set(subj, i, params.Intercepts[i]+params.Loadings[i]*eta+noise)
		}
	}

	return params, latent, data, nil
}

func validate(cfg config.SimulationConfig) error {
	if cfg.Subjects < 1 {
		return errors.InvalidParameter("subjects must be >= 1").
			WithDiagnostic("subjects", cfg.Subjects)
	}
	if cfg.Items < 1 {
		return errors.InvalidParameter("items must be >= 1").
			WithDiagnostic("items", cfg.Items)
	}
	if cfg.FactorVariance <= 0 {
		return errors.InvalidParameter("factor variance must be positive").
			WithDiagnostic("factor_variance", cfg.FactorVariance)
	}
	if cfg.LoadingSpread < 0 || cfg.ErrorSpread < 0 || cfg.ItemMeanSpread < 0 {
		return errors.InvalidParameter("spreads must be non-negative")
	}
	// The whole residual-variance range must not collapse below zero; a
	// partially negative range is clamped per-draw instead.
	if cfg.ErrorCenter+cfg.ErrorSpread <= 0 {
		return errors.InvalidParameter("residual variance upper bound must be positive").
			WithDiagnostic("error_center", cfg.ErrorCenter).
			WithDiagnostic("error_spread", cfg.ErrorSpread)
	}
	return nil
}

func uniform(rng *rand.Rand, center, spread float64) float64 {
	return center - spread + 2*spread*rng.Float64()
}
