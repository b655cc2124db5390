package config

import (
	"math"
	"os"
	"strconv"

	"latentfit/internal/errors"
)

// Config is the complete estimation-engine configuration. The identification
// anchor is shared explicitly between both estimators: the ML fit fixes the
// factor variance and the sampler fixes the latent random-effect variance to
// the same value, otherwise the two models are not comparable.
type Config struct {
	Simulation SimulationConfig
	CFA        CFAConfig
	Sampler    SamplerConfig
	Priors     PriorConfig
	Anchor     AnchorConfig
}

// AnchorConfig carries the latent-scale identification constraint.
type AnchorConfig struct {
	// FactorVariance is the fixed variance of the latent factor in the ML
	// model and of the per-subject random effect in the Bayesian model.
	FactorVariance float64
}

// SimulationConfig parameterizes the synthetic one-factor generator.
// Loadings, residual variances and intercepts are drawn uniformly from
// center +/- spread; latent scores are normal with the given variance.
type SimulationConfig struct {
	Subjects       int
	Items          int
	LoadingCenter  float64
	LoadingSpread  float64
	FactorVariance float64
	ErrorCenter    float64
	ErrorSpread    float64
	ItemMeanCenter float64
	ItemMeanSpread float64
	Seed           int64
}

// CFAConfig controls the covariance-structure estimator.
type CFAConfig struct {
	Tolerance      float64 // relative change in the discrepancy between iterations
	MaxIterations  int
	FactorVariance float64 // identification anchor, copied from AnchorConfig
}

// SamplerConfig controls the hierarchical MCMC sampler.
type SamplerConfig struct {
	Chains       int
	Warmup       int     // discarded adaptation iterations per chain
	Draws        int     // retained iterations per chain
	Leapfrog     int     // integration steps per proposal
	TargetAccept float64 // dual-averaging acceptance target
	Seed         int64   // base seed; per-chain seeds derive from (Seed, chain index)
	LatentSD     float64 // fixed random-effect SD of the latent scores (anchor)
}

// PriorConfig holds the weakly-informative prior hyperparameters of the
// hierarchical model. These are configuration data, not code; every field
// has a documented default and may be overridden.
type PriorConfig struct {
	// LoadingMeanLoc centers the hyperprior on the loading mean above zero
	// to break the joint sign flip of loadings and latent scores.
	LoadingMeanLoc     float64
	LoadingMeanScale   float64
	LoadingSDScale     float64 // half-normal scale for the loading SD
	InterceptMeanLoc   float64
	InterceptMeanScale float64
	InterceptSDScale   float64 // half-normal scale for the intercept SD
	ResidualSDScale    float64 // half-normal scale for the residual SD
}

// Default returns the full default configuration.
func Default() Config {
	return Config{
		Simulation: DefaultSimulation(),
		CFA:        DefaultCFA(),
		Sampler:    DefaultSampler(),
		Priors:     DefaultPriors(),
		Anchor:     AnchorConfig{FactorVariance: 1.0},
	}
}

// DefaultSimulation mirrors the reference recovery scenario's shape.
func DefaultSimulation() SimulationConfig {
	return SimulationConfig{
		Subjects:       200,
		Items:          5,
		LoadingCenter:  0.6,
		LoadingSpread:  0.1,
		FactorVariance: 1.0,
		ErrorCenter:    0.3,
		ErrorSpread:    0.0,
		ItemMeanCenter: 2.0,
		ItemMeanSpread: 1.0,
		Seed:           42,
	}
}

// DefaultCFA returns the optimizer budget used by the ML estimator.
func DefaultCFA() CFAConfig {
	return CFAConfig{
		Tolerance:      1e-9,
		MaxIterations:  500,
		FactorVariance: 1.0,
	}
}

// DefaultSampler returns the reference sampler schedule.
func DefaultSampler() SamplerConfig {
	return SamplerConfig{
		Chains:       4,
		Warmup:       1000,
		Draws:        1000,
		Leapfrog:     48,
		TargetAccept: 0.8,
		Seed:         42,
		LatentSD:     1.0,
	}
}

// DefaultPriors returns the documented weakly-informative defaults.
func DefaultPriors() PriorConfig {
	return PriorConfig{
		LoadingMeanLoc:     0.5,
		LoadingMeanScale:   0.5,
		LoadingSDScale:     1.0,
		InterceptMeanLoc:   0.0,
		InterceptMeanScale: 5.0,
		InterceptSDScale:   2.0,
		ResidualSDScale:    1.0,
	}
}

// Load builds a configuration from defaults plus environment overrides.
// Only run-shape knobs are exposed through the environment; prior
// hyperparameters are overridden programmatically.
func Load() (Config, error) {
	cfg := Default()

	var err error
	if cfg.Simulation.Subjects, err = envInt("LATENTFIT_SUBJECTS", cfg.Simulation.Subjects); err != nil {
		return cfg, err
	}
	if cfg.Simulation.Items, err = envInt("LATENTFIT_ITEMS", cfg.Simulation.Items); err != nil {
		return cfg, err
	}
	if cfg.Simulation.Seed, err = envInt64("LATENTFIT_SEED", cfg.Simulation.Seed); err != nil {
		return cfg, err
	}
	if cfg.Sampler.Chains, err = envInt("LATENTFIT_CHAINS", cfg.Sampler.Chains); err != nil {
		return cfg, err
	}
	if cfg.Sampler.Warmup, err = envInt("LATENTFIT_WARMUP", cfg.Sampler.Warmup); err != nil {
		return cfg, err
	}
	if cfg.Sampler.Draws, err = envInt("LATENTFIT_DRAWS", cfg.Sampler.Draws); err != nil {
		return cfg, err
	}
	cfg.Sampler.Seed = cfg.Simulation.Seed

	// Keep the anchor coupling intact regardless of overrides.
	cfg.CFA.FactorVariance = cfg.Anchor.FactorVariance
	cfg.Sampler.LatentSD = math.Sqrt(cfg.Anchor.FactorVariance)

	return cfg, nil
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, errors.Wrapf(err, "invalid %s", key)
	}
	return v, nil
}

func envInt64(key string, fallback int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback, errors.Wrapf(err, "invalid %s", key)
	}
	return v, nil
}
