package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latentfit/adapters/rng"
	"latentfit/internal/cfa"
	"latentfit/internal/config"
	"latentfit/internal/errors"
	"latentfit/internal/mem"
	"latentfit/internal/optimize"
	"latentfit/internal/testkit"
)

func quickConfig() config.Config {
	cfg := config.Default()
	cfg.Simulation.Subjects = 80
	cfg.Simulation.Items = 4
	cfg.Sampler.Chains = 2
	cfg.Sampler.Warmup = 300
	cfg.Sampler.Draws = 300
	cfg.Sampler.Leapfrog = 16
	return cfg
}

func TestRecoveryPipeline(t *testing.T) {
	cfg := quickConfig()
	service := NewRecoveryService(cfg, rng.NewAdapter(), nil)

	result, err := service.Run(context.Background(), RecoveryRequest{Simulation: cfg.Simulation})
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.False(t, result.PartialChains)
	require.NotNil(t, result.ML)
	require.NotNil(t, result.Bayes)
	require.NotNil(t, result.Comparison)

	assert.Equal(t, 2, result.ML.Indices.DegreesOfFreedom)
	assert.Len(t, result.Comparison.Items, 4)
	assert.Len(t, result.Comparison.Subjects, 80)
	assert.Len(t, result.Bayes.Chains, 2)

	// The two formulations estimate the same quantities from the same data.
	assert.Greater(t, result.Comparison.Recovery.LoadingMLBayes, 0.7)
	assert.Greater(t, result.Comparison.Recovery.LatentTrueML, 0.5)
	assert.Greater(t, result.Comparison.Recovery.LatentTrueBayes, 0.5)
}

func TestRecoveryDeterministicBySeed(t *testing.T) {
	cfg := quickConfig()
	service := NewRecoveryService(cfg, rng.NewAdapter(), nil)

	a, err := service.Run(context.Background(), RecoveryRequest{Simulation: cfg.Simulation})
	require.NoError(t, err)
	b, err := service.Run(context.Background(), RecoveryRequest{Simulation: cfg.Simulation})
	require.NoError(t, err)

	assert.Equal(t, a.Truth, b.Truth)
	assert.Equal(t, a.ML.Loadings, b.ML.Loadings)
	assert.Equal(t, a.Bayes.Summary.Loadings, b.Bayes.Summary.Loadings)
}

func TestRecoveryInvalidSimulation(t *testing.T) {
	cfg := quickConfig()
	service := NewRecoveryService(cfg, rng.NewAdapter(), nil)

	req := RecoveryRequest{Simulation: cfg.Simulation}
	req.Simulation.Subjects = 0
	_, err := service.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidParameter(err))
}

// TestReferenceScenarioRecovery pins the fixed-parameter scenario: 200
// subjects, 5 items, known loadings, both estimators at full strength.
func TestReferenceScenarioRecovery(t *testing.T) {
	if testing.Short() {
		t.Skip("full-strength recovery run is slow")
	}

	truth, latent, data := testkit.ReferenceDataset(42)
	cfg := config.Default()

	minimizer := optimize.NewBFGS(cfg.CFA.Tolerance, cfg.CFA.MaxIterations)
	mlFit, err := cfa.NewEstimator(cfg.CFA, minimizer).Fit(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, 5, mlFit.Indices.DegreesOfFreedom)
	for i := range truth.Loadings {
		assert.InDelta(t, truth.Loadings[i], mlFit.Loadings[i], 0.15, "ml loading %d", i)
	}

	sampler := mem.NewSampler(cfg.Sampler, cfg.Priors, rng.NewAdapter(), nil)
	bayes, err := sampler.Sample(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, bayes.Chains, cfg.Sampler.Chains)

	assert.LessOrEqual(t, bayes.MaxRHat(), 1.05)
	for i := range truth.Loadings {
		assert.InDelta(t, truth.Loadings[i], bayes.Summary.Loadings[i], 0.15, "bayes loading %d", i)
		assert.InDelta(t, truth.Intercepts[i], bayes.Summary.Intercepts[i], 0.15, "bayes intercept %d", i)
	}

	table, err := NewRecoveryService(cfg, rng.NewAdapter(), nil).comparator.Compare(
		truth, latent, mlFit, bayes.Summary)
	require.NoError(t, err)
	assert.Greater(t, table.Recovery.LoadingMLBayes, 0.9)
}
