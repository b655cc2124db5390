package mcmc

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latentfit/adapters/rng"
	"latentfit/internal/errors"
	"latentfit/ports"
)

// gaussTarget is a standard normal in d dimensions.
type gaussTarget struct{ d int }

func (g gaussTarget) Dim() int { return g.d }

func (g gaussTarget) LogDensity(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return -0.5 * sum
}

func (g gaussTarget) Gradient(grad, x []float64) {
	for i, v := range x {
		grad[i] = -v
	}
}

func walkFactory(target ports.Target, warmup int) ports.Kernel {
	return NewRandomWalk(target, 0.8)
}

func normalInit(r *rand.Rand) []float64 {
	return []float64{r.NormFloat64(), r.NormFloat64()}
}

func testRunConfig() RunConfig {
	return RunConfig{Chains: 2, Warmup: 100, Draws: 200, Seed: 42}
}

func TestRunReproducibleBySeed(t *testing.T) {
	runner := NewRunner(rng.NewAdapter(), nil)
	target := gaussTarget{d: 2}

	outA, err := runner.Run(context.Background(), target, walkFactory, normalInit, testRunConfig())
	require.NoError(t, err)
	outB, err := runner.Run(context.Background(), target, walkFactory, normalInit, testRunConfig())
	require.NoError(t, err)

	require.Len(t, outA.Chains, 2)
	for c := range outA.Chains {
		assert.Equal(t, outA.Chains[c].Draws, outB.Chains[c].Draws)
		assert.Equal(t, outA.Chains[c].AcceptRate, outB.Chains[c].AcceptRate)
	}
}

func TestRunChainCountDoesNotPerturbExistingChains(t *testing.T) {
	runner := NewRunner(rng.NewAdapter(), nil)
	target := gaussTarget{d: 2}

	cfgSmall := testRunConfig()
	cfgLarge := testRunConfig()
	cfgLarge.Chains = 4

	small, err := runner.Run(context.Background(), target, walkFactory, normalInit, cfgSmall)
	require.NoError(t, err)
	large, err := runner.Run(context.Background(), target, walkFactory, normalInit, cfgLarge)
	require.NoError(t, err)

	require.Len(t, large.Chains, 4)
	for c := 0; c < cfgSmall.Chains; c++ {
		assert.Equal(t, small.Chains[c].Draws, large.Chains[c].Draws, "chain %d", c)
	}
}

func TestRunInvalidSchedule(t *testing.T) {
	runner := NewRunner(rng.NewAdapter(), nil)
	_, err := runner.Run(context.Background(), gaussTarget{d: 1}, walkFactory, normalInit, RunConfig{Chains: 0, Draws: 10})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidParameter(err))
}

func TestRunCancellation(t *testing.T) {
	runner := NewRunner(rng.NewAdapter(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := runner.Run(ctx, gaussTarget{d: 2}, walkFactory, normalInit, testRunConfig())
	require.Error(t, err)
	assert.Nil(t, out)
}

// frozenKernel never moves, tripping the degenerate-chain check.
type frozenKernel struct{}

func (frozenKernel) Step(_ *rand.Rand, x []float64) (ports.StepResult, error) {
	return ports.StepResult{X: append([]float64(nil), x...), LogDensity: 0}, nil
}

func TestRunAllChainsDegenerate(t *testing.T) {
	runner := NewRunner(rng.NewAdapter(), nil)
	factory := func(ports.Target, int) ports.Kernel { return frozenKernel{} }

	out, err := runner.Run(context.Background(), gaussTarget{d: 2}, factory, normalInit, testRunConfig())
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, errors.IsDegenerateChain(err))
}

// failingKernel errors on the first step.
type failingKernel struct{}

func (failingKernel) Step(*rand.Rand, []float64) (ports.StepResult, error) {
	return ports.StepResult{}, errors.NonFiniteLikelihood("forced failure")
}

func TestRunPartialChains(t *testing.T) {
	runner := NewRunner(rng.NewAdapter(), nil)

	// Exactly one of the three chains receives a broken kernel.
	var built int32
	factory := func(target ports.Target, warmup int) ports.Kernel {
		if atomic.AddInt32(&built, 1) == 1 {
			return failingKernel{}
		}
		return NewRandomWalk(target, 0.8)
	}

	cfg := testRunConfig()
	cfg.Chains = 3
	out, err := runner.Run(context.Background(), gaussTarget{d: 2}, factory, normalInit, cfg)
	require.Error(t, err)
	assert.True(t, errors.IsPartialChains(err))
	require.NotNil(t, out)
	assert.Len(t, out.Chains, 2)
	require.Len(t, out.Failed, 1)
	assert.True(t, errors.IsNonFinite(out.Failed[0].Err))
}
