package mcmc

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latentfit/adapters/rng"
	"latentfit/internal/errors"
	"latentfit/ports"
)

func hmcFactory(cfg HMCConfig) ports.KernelFactory {
	return func(target ports.Target, warmup int) ports.Kernel {
		return NewHMC(target, warmup, cfg)
	}
}

func TestHMCSamplesStandardNormal(t *testing.T) {
	runner := NewRunner(rng.NewAdapter(), nil)
	target := gaussTarget{d: 2}

	cfg := RunConfig{Chains: 2, Warmup: 300, Draws: 500, Seed: 7}
	kcfg := HMCConfig{Leapfrog: 16, TargetAccept: 0.8, InitialStep: 0.1}

	out, err := runner.Run(context.Background(), target, hmcFactory(kcfg), normalInit, cfg)
	require.NoError(t, err)
	require.Len(t, out.Chains, 2)

	perDim := make([][][]float64, target.d)
	for d := 0; d < target.d; d++ {
		perDim[d] = make([][]float64, len(out.Chains))
	}
	for c, chain := range out.Chains {
		assert.Greater(t, chain.AcceptRate, 0.5, "chain %d", c)
		assert.Greater(t, chain.StepSize, 0.0, "chain %d", c)
		for d := 0; d < target.d; d++ {
			series := make([]float64, len(chain.Draws))
			for i, draw := range chain.Draws {
				series[i] = draw[d]
			}
			perDim[d][c] = series
		}
	}

	for d := 0; d < target.d; d++ {
		var sum, sumSq, n float64
		for _, series := range perDim[d] {
			for _, v := range series {
				sum += v
				sumSq += v * v
				n++
			}
		}
		mean := sum / n
		variance := sumSq/n - mean*mean
		assert.InDelta(t, 0.0, mean, 0.2, "dim %d mean", d)
		assert.InDelta(t, 1.0, variance, 0.35, "dim %d variance", d)
		assert.Less(t, SplitRHat(perDim[d]), 1.1, "dim %d rhat", d)
	}
}

func TestHMCReproducible(t *testing.T) {
	target := gaussTarget{d: 2}
	stepOnce := func() []float64 {
		kernel := NewHMC(target, 10, DefaultHMCConfig())
		r := rand.New(rand.NewSource(9))
		x := []float64{0.3, -0.7}
		for i := 0; i < 25; i++ {
			res, err := kernel.Step(r, x)
			require.NoError(t, err)
			x = res.X
		}
		return x
	}
	assert.Equal(t, stepOnce(), stepOnce())
}

// nanTarget is NaN everywhere: the kernel must refuse to run on it.
type nanTarget struct{}

func (nanTarget) Dim() int                    { return 1 }
func (nanTarget) LogDensity([]float64) float64 { return math.NaN() }
func (nanTarget) Gradient(grad, _ []float64)  { grad[0] = 0 }

func TestHMCNonFiniteCurrentState(t *testing.T) {
	kernel := NewHMC(nanTarget{}, 0, DefaultHMCConfig())
	_, err := kernel.Step(rand.New(rand.NewSource(1)), []float64{0})
	require.Error(t, err)
	assert.True(t, errors.IsNonFinite(err))
}

// walledTarget is -Inf outside |x| < 1: trajectories that escape must be
// rejected as divergences, not treated as fatal.
type walledTarget struct{}

func (walledTarget) Dim() int { return 1 }
func (walledTarget) LogDensity(x []float64) float64 {
	if math.Abs(x[0]) >= 1 {
		return math.Inf(-1)
	}
	return -0.5 * x[0] * x[0]
}
func (walledTarget) Gradient(grad, x []float64) { grad[0] = -x[0] }

func TestHMCDivergentTrajectoryRejected(t *testing.T) {
	kernel := NewHMC(walledTarget{}, 0, HMCConfig{Leapfrog: 32, TargetAccept: 0.8, InitialStep: 0.5})
	r := rand.New(rand.NewSource(3))

	x := []float64{0.2}
	rejected := 0
	for i := 0; i < 100; i++ {
		res, err := kernel.Step(r, x)
		require.NoError(t, err)
		if !res.Accepted {
			rejected++
		}
		x = res.X
		assert.Less(t, math.Abs(x[0]), 1.0)
	}
	assert.Greater(t, rejected, 0)
}

func TestRandomWalkNonFiniteProposal(t *testing.T) {
	kernel := NewRandomWalk(nanTarget{}, 0.5)
	_, err := kernel.Step(rand.New(rand.NewSource(1)), []float64{0})
	require.Error(t, err)
	assert.True(t, errors.IsNonFinite(err))
}
