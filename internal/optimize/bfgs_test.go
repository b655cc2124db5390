package optimize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latentfit/internal/errors"
)

func TestBFGSQuadratic(t *testing.T) {
	target := []float64{1.5, -2.0, 0.5}
	fn := func(x []float64) float64 {
		sum := 0.0
		for i, v := range x {
			d := v - target[i]
			sum += d * d
		}
		return sum
	}

	b := NewBFGS(1e-12, 200)
	res, err := b.Minimize(context.Background(), fn, []float64{0, 0, 0})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	for i := range target {
		assert.InDelta(t, target[i], res.X[i], 1e-4)
	}
	assert.InDelta(t, 0, res.Value, 1e-7)
}

func TestBFGSRosenbrock(t *testing.T) {
	fn := func(x []float64) float64 {
		a := 1 - x[0]
		b := x[1] - x[0]*x[0]
		return a*a + 100*b*b
	}

	b := NewBFGS(1e-12, 2000)
	res, err := b.Minimize(context.Background(), fn, []float64{-1.2, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.X[0], 5e-3)
	assert.InDelta(t, 1.0, res.X[1], 1e-2)
}

func TestBFGSBudgetExhaustion(t *testing.T) {
	fn := func(x []float64) float64 {
		a := 1 - x[0]
		b := x[1] - x[0]*x[0]
		return a*a + 100*b*b
	}

	b := NewBFGS(1e-15, 2)
	b.GradientTol = 1e-10
	_, err := b.Minimize(context.Background(), fn, []float64{-1.2, 1})
	require.Error(t, err)
	assert.True(t, errors.IsConvergenceFailure(err))

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Diagnostics, "gradient_norm")
	assert.Contains(t, appErr.Diagnostics, "last_estimate")
}

func TestBFGSNonFiniteStart(t *testing.T) {
	fn := func(x []float64) float64 {
		return x[0] / 0 * 0 // NaN everywhere
	}
	b := NewBFGS(1e-8, 100)
	_, err := b.Minimize(context.Background(), fn, []float64{1})
	require.Error(t, err)
	assert.True(t, errors.IsConvergenceFailure(err))
}

func TestBFGSCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fn := func(x []float64) float64 { return x[0] * x[0] }
	b := NewBFGS(1e-8, 100)
	_, err := b.Minimize(ctx, fn, []float64{10})
	require.Error(t, err)
}
