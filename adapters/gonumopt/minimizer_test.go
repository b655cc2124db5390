package gonumopt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latentfit/internal/optimize"
)

func quadratic(x []float64) float64 {
	target := []float64{1.5, -2.0, 0.5}
	sum := 0.0
	for i, v := range x {
		d := v - target[i]
		sum += d * d
	}
	return sum
}

func TestMinimizeQuadratic(t *testing.T) {
	m := New(200)
	res, err := m.Minimize(context.Background(), quadratic, []float64{0, 0, 0})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.InDelta(t, 1.5, res.X[0], 1e-4)
	assert.InDelta(t, -2.0, res.X[1], 1e-4)
	assert.InDelta(t, 0.5, res.X[2], 1e-4)
}

func TestMinimizeAgreesWithInHouseBFGS(t *testing.T) {
	rosenbrock := func(x []float64) float64 {
		a := 1 - x[0]
		b := x[1] - x[0]*x[0]
		return a*a + 100*b*b
	}
	x0 := []float64{-1.2, 1}

	ours, err := optimize.NewBFGS(1e-12, 2000).Minimize(context.Background(), rosenbrock, x0)
	require.NoError(t, err)
	theirs, err := New(2000).Minimize(context.Background(), rosenbrock, x0)
	require.NoError(t, err)

	assert.InDelta(t, theirs.X[0], ours.X[0], 1e-2)
	assert.InDelta(t, theirs.X[1], ours.X[1], 2e-2)
	assert.InDelta(t, theirs.Value, ours.Value, 1e-4)
}

func TestMinimizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(100).Minimize(ctx, quadratic, []float64{0, 0, 0})
	require.Error(t, err)
}
