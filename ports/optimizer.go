package ports

import "context"

// Objective is a scalar function to be minimized. Implementations must be
// safe to call repeatedly with different inputs; the minimizer owns the
// differencing scheme if no analytic gradient is available.
type Objective func(x []float64) float64

// MinimizeResult is the terminal state of one minimization.
type MinimizeResult struct {
	X            []float64
	Value        float64
	Iterations   int
	GradientNorm float64
	Converged    bool
}

// Minimizer is a pluggable nonlinear optimizer: minimize a scalar objective
// given numerical-differencing access, starting from x0. Implementations
// check ctx between iterations only, since optimizer state is consistent
// only at iteration boundaries.
type Minimizer interface {
	Minimize(ctx context.Context, fn Objective, x0 []float64) (MinimizeResult, error)
}
