// Package gonumopt adapts gonum's optimize package to the ports.Minimizer
// interface, as an alternative backend to the in-house quasi-Newton
// implementation. Used to cross-check optima in tests.
package gonumopt

import (
	"context"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"latentfit/internal/errors"
	"latentfit/ports"
)

// Minimizer wraps gonum's BFGS method.
type Minimizer struct {
	MaxIterations int
}

// New creates a gonum-backed minimizer with the given iteration budget.
func New(maxIterations int) *Minimizer {
	return &Minimizer{MaxIterations: maxIterations}
}

// Minimize satisfies ports.Minimizer. Gradients are estimated by finite
// differences; gonum owns the line search and convergence tests.
func (m *Minimizer) Minimize(ctx context.Context, fn ports.Objective, x0 []float64) (ports.MinimizeResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.MinimizeResult{}, errors.Wrap(err, "minimization cancelled")
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 { return fn(x) },
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, fn, x, nil)
		},
	}
	settings := &optimize.Settings{MajorIterations: m.MaxIterations}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.BFGS{})
	if err != nil {
		appErr := errors.ConvergenceFailure("gonum minimization failed")
		appErr.Cause = err
		if result != nil {
			appErr.WithDiagnostic("objective", result.F).
				WithDiagnostic("iterations", result.Stats.MajorIterations)
		}
		return ports.MinimizeResult{}, appErr
	}

	gradNorm := 0.0
	if result.Gradient != nil {
		gradNorm = floats.Norm(result.Gradient, 2)
	}
	return ports.MinimizeResult{
		X:            result.X,
		Value:        result.F,
		Iterations:   result.Stats.MajorIterations,
		GradientNorm: gradNorm,
		Converged:    true,
	}, nil
}
