// Package optimize implements the default quasi-Newton minimizer behind
// ports.Minimizer. Gradients come from central differencing so objectives
// only need scalar evaluation.
package optimize

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"latentfit/internal/errors"
	"latentfit/ports"
)

// BFGS is a dense quasi-Newton minimizer with Armijo backtracking line
// search and central-difference gradients.
type BFGS struct {
	Tolerance     float64 // relative objective-change convergence criterion
	GradientTol   float64 // gradient norm below which a budget-exhausted run still counts as converged
	MaxIterations int
	StepScale     float64 // finite-difference step, scaled by max(1, |x_i|)
}

// NewBFGS creates a minimizer with the given tolerance and iteration budget.
func NewBFGS(tolerance float64, maxIterations int) *BFGS {
	return &BFGS{
		Tolerance:     tolerance,
		GradientTol:   1e-3,
		MaxIterations: maxIterations,
		StepScale:     1e-6,
	}
}

// Minimize runs the quasi-Newton iteration from x0. Cancellation is checked
// between iterations only; the returned state is always consistent.
func (b *BFGS) Minimize(ctx context.Context, fn ports.Objective, x0 []float64) (ports.MinimizeResult, error) {
	dim := len(x0)
	x := append([]float64(nil), x0...)
	f := fn(x)
	if !isFinite(f) {
		return ports.MinimizeResult{}, errors.ConvergenceFailure("objective is non-finite at the starting point").
			WithDiagnostic("objective", f)
	}

	grad := make([]float64, dim)
	b.gradient(fn, x, grad)

	// Inverse Hessian approximation, identity at the start and after any
	// failed line search.
	h := identity(dim)

	dir := make([]float64, dim)
	xNew := make([]float64, dim)
	gradNew := make([]float64, dim)
	s := make([]float64, dim)
	y := make([]float64, dim)

	iter := 0
	for ; iter < b.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return ports.MinimizeResult{}, errors.Wrap(err, "minimization cancelled")
		}

		gradNorm := floats.Norm(grad, 2)
		if gradNorm <= b.GradientTol {
			return ports.MinimizeResult{X: x, Value: f, Iterations: iter, GradientNorm: gradNorm, Converged: true}, nil
		}

		descentDirection(h, grad, dir)
		slope := floats.Dot(grad, dir)
		if slope >= 0 {
			// Curvature information went bad; restart from steepest descent.
			h = identity(dim)
			for i := range dir {
				dir[i] = -grad[i]
			}
			slope = floats.Dot(grad, dir)
		}

		fNew, ok := b.lineSearch(fn, x, dir, f, slope, xNew)
		if !ok {
			// No decrease along either direction; treat the current point
			// as the optimum if the relative progress criterion holds.
			break
		}

		b.gradient(fn, xNew, gradNew)
		for i := range s {
			s[i] = xNew[i] - x[i]
			y[i] = gradNew[i] - grad[i]
		}
		updateInverseHessian(h, s, y)

		relChange := math.Abs(f-fNew) / math.Max(math.Abs(f), 1.0)
		copy(x, xNew)
		copy(grad, gradNew)
		f = fNew

		if relChange <= b.Tolerance {
			iter++
			return ports.MinimizeResult{X: x, Value: f, Iterations: iter, GradientNorm: floats.Norm(grad, 2), Converged: true}, nil
		}
	}

	gradNorm := floats.Norm(grad, 2)
	if gradNorm <= b.GradientTol {
		return ports.MinimizeResult{X: x, Value: f, Iterations: iter, GradientNorm: gradNorm, Converged: true}, nil
	}
	return ports.MinimizeResult{X: x, Value: f, Iterations: iter, GradientNorm: gradNorm},
		errors.ConvergenceFailure("iteration budget exhausted with large gradient norm").
			WithDiagnostic("iterations", iter).
			WithDiagnostic("objective", f).
			WithDiagnostic("gradient_norm", gradNorm).
			WithDiagnostic("last_estimate", append([]float64(nil), x...))
}

// lineSearch backtracks from a unit step until the Armijo condition holds.
func (b *BFGS) lineSearch(fn ports.Objective, x, dir []float64, f, slope float64, xNew []float64) (fNew float64, ok bool) {
	const (
		armijo       = 1e-4
		maxHalvings  = 50
		shrinkFactor = 0.5
	)
	step := 1.0
	for k := 0; k < maxHalvings; k++ {
		for i := range xNew {
			xNew[i] = x[i] + step*dir[i]
		}
		fNew = fn(xNew)
		if isFinite(fNew) && fNew <= f+armijo*step*slope {
			return fNew, true
		}
		step *= shrinkFactor
	}
	return f, false
}

// gradient fills grad with the central-difference gradient of fn at x.
func (b *BFGS) gradient(fn ports.Objective, x, grad []float64) {
	for i := range x {
		hStep := b.StepScale * math.Max(1.0, math.Abs(x[i]))
		orig := x[i]
		x[i] = orig + hStep
		fPlus := fn(x)
		x[i] = orig - hStep
		fMinus := fn(x)
		x[i] = orig
		grad[i] = (fPlus - fMinus) / (2 * hStep)
	}
}

// updateInverseHessian applies the BFGS update
// H <- (I - rho s y') H (I - rho y s') + rho s s'.
func updateInverseHessian(h *mat.Dense, s, y []float64) {
	sy := floats.Dot(s, y)
	if sy <= 1e-12 {
		return // curvature condition violated; keep the previous estimate
	}
	dim := len(s)
	rho := 1.0 / sy

	sv := mat.NewVecDense(dim, s)
	yv := mat.NewVecDense(dim, y)

	var left mat.Dense
	left.Outer(-rho, sv, yv)
	for i := 0; i < dim; i++ {
		left.Set(i, i, left.At(i, i)+1)
	}

	var tmp, next mat.Dense
	tmp.Mul(&left, h)
	next.Mul(&tmp, left.T())

	var ss mat.Dense
	ss.Outer(rho, sv, sv)
	next.Add(&next, &ss)
	h.Copy(&next)
}

func descentDirection(h *mat.Dense, grad, dir []float64) {
	g := mat.NewVecDense(len(grad), grad)
	d := mat.NewVecDense(len(dir), dir)
	d.MulVec(h, g)
	for i := range dir {
		dir[i] = -d.AtVec(i)
	}
}

func identity(dim int) *mat.Dense {
	h := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		h.Set(i, i, 1)
	}
	return h
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
