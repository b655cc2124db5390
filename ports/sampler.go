package ports

import "math/rand"

// Target is an unnormalized log-density with gradient access, defined over
// an unconstrained parameter vector.
type Target interface {
	// Dim returns the dimension of the parameter vector.
	Dim() int
	// LogDensity evaluates the joint log-density at x.
	LogDensity(x []float64) float64
	// Gradient writes the gradient of the log-density at x into grad.
	// len(grad) == len(x) == Dim().
	Gradient(grad, x []float64)
}

// StepResult is the outcome of one MCMC transition.
type StepResult struct {
	X          []float64
	LogDensity float64
	Accepted   bool
}

// Kernel is a pluggable MCMC transition kernel: propose-and-accept or
// gradient-guided step against a log-density. A kernel instance belongs to
// exactly one chain; kernels manage their own warm-up adaptation state.
type Kernel interface {
	Step(rng *rand.Rand, x []float64) (StepResult, error)
}

// KernelFactory builds one kernel per chain so chains share no mutable
// state. The warm-up count lets self-adapting kernels schedule adaptation.
type KernelFactory func(target Target, warmup int) Kernel
