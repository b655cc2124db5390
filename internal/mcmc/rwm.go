package mcmc

import (
	"math"
	"math/rand"

	"latentfit/internal/errors"
	"latentfit/ports"
)

// RandomWalk is a Gaussian random-walk Metropolis kernel. It exists as the
// propose-and-accept alternative behind the kernel port; the hierarchical
// sampler defaults to HMC but any kernel satisfying the port will do.
type RandomWalk struct {
	target ports.Target
	scale  float64
}

// NewRandomWalk builds a random-walk kernel with the given proposal scale.
func NewRandomWalk(target ports.Target, scale float64) *RandomWalk {
	if scale <= 0 {
		scale = 0.1
	}
	return &RandomWalk{target: target, scale: scale}
}

// StepSize returns the proposal scale.
func (k *RandomWalk) StepSize() float64 { return k.scale }

// Step proposes x + scale*z and accepts by the Metropolis rule.
func (k *RandomWalk) Step(rng *rand.Rand, x []float64) (ports.StepResult, error) {
	logp := k.target.LogDensity(x)
	if math.IsNaN(logp) || math.IsInf(logp, 0) {
		return ports.StepResult{}, errors.NonFiniteLikelihood("log-density non-finite at current state").
			WithDiagnostic("log_density", logp)
	}

	proposal := make([]float64, len(x))
	for i := range x {
		proposal[i] = x[i] + k.scale*rng.NormFloat64()
	}

	logpNew := k.target.LogDensity(proposal)
	if math.IsNaN(logpNew) {
		return ports.StepResult{}, errors.NonFiniteLikelihood("log-density is NaN at proposed state")
	}

	if logpNew-logp > math.Log(rng.Float64()) {
		return ports.StepResult{X: proposal, LogDensity: logpNew, Accepted: true}, nil
	}
	return ports.StepResult{X: append([]float64(nil), x...), LogDensity: logp, Accepted: false}, nil
}
