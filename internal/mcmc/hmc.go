// Package mcmc provides the Markov-chain machinery behind the hierarchical
// sampler: a gradient-guided Hamiltonian kernel with warm-up adaptation, a
// random-walk alternative, a parallel chain runner, and split-chain
// convergence diagnostics. Kernels are built per chain and share nothing.
package mcmc

import (
	"math"
	"math/rand"

	"latentfit/internal/errors"
	"latentfit/ports"
)

// HMCConfig tunes the Hamiltonian kernel.
type HMCConfig struct {
	Leapfrog     int     // integration steps per proposal
	TargetAccept float64 // dual-averaging acceptance target
	InitialStep  float64 // starting leapfrog step size
}

// DefaultHMCConfig returns the reference kernel settings.
func DefaultHMCConfig() HMCConfig {
	return HMCConfig{Leapfrog: 48, TargetAccept: 0.8, InitialStep: 0.1}
}

// HMC is a Hamiltonian Monte Carlo kernel. During warm-up it adapts the
// step size by dual averaging and re-estimates a diagonal mass matrix from
// the first half of the warm-up draws; afterwards both are frozen.
type HMC struct {
	target ports.Target
	cfg    HMCConfig
	warmup int

	step    float64
	massInv []float64 // per-dimension inverse mass (posterior variance scale)

	// dual-averaging state (Hoffman & Gelman 2014, Algorithm 5)
	mu         float64
	hBar       float64
	logStepBar float64
	adaptIter  int

	iter      int
	massDraws [][]float64

	grad  []float64
	mom   []float64
	xWork []float64
}

// NewHMC builds an HMC kernel for one chain.
func NewHMC(target ports.Target, warmup int, cfg HMCConfig) *HMC {
	if cfg.Leapfrog <= 0 {
		cfg.Leapfrog = DefaultHMCConfig().Leapfrog
	}
	if cfg.TargetAccept <= 0 || cfg.TargetAccept >= 1 {
		cfg.TargetAccept = DefaultHMCConfig().TargetAccept
	}
	if cfg.InitialStep <= 0 {
		cfg.InitialStep = DefaultHMCConfig().InitialStep
	}
	dim := target.Dim()
	massInv := make([]float64, dim)
	for i := range massInv {
		massInv[i] = 1
	}
	return &HMC{
		target:  target,
		cfg:     cfg,
		warmup:  warmup,
		step:    cfg.InitialStep,
		massInv: massInv,
		mu:      math.Log(10 * cfg.InitialStep),
		grad:    make([]float64, dim),
		mom:     make([]float64, dim),
		xWork:   make([]float64, dim),
	}
}

// StepSize returns the current leapfrog step size (frozen after warm-up).
func (h *HMC) StepSize() float64 { return h.step }

// Step advances the chain by one proposal.
func (h *HMC) Step(rng *rand.Rand, x []float64) (ports.StepResult, error) {
	h.iter++
	dim := h.target.Dim()

	logp := h.target.LogDensity(x)
	if math.IsNaN(logp) || math.IsInf(logp, 0) {
		return ports.StepResult{}, errors.NonFiniteLikelihood("log-density non-finite at current state").
			WithDiagnostic("log_density", logp).
			WithDiagnostic("iteration", h.iter)
	}

	// Momentum refresh: p ~ N(0, mass), mass = 1/massInv.
	kinetic := 0.0
	for i := 0; i < dim; i++ {
		h.mom[i] = rng.NormFloat64() / math.Sqrt(h.massInv[i])
		kinetic += 0.5 * h.massInv[i] * h.mom[i] * h.mom[i]
	}
	hamiltonian := -logp + kinetic

	copy(h.xWork, x)
	logpNew, kineticNew, finite := h.leapfrog(dim)

	accepted := false
	alpha := 0.0
	if finite {
		logAccept := hamiltonian - (-logpNew + kineticNew)
		if logAccept > 0 {
			alpha = 1
		} else {
			alpha = math.Exp(logAccept)
		}
		if math.IsNaN(alpha) {
			alpha = 0
		}
		accepted = rng.Float64() < alpha
	}

	result := ports.StepResult{Accepted: accepted}
	if accepted {
		result.X = append([]float64(nil), h.xWork...)
		result.LogDensity = logpNew
	} else {
		result.X = append([]float64(nil), x...)
		result.LogDensity = logp
	}

	if h.iter <= h.warmup {
		h.adapt(alpha, result.X)
	}
	return result, nil
}

// leapfrog integrates Hamilton's equations in place over xWork/mom.
func (h *HMC) leapfrog(dim int) (logp, kinetic float64, finite bool) {
	h.target.Gradient(h.grad, h.xWork)
	for l := 0; l < h.cfg.Leapfrog; l++ {
		for i := 0; i < dim; i++ {
			h.mom[i] += 0.5 * h.step * h.grad[i]
		}
		for i := 0; i < dim; i++ {
			h.xWork[i] += h.step * h.massInv[i] * h.mom[i]
			if math.IsNaN(h.xWork[i]) || math.IsInf(h.xWork[i], 0) {
				return 0, 0, false
			}
		}
		h.target.Gradient(h.grad, h.xWork)
		for i := 0; i < dim; i++ {
			h.mom[i] += 0.5 * h.step * h.grad[i]
			if math.IsNaN(h.mom[i]) {
				return 0, 0, false
			}
		}
	}

	logp = h.target.LogDensity(h.xWork)
	if math.IsNaN(logp) || math.IsInf(logp, 1) {
		return 0, 0, false
	}
	if math.IsInf(logp, -1) {
		// Divergent trajectory: rejected, not fatal.
		return 0, 0, false
	}
	kinetic = 0
	for i := 0; i < dim; i++ {
		kinetic += 0.5 * h.massInv[i] * h.mom[i] * h.mom[i]
	}
	return logp, kinetic, true
}

// adapt runs dual averaging on the step size and, halfway through warm-up,
// swaps in a diagonal mass matrix estimated from the collected draws.
func (h *HMC) adapt(alpha float64, x []float64) {
	const (
		gamma = 0.05
		t0    = 10.0
		kappa = 0.75
	)

	h.adaptIter++
	m := float64(h.adaptIter)
	h.hBar = (1-1/(m+t0))*h.hBar + (h.cfg.TargetAccept-alpha)/(m+t0)
	logStep := h.mu - math.Sqrt(m)/gamma*h.hBar
	weight := math.Pow(m, -kappa)
	h.logStepBar = weight*logStep + (1-weight)*h.logStepBar
	h.step = math.Exp(logStep)

	// Collect draws from the first adaptation window for mass estimation.
	massPoint := h.warmup / 2
	if h.iter > h.warmup/5 && h.iter < massPoint {
		h.massDraws = append(h.massDraws, append([]float64(nil), x...))
	}
	if h.iter == massPoint && len(h.massDraws) > 10 {
		h.estimateMass()
		h.massDraws = nil
		// Restart dual averaging around the current step size.
		h.mu = math.Log(10 * math.Exp(h.logStepBar))
		h.hBar = 0
		h.logStepBar = 0
		h.adaptIter = 0
	}

	if h.iter == h.warmup {
		// Freeze the averaged step size for sampling.
		h.step = math.Exp(h.logStepBar)
	}
}

// estimateMass sets the inverse mass to regularized per-dimension variances
// of the collected warm-up draws.
func (h *HMC) estimateMass() {
	n := float64(len(h.massDraws))
	dim := h.target.Dim()
	mean := make([]float64, dim)
	for _, draw := range h.massDraws {
		for i, v := range draw {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= n
	}
	for i := 0; i < dim; i++ {
		ss := 0.0
		for _, draw := range h.massDraws {
			d := draw[i] - mean[i]
			ss += d * d
		}
		variance := ss / (n - 1)
		// Shrink toward unit scale the way Stan regularizes its windows.
		variance = (n/(n+5))*variance + (5/(n+5))*1e-3
		if variance < 1e-8 {
			variance = 1e-8
		}
		h.massInv[i] = variance
	}
}
