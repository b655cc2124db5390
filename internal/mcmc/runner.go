package mcmc

import (
	"context"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"latentfit/internal"
	"latentfit/internal/errors"
	"latentfit/ports"
)

// RunConfig schedules one sampling run.
type RunConfig struct {
	Chains int
	Warmup int
	Draws  int
	Seed   int64
}

// ChainDraws is the raw retained output of one chain.
type ChainDraws struct {
	Index      int
	Seed       int64
	Draws      [][]float64
	AcceptRate float64
	StepSize   float64
}

// ChainError records a chain that failed mid-run.
type ChainError struct {
	Index int
	Seed  int64
	Err   error
}

// RunOutput pools the completed chains. Failed chains are annotated so the
// caller can decide whether to proceed with fewer chains.
type RunOutput struct {
	Chains []ChainDraws
	Failed []ChainError
}

// Runner executes independent chains in parallel. Chains communicate
// nothing until the join point; each owns its kernel and RNG stream.
type Runner struct {
	rng ports.RNGPort
	log *internal.Logger
}

// NewRunner creates a chain runner.
func NewRunner(rng ports.RNGPort, log *internal.Logger) *Runner {
	if log == nil {
		log = internal.DefaultLogger
	}
	return &Runner{rng: rng, log: log}
}

// Run samples cfg.Chains independent chains of the target. init draws the
// starting state for a chain from its own stream. Cancellation is checked
// between draws, never mid-iteration.
func (r *Runner) Run(
	ctx context.Context,
	target ports.Target,
	factory ports.KernelFactory,
	init func(rng *rand.Rand) []float64,
	cfg RunConfig,
) (*RunOutput, error) {
	if cfg.Chains < 1 || cfg.Warmup < 0 || cfg.Draws < 1 {
		return nil, errors.InvalidParameter("sampler schedule requires chains >= 1 and draws >= 1")
	}

	results := make([]*ChainDraws, cfg.Chains)
	chainErrs := make([]error, cfg.Chains)

	g, gctx := errgroup.WithContext(ctx)
	for c := 0; c < cfg.Chains; c++ {
		chain := c
		g.Go(func() error {
			seed := cfg.Seed + int64(chain)
			stream := r.rng.ChainStream(cfg.Seed, chain)
			draws, err := r.runChain(gctx, target, factory, init, stream, cfg)
			if err != nil {
				// A failed chain never cancels its siblings; partial
				// results are part of the contract.
				chainErrs[chain] = err
				r.log.Warn("chain %d (seed %d) failed: %v", chain, seed, err)
				return nil
			}
			draws.Index = chain
			draws.Seed = seed
			results[chain] = draws
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "chain execution aborted")
	}

	out := &RunOutput{}
	for c := 0; c < cfg.Chains; c++ {
		if results[c] != nil {
			out.Chains = append(out.Chains, *results[c])
			continue
		}
		out.Failed = append(out.Failed, ChainError{Index: c, Seed: cfg.Seed + int64(c), Err: chainErrs[c]})
	}

	if len(out.Chains) == 0 {
		first := out.Failed[0].Err
		return nil, errors.Wrap(first, "all chains failed")
	}
	if len(out.Failed) > 0 {
		partial := errors.PartialChains(fmt.Sprintf("%d of %d chains failed", len(out.Failed), cfg.Chains)).
			WithDiagnostic("completed_chains", len(out.Chains)).
			WithDiagnostic("failed_chains", len(out.Failed))
		return out, partial
	}
	return out, nil
}

// runChain advances one chain through warm-up and retention.
func (r *Runner) runChain(
	ctx context.Context,
	target ports.Target,
	factory ports.KernelFactory,
	init func(rng *rand.Rand) []float64,
	stream *rand.Rand,
	cfg RunConfig,
) (*ChainDraws, error) {
	kernel := factory(target, cfg.Warmup)
	x := init(stream)

	total := cfg.Warmup + cfg.Draws
	draws := make([][]float64, 0, cfg.Draws)
	accepted := 0

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "sampling cancelled")
		}
		result, err := kernel.Step(stream, x)
		if err != nil {
			return nil, err
		}
		x = result.X
		if i >= cfg.Warmup {
			draws = append(draws, result.X)
			if result.Accepted {
				accepted++
			}
		}
	}

	if stuck(draws) {
		return nil, errors.DegenerateChain("retained draws show zero variance").
			WithDiagnostic("draws", len(draws)).
			WithDiagnostic("last_state", draws[len(draws)-1])
	}

	cd := &ChainDraws{
		Draws:      draws,
		AcceptRate: float64(accepted) / float64(cfg.Draws),
	}
	if tuned, ok := kernel.(interface{ StepSize() float64 }); ok {
		cd.StepSize = tuned.StepSize()
	}
	return cd, nil
}

// stuck reports whether every dimension is constant across the retained
// draws, the signature of a sampler that stopped moving.
func stuck(draws [][]float64) bool {
	if len(draws) < 2 {
		return false
	}
	first := draws[0]
	for _, draw := range draws[1:] {
		for i, v := range draw {
			if v != first[i] {
				return false
			}
		}
	}
	return true
}
