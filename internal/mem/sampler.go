package mem

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/montanaflynn/stats"

	"latentfit/domain/core"
	"latentfit/domain/model"
	"latentfit/internal"
	"latentfit/internal/config"
	"latentfit/internal/errors"
	"latentfit/internal/mcmc"
	"latentfit/ports"
)

// Sampler draws from the hierarchical model's posterior across independent
// parallel chains and reports convergence diagnostics per parameter.
type Sampler struct {
	cfg     config.SamplerConfig
	priors  config.PriorConfig
	runner  *mcmc.Runner
	factory ports.KernelFactory
}

// NewSampler builds a sampler with the gradient-guided default kernel.
func NewSampler(cfg config.SamplerConfig, priors config.PriorConfig, rng ports.RNGPort, log *internal.Logger) *Sampler {
	hmcCfg := mcmc.HMCConfig{Leapfrog: cfg.Leapfrog, TargetAccept: cfg.TargetAccept}
	return &Sampler{
		cfg:    cfg,
		priors: priors,
		runner: mcmc.NewRunner(rng, log),
		factory: func(target ports.Target, warmup int) ports.Kernel {
			return mcmc.NewHMC(target, warmup, hmcCfg)
		},
	}
}

// WithKernelFactory swaps the transition kernel; any ports.Kernel works.
func (s *Sampler) WithKernelFactory(factory ports.KernelFactory) *Sampler {
	s.factory = factory
	return s
}

// Sample runs the configured chains against the dataset. On partial chain
// failure the completed chains are returned along with a PartialChains
// error; the caller decides whether to proceed or refuse.
func (s *Sampler) Sample(ctx context.Context, data *model.Dataset) (*model.SampleResult, error) {
	if data == nil || data.Subjects < 1 || data.Items < 1 {
		return nil, errors.InvalidParameter("dataset must have at least 1 subject and 1 item")
	}
	for _, v := range data.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.InvalidParameter("dataset contains non-finite entries")
		}
	}
	if s.cfg.LatentSD <= 0 {
		return nil, errors.InvalidParameter("latent SD anchor must be positive")
	}

	target := newTarget(data, s.priors, s.cfg.LatentSD)
	runCfg := mcmc.RunConfig{
		Chains: s.cfg.Chains,
		Warmup: s.cfg.Warmup,
		Draws:  s.cfg.Draws,
		Seed:   s.cfg.Seed,
	}

	colMeans := columnMeans(data)
	init := func(rng *rand.Rand) []float64 {
		return initialState(target, colMeans, s.priors, rng)
	}

	out, runErr := s.runner.Run(ctx, target, s.factory, init, runCfg)
	if out == nil {
		return nil, runErr
	}

	result := s.assemble(target, out)
	return result, runErr
}

// assemble converts raw draws to posterior samples, pools the point
// estimates, and computes per-parameter diagnostics.
func (s *Sampler) assemble(target *hierTarget, out *mcmc.RunOutput) *model.SampleResult {
	result := &model.SampleResult{}

	for _, cd := range out.Chains {
		chain := model.Chain{
			ID:         core.ChainID(core.NewID()),
			Index:      cd.Index,
			Seed:       cd.Seed,
			Samples:    make([]model.PosteriorSample, len(cd.Draws)),
			AcceptRate: cd.AcceptRate,
			StepSize:   cd.StepSize,
		}
		for d, draw := range cd.Draws {
			chain.Samples[d] = target.toSample(draw)
		}
		result.Chains = append(result.Chains, chain)
	}
	for _, f := range out.Failed {
		result.Failed = append(result.Failed, model.ChainFailure{
			Index:  f.Index,
			Seed:   f.Seed,
			Reason: f.Err.Error(),
		})
	}

	result.Diagnostics = s.diagnostics(target, out)
	result.Summary = s.summarize(target, out)
	return result
}

// toSample maps an unconstrained draw to the natural-scale sample.
func (t *hierTarget) toSample(x []float64) model.PosteriorSample {
	return model.PosteriorSample{
		Latent:        append([]float64(nil), x[t.etaOff():t.lambdaOff()]...),
		Loadings:      append([]float64(nil), x[t.lambdaOff():t.betaOff()]...),
		Intercepts:    append([]float64(nil), x[t.betaOff():t.sigmaOff()]...),
		ResidualSD:    math.Exp(x[t.sigmaOff()]),
		LoadingMean:   x[t.muLamOff()],
		LoadingSD:     math.Exp(x[t.tauLamOff()]),
		InterceptMean: x[t.muBetaOff()],
		InterceptSD:   math.Exp(x[t.tauBetaOff()]),
	}
}

// parameterName labels one dimension of the unconstrained vector for
// diagnostics reporting. Scale parameters are reported on their natural
// scale.
func (t *hierTarget) parameterName(dim int) string {
	switch {
	case dim < t.lambdaOff():
		return fmt.Sprintf("latent[%d]", dim)
	case dim < t.betaOff():
		return fmt.Sprintf("loading[%d]", dim-t.lambdaOff())
	case dim < t.sigmaOff():
		return fmt.Sprintf("intercept[%d]", dim-t.betaOff())
	case dim == t.sigmaOff():
		return "sigma"
	case dim == t.muLamOff():
		return "loading_mean"
	case dim == t.tauLamOff():
		return "loading_sd"
	case dim == t.muBetaOff():
		return "intercept_mean"
	default:
		return "intercept_sd"
	}
}

func (t *hierTarget) naturalScale(dim int, v float64) float64 {
	if dim == t.sigmaOff() || dim == t.tauLamOff() || dim == t.tauBetaOff() {
		return math.Exp(v)
	}
	return v
}

func (s *Sampler) diagnostics(target *hierTarget, out *mcmc.RunOutput) []model.ParameterDiagnostic {
	dim := target.Dim()
	diags := make([]model.ParameterDiagnostic, 0, dim)
	series := make([][]float64, len(out.Chains))

	for d := 0; d < dim; d++ {
		for c, cd := range out.Chains {
			col := make([]float64, len(cd.Draws))
			for k, draw := range cd.Draws {
				col[k] = target.naturalScale(d, draw[d])
			}
			series[c] = col
		}
		diags = append(diags, model.ParameterDiagnostic{
			Name: target.parameterName(d),
			RHat: mcmc.SplitRHat(series),
			ESS:  mcmc.EffectiveSampleSize(series),
		})
	}
	return diags
}

func (s *Sampler) summarize(target *hierTarget, out *mcmc.RunOutput) model.PosteriorSummary {
	dim := target.Dim()
	pooled := make([]float64, dim)
	for d := 0; d < dim; d++ {
		var values []float64
		for _, cd := range out.Chains {
			for _, draw := range cd.Draws {
				values = append(values, target.naturalScale(d, draw[d]))
			}
		}
		pooled[d], _ = stats.Mean(values)
	}

	return model.PosteriorSummary{
		Latent:        append([]float64(nil), pooled[target.etaOff():target.lambdaOff()]...),
		Loadings:      append([]float64(nil), pooled[target.lambdaOff():target.betaOff()]...),
		Intercepts:    append([]float64(nil), pooled[target.betaOff():target.sigmaOff()]...),
		ResidualSD:    pooled[target.sigmaOff()],
		LoadingMean:   pooled[target.muLamOff()],
		LoadingSD:     pooled[target.tauLamOff()],
		InterceptMean: pooled[target.muBetaOff()],
		InterceptSD:   pooled[target.tauBetaOff()],
	}
}

// initialState draws a jittered starting point: intercepts near the column
// means, loadings near the positive hyperprior center, latents standard
// normal. Per-chain jitter comes from the chain's own stream so starts
// differ across chains but stay deterministic.
func initialState(t *hierTarget, colMeans []float64, priors config.PriorConfig, rng *rand.Rand) []float64 {
	x := make([]float64, t.Dim())
	for s := 0; s < t.data.Subjects; s++ {
		x[t.etaOff()+s] = rng.NormFloat64()
	}
	for i := 0; i < t.data.Items; i++ {
		x[t.lambdaOff()+i] = priors.LoadingMeanLoc + 0.1*rng.NormFloat64()
		x[t.betaOff()+i] = colMeans[i] + 0.1*rng.NormFloat64()
	}
	x[t.sigmaOff()] = math.Log(0.5) + 0.1*rng.NormFloat64()
	x[t.muLamOff()] = priors.LoadingMeanLoc + 0.1*rng.NormFloat64()
	x[t.tauLamOff()] = math.Log(0.5) + 0.1*rng.NormFloat64()
	x[t.muBetaOff()] = mean(colMeans) + 0.1*rng.NormFloat64()
	x[t.tauBetaOff()] = math.Log(1) + 0.1*rng.NormFloat64()
	return x
}

func columnMeans(data *model.Dataset) []float64 {
	means := make([]float64, data.Items)
	for i := 0; i < data.Items; i++ {
		m, _ := stats.Mean(data.Column(i))
		means[i] = m
	}
	return means
}

func mean(values []float64) float64 {
	m, _ := stats.Mean(values)
	return m
}
