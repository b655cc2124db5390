package model

import "latentfit/domain/core"

// PosteriorSample is one retained draw from the hierarchical model's joint
// posterior. The residual SD is shared across items; hyperparameters are the
// means and SDs of the per-item random-effect distributions.
type PosteriorSample struct {
	Latent        []float64 `json:"latent"`
	Loadings      []float64 `json:"loadings"`
	Intercepts    []float64 `json:"intercepts"`
	ResidualSD    float64   `json:"residual_sd"`
	LoadingMean   float64   `json:"loading_mean"`
	LoadingSD     float64   `json:"loading_sd"`
	InterceptMean float64   `json:"intercept_mean"`
	InterceptSD   float64   `json:"intercept_sd"`
}

// Chain is the ordered retained draws of one independent sampler instance.
type Chain struct {
	ID         core.ChainID      `json:"id"`
	Index      int               `json:"index"`
	Seed       int64             `json:"seed"`
	Samples    []PosteriorSample `json:"samples"`
	AcceptRate float64           `json:"accept_rate"`
	StepSize   float64           `json:"step_size"`
}

// ChainFailure records a chain that did not complete.
type ChainFailure struct {
	Index  int    `json:"index"`
	Seed   int64  `json:"seed"`
	Reason string `json:"reason"`
}

// ParameterDiagnostic carries per-parameter convergence diagnostics:
// split-chain potential scale reduction and effective sample size.
// Threshold policy belongs to the caller.
type ParameterDiagnostic struct {
	Name string  `json:"name"`
	RHat float64 `json:"rhat"`
	ESS  float64 `json:"ess"`
}

// PosteriorSummary holds posterior means pooled across all retained draws
// from all completed chains.
type PosteriorSummary struct {
	Latent        []float64 `json:"latent"`
	Loadings      []float64 `json:"loadings"`
	Intercepts    []float64 `json:"intercepts"`
	ResidualSD    float64   `json:"residual_sd"`
	LoadingMean   float64   `json:"loading_mean"`
	LoadingSD     float64   `json:"loading_sd"`
	InterceptMean float64   `json:"intercept_mean"`
	InterceptSD   float64   `json:"intercept_sd"`
}

// SampleResult is the output of the hierarchical sampler. Failed chains are
// surfaced alongside completed ones so the caller can proceed with fewer
// chains or refuse.
type SampleResult struct {
	Chains      []Chain               `json:"chains"`
	Failed      []ChainFailure        `json:"failed,omitempty"`
	Diagnostics []ParameterDiagnostic `json:"diagnostics"`
	Summary     PosteriorSummary      `json:"summary"`
}

// MaxRHat returns the largest potential-scale-reduction statistic across
// all monitored parameters.
func (r *SampleResult) MaxRHat() float64 {
	max := 0.0
	for _, d := range r.Diagnostics {
		if d.RHat > max {
			max = d.RHat
		}
	}
	return max
}

// MinESS returns the smallest effective sample size across all monitored
// parameters.
func (r *SampleResult) MinESS() float64 {
	if len(r.Diagnostics) == 0 {
		return 0
	}
	min := r.Diagnostics[0].ESS
	for _, d := range r.Diagnostics[1:] {
		if d.ESS < min {
			min = d.ESS
		}
	}
	return min
}
