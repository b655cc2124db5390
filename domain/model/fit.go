package model

// FitIndices summarizes model fit for a covariance-structure estimate.
// ChiSquare is (N-1) times the minimized discrepancy.
type FitIndices struct {
	ChiSquare        float64 `json:"chi_square"`
	DegreesOfFreedom int     `json:"degrees_of_freedom"`
	PValue           float64 `json:"p_value"`
	RMSEA            float64 `json:"rmsea"`
	RMSEALower       float64 `json:"rmsea_lower"`
	RMSEAUpper       float64 `json:"rmsea_upper"`
	CFI              float64 `json:"cfi"`
}

// MLFitResult is the output of the covariance-structure (ML-CFA) estimator.
type MLFitResult struct {
	Loadings          []float64 `json:"loadings"`
	Intercepts        []float64 `json:"intercepts"`
	ResidualVariances []float64 `json:"residual_variances"`
	FactorVariance    float64   `json:"factor_variance"`
	LogLikelihood     float64   `json:"log_likelihood"`
	Discrepancy       float64   `json:"discrepancy"`
	Iterations        int       `json:"iterations"`
	Indices           FitIndices `json:"fit_indices"`

	// LatentScores are regression-method factor score predictions, one per
	// subject, computed at the optimum.
	LatentScores []float64 `json:"latent_scores"`
}
