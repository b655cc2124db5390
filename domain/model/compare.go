package model

// ItemComparison aligns one item's estimates across both fits and the truth.
type ItemComparison struct {
	Item           int     `json:"item"`
	TrueLoading    float64 `json:"true_loading"`
	TrueIntercept  float64 `json:"true_intercept"`
	MLLoading      float64 `json:"ml_loading"`
	MLIntercept    float64 `json:"ml_intercept"`
	BayesLoading   float64 `json:"bayes_loading"`
	BayesIntercept float64 `json:"bayes_intercept"`
}

// SubjectComparison aligns one subject's latent score across both fits and
// the generating draw.
type SubjectComparison struct {
	Subject     int     `json:"subject"`
	TrueLatent  float64 `json:"true_latent"`
	MLLatent    float64 `json:"ml_latent"`
	BayesLatent float64 `json:"bayes_latent"`
}

// RecoverySummary reports Pearson correlations between estimate families.
// Estimates are otherwise reported as-is; recovery judgment is the caller's.
type RecoverySummary struct {
	LoadingTrueML      float64 `json:"loading_true_ml"`
	LoadingTrueBayes   float64 `json:"loading_true_bayes"`
	LoadingMLBayes     float64 `json:"loading_ml_bayes"`
	InterceptTrueML    float64 `json:"intercept_true_ml"`
	InterceptTrueBayes float64 `json:"intercept_true_bayes"`
	LatentTrueML       float64 `json:"latent_true_ml"`
	LatentTrueBayes    float64 `json:"latent_true_bayes"`
}

// ComparisonTable is the joint parameter table produced by the comparator.
// BayesSignFlipped records whether the Bayesian loading/latent estimates
// were negated to match the ML solution's sign convention.
type ComparisonTable struct {
	Items            []ItemComparison    `json:"items"`
	Subjects         []SubjectComparison `json:"subjects"`
	BayesSignFlipped bool                `json:"bayes_sign_flipped"`
	Recovery         RecoverySummary     `json:"recovery"`
}
