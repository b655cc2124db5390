// Package compare aligns the two fits against each other and against the
// generating parameters. Both formulations identify loadings only up to a
// joint sign flip with the latent scores, so alignment resolves the flip
// before tabulating; nothing else is transformed.
package compare

import (
	"github.com/montanaflynn/stats"

	"latentfit/domain/model"
	"latentfit/internal/errors"
)

// Comparator builds the joint parameter table.
type Comparator struct{}

// NewComparator creates a comparator.
func NewComparator() *Comparator {
	return &Comparator{}
}

// Compare assembles the item and subject tables. If the correlation between
// the ML and Bayesian loading vectors is negative, the Bayesian loadings and
// latent estimates are negated to match the ML sign convention.
func (c *Comparator) Compare(
	truth model.GenerativeParameters,
	latent model.LatentFactorDraw,
	ml *model.MLFitResult,
	bayes model.PosteriorSummary,
) (*model.ComparisonTable, error) {
	if ml == nil {
		return nil, errors.InvalidParameter("ML fit result is required")
	}
	M := truth.Items()
	if len(ml.Loadings) != M || len(bayes.Loadings) != M {
		return nil, errors.InvalidParameter("loading vectors disagree on item count").
			WithDiagnostic("truth_items", M).
			WithDiagnostic("ml_items", len(ml.Loadings)).
			WithDiagnostic("bayes_items", len(bayes.Loadings))
	}
	N := len(latent.Scores)
	if len(bayes.Latent) != N || len(ml.LatentScores) != N {
		return nil, errors.InvalidParameter("latent score vectors disagree on subject count")
	}

	bayesLoadings := append([]float64(nil), bayes.Loadings...)
	bayesLatent := append([]float64(nil), bayes.Latent...)
	flipped := false
	if r, err := stats.Pearson(ml.Loadings, bayesLoadings); err == nil && r < 0 {
		for i := range bayesLoadings {
			bayesLoadings[i] = -bayesLoadings[i]
		}
		for s := range bayesLatent {
			bayesLatent[s] = -bayesLatent[s]
		}
		flipped = true
	}

	table := &model.ComparisonTable{BayesSignFlipped: flipped}
	for i := 0; i < M; i++ {
		table.Items = append(table.Items, model.ItemComparison{
			Item:           i,
			TrueLoading:    truth.Loadings[i],
			TrueIntercept:  truth.Intercepts[i],
			MLLoading:      ml.Loadings[i],
			MLIntercept:    ml.Intercepts[i],
			BayesLoading:   bayesLoadings[i],
			BayesIntercept: bayes.Intercepts[i],
		})
	}
	for s := 0; s < N; s++ {
		table.Subjects = append(table.Subjects, model.SubjectComparison{
			Subject:     s,
			TrueLatent:  latent.Scores[s],
			MLLatent:    ml.LatentScores[s],
			BayesLatent: bayesLatent[s],
		})
	}

	table.Recovery = model.RecoverySummary{
		LoadingTrueML:      pearson(truth.Loadings, ml.Loadings),
		LoadingTrueBayes:   pearson(truth.Loadings, bayesLoadings),
		LoadingMLBayes:     pearson(ml.Loadings, bayesLoadings),
		InterceptTrueML:    pearson(truth.Intercepts, ml.Intercepts),
		InterceptTrueBayes: pearson(truth.Intercepts, bayes.Intercepts),
		LatentTrueML:       pearson(latent.Scores, ml.LatentScores),
		LatentTrueBayes:    pearson(latent.Scores, bayesLatent),
	}
	return table, nil
}

func pearson(a, b []float64) float64 {
	r, err := stats.Pearson(a, b)
	if err != nil {
		return 0
	}
	return r
}
