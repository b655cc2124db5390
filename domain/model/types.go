package model

// GenerativeParameters holds the ground-truth parameters of one simulated
// one-factor model. Immutable once drawn; owned by the simulator for the
// lifetime of one simulation run.
type GenerativeParameters struct {
	Loadings          []float64 `json:"loadings"`
	Intercepts        []float64 `json:"intercepts"`
	ResidualVariances []float64 `json:"residual_variances"`
	FactorVariance    float64   `json:"factor_variance"`
}

// Items returns the number of items covered by the parameters.
func (p GenerativeParameters) Items() int {
	return len(p.Loadings)
}

// LatentFactorDraw is the per-subject latent score vector. It is used only
// for simulation and ground-truth comparison; neither estimator sees it.
type LatentFactorDraw struct {
	Scores []float64 `json:"scores"`
}

// Dataset is an N-subjects by M-items response matrix, stored row-major.
// Produced once by the simulator; read-only input to both estimators.
type Dataset struct {
	Subjects int       `json:"subjects"`
	Items    int       `json:"items"`
	Values   []float64 `json:"values"`
}

// NewDataset allocates an empty dataset of the given shape.
func NewDataset(subjects, items int) *Dataset {
	return &Dataset{
		Subjects: subjects,
		Items:    items,
		Values:   make([]float64, subjects*items),
	}
}

// At returns the response of subject s on item i.
func (d *Dataset) At(s, i int) float64 {
	return d.Values[s*d.Items+i]
}

// Set stores the response of subject s on item i.
func (d *Dataset) Set(s, i int, v float64) {
	d.Values[s*d.Items+i] = v
}

// Column copies item i's responses across all subjects.
func (d *Dataset) Column(i int) []float64 {
	col := make([]float64, d.Subjects)
	for s := 0; s < d.Subjects; s++ {
		col[s] = d.At(s, i)
	}
	return col
}

// Row returns a copy of subject s's responses across all items.
func (d *Dataset) Row(s int) []float64 {
	row := make([]float64, d.Items)
	copy(row, d.Values[s*d.Items:(s+1)*d.Items])
	return row
}
