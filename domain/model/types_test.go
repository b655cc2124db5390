package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatasetIndexing(t *testing.T) {
	d := NewDataset(3, 2)
	d.Set(0, 0, 1)
	d.Set(0, 1, 2)
	d.Set(2, 1, 9)

	assert.Equal(t, 1.0, d.At(0, 0))
	assert.Equal(t, 2.0, d.At(0, 1))
	assert.Equal(t, 9.0, d.At(2, 1))
	assert.Equal(t, []float64{1, 2}, d.Row(0))
	assert.Equal(t, []float64{2, 0, 9}, d.Column(1))
}

func TestRowAndColumnAreCopies(t *testing.T) {
	d := NewDataset(2, 2)
	d.Set(0, 0, 5)

	row := d.Row(0)
	row[0] = -1
	assert.Equal(t, 5.0, d.At(0, 0))

	col := d.Column(0)
	col[0] = -1
	assert.Equal(t, 5.0, d.At(0, 0))
}

func TestSampleResultDiagnosticsSummaries(t *testing.T) {
	r := &SampleResult{Diagnostics: []ParameterDiagnostic{
		{Name: "loading[0]", RHat: 1.01, ESS: 850},
		{Name: "sigma", RHat: 1.04, ESS: 320},
		{Name: "latent[3]", RHat: 1.00, ESS: 1200},
	}}
	assert.Equal(t, 1.04, r.MaxRHat())
	assert.Equal(t, 320.0, r.MinESS())

	empty := &SampleResult{}
	assert.Equal(t, 0.0, empty.MaxRHat())
	assert.Equal(t, 0.0, empty.MinESS())
}
