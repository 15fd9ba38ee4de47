// Package trainer implements the model-training pipeline: feature scaling,
// optional dimensionality reduction, a classifier, cross-validated and
// holdout evaluation, promotion gating, and artifact persistence. Its
// estimators are small from-scratch implementations on gonum primitives;
// see the package's design notes for why no ecosystem ML library backs
// them (none is attested anywhere in the retrieval pack).
package trainer

import (
	"math"

	"github.com/neurolab-io/corepipe/internal/metadata"
)

// Scaler standardizes each feature column to zero mean, unit variance,
// matching sklearn's StandardScaler. Mean/Scale are exported so a trained
// model's scaler parameters can be persisted and inspected.
type Scaler struct {
	Mean  []float64
	Scale []float64
}

// FitScaler computes per-column mean and standard deviation over rows
// (row-major, one slice per sample).
func FitScaler(rows [][]float64) *Scaler {
	if len(rows) == 0 {
		return &Scaler{}
	}
	nCols := len(rows[0])
	mean := make([]float64, nCols)
	for _, r := range rows {
		for j, v := range r {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(len(rows))
	}

	scale := make([]float64, nCols)
	for _, r := range rows {
		for j, v := range r {
			d := v - mean[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / float64(len(rows)))
		if scale[j] == 0 {
			scale[j] = 1 // a constant column must not divide by zero
		}
	}
	return &Scaler{Mean: mean, Scale: scale}
}

// Transform returns standardized copies of rows against the fitted
// mean/scale; rows itself is not modified.
func (s *Scaler) Transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = make([]float64, len(r))
		for j, v := range r {
			out[i][j] = (v - s.Mean[j]) / s.Scale[j]
		}
	}
	return out
}

// ToParams converts the scaler to the persisted metadata representation.
func (s *Scaler) ToParams() metadata.ScalerParams {
	return metadata.ScalerParams{Mean: s.Mean, Scale: s.Scale}
}

// FromParams rebuilds a Scaler from its persisted representation.
func FromParams(p metadata.ScalerParams) *Scaler {
	return &Scaler{Mean: p.Mean, Scale: p.Scale}
}
