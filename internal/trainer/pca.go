package trainer

import "gonum.org/v1/gonum/mat"

// PCA projects standardized feature rows onto their top nComponents
// principal axes, computed from the sample covariance matrix's
// eigendecomposition (gonum's EigenSym, since the covariance matrix is
// always symmetric).
type PCA struct {
	Mean       []float64
	Components *mat.Dense // nComponents x nFeatures
}

// FitPCA computes the top nComponents principal axes of rows (already
// mean/variance standardized by a Scaler upstream; PCA still re-centers
// to be safe against a caller skipping that step).
func FitPCA(rows [][]float64, nComponents int) *PCA {
	nSamples := len(rows)
	if nSamples == 0 {
		return &PCA{}
	}
	nFeatures := len(rows[0])
	if nComponents > nFeatures {
		nComponents = nFeatures
	}

	mean := make([]float64, nFeatures)
	for _, r := range rows {
		for j, v := range r {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(nSamples)
	}

	centered := mat.NewDense(nSamples, nFeatures, nil)
	for i, r := range rows {
		for j, v := range r {
			centered.Set(i, j, v-mean[j])
		}
	}

	var cov mat.SymDense
	cov.SymOuterK(1.0/float64(nSamples-1), centered.T())

	var eig mat.EigenSym
	ok := eig.Factorize(&cov, true)
	if !ok {
		return &PCA{Mean: mean, Components: mat.NewDense(0, nFeatures, nil)}
	}

	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	values := eig.Values(nil)

	// EigenSym returns ascending eigenvalues; take the last nComponents
	// columns (largest variance) in descending order.
	components := mat.NewDense(nComponents, nFeatures, nil)
	for c := 0; c < nComponents; c++ {
		col := len(values) - 1 - c
		for j := 0; j < nFeatures; j++ {
			components.Set(c, j, vectors.At(j, col))
		}
	}

	return &PCA{Mean: mean, Components: components}
}

// Transform projects rows onto the fitted principal axes.
func (p *PCA) Transform(rows [][]float64) [][]float64 {
	if p.Components == nil {
		return rows
	}
	nComponents, nFeatures := p.Components.Dims()
	out := make([][]float64, len(rows))
	for i, r := range rows {
		projected := make([]float64, nComponents)
		for c := 0; c < nComponents; c++ {
			sum := 0.0
			for j := 0; j < nFeatures; j++ {
				sum += p.Components.At(c, j) * (r[j] - p.Mean[j])
			}
			projected[c] = sum
		}
		out[i] = projected
	}
	return out
}
