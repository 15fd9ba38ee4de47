package dsp

import (
	"math"
	"math/rand"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/neurolab-io/corepipe/internal/config"
)

// ICAComponentScore records why a component was subtracted: its index in
// the whitened component space and the correlation that triggered removal.
type ICAComponentScore struct {
	Index   int
	EOGCorr float64
	ECGCorr float64
}

var eogLikeNames = []string{"EOG", "EOGL", "EOGR", "Fp1", "Fp2", "F7", "F8"}
var ecgLikeNames = []string{"ECG", "EKG"}

// RunICA fits a one-unit-deflation FastICA (tanh nonlinearity, fixed
// random seed) on the whitened channel data, scores each independent
// component against EOG-like/frontal and ECG-like channels, subtracts the
// components that exceed threshold, and returns the reconstructed data.
// If the data's rank leaves no components to extract (e.g. a single
// channel), ICA is skipped and the input is returned unchanged.
func RunICA(data [][]float64, channels []string, cfg config.ICA) (cleaned [][]float64, excluded []ICAComponentScore) {
	c := len(data)
	if c < 2 || len(data[0]) < 2 {
		return data, nil
	}
	n := len(data[0])

	means := make([]float64, c)
	xc := mat.NewDense(c, n, nil)
	for i, ch := range data {
		mean := stat.Mean(ch, nil)
		means[i] = mean
		for j, v := range ch {
			xc.Set(i, j, v-mean)
		}
	}

	var cov mat.Dense
	cov.Mul(xc, xc.T())
	cov.Scale(1/float64(n), &cov)

	symCov := mat.NewSymDense(c, nil)
	for i := 0; i < c; i++ {
		for j := i; j < c; j++ {
			symCov.SetSym(i, j, (cov.At(i, j)+cov.At(j, i))/2)
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(symCov, true) {
		return data, nil
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	type pair struct {
		val float64
		idx int
	}
	pairs := make([]pair, c)
	for i, v := range values {
		pairs[i] = pair{v, i}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].val > pairs[j].val })

	maxEig := pairs[0].val
	rank := 0
	for _, p := range pairs {
		if maxEig > 0 && p.val > maxEig*1e-10 {
			rank++
		}
	}
	if rank < 2 {
		// Rank undefined or too low to leave any component to extract.
		return data, nil
	}

	k := cfg.NComponents
	if k > rank-1 {
		k = rank - 1
	}
	if k < 1 {
		return data, nil
	}

	k2 := mat.NewDense(k, c, nil)
	kPlus := mat.NewDense(c, k, nil)
	for row := 0; row < k; row++ {
		idx := pairs[row].idx
		val := pairs[row].val
		if val <= 0 {
			val = 1e-12
		}
		sqrtVal := math.Sqrt(val)
		for col := 0; col < c; col++ {
			evec := vectors.At(col, idx)
			k2.Set(row, col, evec/sqrtVal)
			kPlus.Set(col, row, evec*sqrtVal)
		}
	}

	var z mat.Dense
	z.Mul(k2, xc)

	rng := rand.New(rand.NewSource(cfg.RandomState))
	w := mat.NewDense(k, k, nil)
	const maxIter = 200
	const tol = 1e-6

	for comp := 0; comp < k; comp++ {
		vec := make([]float64, k)
		for i := range vec {
			vec[i] = rng.NormFloat64()
		}
		normalizeVec(vec)

		for iter := 0; iter < maxIter; iter++ {
			wx := make([]float64, n)
			for col := 0; col < n; col++ {
				s := 0.0
				for i := 0; i < k; i++ {
					s += vec[i] * z.At(i, col)
				}
				wx[col] = s
			}
			g := make([]float64, n)
			gPrimeSum := 0.0
			for i, v := range wx {
				t := math.Tanh(v)
				g[i] = t
				gPrimeSum += 1 - t*t
			}
			gPrimeMean := gPrimeSum / float64(n)

			next := make([]float64, k)
			for i := 0; i < k; i++ {
				s := 0.0
				for col := 0; col < n; col++ {
					s += z.At(i, col) * g[col]
				}
				next[i] = s/float64(n) - gPrimeMean*vec[i]
			}

			for prev := 0; prev < comp; prev++ {
				dot := 0.0
				for i := 0; i < k; i++ {
					dot += next[i] * w.At(prev, i)
				}
				for i := 0; i < k; i++ {
					next[i] -= dot * w.At(prev, i)
				}
			}
			normalizeVec(next)

			dot := 0.0
			for i := range next {
				dot += next[i] * vec[i]
			}
			vec = next
			if math.Abs(math.Abs(dot)-1) < tol {
				break
			}
		}
		for i := 0; i < k; i++ {
			w.Set(comp, i, vec[i])
		}
	}

	var sources mat.Dense
	sources.Mul(w, &z)

	eogIdx := findChannelsAny(channels, eogLikeNames)
	ecgIdx := findChannelsAny(channels, ecgLikeNames)

	for comp := 0; comp < k; comp++ {
		source := make([]float64, n)
		for col := 0; col < n; col++ {
			source[col] = sources.At(comp, col)
		}

		eogScore := maxAbsCorrelation(source, data, eogIdx)
		ecgScore := maxAbsCorrelation(source, data, ecgIdx)

		if eogScore > cfg.EOGCorrThreshold || ecgScore > cfg.ECGCorrThreshold {
			excluded = append(excluded, ICAComponentScore{Index: comp, EOGCorr: eogScore, ECGCorr: ecgScore})
			for col := 0; col < n; col++ {
				sources.Set(comp, col, 0)
			}
		}
	}

	var mixedWhitened mat.Dense
	mixedWhitened.Mul(w.T(), &sources)
	var xcClean mat.Dense
	xcClean.Mul(kPlus, &mixedWhitened)

	cleaned = make([][]float64, c)
	for i := 0; i < c; i++ {
		cleaned[i] = make([]float64, n)
		for col := 0; col < n; col++ {
			cleaned[i][col] = xcClean.At(i, col) + means[i]
		}
	}
	return cleaned, excluded
}

func normalizeVec(v []float64) {
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] /= norm
	}
}

func findChannelsAny(channels, candidates []string) []int {
	var idx []int
	for i, ch := range channels {
		for _, cand := range candidates {
			if strings.EqualFold(ch, cand) {
				idx = append(idx, i)
				break
			}
		}
	}
	return idx
}

func maxAbsCorrelation(source []float64, data [][]float64, idx []int) float64 {
	max := 0.0
	for _, i := range idx {
		if len(data[i]) != len(source) {
			continue
		}
		c := math.Abs(stat.Correlation(source, data[i], nil))
		if c > max {
			max = c
		}
	}
	return max
}
