package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// timeDomainStats computes mean, std, skewness, excess-kurtosis, RMS,
// peak-to-peak and zero-crossing count for one channel/epoch.
type timeDomainStats struct {
	Mean          float64
	Std           float64
	Skewness      float64
	Kurtosis      float64
	RMS           float64
	PeakToPeak    float64
	ZeroCrossings float64
}

func computeTimeDomainStats(x []float64) timeDomainStats {
	mean, std := stat.MeanStdDev(x, nil)
	sumSq := 0.0
	for _, v := range x {
		sumSq += v * v
	}
	rms := math.Sqrt(sumSq / float64(len(x)))

	return timeDomainStats{
		Mean:          mean,
		Std:           std,
		Skewness:      stat.Skew(x, nil),
		Kurtosis:      stat.ExKurtosis(x, nil),
		RMS:           rms,
		PeakToPeak:    floats.Max(x) - floats.Min(x),
		ZeroCrossings: float64(countZeroCrossings(x)),
	}
}

func countZeroCrossings(x []float64) int {
	count := 0
	prevSign := 0
	for _, v := range x {
		sign := 0
		switch {
		case v > 0:
			sign = 1
		case v < 0:
			sign = -1
		}
		if prevSign != 0 && sign != 0 && sign != prevSign {
			count++
		}
		if sign != 0 {
			prevSign = sign
		}
	}
	return count
}

// hjorthParams holds the three Hjorth descriptors: activity (variance),
// mobility, and complexity, each guarded with an epsilon denominator per
// the spec's numeric contract.
type hjorthParams struct {
	Activity   float64
	Mobility   float64
	Complexity float64
}

const hjorthEpsilon = 1e-10

func computeHjorth(x []float64) hjorthParams {
	d1 := diff(x)
	d2 := diff(d1)

	activity := variance(x)
	varD1 := variance(d1)
	varD2 := variance(d2)

	mobility := math.Sqrt(varD1 / (activity + hjorthEpsilon))
	mobilityD1 := math.Sqrt(varD2 / (varD1 + hjorthEpsilon))
	complexity := mobilityD1 / (mobility + hjorthEpsilon)

	return hjorthParams{Activity: activity, Mobility: mobility, Complexity: complexity}
}

func diff(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		out[i-1] = x[i] - x[i-1]
	}
	return out
}

func variance(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	_, v := stat.MeanVariance(x, nil)
	// stat.MeanVariance divides by n-1 (sample variance); the reference
	// implementation uses population variance (numpy default, divide by n).
	if len(x) > 1 {
		return v * float64(len(x)-1) / float64(len(x))
	}
	return 0
}

// sampleEntropy computes sample entropy with embedding dimension m and
// tolerance r = rFactor * std(x). Returns 0.0 when either the B (length-m)
// or A (length-m+1) match count is zero, matching the reference
// implementation's zero-division guard.
func sampleEntropy(x []float64, m int, rFactor float64) float64 {
	n := len(x)
	if n < m+2 {
		return 0.0
	}
	_, std := stat.MeanStdDev(x, nil)
	r := rFactor * std

	b := countTemplateMatches(x, m, r)
	a := countTemplateMatches(x, m+1, r)

	if b == 0 || a == 0 {
		return 0.0
	}
	return -math.Log(float64(a) / float64(b))
}

// countTemplateMatches counts ordered pairs (i,j), i != j, of length-L
// template vectors within Chebyshev distance r, i.e. the classic O(N^2)
// sample-entropy match count (each matching pair counted twice, matching
// the reference implementation).
func countTemplateMatches(x []float64, length int, r float64) int {
	n := len(x)
	numTemplates := n - length
	if numTemplates < 1 {
		return 0
	}
	count := 0
	for i := 0; i < numTemplates; i++ {
		for j := i + 1; j < numTemplates; j++ {
			if chebyshevWithin(x[i:i+length], x[j:j+length], r) {
				count += 2
			}
		}
	}
	return count
}

func chebyshevWithin(a, b []float64, r float64) bool {
	for k := range a {
		if math.Abs(a[k]-b[k]) >= r {
			return false
		}
	}
	return true
}
