package dsp

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/neurolab-io/corepipe/internal/config"
)

// DetectBadChannels flags channels as bad by three independent criteria —
// flat (near-zero std), high kurtosis, and high variance relative to the
// rest of the montage (z-score) — and unions the result. It returns the
// bad channel names (in first-triggered order, no duplicates) and the bad
// fraction of the full channel set.
func DetectBadChannels(data [][]float64, channels []string, cfg config.Artifact) (bad []string, badFraction float64) {
	n := len(data)
	if n == 0 {
		return nil, 0
	}

	stds := make([]float64, n)
	kurtoses := make([]float64, n)
	variances := make([]float64, n)
	for i, ch := range data {
		_, std := stat.MeanStdDev(ch, nil)
		stds[i] = std
		variances[i] = std * std
		kurtoses[i] = stat.ExKurtosis(ch, nil)
	}

	varMean, varStd := stat.MeanStdDev(variances, nil)

	seen := make(map[string]bool, n)
	addBad := func(i int) {
		name := channels[i]
		if !seen[name] {
			seen[name] = true
			bad = append(bad, name)
		}
	}

	for i := 0; i < n; i++ {
		if stds[i] < cfg.FlatThreshold {
			addBad(i)
			continue
		}
		if math.Abs(kurtoses[i]) > cfg.KurtosisThreshold {
			addBad(i)
			continue
		}
		if varStd > 0 {
			z := (variances[i] - varMean) / varStd
			if math.Abs(z) > cfg.HighVarianceZScore {
				addBad(i)
			}
		}
	}

	return bad, float64(len(bad)) / float64(n)
}
