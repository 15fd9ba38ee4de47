package realtime

import (
	"math"

	"github.com/neurolab-io/corepipe/internal/config"
	"github.com/neurolab-io/corepipe/internal/features"
)

// extractLightweight computes the same band-power / relative-power / RMS /
// std features as internal/features, but averaged across channels instead
// of per-channel-per-epoch, on whatever single window is handed to it. It
// intentionally skips Hjorth parameters, sample entropy, and coherence:
// those are the heavier batch-path features this lightweight path trades
// away for per-chunk latency.
func extractLightweight(window [][]float64, sfreq float64, bands []config.Band) map[string]float64 {
	if len(window) == 0 {
		return map[string]float64{}
	}

	nperseg := int(sfreq)
	if nperseg > len(window[0]) {
		nperseg = len(window[0])
	}
	if nperseg < 8 {
		nperseg = len(window[0])
	}

	avgPSD := averagePSD(window, sfreq, nperseg)

	out := make(map[string]float64, 2*len(bands)+2)
	totalPower := 0.0
	bandPowers := make(map[string]float64, len(bands))
	for _, b := range bands {
		p := features.BandPower(avgPSD.freqs, avgPSD.psd, b.Low, b.High)
		bandPowers[b.Name] = p
		totalPower += p
		out["band_"+b.Name] = p
	}
	for _, b := range bands {
		out["rel_"+b.Name] = bandPowers[b.Name] / (totalPower + 1e-10)
	}

	out["rms"] = rms(window)
	out["std"] = stddev(window)
	return out
}

type psdResult struct {
	freqs []float64
	psd   []float64
}

// averagePSD runs Welch's method per channel and averages the resulting
// power spectra, matching extract_realtime_features' psd.mean(axis=0).
func averagePSD(window [][]float64, sfreq float64, nperseg int) psdResult {
	var freqs []float64
	var sum []float64
	for _, ch := range window {
		f, p := features.WelchPSD(ch, sfreq, nperseg)
		if freqs == nil {
			freqs = f
			sum = make([]float64, len(p))
		}
		for i, v := range p {
			sum[i] += v
		}
	}
	for i := range sum {
		sum[i] /= float64(len(window))
	}
	return psdResult{freqs: freqs, psd: sum}
}

func rms(window [][]float64) float64 {
	sum, n := 0.0, 0
	for _, ch := range window {
		for _, v := range ch {
			sum += v * v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

func stddev(window [][]float64) float64 {
	sum, n := 0.0, 0
	for _, ch := range window {
		for _, v := range ch {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	var variance float64
	for _, ch := range window {
		for _, v := range ch {
			d := v - mean
			variance += d * d
		}
	}
	return math.Sqrt(variance / float64(n))
}
