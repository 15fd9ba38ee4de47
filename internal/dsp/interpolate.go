package dsp

import "math"

// InterpolateBads replaces each bad channel's samples with an
// inverse-distance-weighted average of the good channels, using montage
// scalp positions. If montage is nil, or a bad channel has no montage
// entry, it is left untouched and reported in the returned excluded list —
// the caller must exclude such channels from feature extraction instead.
func InterpolateBads(data [][]float64, channels []string, montage map[string][2]float64, bad []string) (excluded []string) {
	if len(bad) == 0 {
		return nil
	}
	if len(montage) == 0 {
		return append([]string(nil), bad...)
	}

	badSet := make(map[string]bool, len(bad))
	for _, b := range bad {
		badSet[b] = true
	}

	goodIdx := make([]int, 0, len(channels))
	for i, ch := range channels {
		if !badSet[ch] {
			if _, ok := montage[ch]; ok {
				goodIdx = append(goodIdx, i)
			}
		}
	}
	if len(goodIdx) == 0 {
		return append([]string(nil), bad...)
	}

	for i, ch := range channels {
		if !badSet[ch] {
			continue
		}
		pos, ok := montage[ch]
		if !ok {
			excluded = append(excluded, ch)
			continue
		}

		weights := make([]float64, len(goodIdx))
		weightSum := 0.0
		for j, gi := range goodIdx {
			gpos := montage[channels[gi]]
			d := math.Hypot(pos[0]-gpos[0], pos[1]-gpos[1])
			if d < 1e-9 {
				d = 1e-9
			}
			w := 1.0 / (d * d)
			weights[j] = w
			weightSum += w
		}
		if weightSum == 0 {
			excluded = append(excluded, ch)
			continue
		}

		n := len(data[i])
		interpolated := make([]float64, n)
		for j, gi := range goodIdx {
			w := weights[j] / weightSum
			for s := 0; s < n; s++ {
				interpolated[s] += w * data[gi][s]
			}
		}
		data[i] = interpolated
	}
	return excluded
}
