package dsp

import "math"

// MuscleSegment is one flagged high-frequency-RMS interval, in seconds
// from the start of the recording.
type MuscleSegment struct {
	StartSec float64
	EndSec   float64
	RMS      float64
}

// DetectMuscleArtifacts band-passes a copy of data to 20-40 Hz, slides a
// 0.5 s window across the channel-averaged signal, and flags windows whose
// RMS exceeds threshold. Segments are annotations only; no samples are
// removed.
func DetectMuscleArtifacts(data [][]float64, sfreq, threshold float64) []MuscleSegment {
	if len(data) == 0 || len(data[0]) == 0 {
		return nil
	}

	bandLimited := ApplyMuscleBandpass(data, sfreq)
	n := len(bandLimited[0])

	avg := make([]float64, n)
	for _, ch := range bandLimited {
		for i, v := range ch {
			avg[i] += v
		}
	}
	for i := range avg {
		avg[i] /= float64(len(bandLimited))
	}

	windowLen := int(0.5 * sfreq)
	if windowLen < 1 {
		windowLen = 1
	}

	var segments []MuscleSegment
	for start := 0; start+windowLen <= n; start += windowLen {
		window := avg[start : start+windowLen]
		sumSq := 0.0
		for _, v := range window {
			sumSq += v * v
		}
		rms := math.Sqrt(sumSq / float64(len(window)))
		if rms > threshold {
			segments = append(segments, MuscleSegment{
				StartSec: float64(start) / sfreq,
				EndSec:   float64(start+windowLen) / sfreq,
				RMS:      rms,
			})
		}
	}
	return segments
}
