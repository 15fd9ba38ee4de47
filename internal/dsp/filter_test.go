package dsp

import (
	"math"
	"testing"
)

func sineWave(freqHz, amplitude, sfreq float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / sfreq
		out[i] = amplitude * math.Sin(2*math.Pi*freqHz*t)
	}
	return out
}

func rms(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func TestBandpassAttenuatesOutOfBand(t *testing.T) {
	sfreq := 250.0
	n := int(10 * sfreq)

	inBand := sineWave(10, 1.0, sfreq, n)   // alpha, inside 1-40
	outOfBand := sineWave(80, 1.0, sfreq, n) // well above 40 Hz

	combined := make([]float64, n)
	for i := range combined {
		combined[i] = inBand[i] + outOfBand[i]
	}
	data := [][]float64{combined}

	ApplyBandpass(data, sfreq, 1.0, 40.0)

	// Settle past the filter's edge transient before comparing RMS.
	settle := int(1 * sfreq)
	filteredTail := data[0][settle : n-settle]
	inBandTail := inBand[settle : n-settle]

	filteredRMS := rms(filteredTail)
	inBandRMS := rms(inBandTail)

	if filteredRMS < 0.5*inBandRMS {
		t.Errorf("band-passed signal lost too much in-band energy: rms=%v, want close to %v", filteredRMS, inBandRMS)
	}
}

func TestNotchAttenuatesLineFrequency(t *testing.T) {
	sfreq := 250.0
	n := int(8 * sfreq)

	line := sineWave(50, 1.0, sfreq, n)
	alpha := sineWave(10, 1.0, sfreq, n)
	combined := make([]float64, n)
	for i := range combined {
		combined[i] = line[i] + alpha[i]
	}
	data := [][]float64{combined}

	ApplyNotch(data, sfreq, []int{50})

	settle := int(1 * sfreq)
	tail := data[0][settle : n-settle]
	alphaTail := alpha[settle : n-settle]

	// The notch should remove most of the 50 Hz energy, leaving a signal
	// whose RMS is much closer to the alpha-only RMS than to the combined
	// signal's RMS.
	combinedRMS := rms(combined[settle : n-settle])
	afterRMS := rms(tail)
	alphaRMS := rms(alphaTail)

	if math.Abs(afterRMS-alphaRMS) > math.Abs(combinedRMS-alphaRMS) {
		t.Errorf("notch filter did not reduce 50 Hz energy: before=%v after=%v alpha-only=%v", combinedRMS, afterRMS, alphaRMS)
	}
}

func TestResampleChangesLengthAndRate(t *testing.T) {
	sfreq := 256.0
	n := int(4 * sfreq)
	data := [][]float64{sineWave(10, 1.0, sfreq, n)}

	out := Resample(data, sfreq, 250)

	wantLen := int(math.Round(float64(n) * 250 / sfreq))
	if len(out[0]) != wantLen {
		t.Errorf("resampled length = %d, want %d", len(out[0]), wantLen)
	}
}

func TestResampleNoOpWhenRatesMatch(t *testing.T) {
	data := [][]float64{{1, 2, 3, 4}}
	out := Resample(data, 250, 250)
	if len(out[0]) != 4 {
		t.Errorf("expected no-op resample to preserve length")
	}
}
