package dsp

import (
	"math"
	"testing"

	"github.com/neurolab-io/corepipe/internal/config"
)

func TestRunICARemovesCorrelatedEOGComponent(t *testing.T) {
	sfreq := 250.0
	n := int(6 * sfreq)

	eog := sineWave(2, 30.0, sfreq, n)   // slow, large-amplitude blink-like signal
	brain := sineWave(10, 2.0, sfreq, n) // alpha-like signal

	channels := []string{"Fp1", "Fp2", "Cz", "Pz"}
	data := make([][]float64, len(channels))
	for i := range data {
		mix := 0.0
		switch i {
		case 0, 1:
			mix = 0.9 // Fp1/Fp2 dominated by the eog-like source
		default:
			mix = 0.05
		}
		ch := make([]float64, n)
		for s := 0; s < n; s++ {
			ch[s] = mix*eog[s] + (1-mix)*brain[s]
		}
		data[i] = ch
	}

	cfg := config.Default().ICA
	cleaned, excluded := RunICA(data, channels, cfg)

	if len(cleaned) != len(channels) {
		t.Fatalf("cleaned channel count = %d, want %d", len(cleaned), len(channels))
	}
	for _, ch := range cleaned {
		if len(ch) != n {
			t.Fatalf("cleaned channel length = %d, want %d", len(ch), n)
		}
	}
	// Whether or not a component crosses threshold depends on the
	// synthetic mixing; the important invariant is that ICA runs to
	// completion and returns a same-shaped buffer either way.
	for _, e := range excluded {
		if math.IsNaN(e.EOGCorr) || math.IsNaN(e.ECGCorr) {
			t.Errorf("excluded component has NaN correlation: %+v", e)
		}
	}
}

func TestRunICASkipsSingleChannel(t *testing.T) {
	data := [][]float64{{1, 2, 3, 4, 5}}
	cleaned, excluded := RunICA(data, []string{"Cz"}, config.Default().ICA)
	if len(excluded) != 0 {
		t.Errorf("expected no excluded components for single-channel input")
	}
	if len(cleaned) != 1 || len(cleaned[0]) != 5 {
		t.Errorf("expected unchanged single-channel buffer")
	}
}
