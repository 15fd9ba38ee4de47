package signalio

import (
	"math"
	"path/filepath"
	"testing"
)

func TestCleanedBufferRoundTrip(t *testing.T) {
	want := &Buffer{
		Data: [][]float64{
			{1.5, 2.25, -3.125, 4.0},
			{0.1, 0.2, 0.3, 0.4},
		},
		Channels:   []string{"Fp1", "Fp2"},
		SampleRate: 250.0,
	}

	path := filepath.Join(t.TempDir(), "cleaned_raw.fif")
	if err := WriteCleaned(path, want); err != nil {
		t.Fatalf("WriteCleaned: %v", err)
	}

	got, err := ReadCleaned(path)
	if err != nil {
		t.Fatalf("ReadCleaned: %v", err)
	}

	if got.SampleRate != want.SampleRate {
		t.Errorf("SampleRate = %v, want %v", got.SampleRate, want.SampleRate)
	}
	if len(got.Channels) != len(want.Channels) {
		t.Fatalf("len(Channels) = %d, want %d", len(got.Channels), len(want.Channels))
	}
	for i := range want.Channels {
		if got.Channels[i] != want.Channels[i] {
			t.Errorf("Channels[%d] = %q, want %q", i, got.Channels[i], want.Channels[i])
		}
	}
	for ch := range want.Data {
		for s := range want.Data[ch] {
			if math.Abs(got.Data[ch][s]-want.Data[ch][s]) > 1e-12 {
				t.Errorf("Data[%d][%d] = %v, want %v", ch, s, got.Data[ch][s], want.Data[ch][s])
			}
		}
	}
}

func TestDecodeDispatchesOnExtension(t *testing.T) {
	buf := &Buffer{
		Data:       [][]float64{{1, 2, 3}},
		Channels:   []string{"Cz"},
		SampleRate: 100,
	}
	path := filepath.Join(t.TempDir(), "cleaned_raw.fif")
	if err := WriteCleaned(path, buf); err != nil {
		t.Fatalf("WriteCleaned: %v", err)
	}

	got, err := Decode(path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.NumChannels() != 1 || got.NumSamples() != 3 {
		t.Errorf("Decode returned %d channels, %d samples", got.NumChannels(), got.NumSamples())
	}
}

func TestDecodeUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recording.xyz")
	if _, err := Decode(path); err == nil {
		t.Fatal("expected FormatError for unsupported extension")
	}
}
