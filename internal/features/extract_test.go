package features

import (
	"math"
	"testing"

	"github.com/neurolab-io/corepipe/internal/config"
	"github.com/neurolab-io/corepipe/internal/signalio"
)

func sineWave(freqHz, amplitude, sfreq float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / sfreq
		out[i] = amplitude * math.Sin(2*math.Pi*freqHz*t)
	}
	return out
}

func alphaBuffer(sfreq float64, seconds float64) *signalio.Buffer {
	n := int(seconds * sfreq)
	channels := []string{"Fz", "Pz", "Cz"}
	data := make([][]float64, len(channels))
	for i := range data {
		data[i] = sineWave(10, 20.0, sfreq, n) // strong 10 Hz (alpha) component
	}
	return &signalio.Buffer{Data: data, Channels: channels, SampleRate: sfreq}
}

func TestExtractRelativeBandPowersSumToOne(t *testing.T) {
	cfg := config.Default()
	buf := alphaBuffer(250, 10)

	table, err := Extract(buf, cfg)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(table.Rows) == 0 {
		t.Fatal("expected rows")
	}

	for _, r := range table.Rows {
		sum := 0.0
		for _, b := range cfg.Features.Bands {
			sum += r.Values["rel_"+b.Name]
		}
		if math.Abs(sum-1.0) > 1e-6 {
			t.Errorf("epoch %d channel %s: relative band powers sum to %v, want ~1.0", r.EpochID, r.Channel, sum)
		}
	}
}

func TestExtractAlphaDominatesOnAlphaSignal(t *testing.T) {
	cfg := config.Default()
	buf := alphaBuffer(250, 10)

	table, err := Extract(buf, cfg)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	r := table.Rows[0]
	if r.Values["rel_alpha"] <= r.Values["rel_beta"]*2 {
		t.Errorf("expected alpha band power to dominate beta by > 2x, got alpha=%v beta=%v", r.Values["rel_alpha"], r.Values["rel_beta"])
	}
}

func TestExtractRowCountEqualsEpochsTimesChannels(t *testing.T) {
	cfg := config.Default()
	buf := alphaBuffer(250, 10)

	table, err := Extract(buf, cfg)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := table.NumEpochs * table.NumChannels
	if len(table.Rows) != want {
		t.Errorf("row count = %d, want %d (epochs=%d channels=%d)", len(table.Rows), want, table.NumEpochs, table.NumChannels)
	}
}

func TestExtractSkipsExcludedChannels(t *testing.T) {
	cfg := config.Default()
	buf := alphaBuffer(250, 10)
	buf.ExcludedChannels = []string{"Cz"}

	table, err := Extract(buf, cfg)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, r := range table.Rows {
		if r.Channel == "Cz" {
			t.Errorf("expected excluded channel Cz to be skipped, found row for epoch %d", r.EpochID)
		}
	}
	if table.NumChannels != 2 {
		t.Errorf("NumChannels = %d, want 2 (3 channels minus 1 excluded)", table.NumChannels)
	}
	want := table.NumEpochs * table.NumChannels
	if len(table.Rows) != want {
		t.Errorf("row count = %d, want %d", len(table.Rows), want)
	}
}

func TestExtractIsPure(t *testing.T) {
	cfg := config.Default()
	buf1 := alphaBuffer(250, 6)
	buf2 := alphaBuffer(250, 6)

	t1, err := Extract(buf1, cfg)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	t2, err := Extract(buf2, cfg)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	for i := range t1.Rows {
		for _, name := range t1.Columns {
			a, b := t1.Rows[i].Values[name], t2.Rows[i].Values[name]
			if math.Abs(a-b) > 1e-9*math.Max(1, math.Abs(a)) {
				t.Fatalf("row %d feature %s differs: %v vs %v", i, name, a, b)
			}
		}
	}
}

func TestExtractEmptyBufferIsDataError(t *testing.T) {
	cfg := config.Default()
	buf := &signalio.Buffer{SampleRate: 250}
	if _, err := Extract(buf, cfg); err == nil {
		t.Error("expected DataError for empty buffer")
	}
}

func TestFeatureNamesOrdering(t *testing.T) {
	bands := []config.Band{{Name: "delta"}, {Name: "theta"}}
	names := FeatureNames(bands)
	want := []string{
		"band_delta", "band_theta",
		"rel_delta", "rel_theta",
		"mean", "std", "skewness", "kurtosis", "rms", "peak_to_peak", "zero_crossings",
		"hjorth_activity", "hjorth_mobility", "hjorth_complexity",
		"sample_entropy",
	}
	if len(names) != len(want) {
		t.Fatalf("got %d names, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("name[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
