package features

import (
	"fmt"

	"github.com/neurolab-io/corepipe/internal/config"
)

// Row is one (epoch, channel) feature vector. Values is keyed by feature
// name; Table.Columns gives the canonical column order (shared across all
// rows in a Table).
type Row struct {
	EpochID int
	Channel string
	Values  map[string]float64
}

// Table is the full feature-extraction result for one recording: the
// per-epoch-per-channel rows, the per-epoch channel-averaged rows used by
// the trainer by default, coherence (one value per pair per band, not
// per-epoch), and the canonical column order.
type Table struct {
	Columns         []string
	Rows            []Row // per (epoch, channel)
	ChannelAveraged []Row // per epoch, channel field empty
	Coherence       map[string]float64
	NumEpochs       int
	NumChannels     int
}

// FeatureNames returns the canonical, deterministic column order: band
// powers (band list order), relative band powers, the fixed time-domain
// stat order, Hjorth parameters, then sample entropy. This ordering is the
// contract between the feature engine, the trainer, and the realtime
// processor.
func FeatureNames(bands []config.Band) []string {
	names := make([]string, 0, 2*len(bands)+11)
	for _, b := range bands {
		names = append(names, "band_"+b.Name)
	}
	for _, b := range bands {
		names = append(names, "rel_"+b.Name)
	}
	names = append(names,
		"mean", "std", "skewness", "kurtosis", "rms", "peak_to_peak", "zero_crossings",
		"hjorth_activity", "hjorth_mobility", "hjorth_complexity",
		"sample_entropy",
	)
	return names
}

// coherenceKey builds the coherence map key coh_{ch1}_{ch2}_{band}, matching
// the reference implementation's naming.
func coherenceKey(ch1, ch2, band string) string {
	return fmt.Sprintf("coh_%s_%s_%s", ch1, ch2, band)
}
