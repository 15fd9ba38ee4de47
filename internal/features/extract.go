package features

import (
	"github.com/neurolab-io/corepipe/internal/config"
	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
	"github.com/neurolab-io/corepipe/internal/signalio"
)

// Extract runs the full feature-extraction engine over the cleaned buffer:
// epoching, per-(epoch,channel) band power / relative power / time-domain
// stats / Hjorth / sample entropy, the channel-averaged view, and
// recording-level coherence. Extraction is pure: identical buf and cfg
// always produce an identical Table.
func Extract(buf *signalio.Buffer, cfg *config.Config) (*Table, error) {
	if buf.NumChannels() == 0 || buf.NumSamples() == 0 {
		return nil, corepipeerrors.NewDataError("empty cleaned buffer", nil)
	}

	epochs := epochBuffer(buf, cfg.Features.EpochLengthSec, cfg.Features.EpochOverlap)
	if len(epochs) == 0 {
		return nil, corepipeerrors.NewDataError("recording shorter than one epoch", nil)
	}

	bands := cfg.Features.Bands
	names := FeatureNames(bands)
	nperseg := int(cfg.Features.WelchWindowSec * buf.SampleRate)

	excluded := make(map[string]bool, len(buf.ExcludedChannels))
	for _, ch := range buf.ExcludedChannels {
		excluded[ch] = true
	}
	numComputedChannels := 0

	rows := make([]Row, 0, len(epochs)*buf.NumChannels())
	for _, ep := range epochs {
		for chIdx, chData := range ep.Data {
			if excluded[buf.Channels[chIdx]] {
				continue
			}
			values := computeRowFeatures(chData, buf.SampleRate, bands, nperseg, cfg.Features.EntropyM, cfg.Features.EntropyRFactor)
			rows = append(rows, Row{
				EpochID: ep.Index,
				Channel: buf.Channels[chIdx],
				Values:  values,
			})
		}
	}
	for _, ch := range buf.Channels {
		if !excluded[ch] {
			numComputedChannels++
		}
	}

	averaged := channelAverage(rows, epochs, names)
	coh := computeCoherence(buf, cfg, nperseg, excluded)

	return &Table{
		Columns:         names,
		Rows:            rows,
		ChannelAveraged: averaged,
		Coherence:       coh,
		NumEpochs:       len(epochs),
		NumChannels:     numComputedChannels,
	}, nil
}

// computeRowFeatures computes the full feature vector for one (epoch,
// channel) signal segment.
func computeRowFeatures(x []float64, sfreq float64, bands []config.Band, nperseg, entropyM int, entropyRFactor float64) map[string]float64 {
	values := make(map[string]float64, 2*len(bands)+11)

	freqs, psd := welchPSD(x, sfreq, nperseg)
	totalPower := bandPower(freqs, psd, config.TotalPowerBand.Low, config.TotalPowerBand.High)
	if totalPower == 0 {
		totalPower = 1e-10
	}
	for _, b := range bands {
		bp := bandPower(freqs, psd, b.Low, b.High)
		values["band_"+b.Name] = bp
		values["rel_"+b.Name] = bp / totalPower
	}

	td := computeTimeDomainStats(x)
	values["mean"] = td.Mean
	values["std"] = td.Std
	values["skewness"] = td.Skewness
	values["kurtosis"] = td.Kurtosis
	values["rms"] = td.RMS
	values["peak_to_peak"] = td.PeakToPeak
	values["zero_crossings"] = td.ZeroCrossings

	hj := computeHjorth(x)
	values["hjorth_activity"] = hj.Activity
	values["hjorth_mobility"] = hj.Mobility
	values["hjorth_complexity"] = hj.Complexity

	values["sample_entropy"] = sampleEntropy(x, entropyM, entropyRFactor)

	return values
}

// channelAverage groups per-(epoch,channel) rows by epoch and averages each
// feature column across channels, matching the reference implementation's
// groupby(epoch_id).mean().
func channelAverage(rows []Row, epochs []epoch, names []string) []Row {
	sums := make(map[int]map[string]float64, len(epochs))
	counts := make(map[int]int, len(epochs))
	order := make([]int, 0, len(epochs))

	for _, r := range rows {
		sum, ok := sums[r.EpochID]
		if !ok {
			sum = make(map[string]float64, len(names))
			sums[r.EpochID] = sum
			order = append(order, r.EpochID)
		}
		for _, name := range names {
			sum[name] += r.Values[name]
		}
		counts[r.EpochID]++
	}

	out := make([]Row, 0, len(order))
	for _, id := range order {
		sum := sums[id]
		n := float64(counts[id])
		avg := make(map[string]float64, len(names))
		for _, name := range names {
			avg[name] = sum[name] / n
		}
		out = append(out, Row{EpochID: id, Values: avg})
	}
	return out
}

// computeCoherence computes one coherence value per configured channel
// pair per band, over the full recording (not per-epoch), skipping pairs
// where either channel is absent from the buffer or excluded as an
// unrepaired bad channel.
func computeCoherence(buf *signalio.Buffer, cfg *config.Config, nperseg int, excluded map[string]bool) map[string]float64 {
	out := make(map[string]float64)
	for _, pair := range cfg.Features.CoherencePairs {
		if excluded[pair.A] || excluded[pair.B] {
			continue
		}
		i1 := buf.ChannelIndex(pair.A)
		i2 := buf.ChannelIndex(pair.B)
		if i1 < 0 || i2 < 0 {
			continue
		}
		freqs, coh := coherence(buf.Data[i1], buf.Data[i2], buf.SampleRate, nperseg)
		for _, b := range cfg.Features.Bands {
			out[coherenceKey(pair.A, pair.B, b.Name)] = meanInBand(freqs, coh, b.Low, b.High)
		}
	}
	return out
}
