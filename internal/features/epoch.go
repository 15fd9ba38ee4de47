package features

import "github.com/neurolab-io/corepipe/internal/signalio"

// epoch is one fixed-length, possibly-overlapping window of the cleaned
// buffer: a channel-major slice view, not a copy.
type epoch struct {
	Index int
	Data  [][]float64 // Data[channel][sample], length epochSamples
}

// epochBuffer splits buf into fixed-length epochs of epochLengthSec with
// fractional overlap; the trailing partial epoch is dropped, matching the
// reference implementation's integer step/epoch-sample arithmetic.
func epochBuffer(buf *signalio.Buffer, epochLengthSec, overlap float64) []epoch {
	sfreq := buf.SampleRate
	epochSamples := int(epochLengthSec * sfreq)
	step := int(epochLengthSec * (1 - overlap) * sfreq)
	if epochSamples <= 0 || step <= 0 {
		return nil
	}

	total := buf.NumSamples()
	nEpochs := (total-epochSamples)/step + 1
	if nEpochs < 1 {
		return nil
	}

	epochs := make([]epoch, 0, nEpochs)
	for idx := 0; idx < nEpochs; idx++ {
		start := idx * step
		end := start + epochSamples
		if end > total {
			break
		}
		data := make([][]float64, buf.NumChannels())
		for ch := range buf.Data {
			data[ch] = buf.Data[ch][start:end]
		}
		epochs = append(epochs, epoch{Index: idx, Data: data})
	}
	return epochs
}
