// Package signalio decodes multichannel neurophysiological recordings
// (EDF, BDF, a self-describing cleaned-buffer format used in place of FIF,
// and EEGLAB .set) into an in-memory double-precision buffer, and
// normalizes channel labels to the canonical 10-20 montage names.
package signalio

import (
	"path/filepath"
	"strings"

	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
)

// Buffer is the decoded, in-memory representation of a recording:
// channel-major double-precision samples plus the metadata every
// downstream DSP and feature stage needs.
type Buffer struct {
	Data       [][]float64            // Data[channel][sample]
	Channels   []string               // mutable after normalization
	SampleRate float64                // Hz
	Montage    map[string][2]float64  // channel label -> (x, y) scalp position; nil if unavailable
	// ExcludedChannels lists channels the DSP kernel flagged bad but could
	// not interpolate (no montage entry for that channel, or no montage at
	// all). Feature extraction must skip these rather than compute
	// features over unrepaired noise. Set by dsp.Run and carried through
	// WriteCleaned/ReadCleaned so the feature-extraction job, which runs
	// as a separate job from preprocessing, still sees it.
	ExcludedChannels []string
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int {
	return len(b.Data)
}

// NumSamples returns the sample count of the first channel (all channels
// are required to share the same length).
func (b *Buffer) NumSamples() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// DurationSeconds returns the recording's duration.
func (b *Buffer) DurationSeconds() float64 {
	if b.SampleRate == 0 {
		return 0
	}
	return float64(b.NumSamples()) / b.SampleRate
}

// ChannelIndex returns the index of the named channel, or -1 if absent.
func (b *Buffer) ChannelIndex(name string) int {
	for i, ch := range b.Channels {
		if ch == name {
			return i
		}
	}
	return -1
}

// Clone deep-copies the buffer so callers can mutate in place without
// aliasing the original (used by DSP stages that operate destructively).
func (b *Buffer) Clone() *Buffer {
	data := make([][]float64, len(b.Data))
	for i, ch := range b.Data {
		data[i] = append([]float64(nil), ch...)
	}
	channels := append([]string(nil), b.Channels...)
	var montage map[string][2]float64
	if b.Montage != nil {
		montage = make(map[string][2]float64, len(b.Montage))
		for k, v := range b.Montage {
			montage[k] = v
		}
	}
	return &Buffer{
		Data:             data,
		Channels:         channels,
		SampleRate:       b.SampleRate,
		Montage:          montage,
		ExcludedChannels: append([]string(nil), b.ExcludedChannels...),
	}
}

// Decode reads path and dispatches on its extension to the matching
// decoder. Unsupported extensions fail with a FormatError.
func Decode(path string) (*Buffer, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "edf":
		return decodeEDF(path, false)
	case "bdf":
		return decodeEDF(path, true)
	case "fif":
		return ReadCleaned(path)
	case "set":
		return decodeEEGLAB(path)
	default:
		return nil, corepipeerrors.NewFormatError("unsupported recording extension: "+ext, nil)
	}
}
