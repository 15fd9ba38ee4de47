package signalio

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
)

// Cleaned-buffer persistence uses the ".fif" logical extension (matching
// the object store's `processed/{recording}/cleaned_raw.fif` path) but a
// self-describing binary layout native to this pipeline rather than real
// FIF's opaque tag-tree format: magic, sample rate, channel count, each
// channel's label length+bytes, sample count, then each channel's raw
// float64 samples in order, then an excluded-channel count and each
// excluded channel's label length+bytes (the DSP kernel's bad channels it
// could not interpolate, which feature extraction must skip). The trailing
// section is read best-effort for backward compatibility with
// already-written files that predate it. This is the only format this
// pipeline both writes and reads, so round-tripping it bit-exactly is
// straightforward and does not require reproducing MNE's on-disk tag tree.
var cleanedMagic = [4]byte{'n', 'l', 'c', '1'}

// WriteCleaned persists buf to path in the pipeline's native cleaned-buffer
// format.
func WriteCleaned(path string, buf *Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return corepipeerrors.NewFormatError("create cleaned buffer file", err)
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, 1<<20)

	if _, err := w.Write(cleanedMagic[:]); err != nil {
		return corepipeerrors.NewFormatError("write cleaned buffer magic", err)
	}
	if err := binary.Write(w, binary.LittleEndian, buf.SampleRate); err != nil {
		return corepipeerrors.NewFormatError("write sample rate", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(buf.Channels))); err != nil {
		return corepipeerrors.NewFormatError("write channel count", err)
	}
	for _, ch := range buf.Channels {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(ch))); err != nil {
			return corepipeerrors.NewFormatError("write channel label length", err)
		}
		if _, err := w.WriteString(ch); err != nil {
			return corepipeerrors.NewFormatError("write channel label", err)
		}
	}
	numSamples := uint32(buf.NumSamples())
	if err := binary.Write(w, binary.LittleEndian, numSamples); err != nil {
		return corepipeerrors.NewFormatError("write sample count", err)
	}
	for _, ch := range buf.Data {
		if err := binary.Write(w, binary.LittleEndian, ch); err != nil {
			return corepipeerrors.NewFormatError("write channel samples", err)
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(buf.ExcludedChannels))); err != nil {
		return corepipeerrors.NewFormatError("write excluded channel count", err)
	}
	for _, ch := range buf.ExcludedChannels {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(ch))); err != nil {
			return corepipeerrors.NewFormatError("write excluded channel label length", err)
		}
		if _, err := w.WriteString(ch); err != nil {
			return corepipeerrors.NewFormatError("write excluded channel label", err)
		}
	}

	if err := w.Flush(); err != nil {
		return corepipeerrors.NewFormatError("flush cleaned buffer file", err)
	}
	return nil
}

// ReadCleaned reads a buffer previously written by WriteCleaned.
func ReadCleaned(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, corepipeerrors.NewFormatError("open cleaned buffer file", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)

	var magic [4]byte
	if _, err := readFull(r, magic[:]); err != nil {
		return nil, corepipeerrors.NewFormatError("read cleaned buffer magic", err)
	}
	if magic != cleanedMagic {
		return nil, corepipeerrors.NewFormatError("not a recognized cleaned-buffer file", nil)
	}

	var sampleRate float64
	if err := binary.Read(r, binary.LittleEndian, &sampleRate); err != nil {
		return nil, corepipeerrors.NewFormatError("read sample rate", err)
	}
	var numChannels uint32
	if err := binary.Read(r, binary.LittleEndian, &numChannels); err != nil {
		return nil, corepipeerrors.NewFormatError("read channel count", err)
	}
	channels := make([]string, numChannels)
	for i := range channels {
		var labelLen uint32
		if err := binary.Read(r, binary.LittleEndian, &labelLen); err != nil {
			return nil, corepipeerrors.NewFormatError("read channel label length", err)
		}
		labelBuf := make([]byte, labelLen)
		if _, err := readFull(r, labelBuf); err != nil {
			return nil, corepipeerrors.NewFormatError("read channel label", err)
		}
		channels[i] = string(labelBuf)
	}
	var numSamples uint32
	if err := binary.Read(r, binary.LittleEndian, &numSamples); err != nil {
		return nil, corepipeerrors.NewFormatError("read sample count", err)
	}
	data := make([][]float64, numChannels)
	for i := range data {
		data[i] = make([]float64, numSamples)
		if err := binary.Read(r, binary.LittleEndian, data[i]); err != nil {
			return nil, corepipeerrors.NewFormatError("read channel samples", err)
		}
	}

	var numExcluded uint32
	var excluded []string
	if err := binary.Read(r, binary.LittleEndian, &numExcluded); err != nil {
		if err != io.EOF {
			return nil, corepipeerrors.NewFormatError("read excluded channel count", err)
		}
	} else {
		excluded = make([]string, numExcluded)
		for i := range excluded {
			var labelLen uint32
			if err := binary.Read(r, binary.LittleEndian, &labelLen); err != nil {
				return nil, corepipeerrors.NewFormatError("read excluded channel label length", err)
			}
			labelBuf := make([]byte, labelLen)
			if _, err := readFull(r, labelBuf); err != nil {
				return nil, corepipeerrors.NewFormatError("read excluded channel label", err)
			}
			excluded[i] = string(labelBuf)
		}
	}

	return &Buffer{Data: data, Channels: channels, SampleRate: sampleRate, ExcludedChannels: excluded}, nil
}
