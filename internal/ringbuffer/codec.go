package ringbuffer

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Redis values use the same field order as signalio.WriteCleaned/ReadCleaned
// (magic, sample rate, channel count+labels, sample count, then each
// channel's float64 samples), just over an in-memory buffer instead of a
// file. The magic bytes differ and there is no trailing excluded-channel
// section, so neither reader accepts the other's data.
var ringMagic = [4]byte{'n', 'l', 'r', '1'}

func encodeSnapshot(snap *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(ringMagic[:])

	if err := binary.Write(&buf, binary.LittleEndian, snap.SampleRate); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(snap.Channels))); err != nil {
		return nil, err
	}
	for _, ch := range snap.Channels {
		if err := binary.Write(&buf, binary.LittleEndian, uint32(len(ch))); err != nil {
			return nil, err
		}
		buf.WriteString(ch)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(snap.NumSamples())); err != nil {
		return nil, err
	}
	for _, ch := range snap.Data {
		if err := binary.Write(&buf, binary.LittleEndian, ch); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	r := bytes.NewReader(data)

	var magic [4]byte
	if _, err := readFull(r, magic[:]); err != nil {
		return nil, err
	}
	if magic != ringMagic {
		return nil, fmt.Errorf("ringbuffer: not a recognized buffer value")
	}

	var sampleRate float64
	if err := binary.Read(r, binary.LittleEndian, &sampleRate); err != nil {
		return nil, err
	}
	var numChannels uint32
	if err := binary.Read(r, binary.LittleEndian, &numChannels); err != nil {
		return nil, err
	}
	channels := make([]string, numChannels)
	for i := range channels {
		var labelLen uint32
		if err := binary.Read(r, binary.LittleEndian, &labelLen); err != nil {
			return nil, err
		}
		labelBuf := make([]byte, labelLen)
		if _, err := readFull(r, labelBuf); err != nil {
			return nil, err
		}
		channels[i] = string(labelBuf)
	}
	var numSamples uint32
	if err := binary.Read(r, binary.LittleEndian, &numSamples); err != nil {
		return nil, err
	}
	data2 := make([][]float64, numChannels)
	for i := range data2 {
		data2[i] = make([]float64, numSamples)
		if err := binary.Read(r, binary.LittleEndian, data2[i]); err != nil {
			return nil, err
		}
	}

	return &Snapshot{Channels: channels, SampleRate: sampleRate, Data: data2}, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
