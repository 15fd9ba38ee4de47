package signalio

import (
	"bufio"
	"encoding/binary"
	"os"
	"strconv"
	"strings"

	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
)

// EDF/BDF share the same fixed-width ASCII header layout; only the sample
// word size (2 bytes vs 3 bytes, BDF is 24-bit) and the reserved-field
// convention differ.
const (
	edfHeaderFixedLen = 256
	edfSignalFieldLen = 16 + 80 + 8 + 8 + 8 + 8 + 8 + 80 + 8 + 32 // per-signal header block width
)

type edfSignalHeader struct {
	label       string
	physicalMin float64
	physicalMax float64
	digitalMin  int64
	digitalMax  int64
	samplesPerRecord int
}

// decodeEDF reads an EDF (bdf=false) or BDF (bdf=true) file into a Buffer.
// Both formats interleave signals within fixed-duration "data records";
// this reader concatenates all records per-signal into one flat series.
func decodeEDF(path string, bdf bool) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, corepipeerrors.NewFormatError("open recording file", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)

	fixed := make([]byte, edfHeaderFixedLen)
	if _, err := readFull(r, fixed); err != nil {
		return nil, corepipeerrors.NewFormatError("read edf/bdf fixed header", err)
	}

	numDataRecords, err := parseInt(string(fixed[236:244]))
	if err != nil {
		return nil, corepipeerrors.NewFormatError("parse number of data records", err)
	}
	recordDurationSec, err := parseFloat(string(fixed[244:252]))
	if err != nil {
		return nil, corepipeerrors.NewFormatError("parse data record duration", err)
	}
	numSignals, err := parseInt(string(fixed[252:256]))
	if err != nil {
		return nil, corepipeerrors.NewFormatError("parse number of signals", err)
	}
	if numSignals <= 0 {
		return nil, corepipeerrors.NewDataError("recording declares zero signals", nil)
	}

	labels, err := readSignalField(r, numSignals, 16)
	if err != nil {
		return nil, corepipeerrors.NewFormatError("read signal labels", err)
	}
	if _, err := readSignalField(r, numSignals, 80); err != nil { // transducer type, unused
		return nil, corepipeerrors.NewFormatError("read transducer types", err)
	}
	if _, err := readSignalField(r, numSignals, 8); err != nil { // physical dimension, unused
		return nil, corepipeerrors.NewFormatError("read physical dimensions", err)
	}
	physMinRaw, err := readSignalField(r, numSignals, 8)
	if err != nil {
		return nil, corepipeerrors.NewFormatError("read physical minimums", err)
	}
	physMaxRaw, err := readSignalField(r, numSignals, 8)
	if err != nil {
		return nil, corepipeerrors.NewFormatError("read physical maximums", err)
	}
	digMinRaw, err := readSignalField(r, numSignals, 8)
	if err != nil {
		return nil, corepipeerrors.NewFormatError("read digital minimums", err)
	}
	digMaxRaw, err := readSignalField(r, numSignals, 8)
	if err != nil {
		return nil, corepipeerrors.NewFormatError("read digital maximums", err)
	}
	if _, err := readSignalField(r, numSignals, 80); err != nil { // prefiltering, unused
		return nil, corepipeerrors.NewFormatError("read prefiltering", err)
	}
	samplesRaw, err := readSignalField(r, numSignals, 8)
	if err != nil {
		return nil, corepipeerrors.NewFormatError("read samples-per-record", err)
	}
	if _, err := readSignalField(r, numSignals, 32); err != nil { // reserved, unused
		return nil, corepipeerrors.NewFormatError("read per-signal reserved field", err)
	}

	signals := make([]edfSignalHeader, numSignals)
	for i := 0; i < numSignals; i++ {
		physMin, e1 := parseFloat(physMinRaw[i])
		physMax, e2 := parseFloat(physMaxRaw[i])
		digMin, e3 := parseInt(digMinRaw[i])
		digMax, e4 := parseInt(digMaxRaw[i])
		nSamp, e5 := parseInt(samplesRaw[i])
		if e1 != nil || e2 != nil || e3 != nil || e4 != nil || e5 != nil {
			return nil, corepipeerrors.NewFormatError("parse per-signal calibration fields", nil)
		}
		signals[i] = edfSignalHeader{
			label:            strings.TrimSpace(labels[i]),
			physicalMin:      physMin,
			physicalMax:      physMax,
			digitalMin:       int64(digMin),
			digitalMax:       int64(digMax),
			samplesPerRecord: nSamp,
		}
	}

	bytesPerSample := 2
	if bdf {
		bytesPerSample = 3
	}

	data := make([][]float64, numSignals)
	totalSamples := make([]int, numSignals)
	for i, sig := range signals {
		totalSamples[i] = sig.samplesPerRecord * numDataRecords
		data[i] = make([]float64, 0, totalSamples[i])
	}

	recBuf := make([]byte, bytesPerSample)
	for rec := 0; rec < numDataRecords; rec++ {
		for i, sig := range signals {
			scale := 1.0
			offset := 0.0
			digRange := float64(sig.digitalMax - sig.digitalMin)
			if digRange != 0 {
				scale = (sig.physicalMax - sig.physicalMin) / digRange
				offset = sig.physicalMin - float64(sig.digitalMin)*scale
			}
			for s := 0; s < sig.samplesPerRecord; s++ {
				if _, err := readFull(r, recBuf); err != nil {
					return nil, corepipeerrors.NewFormatError("read sample data", err)
				}
				var digital int64
				if bdf {
					digital = int64(int8(recBuf[2]))<<16 | int64(recBuf[1])<<8 | int64(recBuf[0])
				} else {
					digital = int64(int16(binary.LittleEndian.Uint16(recBuf)))
				}
				data[i] = append(data[i], float64(digital)*scale+offset)
			}
		}
	}

	sampleRate := 0.0
	if recordDurationSec > 0 {
		sampleRate = float64(signals[0].samplesPerRecord) / recordDurationSec
	}

	channels := make([]string, numSignals)
	for i, sig := range signals {
		channels[i] = sig.label
	}

	return &Buffer{Data: data, Channels: channels, SampleRate: sampleRate}, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// readSignalField reads the fieldWidth*numSignals-byte block that follows
// the EDF/BDF header's per-signal field convention (all signals' values
// for one field are concatenated before the next field begins).
func readSignalField(r *bufio.Reader, numSignals, fieldWidth int) ([]string, error) {
	buf := make([]byte, fieldWidth*numSignals)
	if _, err := readFull(r, buf); err != nil {
		return nil, err
	}
	out := make([]string, numSignals)
	for i := 0; i < numSignals; i++ {
		out[i] = string(buf[i*fieldWidth : (i+1)*fieldWidth])
	}
	return out, nil
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
