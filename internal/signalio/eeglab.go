package signalio

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
)

// decodeEEGLAB reads an EEGLAB .set file. EEGLAB's native format is a
// MATLAB MAT5 container; this reader supports the common case of a
// top-level numeric "data" matrix (channels x samples, double precision)
// and a scalar "srate" variable, handling MAT5's miCOMPRESSED wrapper and
// small-data-element optimization. It does not parse nested MATLAB struct
// arrays (e.g. a full "EEG" struct or "chanlocs"); recordings exported
// that way fail with a FormatError rather than silently mis-decoding.
func decodeEEGLAB(path string) (*Buffer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, corepipeerrors.NewFormatError("open eeglab .set file", err)
	}
	if len(raw) < 128 {
		return nil, corepipeerrors.NewFormatError("eeglab .set file too short", nil)
	}

	// Bytes 126-127 are "MI" (big-endian) or "IM" (little-endian).
	endianIndicator := raw[126:128]
	littleEndian := endianIndicator[0] == 'I' && endianIndicator[1] == 'M'
	if !littleEndian {
		return nil, corepipeerrors.NewFormatError("big-endian MAT5 files are not supported", nil)
	}

	body := raw[128:]

	var dataMatrix [][]float64
	var sampleRate float64
	haveSampleRate := false

	offset := 0
	for offset < len(body) {
		elemType, elemData, consumed, err := readMatElement(body[offset:])
		if err != nil {
			return nil, corepipeerrors.NewFormatError("parse mat5 element", err)
		}
		if consumed == 0 {
			break
		}
		offset += consumed

		const miCompressed = 15
		if elemType == miCompressed {
			zr, err := zlib.NewReader(bytes.NewReader(elemData))
			if err != nil {
				return nil, corepipeerrors.NewFormatError("inflate compressed mat5 element", err)
			}
			decompressed, err := io.ReadAll(zr)
			zr.Close()
			if err != nil {
				return nil, corepipeerrors.NewFormatError("inflate compressed mat5 element", err)
			}
			innerType, innerData, _, err := readMatElement(decompressed)
			if err != nil {
				return nil, corepipeerrors.NewFormatError("parse decompressed mat5 element", err)
			}
			elemType = innerType
			elemData = innerData
		}

		const miMatrix = 14
		if elemType != miMatrix {
			continue
		}

		name, rows, cols, values, err := parseMatMatrix(elemData)
		if err != nil {
			// Skip elements this reader doesn't understand (e.g. struct
			// or cell arrays) rather than failing the whole decode.
			continue
		}

		switch name {
		case "data":
			dataMatrix = reshapeColumnMajor(values, rows, cols)
		case "srate":
			if len(values) > 0 {
				sampleRate = values[0]
				haveSampleRate = true
			}
		}
	}

	if dataMatrix == nil {
		return nil, corepipeerrors.NewFormatError("eeglab .set file has no numeric \"data\" variable this reader understands", nil)
	}
	if !haveSampleRate {
		return nil, corepipeerrors.NewFormatError("eeglab .set file has no \"srate\" variable", nil)
	}

	channels := make([]string, len(dataMatrix))
	for i := range channels {
		channels[i] = genericChannelLabel(i)
	}

	return &Buffer{Data: dataMatrix, Channels: channels, SampleRate: sampleRate}, nil
}

func genericChannelLabel(i int) string {
	return "E" + strconv.Itoa(i+1)
}

// readMatElement reads one MAT5 tag+data pair from buf, handling the
// small-data-element optimization (size <= 4 bytes packed into the tag
// itself). It returns the element type, its data payload, and the number
// of bytes consumed from buf (including padding).
func readMatElement(buf []byte) (elemType int32, data []byte, consumed int, err error) {
	if len(buf) < 8 {
		return 0, nil, 0, nil
	}
	word0 := binary.LittleEndian.Uint32(buf[0:4])
	upper16 := word0 >> 16
	if upper16 != 0 {
		// Small data element: type in lower 16 bits, size in upper 16,
		// 4 bytes of inline data immediately follow within the same
		// 8-byte span.
		size := int(upper16)
		typ := int32(word0 & 0xFFFF)
		if size > 4 || len(buf) < 8 {
			return 0, nil, 0, io.ErrUnexpectedEOF
		}
		return typ, buf[4 : 4+size], 8, nil
	}

	typ := int32(word0)
	size := int(binary.LittleEndian.Uint32(buf[4:8]))
	padded := (size + 7) / 8 * 8
	if len(buf) < 8+padded {
		return 0, nil, 0, io.ErrUnexpectedEOF
	}
	return typ, buf[8 : 8+size], 8 + padded, nil
}

// parseMatMatrix interprets the data payload of a miMATRIX element,
// supporting only 2-D numeric (non-complex, non-sparse) arrays.
func parseMatMatrix(data []byte) (name string, rows, cols int, values []float64, err error) {
	const miDouble = 9
	off := 0

	// Array flags subelement.
	flagsType, flagsData, n, rerr := readMatElement(data[off:])
	if rerr != nil || n == 0 || len(flagsData) < 1 {
		return "", 0, 0, nil, io.ErrUnexpectedEOF
	}
	_ = flagsType
	class := flagsData[0]
	const mxDoubleClass = 6
	if class != mxDoubleClass {
		return "", 0, 0, nil, io.ErrUnexpectedEOF
	}
	off += n

	// Dimensions subelement.
	_, dimsData, n, rerr := readMatElement(data[off:])
	if rerr != nil || n == 0 || len(dimsData) < 8 {
		return "", 0, 0, nil, io.ErrUnexpectedEOF
	}
	rows = int(int32(binary.LittleEndian.Uint32(dimsData[0:4])))
	cols = int(int32(binary.LittleEndian.Uint32(dimsData[4:8])))
	off += n

	// Array name subelement.
	_, nameData, n, rerr := readMatElement(data[off:])
	if rerr != nil || n == 0 {
		return "", 0, 0, nil, io.ErrUnexpectedEOF
	}
	name = string(bytes.TrimRight(nameData, "\x00"))
	off += n

	// Real part subelement.
	valType, valData, n, rerr := readMatElement(data[off:])
	if rerr != nil || n == 0 || valType != miDouble {
		return "", 0, 0, nil, io.ErrUnexpectedEOF
	}
	count := len(valData) / 8
	values = make([]float64, count)
	for i := 0; i < count; i++ {
		bits := binary.LittleEndian.Uint64(valData[i*8 : i*8+8])
		values[i] = math.Float64frombits(bits)
	}

	return name, rows, cols, values, nil
}

func reshapeColumnMajor(values []float64, rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		out[r] = make([]float64, cols)
	}
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			idx := c*rows + r
			if idx < len(values) {
				out[r][c] = values[idx]
			}
		}
	}
	return out
}
