package signalio

// standard1020Positions gives each canonical 10-20 electrode label a 2D
// scalp position on a unit disc (nose at +y), adequate for the
// inverse-distance-weighted interpolation dsp.InterpolateBads performs.
// These are not measured digitized positions, just the conventional
// 10-20 layout every EEG montage diagram uses, so a recording with plain
// 10-20 channel names always has a montage to interpolate against even
// without subject-specific digitization.
var standard1020Positions = map[string][2]float64{
	"Fp1": {-0.31, 0.95}, "Fp2": {0.31, 0.95}, "Fpz": {0, 0.97},
	"F7": {-0.81, 0.59}, "F3": {-0.48, 0.64}, "Fz": {0, 0.67}, "F4": {0.48, 0.64}, "F8": {0.81, 0.59},
	"FT7": {-0.86, 0.31}, "FC3": {-0.49, 0.33}, "FCz": {0, 0.35}, "FC4": {0.49, 0.33}, "FT8": {0.86, 0.31},
	"T7": {-0.90, 0}, "T3": {-0.90, 0}, "C3": {-0.50, 0}, "Cz": {0, 0}, "C4": {0.50, 0}, "T4": {0.90, 0}, "T8": {0.90, 0},
	"TP7": {-0.86, -0.31}, "CP3": {-0.49, -0.33}, "CPz": {0, -0.35}, "CP4": {0.49, -0.33}, "TP8": {0.86, -0.31},
	"P7": {-0.81, -0.59}, "T5": {-0.81, -0.59}, "P3": {-0.48, -0.64}, "Pz": {0, -0.67}, "P4": {0.48, -0.64}, "T6": {0.81, -0.59}, "P8": {0.81, -0.59},
	"PO7": {-0.54, -0.81}, "PO3": {-0.31, -0.87}, "POz": {0, -0.90}, "PO4": {0.31, -0.87}, "PO8": {0.54, -0.81},
	"O1": {-0.31, -0.95}, "Oz": {0, -0.97}, "O2": {0.31, -0.95},
	"A1": {-1.0, 0}, "A2": {1.0, 0}, "M1": {-1.0, 0}, "M2": {1.0, 0},
}

// AttachStandardMontage populates b.Montage from the conventional 10-20
// scalp layout for every channel whose (already-normalized) label is
// recognized, leaving any channel it cannot place (EOG/ECG reference
// channels, non-10-20 labels, MEG gradiometer ids) out of the map. It is
// a no-op if b already carries a montage — an externally supplied,
// subject-digitized montage always takes precedence.
func (b *Buffer) AttachStandardMontage() *Buffer {
	if b.Montage != nil {
		return b
	}
	montage := make(map[string][2]float64)
	for _, ch := range b.Channels {
		if pos, ok := standard1020Positions[ch]; ok {
			montage[ch] = pos
		}
	}
	if len(montage) > 0 {
		b.Montage = montage
	}
	return b
}
