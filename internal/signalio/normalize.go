package signalio

import "strings"

// canonical10_20 maps a folded (lowercased, stripped) channel name to its
// canonical 10-20 system label. Folding strips '-', ' ', and '_' before
// lookup, so "FP1", "Fp-1", "fp 1", and "fp_1" all resolve to "Fp1".
var canonical10_20 = map[string]string{
	"fp1": "Fp1", "fp2": "Fp2", "fpz": "Fpz",
	"f7": "F7", "f3": "F3", "fz": "Fz", "f4": "F4", "f8": "F8",
	"ft7": "FT7", "fc3": "FC3", "fcz": "FCz", "fc4": "FC4", "ft8": "FT8",
	"t7": "T7", "t3": "T3", "c3": "C3", "cz": "Cz", "c4": "C4", "t4": "T4", "t8": "T8",
	"tp7": "TP7", "cp3": "CP3", "cpz": "CPz", "cp4": "CP4", "tp8": "TP8",
	"p7": "P7", "t5": "T5", "p3": "P3", "pz": "Pz", "p4": "P4", "t6": "T6", "p8": "P8",
	"po7": "PO7", "po3": "PO3", "poz": "POz", "po4": "PO4", "po8": "PO8",
	"o1": "O1", "oz": "Oz", "o2": "O2",
	"a1": "A1", "a2": "A2", "m1": "M1", "m2": "M2",
	"eog": "EOG", "eogl": "EOG", "eogr": "EOG", "ecg": "ECG", "ekg": "ECG",
}

// foldChannelName lowercases a channel label and strips the separators the
// normalization contract says to ignore.
func foldChannelName(name string) string {
	folded := strings.ToLower(name)
	folded = strings.ReplaceAll(folded, "-", "")
	folded = strings.ReplaceAll(folded, " ", "")
	folded = strings.ReplaceAll(folded, "_", "")
	return folded
}

// NormalizeChannelNames folds case and separators and maps each channel to
// its canonical 10-20 label when recognized; unmapped names are left
// unchanged (not an error — plenty of legitimate montages use non-10-20
// labels, e.g. MEG gradiometer ids).
func NormalizeChannelNames(channels []string) []string {
	out := make([]string, len(channels))
	for i, ch := range channels {
		if canon, ok := canonical10_20[foldChannelName(ch)]; ok {
			out[i] = canon
		} else {
			out[i] = ch
		}
	}
	return out
}

// Normalize applies NormalizeChannelNames to the buffer's channel list in
// place and returns the buffer for chaining.
func (b *Buffer) Normalize() *Buffer {
	b.Channels = NormalizeChannelNames(b.Channels)
	return b
}
