package signalio

import "testing"

func TestNormalizeChannelNames(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"FP1", "Fp1"},
		{"Fp-1", "Fp1"},
		{"fp 1", "Fp1"},
		{"fp_1", "Fp1"},
		{"Cz", "Cz"},
		{"NotAChannel99", "NotAChannel99"},
	}

	in := make([]string, len(cases))
	for i, c := range cases {
		in[i] = c.in
	}
	got := NormalizeChannelNames(in)
	for i, c := range cases {
		if got[i] != c.want {
			t.Errorf("NormalizeChannelNames(%q) = %q, want %q", c.in, got[i], c.want)
		}
	}
}

func TestBufferNormalizeMutatesInPlace(t *testing.T) {
	buf := &Buffer{
		Data:       [][]float64{{1, 2}, {3, 4}},
		Channels:   []string{"fp1", "FP2"},
		SampleRate: 250,
	}
	buf.Normalize()
	if buf.Channels[0] != "Fp1" || buf.Channels[1] != "Fp2" {
		t.Errorf("Channels = %v, want [Fp1 Fp2]", buf.Channels)
	}
}
