// Package dsp implements the cleaning kernel: resampling, notch and
// band-pass filtering, bad-channel detection, interpolation, ICA-based
// artifact removal, and muscle-artifact segment marking. All filters are
// windowed-sinc FIR designs applied with reflection-padded edges and a
// group-delay correction, giving the same "zero-phase" behavior as a
// forward-backward (filtfilt) application without a second convolution
// pass.
package dsp

import "math"

// sincLowpass designs a Hann-windowed sinc low-pass FIR filter with the
// given cutoff (Hz) at sample rate sfreq, normalized to unity DC gain.
func sincLowpass(cutoffHz, sfreq float64, numTaps int) []float64 {
	taps := make([]float64, numTaps)
	m := numTaps - 1
	fc := cutoffHz / sfreq // normalized cutoff, cycles/sample
	sum := 0.0
	for n := 0; n < numTaps; n++ {
		k := float64(n) - float64(m)/2
		var h float64
		if k == 0 {
			h = 2 * fc
		} else {
			h = math.Sin(2*math.Pi*fc*k) / (math.Pi * k)
		}
		w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(n)/float64(m))
		taps[n] = h * w
		sum += taps[n]
	}
	if sum != 0 {
		for n := range taps {
			taps[n] /= sum
		}
	}
	return taps
}

// bandpassTaps builds a band-pass FIR by subtracting two low-pass designs
// of the same tap count, a standard and cheap way to get a band-pass
// filter from the low-pass design above.
func bandpassTaps(lowHz, highHz, sfreq float64, numTaps int) []float64 {
	lpHigh := sincLowpass(highHz, sfreq, numTaps)
	lpLow := sincLowpass(lowHz, sfreq, numTaps)
	taps := make([]float64, numTaps)
	for i := range taps {
		taps[i] = lpHigh[i] - lpLow[i]
	}
	return taps
}

// bandstopTaps builds a narrow notch (band-stop) FIR as spectral
// inversion of a band-pass design: delta - bandpass.
func bandstopTaps(lowHz, highHz, sfreq float64, numTaps int) []float64 {
	bp := bandpassTaps(lowHz, highHz, sfreq, numTaps)
	taps := make([]float64, numTaps)
	center := (numTaps - 1) / 2
	for i := range taps {
		delta := 0.0
		if i == center {
			delta = 1.0
		}
		taps[i] = delta - bp[i]
	}
	return taps
}

// numTapsFor picks an odd FIR length proportional to the sample rate, long
// enough for a reasonably sharp transition band without being prohibitively
// slow for the direct-convolution application below.
func numTapsFor(sfreq float64) int {
	n := int(sfreq / 2)
	if n%2 == 0 {
		n++
	}
	if n < 31 {
		n = 31
	}
	if n > 401 {
		n = 401
	}
	return n
}

// reflectIndex maps an arbitrary (possibly out-of-range) index into [0,n)
// using mirror-without-repeat reflection (numpy's "reflect" boundary mode).
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i < n {
		return i
	}
	return period - i
}

// reflectPad returns x extended by pad samples of mirror reflection on
// each side.
func reflectPad(x []float64, pad int) []float64 {
	n := len(x)
	out := make([]float64, n+2*pad)
	for i := range out {
		out[i] = x[reflectIndex(i-pad, n)]
	}
	return out
}

// filterSignal applies a symmetric linear-phase FIR filter to x with
// reflection-padded edges, compensating the filter's group delay so the
// output is aligned with the input (the "zero-phase" behavior of a
// forward-backward filtfilt, achieved here in one pass because the taps
// are symmetric).
func filterSignal(x []float64, taps []float64) []float64 {
	m := len(taps)
	delay := (m - 1) / 2
	pad := m
	y := reflectPad(x, pad)
	n := len(x)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		start := pad - delay + i
		sum := 0.0
		for k := 0; k < m; k++ {
			sum += taps[k] * y[start+k]
		}
		out[i] = sum
	}
	return out
}

// ApplyNotch filters out each configured line frequency (e.g. 50 Hz mains
// hum) with a narrow zero-phase band-stop FIR centered on it.
func ApplyNotch(data [][]float64, sfreq float64, freqs []int) {
	for _, f := range freqs {
		halfWidth := 1.0
		taps := bandstopTaps(float64(f)-halfWidth, float64(f)+halfWidth, sfreq, numTapsFor(sfreq))
		for ch := range data {
			data[ch] = filterSignal(data[ch], taps)
		}
	}
}

// ApplyBandpass filters data to [low, high] Hz with a zero-phase FIR.
func ApplyBandpass(data [][]float64, sfreq, low, high float64) {
	taps := bandpassTaps(low, high, sfreq, numTapsFor(sfreq))
	for ch := range data {
		data[ch] = filterSignal(data[ch], taps)
	}
}

// ApplyMuscleBandpass returns a band-passed copy of data in the 20-40 Hz
// muscle-artifact band, leaving the input untouched.
func ApplyMuscleBandpass(data [][]float64, sfreq float64) [][]float64 {
	taps := bandpassTaps(20, 40, sfreq, numTapsFor(sfreq))
	out := make([][]float64, len(data))
	for ch := range data {
		out[ch] = filterSignal(data[ch], taps)
	}
	return out
}
