// Package features implements the epoching and per-epoch/per-channel
// feature-extraction engine: band power (Welch PSD), relative band power,
// time-domain statistics, Hjorth parameters, sample entropy, and
// cross-channel coherence. Its output column ordering is the contract the
// trainer and the realtime processor both depend on.
package features

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// hannWindow returns an n-point Hann window.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// welchPSD estimates the power spectral density of x by Welch's method:
// segment into windows of nperseg samples with noverlap overlap, apply a
// Hann window, average the periodograms. Returns frequency bins (Hz) and
// one-sided PSD values with the window's power-loss correction applied, in
// units consistent with scipy.signal.welch (density scaling).
func welchPSD(x []float64, sfreq float64, nperseg int) (freqs, psd []float64) {
	n := len(x)
	if nperseg > n {
		nperseg = n
	}
	if nperseg < 1 {
		return nil, nil
	}
	noverlap := nperseg / 2
	step := nperseg - noverlap
	if step < 1 {
		step = 1
	}

	win := hannWindow(nperseg)
	winSumSq := 0.0
	for _, w := range win {
		winSumSq += w * w
	}
	scale := 1.0 / (sfreq * winSumSq)

	fft := fourier.NewFFT(nperseg)
	nFreq := nperseg/2 + 1
	freqs = make([]float64, nFreq)
	for i := range freqs {
		freqs[i] = float64(i) * sfreq / float64(nperseg)
	}

	accum := make([]float64, nFreq)
	segments := 0
	seg := make([]float64, nperseg)
	coeffs := make([]complex128, nFreq)

	for start := 0; start+nperseg <= n; start += step {
		for i := 0; i < nperseg; i++ {
			seg[i] = x[start+i] * win[i]
		}
		coeffs = fft.Coefficients(coeffs, seg)
		for i := 0; i < nFreq; i++ {
			mag := real(coeffs[i])*real(coeffs[i]) + imag(coeffs[i])*imag(coeffs[i])
			p := mag * scale
			if i != 0 && !(nperseg%2 == 0 && i == nFreq-1) {
				p *= 2
			}
			accum[i] += p
		}
		segments++
	}

	if segments == 0 {
		// Not reached while nperseg is clamped to len(x) above; if it
		// were, the returned PSD would be all zeros.
		segments = 1
		for i := 0; i < nFreq; i++ {
			accum[i] = 0
		}
	} else {
		for i := range accum {
			accum[i] /= float64(segments)
		}
	}

	return freqs, accum
}

// WelchPSD is the exported form of welchPSD, reused by the realtime
// processor's lightweight feature path so both paths share one Welch
// implementation rather than diverging copies.
func WelchPSD(x []float64, sfreq float64, nperseg int) (freqs, psd []float64) {
	return welchPSD(x, sfreq, nperseg)
}

// BandPower is the exported form of bandPower.
func BandPower(freqs, psd []float64, low, high float64) float64 {
	return bandPower(freqs, psd, low, high)
}

// trapz integrates y over x by the trapezoidal rule.
func trapz(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(x); i++ {
		sum += (x[i] - x[i-1]) * (y[i] + y[i-1]) / 2
	}
	return sum
}

// bandPower integrates the PSD over [low, high] Hz (inclusive) using the
// trapezoidal rule, matching the reference implementation's np.trapz over
// the boolean-masked frequency band.
func bandPower(freqs, psd []float64, low, high float64) float64 {
	var bx, by []float64
	for i, f := range freqs {
		if f >= low && f <= high {
			bx = append(bx, f)
			by = append(by, psd[i])
		}
	}
	return trapz(bx, by)
}

// coherence estimates magnitude-squared coherence between x and y using
// Welch-averaged cross- and auto-spectral densities, matching
// scipy.signal.coherence's windowing (Hann, 50% overlap).
func coherence(x, y []float64, sfreq float64, nperseg int) (freqs, coh []float64) {
	n := len(x)
	if nperseg > n {
		nperseg = n
	}
	if nperseg < 1 || len(y) != n {
		return nil, nil
	}
	noverlap := nperseg / 2
	step := nperseg - noverlap
	if step < 1 {
		step = 1
	}

	win := hannWindow(nperseg)
	fft := fourier.NewFFT(nperseg)
	nFreq := nperseg/2 + 1
	freqs = make([]float64, nFreq)
	for i := range freqs {
		freqs[i] = float64(i) * sfreq / float64(nperseg)
	}

	pxx := make([]float64, nFreq)
	pyy := make([]float64, nFreq)
	pxyRe := make([]float64, nFreq)
	pxyIm := make([]float64, nFreq)

	segX := make([]float64, nperseg)
	segY := make([]float64, nperseg)
	segments := 0

	for start := 0; start+nperseg <= n; start += step {
		for i := 0; i < nperseg; i++ {
			segX[i] = x[start+i] * win[i]
			segY[i] = y[start+i] * win[i]
		}
		cx := fft.Coefficients(nil, segX)
		cy := fft.Coefficients(nil, segY)
		for i := 0; i < nFreq; i++ {
			pxx[i] += real(cx[i])*real(cx[i]) + imag(cx[i])*imag(cx[i])
			pyy[i] += real(cy[i])*real(cy[i]) + imag(cy[i])*imag(cy[i])
			// cross spectrum: Cx * conj(Cy)
			pxyRe[i] += real(cx[i])*real(cy[i]) + imag(cx[i])*imag(cy[i])
			pxyIm[i] += imag(cx[i])*real(cy[i]) - real(cx[i])*imag(cy[i])
		}
		segments++
	}
	if segments == 0 {
		return freqs, make([]float64, nFreq)
	}

	coh = make([]float64, nFreq)
	for i := 0; i < nFreq; i++ {
		px := pxx[i] / float64(segments)
		py := pyy[i] / float64(segments)
		re := pxyRe[i] / float64(segments)
		im := pxyIm[i] / float64(segments)
		denom := px * py
		if denom <= 0 {
			coh[i] = 0
			continue
		}
		coh[i] = (re*re + im*im) / denom
	}
	return freqs, coh
}

// meanInBand averages y over frequency bins in [low, high] Hz.
func meanInBand(freqs, y []float64, low, high float64) float64 {
	sum, count := 0.0, 0
	for i, f := range freqs {
		if f >= low && f <= high {
			sum += y[i]
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
