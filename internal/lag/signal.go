package lag

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// Resample returns x band-limited interpolated to num samples over the same
// span. When num is a multiple of len(x), every (num/len(x))-th output equals
// the matching input sample.
func Resample(x []float64, num int) []float64 {
	n := len(x)
	if n == 0 || num <= 0 {
		return nil
	}
	if num == n {
		return append([]float64(nil), x...)
	}

	coeff := fourier.NewFFT(n).Coefficients(nil, x)

	m := n
	if num < m {
		m = num
	}
	nyq := m/2 + 1

	spectrum := make([]complex128, num/2+1)
	copy(spectrum[:nyq], coeff[:nyq])

	// the shared Nyquist bin is split between the positive and negative
	// halves when growing, and folded back when shrinking
	if m%2 == 0 {
		if num > n {
			spectrum[m/2] *= 0.5
		} else if num < n {
			spectrum[m/2] *= 2
		}
	}

	out := fourier.NewFFT(num).Sequence(nil, spectrum)
	for i := range out {
		out[i] /= float64(n)
	}

	return out
}

// Correlate returns the cross-correlation of a and v, c[k] = Σ a[n+k]·v[n],
// trimmed to len(a) samples centred on the full result.
func Correlate(a, v []float64) []float64 {
	n, m := len(a), len(v)
	out := make([]float64, n)
	shift := (m-1)/2 - (m - 1)

	for j := range out {
		k := j + shift
		var acc float64
		for i := 0; i < m; i++ {
			if idx := i + k; idx >= 0 && idx < n {
				acc += a[idx] * v[i]
			}
		}
		out[j] = acc
	}

	return out
}

// Lags returns the lag of every sample of Correlate for two inputs of
// length n. Zero lag sits at index n/2.
func Lags(n int) []int {
	lags := make([]int, n)
	for j := range lags {
		lags[j] = j - n/2
	}
	return lags
}

// Periodogram returns the one-sided power spectral density of x sampled at
// fs, after removing the mean. Frequencies are in the unit of fs.
func Periodogram(x []float64, fs float64) ([]float64, []float64) {
	n := len(x)
	if n == 0 || fs <= 0 {
		return nil, nil
	}

	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(n)

	centred := make([]float64, n)
	for i, v := range x {
		centred[i] = v - mean
	}

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, centred)

	freqs := make([]float64, len(coeff))
	power := make([]float64, len(coeff))
	for i, c := range coeff {
		freqs[i] = fft.Freq(i) * fs
		p := (real(c)*real(c) + imag(c)*imag(c)) / (fs * float64(n))
		if i != 0 && !(n%2 == 0 && i == n/2) {
			p *= 2
		}
		power[i] = p
	}

	return freqs, power
}
