// SPDX-License-Identifier: MIT
package pitch

import (
	"sync/atomic"

	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/dsp/fourier"

	"pitchtrack/internal/analysis"
	"pitchtrack/pkg/bitint"
)

// McLeod is the McLeod pitch method estimator. The window is zero padded by
// half its length so the FFT autocorrelation is exact for every lag searched.
type McLeod struct {
	sampleRate float64
	size       int // Expected window length.
	maxLag     int // Lags searched: [0, maxLag).
	opts       Options
	closed     atomic.Bool

	fft      *fourier.FFT
	signal   []float64    // Zero padded input, len fftLen.
	spectrum []complex128 // FFT coefficients, len fftLen/2+1.
	re, im   []float64    // Split spectrum for vecmath.Power.
	power    []float64    // |X[k]|^2.
	acf      []float64    // Unnormalized autocorrelation, len fftLen.
	nsdf     []float64    // Normalized square difference, len maxLag.
	keys     []int        // Key maxima positions, reused between calls.
}

var _ analysis.Estimator = (*McLeod)(nil)

// NewMcLeod creates a McLeod estimator for windows of windowSize samples.
func NewMcLeod(sampleRate, windowSize int, opts Options) (*McLeod, error) {
	if err := validateSize(sampleRate, windowSize); err != nil {
		return nil, err
	}
	padding := windowSize / 2
	fftLen := bitint.NextPowerOfTwo(windowSize + padding)
	bins := fftLen/2 + 1

	return &McLeod{
		sampleRate: float64(sampleRate),
		size:       windowSize,
		maxLag:     padding,
		opts:       opts.withDefaults(),
		fft:        fourier.NewFFT(fftLen),
		signal:     make([]float64, fftLen),
		spectrum:   make([]complex128, bins),
		re:         make([]float64, bins),
		im:         make([]float64, bins),
		power:      make([]float64, bins),
		acf:        make([]float64, fftLen),
		nsdf:       make([]float64, padding),
		keys:       make([]int, 0, padding/2+1),
	}, nil
}

// DetectPitch returns the fundamental frequency of window in Hz, or NoPitch.
// Windows of the wrong length report NoPitch.
func (m *McLeod) DetectPitch(window []float32) analysis.Estimate {
	if m.closed.Load() || len(window) != m.size {
		return analysis.NoPitch
	}

	x := m.signal[:m.size]
	for i, v := range window {
		x[i] = float64(v)
	}
	energy := vecmath.DotProduct(x, x)
	if !(energy >= m.opts.PowerThreshold) {
		return analysis.NoPitch
	}

	m.autocorrelate()
	m.normalize(energy)

	lag, clarity, ok := m.choosePeak()
	if !ok || clarity < m.opts.ClarityThreshold || lag <= 0 {
		return analysis.NoPitch
	}
	freq := m.sampleRate / lag
	if !m.opts.inRange(freq) {
		return analysis.NoPitch
	}
	return analysis.Estimate(freq)
}

// autocorrelate computes the autocorrelation of the padded signal into acf
// through the power spectrum. The result is scaled by the FFT length.
func (m *McLeod) autocorrelate() {
	m.fft.Coefficients(m.spectrum, m.signal)
	for i, c := range m.spectrum {
		m.re[i] = real(c)
		m.im[i] = imag(c)
	}
	vecmath.Power(m.power, m.re, m.im)
	for i, p := range m.power {
		m.spectrum[i] = complex(p, 0)
	}
	m.fft.Sequence(m.acf, m.spectrum)
}

// normalize turns the autocorrelation into the NSDF:
//
//	n(τ) = 2·r(τ) / Σ (x[j]² + x[j+τ]²)
func (m *McLeod) normalize(energy float64) {
	x := m.signal[:m.size]
	scale := 1 / float64(len(m.acf))
	denom := 2 * energy
	for tau := range m.nsdf {
		if tau > 0 {
			a, b := x[tau-1], x[m.size-tau]
			denom -= a*a + b*b
		}
		if denom > 0 {
			m.nsdf[tau] = 2 * m.acf[tau] * scale / denom
		} else {
			m.nsdf[tau] = 0
		}
	}
}

// choosePeak collects the key maxima (the highest point of every positive
// lobe after the first negative-going zero crossing) and returns the first
// one reaching ClarityThreshold times the highest key maximum, refined by
// parabolic interpolation.
func (m *McLeod) choosePeak() (lag, clarity float64, ok bool) {
	nsdf := m.nsdf
	n := len(nsdf)
	keys := m.keys[:0]

	tau := 0
	for tau < n && nsdf[tau] > 0 {
		tau++
	}
	highest := 0.0
	for tau < n {
		for tau < n && nsdf[tau] <= 0 {
			tau++
		}
		if tau >= n {
			break
		}
		best := tau
		for tau < n && nsdf[tau] > 0 {
			if nsdf[tau] > nsdf[best] {
				best = tau
			}
			tau++
		}
		if best >= n-1 {
			// Lobe cut off by the search range, its maximum is unreliable.
			break
		}
		keys = append(keys, best)
		if nsdf[best] > highest {
			highest = nsdf[best]
		}
	}
	m.keys = keys

	cutoff := m.opts.ClarityThreshold * highest
	for _, k := range keys {
		if nsdf[k] >= cutoff {
			pos, value := parabolicPeak(nsdf, k)
			return pos, value, true
		}
	}
	return 0, 0, false
}

// Close releases the estimator. Later calls to DetectPitch report NoPitch.
func (m *McLeod) Close() error {
	m.closed.Store(true)
	return nil
}
