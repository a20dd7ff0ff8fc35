// SPDX-License-Identifier: MIT
package pitch

import (
	"sync/atomic"

	vecmath "github.com/cwbudde/algo-vecmath"

	"pitchtrack/internal/analysis"
)

// YIN is the YIN estimator. The first half of the window is compared against
// every lag up to half the window length.
type YIN struct {
	sampleRate float64
	size       int
	half       int
	opts       Options
	closed     atomic.Bool

	signal []float64
	cmnd   []float64 // Difference function, normalized in place.
}

var _ analysis.Estimator = (*YIN)(nil)

// NewYIN creates a YIN estimator for windows of windowSize samples.
func NewYIN(sampleRate, windowSize int, opts Options) (*YIN, error) {
	if err := validateSize(sampleRate, windowSize); err != nil {
		return nil, err
	}
	half := windowSize / 2
	return &YIN{
		sampleRate: float64(sampleRate),
		size:       windowSize,
		half:       half,
		opts:       opts.withDefaults(),
		signal:     make([]float64, windowSize),
		cmnd:       make([]float64, half),
	}, nil
}

func (y *YIN) DetectPitch(window []float32) analysis.Estimate {
	if y.closed.Load() || len(window) != y.size {
		return analysis.NoPitch
	}
	x := y.signal
	for i, v := range window {
		x[i] = float64(v)
	}
	if !(vecmath.DotProduct(x, x) >= y.opts.PowerThreshold) {
		return analysis.NoPitch
	}

	y.difference()
	y.normalize()

	tau, ok := y.absoluteThreshold()
	if !ok {
		return analysis.NoPitch
	}
	lag, _ := parabolicPeak(y.cmnd, tau)
	if lag <= 0 {
		return analysis.NoPitch
	}
	freq := y.sampleRate / lag
	if !y.opts.inRange(freq) {
		return analysis.NoPitch
	}
	return analysis.Estimate(freq)
}

// difference computes d(τ) = Σ (x[j] - x[j+τ])² over the first half window
// as e(0) + e(τ) - 2·r(τ), tracking the shifted energy incrementally.
func (y *YIN) difference() {
	x := y.signal
	w := y.half
	head := x[:w]
	e0 := vecmath.DotProduct(head, head)
	et := e0
	for tau := range y.cmnd {
		if tau > 0 {
			out, in := x[tau-1], x[tau-1+w]
			et += in*in - out*out
		}
		d := e0 + et - 2*vecmath.DotProduct(head, x[tau:tau+w])
		if d < 0 {
			d = 0
		}
		y.cmnd[tau] = d
	}
}

// normalize applies the cumulative mean normalization, d'(0) = 1.
func (y *YIN) normalize() {
	y.cmnd[0] = 1
	sum := 0.0
	for tau := 1; tau < len(y.cmnd); tau++ {
		sum += y.cmnd[tau]
		if sum > 0 {
			y.cmnd[tau] *= float64(tau) / sum
		} else {
			y.cmnd[tau] = 1
		}
	}
}

// absoluteThreshold returns the first lag whose normalized difference dips
// below the threshold, advanced to the bottom of that dip.
func (y *YIN) absoluteThreshold() (int, bool) {
	c := y.cmnd
	for tau := 2; tau < len(c); tau++ {
		if c[tau] >= y.opts.YinThreshold {
			continue
		}
		for tau+1 < len(c) && c[tau+1] < c[tau] {
			tau++
		}
		if tau >= len(c)-1 {
			return 0, false
		}
		return tau, true
	}
	return 0, false
}

func (y *YIN) Close() error {
	y.closed.Store(true)
	return nil
}
