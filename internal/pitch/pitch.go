// SPDX-License-Identifier: MIT
/*
Package pitch provides the pitch estimators bound to analysis sessions.

Two estimators are available, both allocation-free after construction:

  - McLeod: normalized square difference function computed through an FFT
    autocorrelation, with key-maximum peak picking (McLeod & Wyvill, 2005).
  - YIN: cumulative mean normalized difference with an absolute threshold
    (de Cheveigné & Kawahara, 2002).

Every estimator returns analysis.NoPitch (0 Hz) when the window is too quiet
or no periodicity is found. An estimator instance keeps scratch buffers and
must not be shared between concurrent callers.
*/
package pitch

import (
	"errors"
	"fmt"
	"strings"

	"pitchtrack/internal/analysis"
)

// Default detection thresholds.
const (
	DefaultPowerThreshold   = 5.0  // Minimum sum of squared samples in a window.
	DefaultClarityThreshold = 0.6  // Minimum NSDF peak height, also the key-maximum cutoff.
	DefaultYinThreshold     = 0.15 // Maximum CMND dip accepted by YIN.
)

// Estimator names accepted by New.
const (
	NameMcLeod = "mcleod"
	NameYIN    = "yin"
)

// ErrUnknownEstimator is returned by New for an unrecognized name.
var ErrUnknownEstimator = errors.New("unknown pitch estimator")

// Options tunes an estimator. Zero values select the defaults.
type Options struct {
	PowerThreshold   float64 // Windows with less energy report no pitch.
	ClarityThreshold float64 // McLeod: minimum normalized peak height.
	YinThreshold     float64 // YIN: absolute threshold on the normalized difference.
	MinFrequency     float64 // Results below this frequency report no pitch (0 = no limit).
	MaxFrequency     float64 // Results above this frequency report no pitch (0 = no limit).
}

// DefaultOptions returns the thresholds used by the original detector.
func DefaultOptions() Options {
	return Options{
		PowerThreshold:   DefaultPowerThreshold,
		ClarityThreshold: DefaultClarityThreshold,
		YinThreshold:     DefaultYinThreshold,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PowerThreshold <= 0 {
		o.PowerThreshold = d.PowerThreshold
	}
	if o.ClarityThreshold <= 0 {
		o.ClarityThreshold = d.ClarityThreshold
	}
	if o.YinThreshold <= 0 {
		o.YinThreshold = d.YinThreshold
	}
	return o
}

// inRange applies the optional frequency bounds.
func (o Options) inRange(freq float64) bool {
	if o.MinFrequency > 0 && freq < o.MinFrequency {
		return false
	}
	if o.MaxFrequency > 0 && freq > o.MaxFrequency {
		return false
	}
	return true
}

// New creates the estimator registered under name.
func New(name string, sampleRate, windowSize int, opts Options) (analysis.Estimator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameMcLeod, "mpm", "":
		return NewMcLeod(sampleRate, windowSize, opts)
	case NameYIN:
		return NewYIN(sampleRate, windowSize, opts)
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownEstimator, name)
	}
}

// Names lists the estimator names accepted by New.
func Names() []string {
	return []string{NameMcLeod, NameYIN}
}

func validateSize(sampleRate, windowSize int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if windowSize < 4 {
		return fmt.Errorf("window size must be at least 4, got %d", windowSize)
	}
	return nil
}

// parabolicPeak fits a parabola through data[i-1], data[i], data[i+1] and
// returns the refined position and height of its extremum.
func parabolicPeak(data []float64, i int) (pos, value float64) {
	if i <= 0 || i >= len(data)-1 {
		return float64(i), data[i]
	}
	y1, y2, y3 := data[i-1], data[i], data[i+1]
	a := (y1 - 2*y2 + y3) / 2
	b := (y3 - y1) / 2
	if a == 0 {
		return float64(i), y2
	}
	delta := -b / (2 * a)
	return float64(i) + delta, y2 - b*b/(4*a)
}
