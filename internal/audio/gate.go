// SPDX-License-Identifier: MIT
package audio

import (
	"io"
	"math"

	"pitchtrack/internal/analysis"
)

const signMask = 1 << 31

// EnableGate drops pitch estimates for windows quieter than the threshold.
func (e *Engine) EnableGate() {
	e.gateEnabled.Store(true)
}

func (e *Engine) DisableGate() {
	e.gateEnabled.Store(false)
}

// SetGateThreshold adjusts the event gate threshold as a peak amplitude.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (e *Engine) SetGateThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}
	e.gateThreshold.Store(math.Float32bits(float32(threshold)))
}

// GetGateThreshold returns the current gate threshold in the range 0.0-1.0.
func (e *Engine) GetGateThreshold() float64 {
	return float64(math.Float32frombits(e.gateThreshold.Load()))
}

// peakAmplitude returns max |x| over samples without branching on the data.
// Clearing the sign bit gives |x|, and non-negative IEEE-754 floats order the
// same as their bit patterns, so the running max is an integer max.
func peakAmplitude(samples []float32) float32 {
	var peak int32
	for _, s := range samples {
		amplitude := int32(math.Float32bits(s) &^ signMask)
		diff := amplitude - peak
		peak += diff &^ (diff >> 31)
	}
	return math.Float32frombits(uint32(peak))
}

// gateOpen reports whether a window passes the gate.
func (e *Engine) gateOpen(window []float32) bool {
	if !e.gateEnabled.Load() {
		return true
	}
	threshold := math.Float32frombits(e.gateThreshold.Load())
	return peakAmplitude(window) >= threshold
}

// gatedEstimator applies the event gate in front of an estimator, so the same
// gate holds whether the estimator runs inline or on the worker.
type gatedEstimator struct {
	engine *Engine
	inner  analysis.Estimator
}

func (g *gatedEstimator) DetectPitch(window []float32) analysis.Estimate {
	if !g.engine.gateOpen(window) {
		g.engine.gated.Add(1)
		return analysis.NoPitch
	}
	return g.inner.DetectPitch(window)
}

// Close releases the wrapped estimator.
func (g *gatedEstimator) Close() error {
	if c, ok := g.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
