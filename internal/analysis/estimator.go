// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"time"
)

// Estimate is a detected fundamental frequency in Hz. Zero is the "no pitch"
// sentinel; negative, infinite and NaN values are treated the same way.
type Estimate float32

// NoPitch is returned by estimators when a window carries no usable pitch.
const NoPitch Estimate = 0

// Detected reports whether e is a usable frequency.
func (e Estimate) Detected() bool {
	return e > 0 && !math.IsInf(float64(e), 1)
}

// Estimator is the pitch detection capability bound to a session. DetectPitch
// receives exactly one window of samples, must not retain or modify it, and
// must be deterministic for identical input.
type Estimator interface {
	DetectPitch(window []float32) Estimate
}

// EstimatorFunc adapts a plain function to the Estimator interface.
type EstimatorFunc func(window []float32) Estimate

// DetectPitch calls f(window).
func (f EstimatorFunc) DetectPitch(window []float32) Estimate {
	return f(window)
}

// Event is a detected pitch ready for delivery to sinks.
type Event struct {
	Frequency  float32   // Detected frequency in Hz, always positive.
	Window     uint64    // Sequence number of the analysed window within the session.
	SampleRate int       // Session sample rate in Hz.
	Time       time.Time // Wall clock time the event left the analysis core.
}

// Sink receives pitch events. Delivery is fire-and-forget: sinks must not
// block and are never retried.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(ev Event)

// Emit calls f(ev).
func (f SinkFunc) Emit(ev Event) {
	f(ev)
}
