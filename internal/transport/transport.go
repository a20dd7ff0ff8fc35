// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"sync/atomic"

	"pitchtrack/internal/analysis"
	applog "pitchtrack/internal/log"
	"pitchtrack/internal/pitch"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// PitchMessage is the JSON form of a pitch event.
type PitchMessage struct {
	Type      string  `json:"type"`  // Always "pitch".
	Pitch     float32 `json:"pitch"` // Hz.
	Note      string  `json:"note,omitempty"`
	Cents     float64 `json:"cents"`
	Window    uint64  `json:"window"`
	Timestamp int64   `json:"timestamp"` // Milliseconds since epoch.
}

// NewPitchMessage converts an event into its wire form.
func NewPitchMessage(ev analysis.Event) PitchMessage {
	msg := PitchMessage{
		Type:      "pitch",
		Pitch:     ev.Frequency,
		Window:    ev.Window,
		Timestamp: ev.Time.UnixMilli(),
	}
	if n, ok := pitch.Note(float64(ev.Frequency)); ok {
		msg.Note = n.Label()
		msg.Cents = n.Cents
	}
	return msg
}

// EventSink adapts transports to analysis.Sink. Every event is sent to every
// transport; failures are counted and logged, never retried.
type EventSink struct {
	transports []Transport
	failures   atomic.Uint64
}

// NewEventSink creates a sink fanning out to transports.
func NewEventSink(transports ...Transport) *EventSink {
	return &EventSink{transports: transports}
}

// Emit implements analysis.Sink.
func (s *EventSink) Emit(ev analysis.Event) {
	msg := NewPitchMessage(ev)
	for _, t := range s.transports {
		if err := t.Send(msg); err != nil {
			if s.failures.Add(1) == 1 || applog.Enabled(applog.LevelDebug) {
				applog.Warnf("EventSink: send failed: %v", err)
			}
		}
	}
}

// Failures returns the number of failed sends.
func (s *EventSink) Failures() uint64 {
	return s.failures.Load()
}

// Close closes every transport and returns the first error.
func (s *EventSink) Close() error {
	var first error
	for _, t := range s.transports {
		if err := t.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ analysis.Sink = (*EventSink)(nil)
