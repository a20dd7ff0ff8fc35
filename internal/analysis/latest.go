// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Latest holds the most recent detected pitch so the audio callback can
// publish it without locking or allocating. Readers see the newest value;
// values overwritten before being read are lost, which is the intended
// behaviour for a live pitch readout.
//
// Latest has a single writer: the audio callback in inline mode, the worker
// otherwise. Readers retry while a store is in progress.
type Latest struct {
	version atomic.Uint64 // Odd while a store is in progress; version/2 stores completed.
	pitch   atomic.Uint32 // Frequency bits.
	seq     atomic.Uint64 // Window sequence.
	notify  chan struct{}
}

// NewLatest returns an empty register.
func NewLatest() *Latest {
	return &Latest{notify: make(chan struct{}, 1)}
}

// Store publishes a detected pitch for window seq.
func (l *Latest) Store(pitch Estimate, seq uint64) {
	l.version.Add(1)
	l.pitch.Store(math.Float32bits(float32(pitch)))
	l.seq.Store(seq)
	l.version.Add(1)

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Emit implements Sink so a Worker can publish straight into the register.
func (l *Latest) Emit(ev Event) {
	l.Store(Estimate(ev.Frequency), ev.Window)
}

// Load returns the latest pitch and its window sequence. ok is false when
// nothing was stored yet.
func (l *Latest) Load() (pitch Estimate, seq uint64, ok bool) {
	for {
		v := l.version.Load()
		if v == 0 {
			return NoPitch, 0, false
		}
		if v&1 != 0 {
			runtime.Gosched()
			continue
		}
		bits, n := l.pitch.Load(), l.seq.Load()
		if l.version.Load() == v {
			return Estimate(math.Float32frombits(bits)), n, true
		}
	}
}

// Count returns the number of values stored so far.
func (l *Latest) Count() uint64 {
	return l.version.Load() / 2
}

// Notify is signalled after Store.
func (l *Latest) Notify() <-chan struct{} {
	return l.notify
}

// Dispatcher forwards pitches published to a Latest register to sinks. It runs
// on an ordinary goroutine so sinks may do I/O.
type Dispatcher struct {
	latest     *Latest
	sinks      []Sink
	sampleRate int

	mu   sync.Mutex // Serialises Flush so sinks are never called concurrently.
	seen uint64     // Latest.Count at the last delivery.
}

// NewDispatcher creates a dispatcher reading from latest.
func NewDispatcher(latest *Latest, sampleRate int, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		latest:     latest,
		sinks:      sinks,
		sampleRate: sampleRate,
	}
}

// Run delivers events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.latest.Notify():
			d.Flush()
		}
	}
}

// Flush delivers the newest pitch if it was not delivered yet and reports
// whether an event was emitted. It is safe to call while Run is active;
// each pitch is delivered once.
func (d *Dispatcher) Flush() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := d.latest.Count()
	if n == d.seen {
		return false
	}
	d.seen = n

	pitch, seq, ok := d.latest.Load()
	if !ok {
		return false
	}
	ev := Event{
		Frequency:  float32(pitch),
		Window:     seq,
		SampleRate: d.sampleRate,
		Time:       time.Now(),
	}
	for _, sink := range d.sinks {
		sink.Emit(ev)
	}
	return true
}
