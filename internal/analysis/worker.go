// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"time"
)

// Worker runs the estimator off the audio callback. It takes the newest
// window from a Mailbox, analyses it once with the estimator currently bound
// to the Scheduler and emits detected pitches to a Sink. Windows superseded
// while the estimator was busy are never analysed.
type Worker struct {
	mailbox   *Mailbox
	scheduler *Scheduler
	sink      Sink
}

// NewWorker creates a worker for the given mailbox and scheduler.
func NewWorker(mailbox *Mailbox, scheduler *Scheduler, sink Sink) *Worker {
	return &Worker{
		mailbox:   mailbox,
		scheduler: scheduler,
		sink:      sink,
	}
}

// Run processes windows until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.mailbox.Ready():
			w.Poll()
		}
	}
}

// Poll analyses the newest pending window, if any, and reports whether a
// window was taken.
func (w *Worker) Poll() bool {
	win, seq, ok := w.mailbox.Take()
	if !ok {
		return false
	}

	est := w.scheduler.currentEstimator()
	if est == nil {
		w.scheduler.skipped.Add(1)
		return true
	}

	pitch, detected, _ := w.scheduler.estimate(est, win)
	if detected && w.sink != nil {
		w.sink.Emit(Event{
			Frequency:  float32(pitch),
			Window:     seq,
			SampleRate: w.scheduler.Session().SampleRate,
			Time:       time.Now(),
		})
	}
	return true
}
