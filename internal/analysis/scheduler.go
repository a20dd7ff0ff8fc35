// SPDX-License-Identifier: MIT
/*
Package analysis drives the sliding window from the audio callback and decides
when the pitch estimator runs.

The Scheduler is called once per audio chunk. It feeds the chunk into the
window buffer and, only when a complete window is available, calls the bound
Estimator exactly once on it. "No pitch" results are suppressed. Estimation can
run inline on the callback, or be moved to a Worker through a single-slot
Mailbox where the newest window always wins.

Thread Safety:
  - OnChunk must be called from one stream of chunks in arrival order.
  - Stop and BindEstimator may be called from any goroutine, including while
    OnChunk is running.
  - OnChunk performs no allocation, locking or I/O.
*/
package analysis

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"pitchtrack/internal/window"
)

var (
	// ErrNotInitialized is returned when the scheduler is used before Start.
	ErrNotInitialized = errors.New("analysis session not started")

	// ErrStopped is returned for chunks delivered after Stop.
	ErrStopped = errors.New("analysis session stopped")

	// ErrAlreadyStarted is returned by Start on an active session.
	ErrAlreadyStarted = errors.New("analysis session already started")

	// ErrInvalidSession is returned by Start for a bad session configuration.
	ErrInvalidSession = errors.New("invalid analysis session")

	// ErrInvalidChunkSize is returned when a chunk is longer than the window.
	ErrInvalidChunkSize = window.ErrInvalidChunkSize
)

// State is the lifecycle state of a Scheduler.
type State uint32

const (
	StateUninitialized State = iota
	StateFilling             // Started, window not yet complete.
	StateSliding             // Window complete, every chunk yields a window.
	StateStopped             // Terminal until the next Start.
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateFilling:
		return "filling"
	case StateSliding:
		return "sliding"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Session is the configuration of one analysis session.
type Session struct {
	SampleRate int // Sample rate of the incoming audio in Hz.
	WindowSize int // Number of samples per analysis window.
}

// Validate checks that both values are positive.
func (s Session) Validate() error {
	if s.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidSession, s.SampleRate)
	}
	if s.WindowSize <= 0 {
		return fmt.Errorf("%w: window size must be positive, got %d", ErrInvalidSession, s.WindowSize)
	}
	return nil
}

// Option customizes a session at Start.
type Option func(*Scheduler)

// WithMailbox hands ready windows to m instead of running the estimator on
// the calling goroutine. A Worker must consume m.
func WithMailbox(m *Mailbox) Option {
	return func(s *Scheduler) {
		s.mailbox = m
	}
}

// Stats are session counters. All values are cumulative since Start.
type Stats struct {
	Chunks     uint64 // Chunks ingested successfully.
	Windows    uint64 // Window-ready events.
	Estimates  uint64 // Estimator invocations.
	Suppressed uint64 // Estimator results that were "no pitch".
	Skipped    uint64 // Ready windows with no estimator bound.
	Dropped    uint64 // Windows overwritten in the mailbox before analysis.
}

// binding holds a bound estimator so it can be released exactly once.
type binding struct {
	estimator Estimator
	release   sync.Once
}

// Scheduler couples the window buffer with an estimator.
type Scheduler struct {
	state     atomic.Uint32
	estimator atomic.Pointer[binding]

	// Owned by the ingest path after Start.
	buffer  window.Buffer
	mailbox *Mailbox
	session Session

	chunks     atomic.Uint64
	windows    atomic.Uint64
	estimates  atomic.Uint64
	suppressed atomic.Uint64
	skipped    atomic.Uint64
}

// NewScheduler returns a scheduler in the uninitialized state.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Start begins a session: it configures the window buffer and binds est.
// est may be nil when the estimator becomes available later; ready windows
// are then skipped until BindEstimator is called. Start must not run
// concurrently with OnChunk.
func (s *Scheduler) Start(session Session, est Estimator, opts ...Option) error {
	if err := session.Validate(); err != nil {
		return err
	}
	switch State(s.state.Load()) {
	case StateFilling, StateSliding:
		return ErrAlreadyStarted
	}

	s.mailbox = nil
	for _, opt := range opts {
		opt(s)
	}
	if s.mailbox != nil && s.mailbox.Size() != session.WindowSize {
		return fmt.Errorf("%w: mailbox holds %d samples, window is %d",
			ErrInvalidSession, s.mailbox.Size(), session.WindowSize)
	}
	if err := s.buffer.Configure(session.WindowSize); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	s.session = session

	s.chunks.Store(0)
	s.windows.Store(0)
	s.estimates.Store(0)
	s.suppressed.Store(0)
	s.skipped.Store(0)

	s.bind(est)
	s.state.Store(uint32(StateFilling))
	return nil
}

// BindEstimator binds est to the running session, releasing any previously
// bound estimator. Passing nil unbinds.
func (s *Scheduler) BindEstimator(est Estimator) error {
	switch State(s.state.Load()) {
	case StateUninitialized:
		return ErrNotInitialized
	case StateStopped:
		return ErrStopped
	}
	s.bind(est)
	return nil
}

func (s *Scheduler) bind(est Estimator) {
	var next *binding
	if est != nil {
		next = &binding{estimator: est}
	}
	releaseBinding(s.estimator.Swap(next))
}

// releaseBinding closes the estimator of b once, if it is an io.Closer.
// An estimator closed here may still be finishing an in-flight DetectPitch.
func releaseBinding(b *binding) {
	if b == nil {
		return
	}
	b.release.Do(func() {
		if c, ok := b.estimator.(io.Closer); ok {
			_ = c.Close()
		}
	})
}

// OnChunk ingests one chunk. It returns the detected pitch and true when this
// chunk completed a window whose estimate was a real pitch. When the window
// is not complete, no estimator is bound, the estimate is "no pitch", or the
// window was handed to a mailbox, it returns NoPitch and false.
func (s *Scheduler) OnChunk(chunk []float32) (Estimate, bool, error) {
	switch State(s.state.Load()) {
	case StateUninitialized:
		return NoPitch, false, ErrNotInitialized
	case StateStopped:
		return NoPitch, false, ErrStopped
	}

	ready, err := s.buffer.Ingest(chunk)
	if err != nil {
		return NoPitch, false, err
	}
	s.chunks.Add(1)
	if !ready {
		return NoPitch, false, nil
	}

	seq := s.windows.Add(1)
	s.state.CompareAndSwap(uint32(StateFilling), uint32(StateSliding))

	b := s.estimator.Load()
	if b == nil {
		s.skipped.Add(1)
		return NoPitch, false, nil
	}

	if s.mailbox != nil {
		s.mailbox.Post(s.buffer.Window(), seq)
		return NoPitch, false, nil
	}

	return s.estimate(b.estimator, s.buffer.Window())
}

// estimate runs est once on w and applies the no-pitch filter.
func (s *Scheduler) estimate(est Estimator, w []float32) (Estimate, bool, error) {
	pitch := est.DetectPitch(w)
	s.estimates.Add(1)
	if !pitch.Detected() {
		s.suppressed.Add(1)
		return NoPitch, false, nil
	}
	return pitch, true, nil
}

// Stop ends the session and releases the estimator. It is idempotent and safe
// to call while OnChunk is running; the window buffer is left untouched.
func (s *Scheduler) Stop() error {
	for {
		st := s.state.Load()
		if State(st) == StateStopped || State(st) == StateUninitialized {
			return nil
		}
		if s.state.CompareAndSwap(st, uint32(StateStopped)) {
			break
		}
	}
	releaseBinding(s.estimator.Swap(nil))
	return nil
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Session returns the configuration passed to the last Start.
func (s *Scheduler) Session() Session {
	return s.session
}

// Window returns the current window contents. It aliases the buffer and is
// only safe to read from the ingest goroutine.
func (s *Scheduler) Window() []float32 {
	return s.buffer.Window()
}

// WindowCount returns the number of ready windows in this session. The value
// doubles as the sequence number of the most recent window.
func (s *Scheduler) WindowCount() uint64 {
	return s.windows.Load()
}

// Stats returns a snapshot of the session counters.
func (s *Scheduler) Stats() Stats {
	st := Stats{
		Chunks:     s.chunks.Load(),
		Windows:    s.windows.Load(),
		Estimates:  s.estimates.Load(),
		Suppressed: s.suppressed.Load(),
		Skipped:    s.skipped.Load(),
	}
	if s.mailbox != nil {
		st.Dropped = s.mailbox.Dropped()
	}
	return st
}

// currentEstimator returns the bound estimator, or nil.
func (s *Scheduler) currentEstimator() Estimator {
	if b := s.estimator.Load(); b != nil {
		return b.estimator
	}
	return nil
}
