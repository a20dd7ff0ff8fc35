// SPDX-License-Identifier: MIT
/*
Package audio implements the real-time capture side of the pitch tracker:
- Lock-free audio capture using PortAudio (float32 samples)
- Channel 0 fed chunk by chunk into the analysis scheduler
- Estimation inline on the callback or on a worker fed by a mailbox
- Event gate with a branchless peak detector
- WAV recording handed off through a ring buffer

Thread Safety:
- Uses atomic operations for state shared with the callback
- Pre-allocates buffers to avoid GC in hot path
- Locks OS thread during audio processing
- Background goroutines run under one errgroup bound to the engine context
*/
package audio

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"golang.org/x/sync/errgroup"

	"pitchtrack/internal/analysis"
	"pitchtrack/internal/config"
	applog "pitchtrack/internal/log"
)

var (
	// ErrNotRunning is returned for operations that need a started engine.
	ErrNotRunning = errors.New("audio engine not running")
	// ErrEngineRunning is returned by Start on a running engine.
	ErrEngineRunning = errors.New("audio engine already running")
)

// Stats summarises the engine counters.
type Stats struct {
	analysis.Stats
	CallbackErrors uint64 // Chunks rejected by the scheduler.
	Gated          uint64 // Windows dropped by the event gate.
	RecordOverruns uint64 // Chunks the recorder could not queue.
}

type Engine struct {
	// Core configuration and state.
	config   *config.Config
	channels int
	frames   int

	// Audio input handling.
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream

	// Analysis pipeline.
	scheduler  *analysis.Scheduler
	estimator  analysis.Estimator
	mailbox    *analysis.Mailbox // Worker mode only.
	worker     *analysis.Worker  // Worker mode only.
	latest     *analysis.Latest
	dispatcher *analysis.Dispatcher
	mono       []float32 // Channel 0 of the current callback buffer.

	// Event gate.
	gateEnabled   atomic.Bool
	gateThreshold atomic.Uint32 // float32 bits, peak amplitude 0.0-1.0
	gated         atomic.Uint64

	callbackErrors atomic.Uint64

	// Recording state.
	recorder atomic.Pointer[Recorder]
	recordMu sync.Mutex

	// Background goroutines.
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewEngine resolves the configured input device and builds an engine that
// feeds est with the device's channel 0. Detected pitches are delivered to
// sinks from a background goroutine.
func NewEngine(cfg *config.Config, est analysis.Estimator, sinks ...analysis.Sink) (*Engine, error) {
	inputDevice, err := InputDevice(cfg.Audio.InputDevice)
	if err != nil {
		return nil, err
	}
	if inputDevice.MaxInputChannels < cfg.Audio.InputChannels {
		return nil, fmt.Errorf("device %s has %d input channels, %d requested",
			inputDevice.Name, inputDevice.MaxInputChannels, cfg.Audio.InputChannels)
	}

	engine := newEngine(cfg, est, sinks...)
	engine.inputDevice = inputDevice
	if cfg.Audio.LowLatency {
		engine.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		engine.inputLatency = inputDevice.DefaultHighInputLatency
	}
	return engine, nil
}

// newEngine builds the device-independent part of the engine.
func newEngine(cfg *config.Config, est analysis.Estimator, sinks ...analysis.Sink) *Engine {
	frames := cfg.Audio.FramesPerBuffer
	channels := max(cfg.Audio.InputChannels, 1)
	session := cfg.Session()

	e := &Engine{
		config:    cfg,
		channels:  channels,
		frames:    frames,
		scheduler: analysis.NewScheduler(),
		latest:    analysis.NewLatest(),
		mono:      make([]float32, frames),
	}
	if est != nil {
		e.estimator = &gatedEstimator{engine: e, inner: est}
	}
	e.dispatcher = analysis.NewDispatcher(e.latest, session.SampleRate, sinks...)
	if cfg.Analysis.Mode == config.ModeWorker {
		e.mailbox = analysis.NewMailbox(session.WindowSize)
		e.worker = analysis.NewWorker(e.mailbox, e.scheduler, e.latest)
	}

	e.gateEnabled.Store(cfg.Analysis.GateEnabled)
	e.SetGateThreshold(cfg.Analysis.GateThreshold)
	return e
}

// Start begins a session and, when the engine has a device, starts the
// input stream. Background goroutines stop when ctx is cancelled or Close
// is called.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.startPipeline(ctx); err != nil {
		return err
	}
	if e.inputDevice == nil {
		return nil
	}
	if err := e.StartInputStream(); err != nil {
		_ = e.stopPipeline()
		return err
	}
	return nil
}

func (e *Engine) startPipeline(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.group != nil {
		return ErrEngineRunning
	}

	var opts []analysis.Option
	if e.mailbox != nil {
		opts = append(opts, analysis.WithMailbox(e.mailbox))
	}
	session := e.config.Session()
	if err := e.scheduler.Start(session, e.estimator, opts...); err != nil {
		return err
	}

	e.ctx, e.cancel = context.WithCancel(ctx)
	e.group, e.ctx = errgroup.WithContext(e.ctx)
	e.group.Go(func() error { return e.dispatcher.Run(e.ctx) })
	if e.worker != nil {
		e.group.Go(func() error { return e.worker.Run(e.ctx) })
	}

	applog.Infof("Engine: session started (%d Hz, window %d, chunk %d, %s mode)",
		session.SampleRate, session.WindowSize, e.frames, e.config.Analysis.Mode)
	return nil
}

// Done is closed once the background goroutines are told to stop, either by
// Close or because one of them failed. It is nil before Start.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return nil
	}
	return e.ctx.Done()
}

// Go runs fn under the engine's errgroup. fn must return once ctx is done.
func (e *Engine) Go(fn func(ctx context.Context) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.group == nil {
		return ErrNotRunning
	}
	ctx := e.ctx
	e.group.Go(func() error { return fn(ctx) })
	return nil
}

func (e *Engine) StartInputStream() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.channels,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: e.frames,
		SampleRate:      e.config.Audio.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	e.inputStream = stream

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		e.inputStream = nil
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	applog.Infof("Engine: capturing from %s (latency %s)", e.inputDevice.Name, e.inputLatency)
	return nil
}

func (e *Engine) StopInputStream() error {
	if e.inputStream != nil {
		if err := e.inputStream.Stop(); err != nil {
			return err
		}

		if err := e.inputStream.Close(); err != nil {
			return err
		}

		e.inputStream = nil
	}

	return nil
}

// processInputStream is the core audio processing callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (e *Engine) processInputStream(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e.processBuffer(in)
}

// processBuffer feeds one interleaved callback buffer to the pipeline.
func (e *Engine) processBuffer(in []float32) {
	chunk := e.monoChunk(in)

	pitch, ok, err := e.scheduler.OnChunk(chunk)
	if err != nil {
		// Reported by Close; nothing is logged from the callback.
		e.callbackErrors.Add(1)
		return
	}
	if ok {
		e.latest.Store(pitch, e.scheduler.WindowCount())
	}

	if rec := e.recorder.Load(); rec != nil {
		rec.Write(chunk)
	}
}

// monoChunk returns channel 0 of an interleaved buffer.
func (e *Engine) monoChunk(in []float32) []float32 {
	if e.channels == 1 {
		return in
	}
	frames := min(len(in)/e.channels, len(e.mono))
	for i := range frames {
		e.mono[i] = in[i*e.channels]
	}
	return e.mono[:frames]
}

// BindEstimator swaps the estimator of the running session. The previous one
// is released.
func (e *Engine) BindEstimator(est analysis.Estimator) error {
	var wrapped analysis.Estimator
	if est != nil {
		wrapped = &gatedEstimator{engine: e, inner: est}
	}
	if err := e.scheduler.BindEstimator(wrapped); err != nil {
		return err
	}
	e.mu.Lock()
	e.estimator = wrapped
	e.mu.Unlock()
	return nil
}

// DeviceName returns the capture device name, or "" for an engine without one.
func (e *Engine) DeviceName() string {
	if e.inputDevice == nil {
		return ""
	}
	return e.inputDevice.Name
}

// Latest returns the register holding the newest detected pitch.
func (e *Engine) Latest() *analysis.Latest {
	return e.latest
}

// State returns the analysis session state.
func (e *Engine) State() analysis.State {
	return e.scheduler.State()
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	st := Stats{
		Stats:          e.scheduler.Stats(),
		CallbackErrors: e.callbackErrors.Load(),
		Gated:          e.gated.Load(),
	}
	if rec := e.recorder.Load(); rec != nil {
		st.RecordOverruns = rec.Overruns()
	}
	return st
}

// StartRecording writes the analysed channel to filename until StopRecording.
func (e *Engine) StartRecording(filename string) error {
	e.recordMu.Lock()
	defer e.recordMu.Unlock()

	if e.recorder.Load() != nil {
		return ErrAlreadyRecording
	}
	rc := e.config.Recording
	rec, err := NewRecorder(filename, int(e.config.Audio.SampleRate), e.frames,
		rc.BufferDuration, time.Duration(rc.MaxDuration)*time.Second)
	if err != nil {
		return err
	}
	if err := e.Go(rec.Run); err != nil {
		_ = rec.file.Close()
		return err
	}
	e.recorder.Store(rec)
	applog.Infof("Engine: recording to %s", filename)
	return nil
}

// StopRecording finishes the current recording, if any, and closes its file.
func (e *Engine) StopRecording() error {
	e.recordMu.Lock()
	defer e.recordMu.Unlock()

	rec := e.recorder.Swap(nil)
	if rec == nil {
		return nil
	}
	return rec.Stop()
}

// Recording reports whether a recording is in progress.
func (e *Engine) Recording() bool {
	return e.recorder.Load() != nil
}

// Close stops the stream, the session, any recording and every background
// goroutine.
func (e *Engine) Close() error {
	var errs []error
	if err := e.StopInputStream(); err != nil {
		errs = append(errs, err)
	}
	if err := e.StopRecording(); err != nil {
		errs = append(errs, err)
	}
	if err := e.stopPipeline(); err != nil {
		errs = append(errs, err)
	}

	st := e.Stats()
	if st.CallbackErrors > 0 {
		applog.Warnf("Engine: %d chunks rejected by the analysis session", st.CallbackErrors)
	}
	applog.Infof("Engine: closed (%d chunks, %d windows, %d estimates, %d suppressed, %d gated, %d dropped)",
		st.Chunks, st.Windows, st.Estimates, st.Suppressed, st.Gated, st.Dropped)
	return errors.Join(errs...)
}

func (e *Engine) stopPipeline() error {
	err := e.scheduler.Stop()

	e.mu.Lock()
	group, cancel := e.group, e.cancel
	e.group, e.cancel = nil, nil
	// Stop released the estimator; a restart needs BindEstimator.
	e.estimator = nil
	e.mu.Unlock()

	if group == nil {
		return err
	}
	cancel()
	gerr := group.Wait()
	// The dispatcher has returned; deliver whatever was detected last before
	// the sinks go away.
	e.dispatcher.Flush()
	if gerr != nil && !errors.Is(gerr, context.Canceled) {
		return errors.Join(err, gerr)
	}
	return err
}
