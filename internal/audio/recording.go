// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/smallnest/ringbuffer"

	applog "pitchtrack/internal/log"
)

const (
	bytesPerSample = 2 // 16-bit PCM
	drainInterval  = 20 * time.Millisecond
	drainChunks    = 4 // Chunks copied out of the ring per locked read.
)

// ErrAlreadyRecording is returned by StartRecording while a recording runs.
var ErrAlreadyRecording = errors.New("already recording")

// Recorder writes the analysed channel to a 16-bit mono WAV file. The audio
// callback hands samples over through a ring buffer and never touches the
// file; a drain goroutine encodes them. A chunk that does not fit, or that
// arrives while the drain holds the ring, is dropped (or truncated) and
// counted as an overrun.
type Recorder struct {
	path       string
	sampleRate int

	ring     *ringbuffer.RingBuffer
	pcm      []byte // Callback-side conversion buffer, one chunk.
	limit    uint64 // Maximum samples written, 0 = unlimited.
	accepted atomic.Uint64
	overruns atomic.Uint64

	file    *os.File
	encoder *wav.Encoder
	raw     []byte           // Drain-side read buffer.
	samples *audio.IntBuffer // Drain-side encoder input.
	wrote   bool

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	err      error // Set by Run before done is closed.
}

// NewRecorder creates path and prepares a recorder for chunks of up to
// chunkSize samples. buffer is the amount of audio the ring buffer holds.
func NewRecorder(path string, sampleRate, chunkSize int, buffer time.Duration, maxDuration time.Duration) (*Recorder, error) {
	if sampleRate <= 0 || chunkSize <= 0 {
		return nil, fmt.Errorf("invalid recorder format: %d Hz, %d samples per chunk", sampleRate, chunkSize)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create recording directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	ringSamples := max(int(buffer.Seconds()*float64(sampleRate)), 4*chunkSize)
	readSamples := min(ringSamples, drainChunks*chunkSize)
	r := &Recorder{
		path:       path,
		sampleRate: sampleRate,
		ring:       ringbuffer.New(ringSamples * bytesPerSample),
		pcm:        make([]byte, chunkSize*bytesPerSample),
		file:       file,
		encoder:    wav.NewEncoder(file, sampleRate, 16, 1, 1),
		raw:        make([]byte, readSamples*bytesPerSample),
		samples: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			Data:           make([]int, readSamples),
			SourceBitDepth: 16,
		},
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if maxDuration > 0 {
		r.limit = uint64(maxDuration.Seconds() * float64(sampleRate))
	}
	return r, nil
}

// Path returns the file being written.
func (r *Recorder) Path() string {
	return r.path
}

// Write queues samples for the file. It is called from the audio callback:
// no allocation, no file I/O and no waiting on the ring buffer lock. Samples
// that do not fit are dropped.
func (r *Recorder) Write(samples []float32) {
	if r.limit > 0 && r.accepted.Load() >= r.limit {
		return
	}
	n := len(samples)
	if n*bytesPerSample > len(r.pcm) {
		n = len(r.pcm) / bytesPerSample
	}
	pcm := r.pcm[:n*bytesPerSample]
	for i, s := range samples[:n] {
		binary.LittleEndian.PutUint16(pcm[i*bytesPerSample:], uint16(floatToPCM16(s)))
	}

	// TryWrite never blocks. It fails with ErrAcquireLock while the drain
	// reads and writes only the free prefix when the ring is nearly full;
	// the ring size is even, so a short write still ends on a sample.
	written, err := r.ring.TryWrite(pcm)
	if written > 0 {
		r.accepted.Add(uint64(written / bytesPerSample))
	}
	if err != nil || written < len(pcm) {
		r.overruns.Add(1)
	}
}

// Overruns returns the number of chunks dropped or truncated because the
// drain fell behind or held the ring.
func (r *Recorder) Overruns() uint64 {
	return r.overruns.Load()
}

// Samples returns the number of samples accepted for the file.
func (r *Recorder) Samples() uint64 {
	return r.accepted.Load()
}

// Run drains the ring buffer into the file until ctx is cancelled or Stop is
// called, then flushes what is left and closes the file.
func (r *Recorder) Run(ctx context.Context) error {
	defer close(r.done)

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.err = r.finish()
			return r.err
		case <-r.stop:
			r.err = r.finish()
			return r.err
		case <-ticker.C:
			if err := r.drain(); err != nil {
				applog.Errorf("Recorder: error writing %s: %v", r.path, err)
			}
		}
	}
}

// Stop ends the recording and waits for the file to be closed. Run must have
// been started.
func (r *Recorder) Stop() error {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
	return r.err
}

// drain encodes everything currently queued, at most drainChunks chunks per
// read so the ring lock is held briefly.
func (r *Recorder) drain() error {
	for {
		n, err := r.ring.Read(r.raw)
		if n == 0 {
			if err == nil || errors.Is(err, ringbuffer.ErrIsEmpty) {
				return nil
			}
			return err
		}
		count := n / bytesPerSample
		for i := range count {
			r.samples.Data[i] = int(int16(binary.LittleEndian.Uint16(r.raw[i*bytesPerSample:])))
		}
		buf := *r.samples
		buf.Data = r.samples.Data[:count]
		if err := r.encoder.Write(&buf); err != nil {
			return err
		}
		r.wrote = true
	}
}

func (r *Recorder) finish() error {
	err := r.drain()
	if err == nil && !r.wrote {
		// An empty write still emits the WAV header.
		empty := *r.samples
		empty.Data = r.samples.Data[:0]
		err = r.encoder.Write(&empty)
	}
	if cerr := r.encoder.Close(); err == nil {
		err = cerr
	}
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	applog.Infof("Recorder: saved %d samples to %s (%d overruns)", r.accepted.Load(), r.path, r.overruns.Load())
	return err
}

// floatToPCM16 converts a sample in [-1, 1] to 16-bit PCM, clipping outside.
func floatToPCM16(s float32) int16 {
	switch {
	case s != s: // NaN
		return 0
	case s > 1:
		s = 1
	case s < -1:
		s = -1
	}
	return int16(s * 32767)
}
