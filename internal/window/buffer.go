// SPDX-License-Identifier: MIT
/*
Package window implements the sliding analysis window that sits between the
audio callback and the pitch estimators.

The audio host delivers small fixed-size chunks (commonly 128 frames) while the
estimators want a much larger window (commonly 1024 samples). Buffer collects
chunks until the window is full and from then on slides it forward by exactly
the number of samples received, so the window always holds the most recent
samples in arrival order.

Thread Safety:
  - A Buffer is owned by a single ingest stream; it performs no locking.
  - Storage is allocated by Configure only; Ingest never allocates.
*/
package window

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidChunkSize is returned when a chunk is longer than the window.
	ErrInvalidChunkSize = errors.New("chunk longer than window")

	// ErrInvalidWindowSize is returned when configuring a non-positive window.
	ErrInvalidWindowSize = errors.New("window size must be positive")

	// ErrNotConfigured is returned by Ingest before Configure was called.
	ErrNotConfigured = errors.New("window buffer not configured")
)

// Buffer is a fixed-capacity sliding window of float32 samples.
type Buffer struct {
	samples []float32 // Window storage, chronological order.
	filled  int       // Number of valid samples, 0 <= filled <= len(samples).
}

// New returns a Buffer configured for windowSize samples.
func New(windowSize int) (*Buffer, error) {
	b := &Buffer{}
	if err := b.Configure(windowSize); err != nil {
		return nil, err
	}
	return b, nil
}

// Configure allocates storage for exactly windowSize samples and empties the
// window. Calling it again discards the previous contents.
func (b *Buffer) Configure(windowSize int) error {
	if windowSize <= 0 {
		return fmt.Errorf("%w, got %d", ErrInvalidWindowSize, windowSize)
	}
	b.samples = make([]float32, windowSize)
	b.filled = 0
	return nil
}

// Ingest adds a chunk to the window and reports whether a complete window is
// available for analysis after this call.
//
// While filling, samples are appended at the fill position. A chunk that
// crosses the fill boundary completes the window with the samples that fit
// and slides the remainder in, so nothing is dropped. Once full, every call
// discards the oldest len(chunk) samples, appends the chunk at the tail and
// reports true.
func (b *Buffer) Ingest(chunk []float32) (bool, error) {
	size := len(b.samples)
	if size == 0 {
		return false, ErrNotConfigured
	}
	if len(chunk) > size {
		return false, fmt.Errorf("%w: chunk %d, window %d", ErrInvalidChunkSize, len(chunk), size)
	}

	if b.filled < size {
		n := copy(b.samples[b.filled:], chunk)
		b.filled += n
		if b.filled < size {
			return false, nil
		}
		b.slide(chunk[n:])
		return true, nil
	}

	b.slide(chunk)
	return true, nil
}

// slide shifts the full window left by len(chunk) and appends chunk.
func (b *Buffer) slide(chunk []float32) {
	n := len(chunk)
	if n == 0 {
		return
	}
	keep := len(b.samples) - n
	copy(b.samples, b.samples[n:])
	copy(b.samples[keep:], chunk)
}

// Window returns the current window contents. The slice aliases the buffer
// storage and must not be modified or retained across Ingest calls. Contents
// are meaningful for analysis once Ingest has reported ready at least once.
func (b *Buffer) Window() []float32 {
	return b.samples
}

// Filled returns the number of valid samples held.
func (b *Buffer) Filled() int {
	return b.filled
}

// Size returns the configured window size.
func (b *Buffer) Size() int {
	return len(b.samples)
}

// Full reports whether the window has been completely filled.
func (b *Buffer) Full() bool {
	return len(b.samples) > 0 && b.filled == len(b.samples)
}

// Reset empties the window without reallocating.
func (b *Buffer) Reset() {
	clear(b.samples)
	b.filled = 0
}
