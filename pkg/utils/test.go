// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"sync"
)

// MockTransport implements the transport interface for testing.
type MockTransport struct {
	mu     sync.Mutex
	Sent   []any
	Closed bool
	Err    error // Returned by Send when set.
}

// Send records the message for later inspection instead of transmitting.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, data)
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *MockTransport) Messages() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.Sent...)
}

// GenerateComplexWave returns a 440 Hz fundamental with two harmonics, peak
// amplitude below 1.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// GenerateSineWave returns size samples of a sine at frequency with the given
// peak amplitude.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// GenerateRamp returns 1, 2, ..., size. Each sample equals its arrival index
// plus one, which makes window ordering easy to check.
func GenerateRamp(size int) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		buffer[i] = float32(i + 1)
	}
	return buffer
}

// Chunks splits signal into consecutive chunks of size n; the last chunk may
// be shorter.
func Chunks(signal []float32, n int) [][]float32 {
	if n <= 0 {
		return nil
	}
	out := make([][]float32, 0, (len(signal)+n-1)/n)
	for len(signal) > 0 {
		k := min(n, len(signal))
		out = append(out, signal[:k])
		signal = signal[k:]
	}
	return out
}
