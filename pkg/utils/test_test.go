// SPDX-License-Identifier: MIT
package utils

import (
	"errors"
	"math"
	"testing"
)

func TestMockTransport(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{"Nil", nil},
		{"String", "pitch"},
		{"Map", map[string]any{"pitch": 440.0}},
	}

	mt := &MockTransport{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := mt.Send(tt.input); err != nil {
				t.Errorf("MockTransport.Send() error = %v", err)
			}
		})
	}

	if got := len(mt.Messages()); got != len(tests) {
		t.Errorf("MockTransport recorded %d messages, want %d", got, len(tests))
	}

	mt.Err = errors.New("boom")
	if err := mt.Send("x"); err == nil {
		t.Errorf("MockTransport.Send() expected configured error")
	}

	mt.Close()
	if !mt.Closed {
		t.Errorf("MockTransport.Close() did not mark closed")
	}
}

func TestGenerateComplexWave(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		sampleRate float64
	}{
		{"Standard", 1024, 44100},
		{"Small", 16, 8000},
		{"Large", 8192, 96000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GenerateComplexWave(tt.size, tt.sampleRate)

			if len(result) != tt.size {
				t.Errorf("GenerateComplexWave() buffer size = %d, want %d",
					len(result), tt.size)
			}

			hasNonZero := false
			for _, v := range result {
				if v > 1 || v < -1 {
					t.Fatalf("GenerateComplexWave() sample %f out of range", v)
				}
				if v != 0 {
					hasNonZero = true
				}
			}
			if !hasNonZero {
				t.Errorf("GenerateComplexWave() produced all zeros")
			}
		})
	}
}

func TestGenerateSineWave(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		sampleRate float64
		frequency  float64
	}{
		{"A4 Note", 1024, 44100, 440.0},
		{"Middle C", 1024, 44100, 261.63},
		{"High Sample Rate", 1024, 192000, 440.0},
		{"Low Sample Rate", 1024, 8000, 440.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GenerateSineWave(tt.size, tt.sampleRate, tt.frequency, 0.5)

			if len(result) != tt.size {
				t.Errorf("GenerateSineWave() buffer size = %d, want %d",
					len(result), tt.size)
			}

			// Two zero crossings per cycle.
			samplesPerCycle := tt.sampleRate / tt.frequency
			crossCount := 0
			for i := 1; i < tt.size; i++ {
				if (result[i-1] < 0 && result[i] >= 0) ||
					(result[i-1] >= 0 && result[i] < 0) {
					crossCount++
				}
			}
			expectedCrossings := float64(tt.size) / (samplesPerCycle / 2)
			tolerance := 0.2 * expectedCrossings

			if math.Abs(float64(crossCount)-expectedCrossings) > tolerance {
				t.Errorf("GenerateSineWave() zero crossings = %d, expected approximately %.1f±%.1f",
					crossCount, expectedCrossings, tolerance)
			}
		})
	}
}

func TestChunks(t *testing.T) {
	ramp := GenerateRamp(10)

	chunks := Chunks(ramp, 4)
	if len(chunks) != 3 {
		t.Fatalf("Chunks() returned %d chunks, want 3", len(chunks))
	}
	if len(chunks[2]) != 2 || chunks[2][1] != 10 {
		t.Errorf("Chunks() last chunk = %v, want [9 10]", chunks[2])
	}
	if Chunks(ramp, 0) != nil {
		t.Errorf("Chunks() with zero size should return nil")
	}
}
