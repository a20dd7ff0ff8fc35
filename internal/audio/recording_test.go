// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pitchtrack/pkg/utils"
)

// readWAV decodes a mono recording and returns its format and samples.
func readWAV(t *testing.T, path string) (*wav.Decoder, []int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	d := wav.NewDecoder(f)
	require.True(t, d.IsValidFile(), "invalid WAV file %s", path)
	buf, err := d.FullPCMBuffer()
	require.NoError(t, err)
	return d, buf.Data
}

// runRecorder drains rec in the background until Stop.
func runRecorder(t *testing.T, rec *Recorder) {
	t.Helper()
	go func() { _ = rec.Run(context.Background()) }()
}

func TestRecorderWritesWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.wav")
	rec, err := NewRecorder(path, testSampleRate, testFrameSize, time.Second, 0)
	require.NoError(t, err)
	assert.Equal(t, path, rec.Path())
	runRecorder(t, rec)

	signal := utils.GenerateSineWave(testFrameSize*8, testSampleRate, 440, 0.5)
	for _, chunk := range utils.Chunks(signal, testFrameSize) {
		rec.Write(chunk)
	}
	require.NoError(t, rec.Stop())
	require.NoError(t, rec.Stop(), "Stop is idempotent")

	assert.EqualValues(t, len(signal), rec.Samples())
	assert.Zero(t, rec.Overruns())

	d, data := readWAV(t, path)
	assert.EqualValues(t, 1, d.NumChans)
	assert.EqualValues(t, testSampleRate, d.SampleRate)
	assert.EqualValues(t, 16, d.BitDepth)
	want := make([]int, len(signal))
	for i, s := range signal {
		want[i] = int(floatToPCM16(s))
	}
	assert.Equal(t, want, data)
}

func TestRecorderEmptyRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "empty.wav")
	rec, err := NewRecorder(path, testSampleRate, testFrameSize, time.Second, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Run(ctx))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	d := wav.NewDecoder(f)
	assert.True(t, d.IsValidFile())
	assert.EqualValues(t, 1, d.NumChans)
}

func TestRecorderOverrun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrun.wav")
	// Smallest ring: four chunks.
	rec, err := NewRecorder(path, testSampleRate, testFrameSize, 0, 0)
	require.NoError(t, err)

	chunk := utils.GenerateSineWave(testFrameSize, testSampleRate, 440, 0.5)
	for range 10 {
		rec.Write(chunk)
	}
	assert.EqualValues(t, 4*testFrameSize, rec.Samples())
	assert.EqualValues(t, 6, rec.Overruns())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Run(ctx))

	_, data := readWAV(t, path)
	assert.Len(t, data, 4*testFrameSize)
}

func TestRecorderTruncatesChunkAtRingEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "truncated.wav")
	// Ring of 512 samples; 100-sample chunks do not divide it.
	rec, err := NewRecorder(path, testSampleRate, testFrameSize, 0, 0)
	require.NoError(t, err)

	signal := utils.GenerateRamp(700)
	for i := range signal {
		signal[i] /= 1000
	}
	for _, chunk := range utils.Chunks(signal, 100) {
		rec.Write(chunk)
	}
	// Five whole chunks, 12 samples of the sixth, the seventh dropped.
	assert.EqualValues(t, 4*testFrameSize, rec.Samples())
	assert.EqualValues(t, 2, rec.Overruns())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Run(ctx))

	_, data := readWAV(t, path)
	want := make([]int, 4*testFrameSize)
	for i := range want {
		want[i] = int(floatToPCM16(signal[i]))
	}
	assert.Equal(t, want, data)
}

func TestRecorderDrainsInBoundedReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bounded.wav")
	rec, err := NewRecorder(path, testSampleRate, testFrameSize, time.Second, 0)
	require.NoError(t, err)
	assert.Len(t, rec.raw, drainChunks*testFrameSize*bytesPerSample)

	signal := utils.GenerateSineWave(testFrameSize*40, testSampleRate, 440, 0.5)
	for _, chunk := range utils.Chunks(signal, testFrameSize) {
		rec.Write(chunk)
	}
	require.Zero(t, rec.Overruns())

	require.NoError(t, rec.drain())
	assert.True(t, rec.ring.IsEmpty())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Run(ctx))

	_, data := readWAV(t, path)
	assert.Len(t, data, len(signal))
}

func TestRecorderConcurrentWriteAndDrain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.wav")
	rec, err := NewRecorder(path, testSampleRate, testFrameSize, time.Second, 0)
	require.NoError(t, err)
	runRecorder(t, rec)

	chunk := utils.GenerateSineWave(testFrameSize, testSampleRate, 440, 0.5)
	for i := range 300 {
		rec.Write(chunk)
		if i%10 == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	require.NoError(t, rec.Stop())

	// Whatever the callback side accepted is exactly what reached the file.
	_, data := readWAV(t, path)
	assert.EqualValues(t, rec.Samples(), len(data))
	assert.EqualValues(t, 300*testFrameSize, rec.Samples()+rec.Overruns()*testFrameSize)
}

func TestRecorderMaxDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limited.wav")
	// 10 ms at 44.1 kHz is 441 samples: four chunks of 128 are accepted.
	rec, err := NewRecorder(path, testSampleRate, testFrameSize, time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	runRecorder(t, rec)

	chunk := utils.GenerateSineWave(testFrameSize, testSampleRate, 440, 0.5)
	for range 20 {
		rec.Write(chunk)
	}
	require.NoError(t, rec.Stop())

	assert.EqualValues(t, 4*testFrameSize, rec.Samples())
	assert.Zero(t, rec.Overruns())
}

func TestRecorderErrorCases(t *testing.T) {
	tests := []struct {
		desc       string
		path       string
		sampleRate int
		chunkSize  int
	}{
		{"Invalid sample rate", filepath.Join(t.TempDir(), "a.wav"), 0, testFrameSize},
		{"Invalid chunk size", filepath.Join(t.TempDir(), "b.wav"), testSampleRate, 0},
		{"Path is a directory", t.TempDir(), testSampleRate, testFrameSize},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, err := NewRecorder(tt.path, tt.sampleRate, tt.chunkSize, time.Second, 0)
			assert.Error(t, err)
		})
	}
}

func TestFloatToPCM16(t *testing.T) {
	nan := float32(0)
	nan = nan / nan

	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32767},
		{0.5, 16383},
		{2, 32767},
		{-3, -32767},
		{nan, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, floatToPCM16(tt.in), "input %v", tt.in)
	}
}

func TestRecordingNoAllocsHotPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alloc.wav")
	rec, err := NewRecorder(path, testSampleRate, testFrameSize, time.Second, 0)
	require.NoError(t, err)
	runRecorder(t, rec)
	defer rec.Stop()

	chunk := testBuffer[:testFrameSize]
	allocs := testing.AllocsPerRun(100, func() {
		rec.Write(chunk)
	})
	if allocs > 0 {
		t.Errorf("Recording hot path allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func BenchmarkRecordingProcessHotPath(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench_process.wav")
	rec, err := NewRecorder(path, testSampleRate, testFrameSize, time.Second, 0)
	if err != nil {
		b.Fatal(err)
	}
	go func() { _ = rec.Run(context.Background()) }()
	defer rec.Stop()

	chunk := testBuffer[:testFrameSize]
	b.ReportAllocs()
	b.ResetTimer()

	for b.Loop() {
		rec.Write(chunk)
	}
}
