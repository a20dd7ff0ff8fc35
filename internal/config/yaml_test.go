// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func envMap(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	assert.Equal(t, DefaultWindowSize, cfg.Analysis.WindowSize)
	assert.Equal(t, DefaultEstimator, cfg.Analysis.Estimator)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_File(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: debug
audio:
  sample_rate: 48000
  frames_per_buffer: 256
analysis:
  window_size: 2048
  estimator: yin
  mode: worker
  gate_enabled: true
  gate_threshold: 0.01
transport:
  udp_enabled: true
  udp_send_interval: 50ms
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 48000.0, cfg.Audio.SampleRate)
	assert.Equal(t, 256, cfg.Audio.FramesPerBuffer)
	assert.Equal(t, DefaultInputChannels, cfg.Audio.InputChannels, "unset keys keep defaults")
	assert.Equal(t, "yin", cfg.Analysis.Estimator)
	assert.Equal(t, ModeWorker, cfg.Analysis.Mode)
	assert.True(t, cfg.Analysis.GateEnabled)
	assert.Equal(t, 50*time.Millisecond, cfg.Transport.UDPSendInterval)
	assert.Equal(t, DefaultUDPTargetAddress, cfg.Transport.UDPTargetAddress)

	session := cfg.Session()
	assert.Equal(t, 48000, session.SampleRate)
	assert.Equal(t, 2048, session.WindowSize)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, "analysis:\n  window_size: 2\n")
	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"device", func(c *Config) { c.Audio.InputDevice = -2 }},
		{"sample rate low", func(c *Config) { c.Audio.SampleRate = 4000 }},
		{"sample rate high", func(c *Config) { c.Audio.SampleRate = 384000 }},
		{"frames zero", func(c *Config) { c.Audio.FramesPerBuffer = 0 }},
		{"frames too large", func(c *Config) { c.Audio.FramesPerBuffer = MaxBufferFrames + 1 }},
		{"channels", func(c *Config) { c.Audio.InputChannels = 0 }},
		{"window too small", func(c *Config) { c.Analysis.WindowSize = 3 }},
		{"chunk exceeds window", func(c *Config) { c.Audio.FramesPerBuffer = 2048 }},
		{"estimator", func(c *Config) { c.Analysis.Estimator = "zcr" }},
		{"mode", func(c *Config) { c.Analysis.Mode = "async" }},
		{"clarity", func(c *Config) { c.Analysis.ClarityThreshold = 1.5 }},
		{"frequency bounds", func(c *Config) { c.Analysis.MinFrequency, c.Analysis.MaxFrequency = 1000, 100 }},
		{"gate", func(c *Config) { c.Analysis.GateThreshold = 2 }},
		{"recording format", func(c *Config) { c.Recording.Enabled, c.Recording.Format = true, "flac" }},
		{"recording depth", func(c *Config) { c.Recording.Enabled, c.Recording.BitDepth = true, 24 }},
		{"udp address", func(c *Config) { c.Transport.UDPEnabled, c.Transport.UDPTargetAddress = true, "localhost" }},
		{"udp interval", func(c *Config) { c.Transport.UDPEnabled, c.Transport.UDPSendInterval = true, 0 }},
		{"websocket address", func(c *Config) { c.Transport.WebSocketEnabled, c.Transport.WebSocketAddress = true, "" }},
	}

	require.NoError(t, NewConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	// Non power-of-two windows are allowed.
	cfg := NewConfig()
	cfg.Analysis.WindowSize = 1000
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := NewConfig()
	err := cfg.applyEnvOverrides(envMap(map[string]string{
		"PITCHTRACK_LOG_LEVEL":         "warn",
		"PITCHTRACK_DEVICE":            "3",
		"PITCHTRACK_SAMPLE_RATE":       "48000",
		"PITCHTRACK_WINDOW_SIZE":       "2048",
		"PITCHTRACK_ESTIMATOR":         "yin",
		"PITCHTRACK_MODE":              "worker",
		"PITCHTRACK_UDP_ENABLED":       "true",
		"PITCHTRACK_UDP_SEND_INTERVAL": "10ms",
		"PITCHTRACK_WS_ENABLED":        "1",
	}))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 3, cfg.Audio.InputDevice)
	assert.Equal(t, 48000.0, cfg.Audio.SampleRate)
	assert.Equal(t, 2048, cfg.Analysis.WindowSize)
	assert.Equal(t, "yin", cfg.Analysis.Estimator)
	assert.Equal(t, ModeWorker, cfg.Analysis.Mode)
	assert.True(t, cfg.Transport.UDPEnabled)
	assert.Equal(t, 10*time.Millisecond, cfg.Transport.UDPSendInterval)
	assert.True(t, cfg.Transport.WebSocketEnabled)
}

func TestApplyEnvOverrides_Malformed(t *testing.T) {
	cfg := NewConfig()
	err := cfg.applyEnvOverrides(envMap(map[string]string{
		"PITCHTRACK_WINDOW_SIZE": "big",
		"PITCHTRACK_UDP_ENABLED": "maybe",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PITCHTRACK_WINDOW_SIZE")
	assert.Contains(t, err.Error(), "PITCHTRACK_UDP_ENABLED")
	assert.Equal(t, DefaultWindowSize, cfg.Analysis.WindowSize)
}

func TestRecordingPath(t *testing.T) {
	cfg := NewConfig()
	now := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	assert.Equal(t, filepath.Join(DefaultOutputDir, "recording-14-03-2025-150926.wav"), cfg.RecordingPath(now))

	cfg.Recording.OutputFile = "take.wav"
	cfg.Recording.OutputDir = ""
	assert.Equal(t, "take.wav", cfg.RecordingPath(now))
}

func TestPitchOptions(t *testing.T) {
	cfg := NewConfig()
	cfg.Analysis.MinFrequency = 50
	opts := cfg.PitchOptions()
	assert.Equal(t, cfg.Analysis.ClarityThreshold, opts.ClarityThreshold)
	assert.Equal(t, 50.0, opts.MinFrequency)
}
