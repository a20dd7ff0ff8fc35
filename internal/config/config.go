// SPDX-License-Identifier: MIT
package config

import (
	"path/filepath"
	"time"

	"pitchtrack/internal/analysis"
	"pitchtrack/internal/pitch"
)

// Core configuration constants that define the boundaries and defaults
// for the pitch tracker.
const (
	// Audio device defaults.
	DefaultDeviceID        = MinDeviceID // System default input device
	DefaultInputChannels   = 1           // Mono capture, channel 0 is analysed
	DefaultFramesPerBuffer = 128         // One analysis chunk per callback
	DefaultLowLatency      = true        // Pitch display favours latency
	DefaultSampleRate      = 44100       // CD-quality audio

	// Analysis defaults.
	DefaultWindowSize = 1024 // Samples per analysis window
	DefaultEstimator  = pitch.NameMcLeod
	DefaultMode       = ModeInline
	DefaultGateLevel  = 0.001 // Peak amplitude below which estimates are dropped

	// Recording defaults.
	DefaultFormat         = "wav"
	DefaultBitDepth       = 16
	DefaultOutputDir      = "./recordings"
	DefaultBufferDuration = 2 * time.Second // Recorder hand-off capacity

	// Transport defaults.
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 33 * time.Millisecond // ~30Hz
	DefaultWebSocketAddress = ":8080"

	// Hardware and processing limits.
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer (power of 2)
	MinWindowSize   = 4
	MaxWindowSize   = 1 << 16
)

// Analysis modes.
const (
	ModeInline = "inline" // Estimator runs on the audio callback.
	ModeWorker = "worker" // Estimator runs on a worker fed by a mailbox.
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"`         // Logging level ("debug", "info", "warn", "error").
	Command   string          `yaml:"command,omitempty"` // One-off command to execute instead of running the tracker ("list", "devices").
	TUIMode   bool            `yaml:"tui"`               // Show the live pitch monitor.
	Audio     AudioConfig     `yaml:"audio"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Recording RecordingConfig `yaml:"recording"`
	Transport TransportConfig `yaml:"transport"`
}

// AudioConfig holds settings related to audio capture.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for audio input (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per callback, the chunk size fed to the window.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio device.
	InputChannels   int     `yaml:"input_channels"`    // Channels opened on the device; only channel 0 is analysed.
}

// AnalysisConfig holds the sliding window and estimator settings.
type AnalysisConfig struct {
	WindowSize       int     `yaml:"window_size"`       // Samples per analysis window.
	Estimator        string  `yaml:"estimator"`         // "mcleod" or "yin".
	Mode             string  `yaml:"mode"`              // "inline" or "worker".
	PowerThreshold   float64 `yaml:"power_threshold"`   // Minimum window energy (sum of squares).
	ClarityThreshold float64 `yaml:"clarity_threshold"` // McLeod peak clarity.
	YinThreshold     float64 `yaml:"yin_threshold"`     // YIN absolute threshold.
	MinFrequency     float64 `yaml:"min_frequency"`     // Lowest reported pitch in Hz (0 = no limit).
	MaxFrequency     float64 `yaml:"max_frequency"`     // Highest reported pitch in Hz (0 = no limit).
	GateEnabled      bool    `yaml:"gate_enabled"`      // Drop estimates for windows quieter than GateThreshold.
	GateThreshold    float64 `yaml:"gate_threshold"`    // Peak amplitude in [0, 1].
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled        bool          `yaml:"enabled"`              // Enable audio recording to file.
	OutputDir      string        `yaml:"output_dir"`           // Directory to save recorded audio files.
	OutputFile     string        `yaml:"output_file"`          // File name; generated from the start time when empty.
	Format         string        `yaml:"format"`               // File format for recordings ("wav").
	BitDepth       int           `yaml:"bit_depth"`            // Bit depth for recorded audio (16).
	MaxDuration    int           `yaml:"max_duration_seconds"` // Maximum duration of a recording in seconds (0 for unlimited).
	BufferDuration time.Duration `yaml:"buffer_duration"`      // Audio held between the callback and the file writer.
}

// TransportConfig holds settings related to publishing pitch events.
type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Publish the latest pitch over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve pitch events on /ws.
	WebSocketAddress string        `yaml:"websocket_address"`  // Listen address for the websocket server.
	LogEvents        bool          `yaml:"log_events"`         // Log every pitch event at debug level.
}

// NewConfig returns a Config populated with the built-in defaults.
func NewConfig() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      DefaultLowLatency,
			InputChannels:   DefaultInputChannels,
		},
		Analysis: AnalysisConfig{
			WindowSize:       DefaultWindowSize,
			Estimator:        DefaultEstimator,
			Mode:             DefaultMode,
			PowerThreshold:   pitch.DefaultPowerThreshold,
			ClarityThreshold: pitch.DefaultClarityThreshold,
			YinThreshold:     pitch.DefaultYinThreshold,
			GateEnabled:      false,
			GateThreshold:    DefaultGateLevel,
		},
		Recording: RecordingConfig{
			Enabled:        false,
			OutputDir:      DefaultOutputDir,
			Format:         DefaultFormat,
			BitDepth:       DefaultBitDepth,
			MaxDuration:    0,
			BufferDuration: DefaultBufferDuration,
		},
		Transport: TransportConfig{
			UDPEnabled:       false,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
			WebSocketEnabled: false,
			WebSocketAddress: DefaultWebSocketAddress,
		},
	}
}

// Session returns the analysis session described by the configuration.
func (c *Config) Session() analysis.Session {
	return analysis.Session{
		SampleRate: int(c.Audio.SampleRate),
		WindowSize: c.Analysis.WindowSize,
	}
}

// PitchOptions returns the estimator thresholds.
func (c *Config) PitchOptions() pitch.Options {
	return pitch.Options{
		PowerThreshold:   c.Analysis.PowerThreshold,
		ClarityThreshold: c.Analysis.ClarityThreshold,
		YinThreshold:     c.Analysis.YinThreshold,
		MinFrequency:     c.Analysis.MinFrequency,
		MaxFrequency:     c.Analysis.MaxFrequency,
	}
}

// RecordingPath returns the file recordings are written to. An empty
// OutputFile produces recording-DD-MM-YYYY-HHMMSS.<format> stamped with now.
func (c *Config) RecordingPath(now time.Time) string {
	name := c.Recording.OutputFile
	if name == "" {
		name = "recording-" + now.UTC().Format("02-01-2006-150405") + "." + c.Recording.Format
	}
	if c.Recording.OutputDir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Recording.OutputDir, name)
}
