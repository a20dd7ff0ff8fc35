// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pitchtrack/internal/log"
	"pitchtrack/internal/pitch"
	"pitchtrack/pkg/bitint"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PITCHTRACK_"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		for _, candidate := range []string{"config.yaml", "pitchtrack.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		log.Debugf("configuration: loaded %s", path)
	}

	// Apply environment variable overrides AFTER loading from file.
	if err := cfg.applyEnvOverrides(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the tracker cannot run with.
func (c *Config) Validate() error {
	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("%w: log_level '%s' is not one of debug, info, warn, error", ErrInvalidConfig, c.LogLevel)
	}

	// Audio
	a := c.Audio
	if a.InputDevice < MinDeviceID {
		return fmt.Errorf("%w: audio.input_device must be >= %d", ErrInvalidConfig, MinDeviceID)
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: audio.sample_rate %.0f outside [%d, %d]", ErrInvalidConfig, a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("%w: audio.frames_per_buffer %d outside [1, %d]", ErrInvalidConfig, a.FramesPerBuffer, MaxBufferFrames)
	}
	if a.InputChannels < 1 {
		return fmt.Errorf("%w: audio.input_channels must be at least 1", ErrInvalidConfig)
	}

	// Analysis
	an := c.Analysis
	if an.WindowSize < MinWindowSize || an.WindowSize > MaxWindowSize {
		return fmt.Errorf("%w: analysis.window_size %d outside [%d, %d]", ErrInvalidConfig, an.WindowSize, MinWindowSize, MaxWindowSize)
	}
	if a.FramesPerBuffer > an.WindowSize {
		return fmt.Errorf("%w: audio.frames_per_buffer %d exceeds analysis.window_size %d", ErrInvalidConfig, a.FramesPerBuffer, an.WindowSize)
	}
	if !bitint.IsPowerOfTwo(an.WindowSize) {
		log.Debugf("configuration: window size %d is not a power of two, FFT input is padded", an.WindowSize)
	}
	if !slices.Contains(pitch.Names(), strings.ToLower(an.Estimator)) {
		return fmt.Errorf("%w: analysis.estimator '%s' is not one of %s", ErrInvalidConfig, an.Estimator, strings.Join(pitch.Names(), ", "))
	}
	if an.Mode != ModeInline && an.Mode != ModeWorker {
		return fmt.Errorf("%w: analysis.mode '%s' is not one of %s, %s", ErrInvalidConfig, an.Mode, ModeInline, ModeWorker)
	}
	if an.PowerThreshold < 0 || an.ClarityThreshold < 0 || an.ClarityThreshold > 1 || an.YinThreshold < 0 || an.YinThreshold > 1 {
		return fmt.Errorf("%w: analysis thresholds out of range", ErrInvalidConfig)
	}
	if an.MinFrequency < 0 || an.MaxFrequency < 0 || (an.MaxFrequency > 0 && an.MinFrequency > an.MaxFrequency) {
		return fmt.Errorf("%w: analysis.min_frequency/max_frequency out of range", ErrInvalidConfig)
	}
	if an.GateThreshold < 0 || an.GateThreshold > 1 {
		return fmt.Errorf("%w: analysis.gate_threshold must be within [0, 1]", ErrInvalidConfig)
	}

	// Recording
	if r := c.Recording; r.Enabled {
		if r.Format != DefaultFormat {
			return fmt.Errorf("%w: recording.format '%s' unsupported, only wav", ErrInvalidConfig, r.Format)
		}
		if r.BitDepth != DefaultBitDepth {
			return fmt.Errorf("%w: recording.bit_depth %d unsupported, only 16", ErrInvalidConfig, r.BitDepth)
		}
		if r.BufferDuration <= 0 {
			return fmt.Errorf("%w: recording.buffer_duration must be positive", ErrInvalidConfig)
		}
		if r.MaxDuration < 0 {
			return fmt.Errorf("%w: recording.max_duration_seconds must not be negative", ErrInvalidConfig)
		}
	}

	// Transport
	if t := c.Transport; t.UDPEnabled {
		if t.UDPTargetAddress == "" {
			return fmt.Errorf("%w: transport.udp_target_address must be set when UDP is enabled", ErrInvalidConfig)
		}
		if !strings.Contains(t.UDPTargetAddress, ":") {
			return fmt.Errorf("%w: transport.udp_target_address '%s' appears invalid (missing port?)", ErrInvalidConfig, t.UDPTargetAddress)
		}
		if t.UDPSendInterval <= 0 {
			return fmt.Errorf("%w: transport.udp_send_interval must be positive when UDP is enabled", ErrInvalidConfig)
		}
	}
	if t := c.Transport; t.WebSocketEnabled && t.WebSocketAddress == "" {
		return fmt.Errorf("%w: transport.websocket_address must be set when the websocket is enabled", ErrInvalidConfig)
	}

	return nil
}

// lookupFunc matches os.LookupEnv.
type lookupFunc func(key string) (string, bool)

// applyEnvOverrides applies PITCHTRACK_* variables on top of the current
// values. Malformed values are reported rather than ignored.
func (c *Config) applyEnvOverrides(lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if val, ok := lookup(EnvPrefix + name); ok {
			*dst = val
			log.Debugf("configuration: overriding %s from env: %s", name, val)
		}
	}
	var errs []error
	parse := func(name string, set func(string) error) {
		if val, ok := lookup(EnvPrefix + name); ok {
			if err := set(val); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			log.Debugf("configuration: overriding %s from env: %s", name, val)
		}
	}
	boolVar := func(dst *bool) func(string) error {
		return func(s string) error {
			v, err := strconv.ParseBool(s)
			if err == nil {
				*dst = v
			}
			return err
		}
	}
	intVar := func(dst *int) func(string) error {
		return func(s string) error {
			v, err := strconv.Atoi(s)
			if err == nil {
				*dst = v
			}
			return err
		}
	}
	floatVar := func(dst *float64) func(string) error {
		return func(s string) error {
			v, err := strconv.ParseFloat(s, 64)
			if err == nil {
				*dst = v
			}
			return err
		}
	}
	durVar := func(dst *time.Duration) func(string) error {
		return func(s string) error {
			v, err := time.ParseDuration(s)
			if err == nil {
				*dst = v
			}
			return err
		}
	}

	str("LOG_LEVEL", &c.LogLevel)

	parse("DEVICE", intVar(&c.Audio.InputDevice))
	parse("SAMPLE_RATE", floatVar(&c.Audio.SampleRate))
	parse("FRAMES_PER_BUFFER", intVar(&c.Audio.FramesPerBuffer))
	parse("CHANNELS", intVar(&c.Audio.InputChannels))

	parse("WINDOW_SIZE", intVar(&c.Analysis.WindowSize))
	str("ESTIMATOR", &c.Analysis.Estimator)
	str("MODE", &c.Analysis.Mode)
	parse("GATE_ENABLED", boolVar(&c.Analysis.GateEnabled))

	parse("RECORD", boolVar(&c.Recording.Enabled))
	str("OUTPUT_DIR", &c.Recording.OutputDir)

	parse("UDP_ENABLED", boolVar(&c.Transport.UDPEnabled))
	str("UDP_TARGET_ADDRESS", &c.Transport.UDPTargetAddress)
	parse("UDP_SEND_INTERVAL", durVar(&c.Transport.UDPSendInterval))
	parse("WS_ENABLED", boolVar(&c.Transport.WebSocketEnabled))
	str("WS_ADDRESS", &c.Transport.WebSocketAddress)

	return errors.Join(errs...)
}
