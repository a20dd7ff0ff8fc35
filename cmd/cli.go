// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pitchtrack/internal/config"
	"pitchtrack/internal/pitch"
	"pitchtrack/pkg/build"
)

// Commands reported in Config.Command.
const (
	CommandRun     = ""        // Run the tracker.
	CommandList    = "list"    // Print the audio devices.
	CommandDevices = "devices" // Interactive device browser.
	CommandExit    = "exit"    // Help or version was printed; nothing to run.
)

// flagValues receives the raw command line values. Only flags the user set
// are copied onto the loaded configuration.
type flagValues struct {
	configPath      string
	device          int
	channels        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	windowSize      int
	estimator       string
	mode            string
	gate            float64
	record          bool
	output          string
	maxDuration     int
	verbose         bool
	logLevel        string
	tui             bool
	udp             string
	ws              string
}

// ParseArgs parses args (without the program name) and returns the resolved
// configuration: defaults, then the YAML file, then PITCHTRACK_* variables,
// then flags. Help and version output go to stdout.
func ParseArgs(args []string) (*config.Config, error) {
	return parseArgs(args, os.Stdout)
}

func parseArgs(args []string, out io.Writer) (*config.Config, error) {
	buildInfo := build.GetBuildFlags()
	defaults := config.NewConfig()

	var (
		flags   flagValues
		command = CommandExit
	)

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			command = CommandRun
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddCommand(&cobra.Command{
		Use:   CommandList,
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			command = CommandList
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   CommandDevices,
		Short: "Browse audio devices and pick a capture setup",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			command = CommandDevices
		},
	})

	fs := rootCmd.PersistentFlags()
	fs.StringVar(&flags.configPath, "config", "",
		"Configuration file (default: ./config.yaml or ./pitchtrack.yaml when present)")

	// Audio Device Configuration
	fs.IntVarP(&flags.device, "device", "d", defaults.Audio.InputDevice,
		"Specify input device ID. Use 'list' command to see available devices.")
	fs.IntVarP(&flags.channels, "channels", "c", defaults.Audio.InputChannels,
		"Number of channels to capture; channel 0 is analysed")
	fs.Float64VarP(&flags.sampleRate, "sample-rate", "s", defaults.Audio.SampleRate,
		"Sample rate, measured in Hertz (Hz)")
	fs.IntVarP(&flags.framesPerBuffer, "frames-per-buffer", "b", defaults.Audio.FramesPerBuffer,
		"The number of frames per buffer (chunk size, affects latency)")
	fs.BoolVarP(&flags.lowLatency, "low-latency", "l", defaults.Audio.LowLatency,
		"Use low latency mode for real-time processing")

	// Analysis Configuration
	fs.IntVarP(&flags.windowSize, "window-size", "w", defaults.Analysis.WindowSize,
		"Samples per analysis window")
	fs.StringVarP(&flags.estimator, "estimator", "e", defaults.Analysis.Estimator,
		"Pitch estimator: "+strings.Join(pitch.Names(), ", "))
	fs.StringVarP(&flags.mode, "mode", "m", defaults.Analysis.Mode,
		"Where the estimator runs: inline (audio callback) or worker")
	fs.Float64Var(&flags.gate, "gate", defaults.Analysis.GateThreshold,
		"Enable the event gate with this peak amplitude threshold (0.0-1.0)")

	// Recording Configuration
	fs.BoolVarP(&flags.record, "record", "r", defaults.Recording.Enabled,
		"Record the analysed channel to a WAV file")
	fs.StringVarP(&flags.output, "output", "o", defaults.Recording.OutputFile,
		"Output file name. Default is recording-DD-MM-YYYY-HHMMSS.wav")
	fs.IntVar(&flags.maxDuration, "max-duration", defaults.Recording.MaxDuration,
		"Stop recording after this many seconds (0 = unlimited)")

	// Transport Configuration
	fs.StringVar(&flags.udp, "udp", "",
		"Publish pitch packets over UDP to host:port")
	fs.StringVar(&flags.ws, "ws", "",
		"Serve pitch events over WebSocket on this address (e.g. :8080)")

	// UI and Debug Configuration
	fs.BoolVar(&flags.tui, "tui", defaults.TUIMode,
		"Show the live pitch monitor")
	fs.BoolVarP(&flags.verbose, "verbose", "v", false,
		"Show verbose output (same as --log-level debug)")
	fs.StringVar(&flags.logLevel, "log-level", defaults.LogLevel,
		"Log level: debug, info, warn, error")

	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	if command == CommandExit {
		return &config.Config{Command: CommandExit}, nil
	}

	options, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(options, &flags, fs.Changed)
	options.Command = command

	if err := options.Validate(); err != nil {
		return nil, err
	}
	return options, nil
}

// applyFlags copies the flags the user set onto cfg.
func applyFlags(cfg *config.Config, f *flagValues, changed func(name string) bool) {
	if changed("device") {
		cfg.Audio.InputDevice = f.device
	}
	if changed("channels") {
		cfg.Audio.InputChannels = f.channels
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = f.framesPerBuffer
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = f.lowLatency
	}
	if changed("window-size") {
		cfg.Analysis.WindowSize = f.windowSize
	}
	if changed("estimator") {
		cfg.Analysis.Estimator = f.estimator
	}
	if changed("mode") {
		cfg.Analysis.Mode = strings.ToLower(f.mode)
	}
	if changed("gate") {
		cfg.Analysis.GateEnabled = true
		cfg.Analysis.GateThreshold = f.gate
	}
	if changed("record") {
		cfg.Recording.Enabled = f.record
	}
	if changed("output") {
		cfg.Recording.OutputFile = f.output
		cfg.Recording.Enabled = true
	}
	if changed("max-duration") {
		cfg.Recording.MaxDuration = f.maxDuration
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = true
		cfg.Transport.UDPTargetAddress = f.udp
	}
	if changed("ws") {
		cfg.Transport.WebSocketEnabled = true
		cfg.Transport.WebSocketAddress = f.ws
	}
	if changed("tui") {
		cfg.TUIMode = f.tui
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("verbose") && f.verbose {
		cfg.LogLevel = "debug"
	}
}

// Usage returns a short hint for running the tracker with a device selection.
func Usage(flags string) string {
	return fmt.Sprintf("%s %s", build.GetBuildFlags().Name, flags)
}
