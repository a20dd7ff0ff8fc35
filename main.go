// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"pitchtrack/cmd"
	"pitchtrack/internal/analysis"
	"pitchtrack/internal/audio"
	"pitchtrack/internal/config"
	applog "pitchtrack/internal/log"
	"pitchtrack/internal/pitch"
	"pitchtrack/internal/transport"
	"pitchtrack/internal/transport/udp"
	"pitchtrack/internal/tui"
	"pitchtrack/pkg/build"
)

// main is the entry point for the pitch tracker.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and configuration
//   - Configure logging and runtime settings
//   - Initialize PortAudio
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Build the estimator and the event sinks
//   - Start the audio engine and its input stream
//   - Start recording and transports if enabled
//   - Run the pitch monitor or wait for a signal
//
// 3. Shutdown Phase (Cold Path):
//   - Stop recording if active
//   - Close the engine, transports and PortAudio
func main() {
	if err := run(os.Args[1:]); err != nil {
		applog.Errorf("%v", err)
		_ = applog.Sync()
		os.Exit(1)
	}
}

func run(args []string) error {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds carry no ldflags and keep the default build info.
	if err := build.Initialize(); err != nil {
		applog.Debugf("build: %v, using development build info", err)
	}

	cfg, err := cmd.ParseArgs(args)
	if err != nil {
		return err
	}
	if cfg.Command == cmd.CommandExit {
		return nil
	}

	level, _ := applog.ParseLevel(cfg.LogLevel)
	applog.SetLevel(level)
	defer applog.Sync()

	// The monitor owns the terminal; logs go to a file instead.
	if cfg.TUIMode || cfg.Command == cmd.CommandDevices {
		logFile, err := os.Create(filepath.Join(os.TempDir(), "pitchtrack.log"))
		if err != nil {
			return err
		}
		defer logFile.Close()
		applog.SetOutput(logFile)
	}

	// Limit OS threads for real-time audio processing:
	// - One thread dedicated to the audio callback (time-critical)
	// - One thread for the estimator in worker mode
	// - One thread for UI and I/O operations
	procs := 2
	if cfg.Analysis.Mode == config.ModeWorker {
		procs = 3
	}
	runtime.GOMAXPROCS(procs)

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	// Handle one-off commands that don't require the audio engine.
	if cfg.Command != cmd.CommandRun {
		return executeCommand(cfg.Command)
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := cfg.Session()
	newEstimator := func(name string) (analysis.Estimator, error) {
		return pitch.New(name, session.SampleRate, session.WindowSize, cfg.PitchOptions())
	}
	est, err := newEstimator(cfg.Analysis.Estimator)
	if err != nil {
		return err
	}

	var (
		sinks       []analysis.Sink
		transports  []transport.Transport
		wsTransport *transport.WebSocketTransport
		events      tui.EventChannel
	)
	if cfg.Transport.LogEvents {
		transports = append(transports, transport.NewLoggingTransport())
	}
	if cfg.Transport.WebSocketEnabled {
		wsTransport = transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress)
		transports = append(transports, wsTransport)
	}
	if len(transports) > 0 {
		eventSink := transport.NewEventSink(transports...)
		defer eventSink.Close()
		sinks = append(sinks, eventSink)
	}
	if cfg.TUIMode {
		events = tui.NewEventChannel(16)
		sinks = append(sinks, events)
	}

	engine, err := audio.NewEngine(cfg, est, sinks...)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			applog.Errorf("Error closing audio engine: %v", err)
		}
	}()

	// CRITICAL: Start of real-time audio processing
	// Starting the input stream triggers PortAudio to begin calling the
	// callback function, marking the start of the hot path.
	if err := engine.Start(ctx); err != nil {
		return err
	}

	if wsTransport != nil {
		if err := engine.Go(func(ctx context.Context) error {
			context.AfterFunc(ctx, func() { _ = wsTransport.Close() })
			return wsTransport.ListenAndServe()
		}); err != nil {
			return err
		}
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		defer sender.Close()
		publisher, err := udp.NewPublisher(cfg.Transport.UDPSendInterval, sender, engine.Latest())
		if err != nil {
			return err
		}
		if err := engine.Go(publisher.Run); err != nil {
			return err
		}
	}

	var recordingPath string
	if cfg.Recording.Enabled {
		recordingPath = cfg.RecordingPath(time.Now())
		if err := engine.StartRecording(recordingPath); err != nil {
			return err
		}
	}

	if cfg.TUIMode {
		err := tui.StartMonitorUI(ctx, tui.MonitorOptions{
			Events:     events,
			Stats:      engine.Stats,
			Estimators: pitch.Names(),
			Estimator:  cfg.Analysis.Estimator,
			Switch: func(name string) error {
				next, err := newEstimator(name)
				if err != nil {
					return err
				}
				return engine.BindEstimator(next)
			},
			Device:     engine.DeviceName(),
			SampleRate: session.SampleRate,
			WindowSize: session.WindowSize,
		})
		if err != nil {
			return err
		}
	} else {
		fmt.Printf("Tracking pitch on %s. Press Ctrl+C to stop, '%s --help' for usage.\n",
			engine.DeviceName(), build.GetBuildFlags().Name)
		// Block until termination signal is received or the engine fails
		select {
		case <-ctx.Done():
		case <-engine.Done():
		}
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if recordingPath != "" {
		if err := engine.StopRecording(); err != nil {
			applog.Errorf("Error stopping recording: %v", err)
		}
		fmt.Printf("\nRecording saved to: %s\n", recordingPath)
	}
	return nil
}

// executeCommand handles one-off commands that don't require the audio engine
// to be running, such as listing available audio devices.
func executeCommand(command string) error {
	switch command {
	case cmd.CommandList:
		return audio.ListDevices(os.Stdout)
	case cmd.CommandDevices:
		sel, err := tui.StartDeviceListUI()
		if err != nil {
			return err
		}
		if sel != nil {
			fmt.Printf("Selected %s. Run:\n\n  %s\n", sel.DeviceName, cmd.Usage(sel.Flags()))
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
