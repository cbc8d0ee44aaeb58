// Command fwctl controls one FireWire audio unit behind the ALSA FireWire
// stack.
//
// It probes the hwdep nodes matching the configured glob for a DICE,
// Echo Fireworks or generic unit, prints the unit identity, listens for
// unit events, answers requests the unit sends into the responder window
// and issues the startup transactions of the detected protocol. An
// interactive console then reads quadlets from the unit's address space.
//
// Usage:
//
//	fwctl [flags]
//
// Flags:
//
//	-config string        Configuration file path
//	-glob string          hwdep node glob (overrides devices.glob)
//	-log-level string     Log level: debug, info, warn, error
//	-protocol-log string  Write protocol events to this file (CBOR)
//	-simulate             Use a simulated unit instead of the kernel
//	-simulate-family      Family of the simulated unit (default "dice")
//	-no-console           Do not start the interactive console
//	-version              Print the version and exit
//
// Examples:
//
//	# Probe /dev/snd/hw* with the built-in defaults
//	fwctl
//
//	# Try a simulated DICE unit and record the protocol log
//	fwctl -simulate -protocol-log fwctl.flog
package main

import (
	"context"
	"flag"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/fwctl/fwctl-go/cmd/fwctl/interactive"
	"github.com/fwctl/fwctl-go/internal/app"
	"github.com/fwctl/fwctl-go/pkg/config"
	"github.com/fwctl/fwctl-go/pkg/dispatch"
	"github.com/fwctl/fwctl-go/pkg/hal"
	"github.com/fwctl/fwctl-go/pkg/hal/sim"
	"github.com/fwctl/fwctl-go/pkg/log"
	"github.com/fwctl/fwctl-go/pkg/probe"
)

// version is set at link time.
var version = "dev"

// Flags holds the command-line settings.
type Flags struct {
	ConfigFile  string
	Glob        string
	LogLevel    string
	ProtocolLog string
	Simulate    bool
	NoConsole   bool
	Version     bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&flags.Glob, "glob", "", "hwdep node glob (overrides devices.glob)")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Write protocol events to this file (CBOR)")
	flag.BoolVar(&flags.Simulate, "simulate", false, "Use a simulated unit instead of the kernel")
	flag.BoolVar(&flags.NoConsole, "no-console", false, "Do not start the interactive console")
	flag.BoolVar(&flags.Version, "version", false, "Print the version and exit")
}

func main() {
	flag.Parse()
	if flags.Version {
		fmt.Println("fwctl", version)
		return
	}
	os.Exit(run())
}

func run() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger := setupLogging(cfg)

	protocol, closeProtocol, err := setupProtocolLog(cfg.Log.Protocol, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeProtocol()

	driver, simUnit, paths, err := setupDriver(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	disp := dispatch.New(dispatch.WithLogger(logger))
	a := app.New(cfg, driver, disp,
		app.WithLogger(logger),
		app.WithProtocolLogger(protocol),
	)

	if err := a.Start(ctx, paths); err != nil {
		return reportStartup(os.Stderr, err)
	}
	defer a.Close()

	if simUnit != nil {
		go runSimulation(ctx, simUnit, logger)
	}

	stopSignals := disp.HandleSignals(func(sig os.Signal) {
		logger.Info("received signal", "signal", sig)
		disp.Quit()
	}, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if !flags.NoConsole {
		console, err := interactive.New(a, disp, cfg.Console)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer console.Close()
		go console.Run(ctx)
	}

	if err := disp.Run(ctx); err != nil {
		logger.Error("dispatcher stopped", "error", err)
		return 1
	}
	return 0
}

// reportStartup prints why Start failed and returns the exit status. Finding
// no unit is an expected outcome and exits with status 0.
func reportStartup(w io.Writer, err error) int {
	if errors.Is(err, probe.ErrNoDeviceFound) {
		fmt.Fprintln(w, "No sound FireWire devices found.")
		return 0
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		return nil, err
	}
	if flags.Glob != "" {
		cfg.Devices.Glob = flags.Glob
	}
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}
	if flags.ProtocolLog != "" {
		cfg.Log.Protocol = flags.ProtocolLog
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) *slog.Logger {
	level, _ := cfg.Log.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// setupProtocolLog opens the protocol log file. At debug level every
// protocol event is also written to the operational log.
func setupProtocolLog(path string, logger *slog.Logger) (log.Logger, func(), error) {
	var loggers []log.Logger
	closeFn := func() {}

	if path != "" {
		fl, err := log.NewFileLogger(path)
		if err != nil {
			return nil, nil, fmt.Errorf("protocol log: %w", err)
		}
		loggers = append(loggers, fl)
		closeFn = func() {
			if err := fl.Close(); err != nil {
				logger.Warn("close protocol log failed", "error", err)
			}
			if n := fl.Dropped(); n > 0 {
				logger.Warn("protocol events dropped", "count", n)
			}
		}
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		loggers = append(loggers, log.NewSlogAdapter(logger))
	}

	switch len(loggers) {
	case 0:
		return log.NoopLogger{}, closeFn, nil
	case 1:
		return loggers[0], closeFn, nil
	default:
		return log.NewMultiLogger(loggers...), closeFn, nil
	}
}

// setupDriver returns the backend and the nodes to probe. The simulated
// unit is returned when -simulate is set.
func setupDriver(cfg *config.Config) (hal.Driver, *sim.Unit, []string, error) {
	if flags.Simulate {
		driver, u, paths := newSimulation()
		return driver, u, paths, nil
	}
	paths, err := filepath.Glob(cfg.Devices.Glob)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("devices.glob: %w", err)
	}
	driver, err := kernelDriver()
	if err != nil {
		return nil, nil, nil, err
	}
	return driver, nil, paths, nil
}
