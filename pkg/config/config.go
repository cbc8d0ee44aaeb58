// Package config loads the fwctl YAML configuration.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fwctl/fwctl-go/pkg/quadlet"
	"github.com/fwctl/fwctl-go/pkg/transaction"
	"github.com/fwctl/fwctl-go/pkg/unit"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete program configuration.
type Config struct {
	Devices   DevicesConfig   `yaml:"devices"`
	Responder ResponderConfig `yaml:"responder"`
	Startup   StartupConfig   `yaml:"startup"`
	Console   ConsoleConfig   `yaml:"console"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Log       LogConfig       `yaml:"log"`
}

// DevicesConfig selects the hwdep nodes to probe and the variants to try.
type DevicesConfig struct {
	Glob     string   `yaml:"glob"`
	Variants []string `yaml:"variants"`
}

// ResponderConfig describes the inbound request window.
type ResponderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Base    uint64 `yaml:"base"`
	Length  uint64 `yaml:"length"`
}

// StartupConfig holds the transactions issued once the unit is listening.
type StartupConfig struct {
	FCP  FCPStartup  `yaml:"fcp"`
	EFW  EFWStartup  `yaml:"efw"`
	DICE DICEStartup `yaml:"dice"`
}

// FCPStartup is an AV/C command sent to every non-DICE unit.
type FCPStartup struct {
	Enabled bool `yaml:"enabled"`
	// Command is the frame in hex. Whitespace is ignored.
	Command string `yaml:"command"`
}

// EFWStartup is a Fireworks command sent to EFW units.
type EFWStartup struct {
	Enabled  bool     `yaml:"enabled"`
	Category uint32   `yaml:"category"`
	Command  uint32   `yaml:"command"`
	Params   []uint32 `yaml:"params"`
}

// DICEStartup is the notification opt-in written to DICE units.
type DICEStartup struct {
	Enabled bool     `yaml:"enabled"`
	Address uint64   `yaml:"address"`
	Frame   []uint32 `yaml:"frame"`
	Bit     uint32   `yaml:"bit"`
}

// ConsoleConfig configures the interactive console.
type ConsoleConfig struct {
	ReadAddress uint64 `yaml:"read_address"`
	HistoryFile string `yaml:"history_file"`
}

// TimeoutsConfig bounds each transaction kind.
type TimeoutsConfig struct {
	Request      time.Duration `yaml:"request"`
	FCP          time.Duration `yaml:"fcp"`
	EFW          time.Duration `yaml:"efw"`
	Notification time.Duration `yaml:"notification"`
}

// LogConfig configures operational and protocol logging.
type LogConfig struct {
	Level    string `yaml:"level"`
	Protocol string `yaml:"protocol"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Devices: DevicesConfig{
			Glob:     "/dev/snd/hw*",
			Variants: []string{"dice", "efw", "generic"},
		},
		Responder: ResponderConfig{
			Enabled: true,
			Base:    wire.FCPResponseAddress,
			Length:  0x100,
		},
		Startup: StartupConfig{
			FCP: FCPStartup{
				Enabled: true,
				Command: "01ff1900ffffffff",
			},
			EFW: EFWStartup{
				Enabled:  true,
				Category: 6,
				Command:  1,
				Params:   []uint32{5},
			},
			DICE: DICEStartup{
				Enabled: true,
				Address: 0xffffe0000074,
				Frame:   []uint32{0x0000030c},
				Bit:     0x20,
			},
		},
		Console: ConsoleConfig{
			ReadAddress: 0xfffff0000980,
		},
		Timeouts: TimeoutsConfig{
			Request:      transaction.DefaultRequestTimeout,
			FCP:          transaction.DefaultFCPTimeout,
			EFW:          transaction.DefaultEFWTimeout,
			Notification: transaction.DefaultNotificationTimeout,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults and validates the result. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every field can be used as given.
func (c *Config) Validate() error {
	if c.Devices.Glob == "" {
		return fmt.Errorf("%w: devices.glob is empty", ErrInvalid)
	}
	if _, err := c.VariantList(); err != nil {
		return err
	}
	if c.Responder.Enabled {
		if c.Responder.Length == 0 || c.Responder.Length%quadlet.Size != 0 {
			return fmt.Errorf("%w: responder.length %#x is not a positive quadlet multiple", ErrInvalid, c.Responder.Length)
		}
		if c.Responder.Base&^wire.AddressMask != 0 || (c.Responder.Base+c.Responder.Length-1)&^wire.AddressMask != 0 {
			return fmt.Errorf("%w: responder window exceeds the 48-bit address space", ErrInvalid)
		}
	}
	if c.Startup.FCP.Enabled {
		if _, err := c.FCPCommand(); err != nil {
			return err
		}
	}
	if c.Startup.DICE.Enabled && len(c.Startup.DICE.Frame) == 0 {
		return fmt.Errorf("%w: startup.dice.frame is empty", ErrInvalid)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	for name, d := range map[string]time.Duration{
		"request":      c.Timeouts.Request,
		"fcp":          c.Timeouts.FCP,
		"efw":          c.Timeouts.EFW,
		"notification": c.Timeouts.Notification,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: timeouts.%s must be positive", ErrInvalid, name)
		}
	}
	return nil
}

// VariantList returns the configured probe order.
func (c *Config) VariantList() ([]unit.Variant, error) {
	if len(c.Devices.Variants) == 0 {
		return nil, fmt.Errorf("%w: devices.variants is empty", ErrInvalid)
	}
	out := make([]unit.Variant, 0, len(c.Devices.Variants))
	for _, name := range c.Devices.Variants {
		v, err := unit.ParseVariant(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// FCPCommand decodes the startup AV/C command and frames it with
// wire.NewAVCFrame, so short commands are filled with wire.AVCFill up to the
// fixed command frame size.
func (c *Config) FCPCommand() ([]byte, error) {
	raw := strings.Join(strings.Fields(c.Startup.FCP.Command), "")
	cmd, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: startup.fcp.command: %w", ErrInvalid, err)
	}
	if len(cmd) < wire.AVCMinFrameSize {
		return nil, fmt.Errorf("%w: startup.fcp.command needs ctype, subunit and opcode, got %d bytes", ErrInvalid, len(cmd))
	}
	frame := wire.NewAVCFrame(wire.AVCCode(cmd[0]), cmd[1], cmd[2], cmd[wire.AVCMinFrameSize:]...)
	if len(frame) > wire.FCPMaxFrameBytes {
		return nil, fmt.Errorf("%w: startup.fcp.command has invalid length %d", ErrInvalid, len(cmd))
	}
	return frame, nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("%w: log.level %q", ErrInvalid, l.Level)
	}
	return level, nil
}
