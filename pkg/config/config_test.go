package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwctl/fwctl-go/pkg/unit"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fwctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	variants, err := cfg.VariantList()
	require.NoError(t, err)
	assert.Equal(t, unit.Variants, variants)

	cmd, err := cfg.FCPCommand()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0xff, 0x19, 0x00, 0xff, 0xff, 0xff, 0xff}, cmd)

	assert.Equal(t, uint64(0xfffff0000d00), cfg.Responder.Base)
	assert.Equal(t, uint64(0xfffff0000980), cfg.Console.ReadAddress)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
devices:
  glob: /tmp/hw*
  variants: [generic]
responder:
  base: 0xffffe0000000
  length: 0x40
startup:
  fcp:
    command: "01 ff 02 00"
  efw:
    enabled: false
timeouts:
  fcp: 1s
log:
  level: debug
  protocol: /tmp/fwctl.flog
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/hw*", cfg.Devices.Glob)
	variants, err := cfg.VariantList()
	require.NoError(t, err)
	assert.Equal(t, []unit.Variant{unit.VariantGeneric}, variants)

	assert.True(t, cfg.Responder.Enabled)
	assert.Equal(t, uint64(0xffffe0000000), cfg.Responder.Base)
	assert.Equal(t, uint64(0x40), cfg.Responder.Length)

	cmd, err := cfg.FCPCommand()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0xff, 0x02, 0x00, 0xff, 0xff, 0xff, 0xff}, cmd)

	assert.False(t, cfg.Startup.EFW.Enabled)
	assert.True(t, cfg.Startup.DICE.Enabled)
	assert.Equal(t, time.Second, cfg.Timeouts.FCP)
	assert.Equal(t, 100*time.Millisecond, cfg.Timeouts.Request)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
	assert.Equal(t, "/tmp/fwctl.flog", cfg.Log.Protocol)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadMalformed(t *testing.T) {
	path := writeConfig(t, "devices: [unterminated\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty glob", func(c *Config) { c.Devices.Glob = "" }},
		{"no variants", func(c *Config) { c.Devices.Variants = nil }},
		{"unknown variant", func(c *Config) { c.Devices.Variants = []string{"motu"} }},
		{"zero responder length", func(c *Config) { c.Responder.Length = 0 }},
		{"unaligned responder length", func(c *Config) { c.Responder.Length = 6 }},
		{"responder beyond address space", func(c *Config) { c.Responder.Base = 0x1000000000000 }},
		{"bad fcp hex", func(c *Config) { c.Startup.FCP.Command = "zz" }},
		{"short fcp command", func(c *Config) { c.Startup.FCP.Command = "0100" }},
		{"oversized fcp command", func(c *Config) { c.Startup.FCP.Command = "01ff19" + strings.Repeat("00", wire.FCPMaxFrameBytes) }},
		{"empty dice frame", func(c *Config) { c.Startup.DICE.Frame = nil }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"zero timeout", func(c *Config) { c.Timeouts.EFW = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestFCPCommandFillsFixedFrame(t *testing.T) {
	tests := []struct {
		command string
		want    []byte
	}{
		{"01ff19", []byte{0x01, 0xff, 0x19, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{"01ff1900", []byte{0x01, 0xff, 0x19, 0x00, 0xff, 0xff, 0xff, 0xff}},
		{"01 ff 19 00 01", []byte{0x01, 0xff, 0x19, 0x00, 0x01, 0xff, 0xff, 0xff}},
		{"00ff1001020304050607", []byte{0x00, 0xff, 0x10, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0xff, 0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			cfg := Default()
			cfg.Startup.FCP.Command = tt.command
			require.NoError(t, cfg.Validate())

			cmd, err := cfg.FCPCommand()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestValidateSkipsDisabledSections(t *testing.T) {
	cfg := Default()
	cfg.Responder.Enabled = false
	cfg.Responder.Length = 0
	cfg.Startup.FCP.Enabled = false
	cfg.Startup.FCP.Command = "zz"
	cfg.Startup.DICE.Enabled = false
	cfg.Startup.DICE.Frame = nil
	assert.NoError(t, cfg.Validate())
}
