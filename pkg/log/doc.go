// Package log provides structured protocol logging for fwctl.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at several layers (firewire bus, ALSA hwdep, unit
// session). It is separate from operational logging (slog): protocol capture
// provides a complete machine-readable trace of every packet, vendor frame and
// unit event exchanged with the device.
//
// # Basic Usage
//
// Applications configure logging by passing a Logger to the unit session:
//
//	// For development: log to console via slog
//	unit.WithProtocolLogger(log.NewSlogAdapter(slog.Default()))
//
//	// For field captures: write to a binary file
//	fl, _ := log.NewFileLogger("/tmp/fwctl.flog")
//	unit.WithProtocolLogger(fl)
//
//	// Both: use MultiLogger
//	unit.WithProtocolLogger(log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fl,
//	))
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Bus: asynchronous packets on the firewire character device (PacketEvent)
//   - Hwdep: vendor frames on the ALSA hwdep node (VendorEvent)
//   - Unit: unit events and session state (NotificationEvent, StateChangeEvent)
//
// Errors at any layer have a dedicated event type.
//
// # File Format
//
// Log files use CBOR encoding with integer keys and the .flog extension. The
// fwctl-log CLI tool provides viewing, filtering, and export capabilities.
package log
