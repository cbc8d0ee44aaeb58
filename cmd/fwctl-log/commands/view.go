// Package commands implements the fwctl-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fwctl/fwctl-go/pkg/log"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [session:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	sessionID := shortenSessionID(event.SessionID)
	dir := event.Direction.String()

	var typeLabel string
	switch {
	case event.Packet != nil:
		typeLabel = event.Packet.TCode.String()
	case event.Vendor != nil:
		typeLabel = event.Vendor.Protocol.String()
	case event.Notification != nil:
		typeLabel = event.Notification.Kind
	case event.StateChange != nil:
		typeLabel = "State"
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	fmt.Fprintf(w, "%s [session:%s] %-3s %s %s\n", ts, sessionID, dir, event.Layer.String(), typeLabel)

	switch {
	case event.Packet != nil:
		formatPacketDetails(w, event.Packet)
	case event.Vendor != nil:
		formatVendorDetails(w, event.Vendor)
	case event.Notification != nil:
		fmt.Fprintf(w, "  Value: 0x%08x\n", event.Notification.Value)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange, event.Path)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// shortenSessionID returns the first 8 characters of the session ID.
func shortenSessionID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatPacketDetails(w io.Writer, p *log.PacketEvent) {
	fmt.Fprintf(w, "  Offset: 0x%012x  Generation: %d\n", p.Offset, p.Generation)
	if p.RCode != nil {
		fmt.Fprintf(w, "  RCode: %s\n", p.RCode.String())
	}
	if p.Latency != nil {
		fmt.Fprintf(w, "  Latency: %s\n", formatDuration(*p.Latency))
	}
	formatData(w, p.Size, p.Data, p.Truncated)
}

func formatVendorDetails(w io.Writer, v *log.VendorEvent) {
	switch v.Protocol {
	case log.VendorEFW:
		fmt.Fprintf(w, "  Seqnum: %d  Category: %d  Command: %d\n", v.Seqnum, v.Category, v.Command)
		if v.Status != nil {
			fmt.Fprintf(w, "  Status: %s (%d)\n", wire.EFWStatus(*v.Status).String(), *v.Status)
		}
	case log.VendorFCP:
		if v.Status != nil {
			fmt.Fprintf(w, "  Response: %s\n", wire.AVCCode(*v.Status).String())
		}
	}
	formatData(w, v.Size, v.Data, v.Truncated)
}

func formatData(w io.Writer, size int, data []byte, truncated bool) {
	fmt.Fprintf(w, "  Size: %d bytes\n", size)
	if len(data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(data))
		if truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent, path string) {
	if path != "" {
		fmt.Fprintf(w, "  Path: %s\n", path)
	}
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseLayerFlag parses a layer string from command-line flag (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	return parseLayer(s)
}

func parseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "bus":
		return log.LayerBus, nil
	case "hwdep":
		return log.LayerHwdep, nil
	case "unit":
		return log.LayerUnit, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be bus, hwdep, or unit)", s)
	}
}

// ParseDirectionFlag parses a direction string from command-line flag (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	return parseDirection(s)
}

func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategoryFlag parses a category string from command-line flag (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	return parseCategory(s)
}

func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "request":
		return log.CategoryRequest, nil
	case "response":
		return log.CategoryResponse, nil
	case "notification":
		return log.CategoryNotification, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be request, response, notification, state, or error)", s)
	}
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, log.Filter{
		Layer:     filter.Layer,
		Direction: filter.Direction,
		Category:  filter.Category,
	})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}

	return nil
}
