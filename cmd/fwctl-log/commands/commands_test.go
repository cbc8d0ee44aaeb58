package commands

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fwctl/fwctl-go/pkg/log"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.flog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func readAll(t *testing.T, path string) []log.Event {
	t.Helper()
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer reader.Close()

	var events []log.Event
	for {
		e, err := reader.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		events = append(events, e)
	}
}

func sampleEvents() []log.Event {
	ts := time.Date(2026, 10, 19, 10, 15, 32, 123456000, time.UTC)
	rcode := wire.RCodeComplete
	failed := wire.RCodeAddressError
	latency := 250 * time.Microsecond
	efwOK := uint32(wire.EFWStatusOK)

	return []log.Event{
		{
			Timestamp: ts, SessionID: "abc12345-0000", Path: "/dev/snd/hwC0D0", GUID: 0x00130e0401400045, Variant: "DICE",
			Direction: log.DirectionOut, Layer: log.LayerUnit, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{OldState: "OPEN", NewState: "LISTENING"},
		},
		{
			Timestamp: ts.Add(time.Millisecond), SessionID: "abc12345-0000", Path: "/dev/snd/hwC0D0",
			Direction: log.DirectionOut, Layer: log.LayerBus, Category: log.CategoryRequest,
			Packet: &log.PacketEvent{TCode: wire.TCodeReadQuadletRequest, Offset: 0xfffff0000980, Generation: 1, Size: 4},
		},
		{
			Timestamp: ts.Add(2 * time.Millisecond), SessionID: "abc12345-0000", Path: "/dev/snd/hwC0D0",
			Direction: log.DirectionIn, Layer: log.LayerBus, Category: log.CategoryResponse,
			Packet: &log.PacketEvent{TCode: wire.TCodeReadQuadletRequest, Offset: 0xfffff0000980, RCode: &rcode,
				Generation: 1, Size: 4, Data: []byte{0, 0, 0, 0x42}, Latency: &latency},
		},
		{
			Timestamp: ts.Add(3 * time.Millisecond), SessionID: "abc12345-0000", Path: "/dev/snd/hwC0D0",
			Direction: log.DirectionIn, Layer: log.LayerBus, Category: log.CategoryResponse,
			Packet: &log.PacketEvent{TCode: wire.TCodeReadQuadletRequest, Offset: 0xfffff0000984, RCode: &failed,
				Generation: 1, Size: 0, Latency: &latency},
		},
		{
			Timestamp: ts.Add(4 * time.Millisecond), SessionID: "abc12345-0000", Path: "/dev/snd/hwC0D0",
			Direction: log.DirectionIn, Layer: log.LayerHwdep, Category: log.CategoryResponse,
			Vendor: &log.VendorEvent{Protocol: log.VendorEFW, Seqnum: 3, Category: 6, Command: 1, Status: &efwOK, Size: 28},
		},
		{
			Timestamp: ts.Add(5 * time.Millisecond), SessionID: "abc12345-0000", Path: "/dev/snd/hwC0D0",
			Direction: log.DirectionIn, Layer: log.LayerHwdep, Category: log.CategoryNotification,
			Notification: &log.NotificationEvent{Kind: "notified", Value: 0x20},
		},
		{
			Timestamp: ts.Add(2 * time.Second), SessionID: "def67890-0000", Path: "/dev/snd/hwC1D0",
			Direction: log.DirectionIn, Layer: log.LayerUnit, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerBus, Message: "device disconnected", Context: "read events"},
		},
	}
}

func TestViewFormatsEvents(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"2026-10-19T10:15:32.123456Z [session:abc12345] OUT UNIT State",
		"  OPEN -> LISTENING",
		"OUT BUS READ_QUADLET_REQUEST",
		"  Offset: 0xfffff0000980  Generation: 1",
		"  RCode: COMPLETE",
		"  Latency: 250.000us",
		"  Data: 00000042",
		"  RCode: ADDRESS_ERROR",
		"IN  HWDEP EFW",
		"  Seqnum: 3  Category: 6  Command: 1",
		"  Status: OK (0)",
		"IN  HWDEP notified",
		"  Value: 0x00000020",
		"[session:def67890] IN  UNIT Error",
		"  Message: device disconnected",
		"  Context: read events",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q\n%s", want, output)
		}
	}
}

func TestViewFilter(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	layer := log.LayerHwdep
	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{Layer: &layer}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if got := strings.Count(buf.String(), "[session:"); got != 2 {
		t.Errorf("got %d events, want 2", got)
	}

	dir := log.DirectionOut
	cat := log.CategoryRequest
	buf.Reset()
	if err := RunView(path, ViewFilter{Direction: &dir, Category: &cat}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if got := strings.Count(buf.String(), "[session:"); got != 1 {
		t.Errorf("got %d events, want 1", got)
	}
}

func TestViewMissingFile(t *testing.T) {
	err := RunView(filepath.Join(t.TempDir(), "missing.flog"), ViewFilter{}, io.Discard)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseFlags(t *testing.T) {
	layers := map[string]log.Layer{"bus": log.LayerBus, "HWDEP": log.LayerHwdep, "Unit": log.LayerUnit}
	for in, want := range layers {
		got, err := ParseLayerFlag(in)
		if err != nil || got != want {
			t.Errorf("ParseLayerFlag(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLayerFlag("wire"); err == nil {
		t.Error("ParseLayerFlag(wire) should fail")
	}

	if d, err := ParseDirectionFlag("IN"); err != nil || d != log.DirectionIn {
		t.Errorf("ParseDirectionFlag(IN) = %v, %v", d, err)
	}
	if _, err := ParseDirectionFlag("sideways"); err == nil {
		t.Error("ParseDirectionFlag(sideways) should fail")
	}

	categories := map[string]log.Category{
		"request":      log.CategoryRequest,
		"response":     log.CategoryResponse,
		"notification": log.CategoryNotification,
		"state":        log.CategoryState,
		"error":        log.CategoryError,
	}
	for in, want := range categories {
		got, err := ParseCategoryFlag(in)
		if err != nil || got != want {
			t.Errorf("ParseCategoryFlag(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseCategoryFlag("message"); err == nil {
		t.Error("ParseCategoryFlag(message) should fail")
	}
}

func TestFilterBySessionAndOffset(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "filtered.flog")

	n, err := RunFilter(path, FilterOptions{Output: out, SessionID: "abc12345-0000", Offset: "0xfffff0000980"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 2 {
		t.Errorf("filtered %d events, want 2", n)
	}

	events := readAll(t, out)
	if len(events) != 2 {
		t.Fatalf("read back %d events, want 2", len(events))
	}
	for _, e := range events {
		if e.Packet == nil || e.Packet.Offset != 0xfffff0000980 {
			t.Errorf("unexpected event %+v", e)
		}
	}
}

func TestFilterByTimeRangeAndPath(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "filtered.flog")

	n, err := RunFilter(path, FilterOptions{
		Output:    out,
		Path:      "/dev/snd/hwC1D0",
		TimeStart: "2026-10-19T10:15:33Z",
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 1 {
		t.Errorf("filtered %d events, want 1", n)
	}
}

func TestFilterInvalidOptions(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "filtered.flog")

	for _, opts := range []FilterOptions{
		{Output: out, Offset: "zz"},
		{Output: out, TimeStart: "yesterday"},
		{Output: out, TimeEnd: "tomorrow"},
		{Output: out, Layer: "wire"},
		{Output: out, Direction: "up"},
		{Output: out, Category: "control"},
	} {
		if _, err := RunFilter(path, opts); err == nil {
			t.Errorf("RunFilter(%+v) should fail", opts)
		}
	}
}

func TestStats(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Total Events: 7",
		"BUS:",
		"HWDEP:",
		"UNIT:",
		"NOTIFICATION:",
		"Sessions: 2",
		"[abc12345] 6 events",
		"Unit: /dev/snd/hwC0D0 DICE GUID 00130e0401400045",
		"Transactions: 2 (1 failed), mean latency 250.000us",
		"Notifications: 1",
		"Errors: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q\n%s", want, output)
		}
	}

	// Sessions are listed in order of first appearance.
	if strings.Index(output, "[abc12345]") > strings.Index(output, "[def67890]") {
		t.Error("sessions not sorted by first seen")
	}
}

func TestStatsEmptyLog(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "Time Range:") {
		t.Error("empty log should have no time range")
	}
}

func TestExportJSONL(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := Export(path, "jsonl", &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 7 {
		t.Fatalf("got %d lines, want 7", len(lines))
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 0 is not JSON: %v", err)
	}
	if first["SessionID"] != "abc12345-0000" {
		t.Errorf("SessionID = %v", first["SessionID"])
	}
}

func TestExportCSV(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := Export(path, "csv", &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(records) != 8 {
		t.Fatalf("got %d records, want 8", len(records))
	}
	if records[0][0] != "timestamp" || records[0][7] != "offset" {
		t.Errorf("unexpected header %v", records[0])
	}
	resp := records[3]
	if resp[6] != "READ_QUADLET_REQUEST" || resp[7] != "0xfffff0000980" || resp[8] != "COMPLETE" || resp[9] != "00000042" {
		t.Errorf("unexpected response row %v", resp)
	}
	if records[6][6] != "notified" || records[6][9] != "00000020" {
		t.Errorf("unexpected notification row %v", records[6])
	}
}

func TestExportToFile(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", out); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "\n"); got != 7 {
		t.Errorf("got %d lines, want 7", got)
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	if err := Export(path, "xml", io.Discard); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
