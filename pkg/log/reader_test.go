package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func writeTestLog(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.flog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var events []Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		events = append(events, e)
	}
}

func TestReaderIteratesEvents(t *testing.T) {
	path := writeTestLog(t, []Event{
		{Timestamp: time.Now(), SessionID: "s-1", Layer: LayerBus, Category: CategoryRequest},
		{Timestamp: time.Now(), SessionID: "s-2", Layer: LayerHwdep, Category: CategoryResponse},
		{Timestamp: time.Now(), SessionID: "s-3", Layer: LayerUnit, Category: CategoryState},
	})

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	events := readAll(t, r)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, want := range []string{"s-1", "s-2", "s-3"} {
		if events[i].SessionID != want {
			t.Errorf("events[%d].SessionID = %q, want %q", i, events[i].SessionID, want)
		}
	}
}

func TestReaderFilters(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	path := writeTestLog(t, []Event{
		{Timestamp: base, SessionID: "a", Direction: DirectionOut, Layer: LayerBus, Category: CategoryRequest,
			Packet: &PacketEvent{Offset: 0xfffff0000980}},
		{Timestamp: base.Add(time.Second), SessionID: "a", Direction: DirectionIn, Layer: LayerBus, Category: CategoryResponse,
			Packet: &PacketEvent{Offset: 0xfffff0000980}},
		{Timestamp: base.Add(2 * time.Second), SessionID: "b", Direction: DirectionIn, Layer: LayerUnit, Category: CategoryNotification,
			Notification: &NotificationEvent{Kind: "bus-update", Value: 2}},
	})

	in := DirectionIn
	layer := LayerBus
	offset := uint64(0xfffff0000980)
	end := base.Add(2 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 3},
		{"session", Filter{SessionID: "b"}, 1},
		{"direction", Filter{Direction: &in}, 2},
		{"layer", Filter{Layer: &layer}, 2},
		{"offset", Filter{Offset: &offset}, 2},
		{"time end exclusive", Filter{TimeEnd: &end}, 2},
		{"combined", Filter{SessionID: "a", Direction: &in}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader failed: %v", err)
			}
			defer r.Close()

			if got := len(readAll(t, r)); got != tt.want {
				t.Errorf("got %d events, want %d", got, tt.want)
			}
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "missing.flog")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFileLoggerIgnoresEventsAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.flog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Log(Event{SessionID: "kept"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
	logger.Log(Event{SessionID: "dropped"})

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	events := readAll(t, r)
	if len(events) != 1 || events[0].SessionID != "kept" {
		t.Errorf("got %+v, want only the event logged before Close", events)
	}
	if logger.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", logger.Dropped())
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := writeTestLog(t, []Event{{SessionID: "first"}})

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Log(Event{SessionID: "second"})
	logger.Close()

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	if got := len(readAll(t, r)); got != 2 {
		t.Errorf("got %d events, want 2", got)
	}
}
