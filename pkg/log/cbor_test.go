package log

import (
	"testing"
	"time"

	"github.com/fwctl/fwctl-go/pkg/wire"
)

func TestEventCBORRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 2, 9, 41, 7, 123456789, time.UTC)
	original := Event{
		Timestamp: ts,
		SessionID: "4b0d5c1e-2f7a-4c1b-9f0e-1a2b3c4d5e6f",
		Direction: DirectionOut,
		Layer:     LayerBus,
		Category:  CategoryRequest,
		Path:      "/dev/snd/hwC0D0",
		GUID:      0x0014860123456789,
		Variant:   "EFW",
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !decoded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp: got %v, want %v", decoded.Timestamp, original.Timestamp)
	}
	if decoded.SessionID != original.SessionID {
		t.Errorf("SessionID: got %q, want %q", decoded.SessionID, original.SessionID)
	}
	if decoded.Direction != original.Direction {
		t.Errorf("Direction: got %v, want %v", decoded.Direction, original.Direction)
	}
	if decoded.Layer != original.Layer {
		t.Errorf("Layer: got %v, want %v", decoded.Layer, original.Layer)
	}
	if decoded.Path != original.Path {
		t.Errorf("Path: got %q, want %q", decoded.Path, original.Path)
	}
	if decoded.GUID != original.GUID {
		t.Errorf("GUID: got %016x, want %016x", decoded.GUID, original.GUID)
	}
	if decoded.Variant != original.Variant {
		t.Errorf("Variant: got %q, want %q", decoded.Variant, original.Variant)
	}
}

func TestPacketEventCBORRoundTrip(t *testing.T) {
	rcode := wire.RCodeAddressError
	latency := 350 * time.Microsecond
	original := Event{
		Timestamp: time.Now(),
		SessionID: "s-1",
		Direction: DirectionIn,
		Layer:     LayerBus,
		Category:  CategoryResponse,
		Packet: &PacketEvent{
			TCode:      wire.TCodeReadQuadletRequest,
			Offset:     0xfffff0000980,
			RCode:      &rcode,
			Generation: 3,
			Handle:     7,
			Size:       4,
			Data:       []byte{0, 0, 0, 0x42},
			Latency:    &latency,
		},
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	p := decoded.Packet
	if p == nil {
		t.Fatal("Packet is nil")
	}
	if p.TCode != wire.TCodeReadQuadletRequest {
		t.Errorf("TCode: got %v", p.TCode)
	}
	if p.Offset != 0xfffff0000980 {
		t.Errorf("Offset: got %#x", p.Offset)
	}
	if p.RCode == nil || *p.RCode != wire.RCodeAddressError {
		t.Errorf("RCode: got %v, want ADDRESS_ERROR", p.RCode)
	}
	if p.Generation != 3 || p.Handle != 7 || p.Size != 4 {
		t.Errorf("got generation %d handle %d size %d", p.Generation, p.Handle, p.Size)
	}
	if string(p.Data) != string([]byte{0, 0, 0, 0x42}) {
		t.Errorf("Data: got %x", p.Data)
	}
	if p.Latency == nil || *p.Latency != latency {
		t.Errorf("Latency: got %v, want %v", p.Latency, latency)
	}
}

func TestVendorEventCBORRoundTrip(t *testing.T) {
	status := uint32(0)
	original := Event{
		Layer:    LayerHwdep,
		Category: CategoryResponse,
		Vendor: &VendorEvent{
			Protocol: VendorEFW,
			Seqnum:   5,
			Category: 6,
			Command:  1,
			Status:   &status,
			Size:     28,
		},
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	v := decoded.Vendor
	if v == nil {
		t.Fatal("Vendor is nil")
	}
	if v.Protocol != VendorEFW || v.Seqnum != 5 || v.Category != 6 || v.Command != 1 {
		t.Errorf("got %+v", *v)
	}
	if v.Status == nil || *v.Status != 0 {
		t.Errorf("Status: got %v, want 0", v.Status)
	}
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{DirectionIn.String(), "IN"},
		{DirectionOut.String(), "OUT"},
		{Direction(9).String(), "UNKNOWN"},
		{LayerBus.String(), "BUS"},
		{LayerHwdep.String(), "HWDEP"},
		{LayerUnit.String(), "UNIT"},
		{CategoryNotification.String(), "NOTIFICATION"},
		{CategoryError.String(), "ERROR"},
		{VendorFCP.String(), "FCP"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	short := make([]byte, 16)
	if got, cut := Truncate(short); len(got) != 16 || cut {
		t.Errorf("Truncate(16 bytes) = %d bytes, cut=%v", len(got), cut)
	}

	long := make([]byte, MaxDataSize+1)
	if got, cut := Truncate(long); len(got) != MaxDataSize || !cut {
		t.Errorf("Truncate(%d bytes) = %d bytes, cut=%v", len(long), len(got), cut)
	}
}
