package log

import (
	"time"

	"github.com/fwctl/fwctl-go/pkg/wire"
)

// MaxDataSize is the largest payload copied into a log event. Longer payloads
// are truncated and flagged.
const MaxDataSize = 512

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the unit session (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Path is the hwdep node the session was opened on.
	Path string `cbor:"6,keyasint,omitempty"`

	// GUID is the unit's 64-bit EUI.
	GUID uint64 `cbor:"7,keyasint,omitempty"`

	// Variant is the protocol variant bound to the session.
	Variant string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Packet       *PacketEvent       `cbor:"10,keyasint,omitempty"` // Bus layer
	Vendor       *VendorEvent       `cbor:"11,keyasint,omitempty"` // Hwdep layer or FCP
	Notification *NotificationEvent `cbor:"12,keyasint,omitempty"` // Unit events
	StateChange  *StateChangeEvent  `cbor:"13,keyasint,omitempty"` // Session state
	Error        *ErrorEventData    `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates data received from the unit.
	DirectionIn Direction = 0
	// DirectionOut indicates data sent to the unit.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerBus is the firewire character device (asynchronous packets).
	LayerBus Layer = 0
	// LayerHwdep is the ALSA hwdep node (vendor frames, lock status).
	LayerHwdep Layer = 1
	// LayerUnit is the unit session.
	LayerUnit Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerBus:
		return "BUS"
	case LayerHwdep:
		return "HWDEP"
	case LayerUnit:
		return "UNIT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryRequest indicates a request packet or command frame.
	CategoryRequest Category = 0
	// CategoryResponse indicates a response packet or frame.
	CategoryResponse Category = 1
	// CategoryNotification indicates an unsolicited unit event.
	CategoryNotification Category = 2
	// CategoryState indicates a state change.
	CategoryState Category = 3
	// CategoryError indicates an error event.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryRequest:
		return "REQUEST"
	case CategoryResponse:
		return "RESPONSE"
	case CategoryNotification:
		return "NOTIFICATION"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// PacketEvent captures one asynchronous packet on the bus.
type PacketEvent struct {
	// TCode is the transaction code of the request.
	TCode wire.TCode `cbor:"1,keyasint"`

	// Offset is the destination offset in the node address space.
	Offset uint64 `cbor:"2,keyasint"`

	// RCode is set for responses.
	RCode *wire.RCode `cbor:"3,keyasint,omitempty"`

	// Generation is the bus generation the packet was sent or received in.
	Generation uint32 `cbor:"4,keyasint,omitempty"`

	// Handle is the request closure or inbound request handle.
	Handle uint64 `cbor:"5,keyasint,omitempty"`

	// Size is the payload size in bytes.
	Size int `cbor:"6,keyasint"`

	// Data is the payload (may be truncated).
	Data []byte `cbor:"7,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"8,keyasint,omitempty"`

	// Latency is the round trip time of a completed request (response only).
	// Stored as nanoseconds.
	Latency *time.Duration `cbor:"9,keyasint,omitempty"`
}

// VendorProtocol identifies the framing of a VendorEvent.
type VendorProtocol uint8

const (
	// VendorFCP is an AV/C frame exchanged over the FCP registers.
	VendorFCP VendorProtocol = 0
	// VendorEFW is an Echo Fireworks frame exchanged over hwdep.
	VendorEFW VendorProtocol = 1
)

// String returns the protocol name.
func (p VendorProtocol) String() string {
	switch p {
	case VendorFCP:
		return "FCP"
	case VendorEFW:
		return "EFW"
	default:
		return "UNKNOWN"
	}
}

// VendorEvent captures a vendor command or response frame.
type VendorEvent struct {
	Protocol VendorProtocol `cbor:"1,keyasint"`

	// Seqnum correlates EFW requests and responses.
	Seqnum uint32 `cbor:"2,keyasint,omitempty"`

	// Category and Command name the EFW operation.
	Category uint32 `cbor:"3,keyasint,omitempty"`
	Command  uint32 `cbor:"4,keyasint,omitempty"`

	// Status is the EFW status or AV/C response code of a response.
	Status *uint32 `cbor:"5,keyasint,omitempty"`

	Size      int    `cbor:"6,keyasint"`
	Data      []byte `cbor:"7,keyasint,omitempty"`
	Truncated bool   `cbor:"8,keyasint,omitempty"`
}

// NotificationEvent captures an unsolicited unit event.
type NotificationEvent struct {
	// Kind is the event name (lock-status, bus-update, notified, disconnected).
	Kind string `cbor:"1,keyasint"`

	// Value carries the generation, notification bits or lock state.
	Value uint32 `cbor:"2,keyasint,omitempty"`
}

// StateChangeEvent captures session lifecycle changes.
type StateChangeEvent struct {
	// OldState is the previous state (may be empty).
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the response code or errno (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}

// Truncate returns at most MaxDataSize bytes of data and whether data was cut.
func Truncate(data []byte) ([]byte, bool) {
	if len(data) > MaxDataSize {
		return data[:MaxDataSize], true
	}
	return data, false
}
