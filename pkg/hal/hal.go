package hal

import (
	"context"
	"errors"
	"fmt"

	"github.com/fwctl/fwctl-go/pkg/wire"
)

// Errors returned by Driver and Device implementations.
var (
	// ErrDisconnected indicates the unit was removed from the bus.
	ErrDisconnected = errors.New("device disconnected")

	// ErrClosed indicates the device handle was closed locally.
	ErrClosed = errors.New("device closed")

	// ErrBusy indicates the streaming lock is held elsewhere.
	ErrBusy = errors.New("device busy")

	// ErrRejected indicates the kernel refused an address window allocation.
	ErrRejected = errors.New("address window rejected")

	// ErrNotSupported indicates the node does not support the operation.
	ErrNotSupported = errors.New("operation not supported by device")
)

// Info describes the unit behind an opened hwdep node.
type Info struct {
	// Family is the ALSA FireWire device family.
	Family wire.Family

	// Card is the ALSA sound card index.
	Card int

	// Device is the name of the firewire character device (e.g. "fw1").
	Device string

	// GUID is the unit's 64-bit EUI.
	GUID uint64
}

// String implements fmt.Stringer.
func (i Info) String() string {
	return fmt.Sprintf("%s card %d %s %016x", i.Family, i.Card, i.Device, i.GUID)
}

// EventType identifies the kind of an Event.
type EventType uint8

const (
	// EventBusReset reports a new bus generation.
	EventBusReset EventType = iota
	// EventResponse completes a request sent with SendRequest.
	EventResponse
	// EventRequest carries an inbound request inside an allocated window.
	EventRequest
	// EventLockStatus reports a change of the streaming lock.
	EventLockStatus
	// EventDICENotification carries DICE notification bits.
	EventDICENotification
	// EventEFWResponse carries one or more EFW response frames.
	EventEFWResponse
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventBusReset:
		return "BUS_RESET"
	case EventResponse:
		return "RESPONSE"
	case EventRequest:
		return "REQUEST"
	case EventLockStatus:
		return "LOCK_STATUS"
	case EventDICENotification:
		return "DICE_NOTIFICATION"
	case EventEFWResponse:
		return "EFW_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// Event is one event read from a Device. Only the fields relevant to Type
// are set.
type Event struct {
	Type EventType

	// Generation is the bus generation (EventBusReset, EventRequest).
	Generation uint32

	// NodeID is the local node ID (EventBusReset) or the source node of an
	// inbound request (EventRequest).
	NodeID uint32

	// Closure is the value passed to SendRequest (EventResponse) or
	// Allocate (EventRequest).
	Closure uint64

	// RCode is the response code (EventResponse).
	RCode wire.RCode

	// TCode and Offset describe an inbound request (EventRequest).
	TCode  wire.TCode
	Offset uint64

	// Handle identifies an inbound request for SendResponse and
	// ReleaseRequest (EventRequest).
	Handle uint32

	// Data is the response payload, request payload or EFW frames.
	Data []byte

	// Locked is the streaming lock state (EventLockStatus).
	Locked bool

	// Notification holds the notification bits (EventDICENotification).
	Notification uint32
}

// Request is an outbound asynchronous request.
type Request struct {
	TCode  wire.TCode
	Offset uint64

	// Generation must match the current bus generation or the kernel fails
	// the request with wire.RCodeGeneration.
	Generation uint32

	// Data is the write payload, the lock operands, or nil for reads.
	Data []byte

	// Length is the number of bytes to read. It is ignored for writes and
	// locks.
	Length int

	// Closure is echoed in the matching EventResponse.
	Closure uint64
}

// Driver opens hwdep nodes.
type Driver interface {
	// Open opens the hwdep node at path together with the firewire character
	// device of its unit.
	Open(path string) (Device, error)
}

// Device is an opened unit.
type Device interface {
	// Info returns the identity read at open time.
	Info() Info

	// Generation returns the current bus generation.
	Generation() (uint32, error)

	// Lock forbids kernel streaming. It returns ErrBusy if streaming is
	// running or another client holds the lock.
	Lock() error

	// Unlock releases a lock taken with Lock.
	Unlock() error

	// NextEvent blocks until an event is available, the context is done, or
	// the device is disconnected or closed.
	NextEvent(ctx context.Context) (Event, error)

	// SendRequest queues an asynchronous request. Its completion arrives as
	// an EventResponse carrying req.Closure.
	SendRequest(req Request) error

	// Allocate claims [offset, offset+length) in the local node's address
	// space. Inbound requests inside the window arrive as EventRequest
	// carrying closure. It returns ErrRejected if the window is taken.
	Allocate(offset, length, closure uint64) (uint32, error)

	// Deallocate releases a window returned by Allocate.
	Deallocate(handle uint32) error

	// SendResponse answers an inbound request.
	SendResponse(handle uint32, rcode wire.RCode, data []byte) error

	// ReleaseRequest finishes an inbound request the caller chose not to
	// answer.
	ReleaseRequest(handle uint32) error

	// WriteVendor writes a vendor frame to the hwdep node.
	WriteVendor(frame []byte) error

	// Close releases both kernel handles. Outstanding NextEvent calls return
	// ErrClosed.
	Close() error
}
