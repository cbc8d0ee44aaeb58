package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HwdepEventType is the leading word of every event read from an ALSA
// FireWire hwdep node (SNDRV_FIREWIRE_EVENT_*). Event headers use host byte
// order.
type HwdepEventType uint32

const (
	HwdepEventLockStatus       HwdepEventType = 0x000010cc
	HwdepEventDICENotification HwdepEventType = 0xd1ce004e
	HwdepEventEFWResponse      HwdepEventType = 0x4e617475
	HwdepEventDigi00xMessage   HwdepEventType = 0x746e736c
	HwdepEventMOTUNotification HwdepEventType = 0x64776479
	HwdepEventTascamControl    HwdepEventType = 0x7473636d
)

// String returns the event type name.
func (t HwdepEventType) String() string {
	switch t {
	case HwdepEventLockStatus:
		return "LOCK_STATUS"
	case HwdepEventDICENotification:
		return "DICE_NOTIFICATION"
	case HwdepEventEFWResponse:
		return "EFW_RESPONSE"
	case HwdepEventDigi00xMessage:
		return "DIGI00X_MESSAGE"
	case HwdepEventMOTUNotification:
		return "MOTU_NOTIFICATION"
	case HwdepEventTascamControl:
		return "TASCAM_CONTROL"
	default:
		return fmt.Sprintf("0x%08x", uint32(t))
	}
}

// ErrHwdepShortEvent indicates an event buffer too small for its type.
var ErrHwdepShortEvent = errors.New("hwdep event too short")

// HwdepEvent is a decoded hwdep event. Only the fields relevant to Type are
// set.
type HwdepEvent struct {
	Type HwdepEventType

	// Locked is set for HwdepEventLockStatus.
	Locked bool

	// Notification is set for HwdepEventDICENotification.
	Notification uint32

	// Payload holds the raw bytes after the header for every other type;
	// for HwdepEventEFWResponse it is one or more EFW frames.
	Payload []byte
}

// DecodeHwdepEvent decodes an event read from the hwdep node.
func DecodeHwdepEvent(buf []byte) (HwdepEvent, error) {
	if len(buf) < 4 {
		return HwdepEvent{}, fmt.Errorf("%w: %d bytes", ErrHwdepShortEvent, len(buf))
	}
	ev := HwdepEvent{Type: HwdepEventType(binary.NativeEndian.Uint32(buf))}

	switch ev.Type {
	case HwdepEventLockStatus:
		if len(buf) < 8 {
			return ev, fmt.Errorf("%w: lock status", ErrHwdepShortEvent)
		}
		ev.Locked = binary.NativeEndian.Uint32(buf[4:]) != 0
	case HwdepEventDICENotification:
		if len(buf) < 8 {
			return ev, fmt.Errorf("%w: dice notification", ErrHwdepShortEvent)
		}
		ev.Notification = binary.NativeEndian.Uint32(buf[4:])
	default:
		ev.Payload = append([]byte(nil), buf[4:]...)
	}
	return ev, nil
}
