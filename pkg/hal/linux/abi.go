//go:build linux

package linux

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"

	"github.com/fwctl/fwctl-go/pkg/hal"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

// ioctl number encoding (asm-generic/ioctl.h).
const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func ioc(dir, typ, nr, size uintptr) uint {
	return uint(dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift)
}

// sndFirewireGetInfo mirrors struct snd_firewire_get_info.
type sndFirewireGetInfo struct {
	typ        uint32
	card       uint32
	guid       [8]byte
	deviceName [16]byte
}

// fwCdevGetInfo mirrors struct fw_cdev_get_info.
type fwCdevGetInfo struct {
	version         uint32
	romLength       uint32
	rom             uint64
	busReset        uint64
	busResetClosure uint64
	card            uint32
}

// fwCdevSendRequest mirrors struct fw_cdev_send_request.
type fwCdevSendRequest struct {
	tcode      uint32
	length     uint32
	offset     uint64
	closure    uint64
	data       uint64
	generation uint32
}

// fwCdevAllocate mirrors struct fw_cdev_allocate.
type fwCdevAllocate struct {
	offset    uint64
	closure   uint64
	length    uint32
	handle    uint32
	regionEnd uint64
}

// fwCdevDeallocate mirrors struct fw_cdev_deallocate.
type fwCdevDeallocate struct {
	handle uint32
}

// fwCdevSendResponse mirrors struct fw_cdev_send_response.
type fwCdevSendResponse struct {
	rcode  uint32
	length uint32
	data   uint64
	handle uint32
}

// ALSA hwdep ioctls (sound/firewire.h).
var (
	ioctlSndFirewireGetInfo = ioc(iocRead, 'H', 0xf8, unsafe.Sizeof(sndFirewireGetInfo{}))
	ioctlSndFirewireLock    = ioc(iocNone, 'H', 0xf9, 0)
	ioctlSndFirewireUnlock  = ioc(iocNone, 'H', 0xfa, 0)
)

// firewire character device ioctls (linux/firewire-cdev.h).
var (
	ioctlFwCdevGetInfo      = ioc(iocRead|iocWrite, '#', 0x00, unsafe.Sizeof(fwCdevGetInfo{}))
	ioctlFwCdevSendRequest  = ioc(iocWrite, '#', 0x01, unsafe.Sizeof(fwCdevSendRequest{}))
	ioctlFwCdevAllocate     = ioc(iocRead|iocWrite, '#', 0x02, unsafe.Sizeof(fwCdevAllocate{}))
	ioctlFwCdevDeallocate   = ioc(iocWrite, '#', 0x03, unsafe.Sizeof(fwCdevDeallocate{}))
	ioctlFwCdevSendResponse = ioc(iocWrite, '#', 0x04, unsafe.Sizeof(fwCdevSendResponse{}))
)

// fwCdevVersion is the ABI version requested at open. Version 4 delivers
// inbound requests as FW_CDEV_EVENT_REQUEST2.
const fwCdevVersion = 4

// firewire character device event types.
const (
	fwCdevEventBusReset = 0x00
	fwCdevEventResponse = 0x01
	fwCdevEventRequest  = 0x02
	fwCdevEventRequest2 = 0x06
)

// Offsets into cdev events. Every event starts with u64 closure, u32 type.
const (
	cdevHeaderSize = 12

	busResetNodeID     = 12
	busResetGeneration = 32
	busResetSize       = 36

	responseRCode  = 12
	responseLength = 16
	responseData   = 20

	requestTCode  = 12
	requestOffset = 16
	requestHandle = 24
	requestLength = 28
	requestData   = 32

	request2TCode      = 12
	request2Offset     = 16
	request2Source     = 24
	request2Generation = 36
	request2Handle     = 40
	request2Length     = 44
	request2Data       = 48
)

var errShortCdevEvent = errors.New("firewire cdev event too short")

// decodeCdevEvent decodes one event read from the firewire character device.
// Unknown event types return ok=false.
func decodeCdevEvent(buf []byte) (ev hal.Event, ok bool, err error) {
	ne := binary.NativeEndian
	if len(buf) < cdevHeaderSize {
		return ev, false, fmt.Errorf("%w: %d bytes", errShortCdevEvent, len(buf))
	}
	closure := ne.Uint64(buf)
	typ := ne.Uint32(buf[8:])

	switch typ {
	case fwCdevEventBusReset:
		if len(buf) < busResetSize {
			return ev, false, fmt.Errorf("%w: bus reset", errShortCdevEvent)
		}
		return hal.Event{
			Type:       hal.EventBusReset,
			Closure:    closure,
			NodeID:     ne.Uint32(buf[busResetNodeID:]),
			Generation: ne.Uint32(buf[busResetGeneration:]),
		}, true, nil

	case fwCdevEventResponse:
		data, err := payload(buf, responseLength, responseData)
		if err != nil {
			return ev, false, err
		}
		return hal.Event{
			Type:    hal.EventResponse,
			Closure: closure,
			RCode:   wire.RCode(ne.Uint32(buf[responseRCode:])),
			Data:    data,
		}, true, nil

	case fwCdevEventRequest:
		data, err := payload(buf, requestLength, requestData)
		if err != nil {
			return ev, false, err
		}
		return hal.Event{
			Type:    hal.EventRequest,
			Closure: closure,
			TCode:   wire.TCode(ne.Uint32(buf[requestTCode:])),
			Offset:  ne.Uint64(buf[requestOffset:]),
			Handle:  ne.Uint32(buf[requestHandle:]),
			Data:    data,
		}, true, nil

	case fwCdevEventRequest2:
		data, err := payload(buf, request2Length, request2Data)
		if err != nil {
			return ev, false, err
		}
		return hal.Event{
			Type:       hal.EventRequest,
			Closure:    closure,
			TCode:      wire.TCode(ne.Uint32(buf[request2TCode:])),
			Offset:     ne.Uint64(buf[request2Offset:]),
			NodeID:     ne.Uint32(buf[request2Source:]),
			Generation: ne.Uint32(buf[request2Generation:]),
			Handle:     ne.Uint32(buf[request2Handle:]),
			Data:       data,
		}, true, nil
	}
	return ev, false, nil
}

func payload(buf []byte, lengthAt, dataAt int) ([]byte, error) {
	if len(buf) < dataAt {
		return nil, fmt.Errorf("%w: %d bytes", errShortCdevEvent, len(buf))
	}
	n := int(binary.NativeEndian.Uint32(buf[lengthAt:]))
	if len(buf) < dataAt+n {
		return nil, fmt.Errorf("%w: payload of %d bytes", errShortCdevEvent, n)
	}
	return append([]byte(nil), buf[dataAt:dataAt+n]...), nil
}

// decodeHwdepEvent converts an ALSA hwdep event to a hal event. Events of
// other device families return ok=false.
func decodeHwdepEvent(buf []byte) (hal.Event, bool, error) {
	hev, err := wire.DecodeHwdepEvent(buf)
	if err != nil {
		return hal.Event{}, false, err
	}
	switch hev.Type {
	case wire.HwdepEventLockStatus:
		return hal.Event{Type: hal.EventLockStatus, Locked: hev.Locked}, true, nil
	case wire.HwdepEventDICENotification:
		return hal.Event{Type: hal.EventDICENotification, Notification: hev.Notification}, true, nil
	case wire.HwdepEventEFWResponse:
		return hal.Event{Type: hal.EventEFWResponse, Data: hev.Payload}, true, nil
	}
	return hal.Event{}, false, nil
}

// infoFromHwdep converts the GET_INFO result.
func infoFromHwdep(gi *sndFirewireGetInfo) hal.Info {
	name := gi.deviceName[:]
	for i, c := range name {
		if c == 0 {
			name = name[:i]
			break
		}
	}
	return hal.Info{
		Family: wire.Family(gi.typ),
		Card:   int(gi.card),
		Device: string(name),
		GUID:   binary.BigEndian.Uint64(gi.guid[:]),
	}
}
