package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwctl/fwctl-go/pkg/quadlet"
)

func TestNewAVCFrameFill(t *testing.T) {
	frame := NewAVCFrame(AVCStatus, AVCSubunitUnit, 0x19, 0x00)
	assert.Equal(t, []byte{0x01, 0xff, 0x19, 0x00, 0xff, 0xff, 0xff, 0xff}, frame)
}

func TestNewAVCFrameLongOperands(t *testing.T) {
	frame := NewAVCFrame(AVCControl, 0x08, 0x30, 1, 2, 3, 4, 5, 6)
	require.Len(t, frame, 12)
	assert.Equal(t, byte(6), frame[8])
	assert.Equal(t, []byte{0xff, 0xff, 0xff}, frame[9:])
}

func TestAVCMatches(t *testing.T) {
	req := NewAVCFrame(AVCStatus, AVCSubunitUnit, 0x19)
	resp := []byte{byte(AVCImplementedStable), 0xff, 0x19, 0x00}
	assert.True(t, AVCMatches(req, resp))
	assert.Equal(t, AVCImplementedStable, AVCResponseCode(resp))

	other := []byte{byte(AVCAccepted), 0xff, 0x02, 0x00}
	assert.False(t, AVCMatches(req, other))
	assert.False(t, AVCMatches(req, []byte{0x09}))
}

func TestAVCCodeString(t *testing.T) {
	assert.Equal(t, "INTERIM", AVCInterim.String())
	assert.Equal(t, "0x05", AVCCode(5).String())
	assert.True(t, AVCRejected.IsResponse())
	assert.False(t, AVCControl.IsResponse())
}

func TestEFWFrameRoundTrip(t *testing.T) {
	req := EFWFrame{
		Version:  EFWVersion,
		Seqnum:   4,
		Category: 6,
		Command:  1,
		Status:   EFWStatus(EFWStatusUnset),
		Params:   quadlet.Frame{5},
	}
	data, err := req.Bytes()
	require.NoError(t, err)
	require.Len(t, data, 7*4)
	assert.Equal(t, []byte{0, 0, 0, 7}, data[:4])

	frames, err := ParseEFWFrames(data)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, req, frames[0])
}

func TestParseEFWFramesConcatenated(t *testing.T) {
	a := EFWFrame{Version: 1, Seqnum: 1, Category: 3, Command: 0}
	b := EFWFrame{Version: 1, Seqnum: 3, Category: 6, Command: 1, Params: quadlet.Frame{9, 8}}
	da, err := a.Bytes()
	require.NoError(t, err)
	db, err := b.Bytes()
	require.NoError(t, err)

	frames, err := ParseEFWFrames(append(da, db...))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, uint32(1), frames[0].Seqnum)
	assert.Empty(t, frames[0].Params)
	assert.Equal(t, quadlet.Frame{9, 8}, frames[1].Params)
}

func TestParseEFWFramesTruncated(t *testing.T) {
	_, err := ParseEFWFrames([]byte{0, 0, 0, 7, 0, 0, 0, 1})
	assert.ErrorIs(t, err, ErrEFWShortFrame)

	bad := quadlet.Frame{9, 1, 1, 1, 1, 0}.Bytes()
	_, err = ParseEFWFrames(bad)
	assert.ErrorIs(t, err, ErrEFWFrameSize)
}

func TestEFWFrameTooLarge(t *testing.T) {
	f := EFWFrame{Params: make(quadlet.Frame, EFWMaxFrameBytes/4)}
	_, err := f.Bytes()
	assert.ErrorIs(t, err, ErrEFWFrameSize)
}

func TestEFWStatusString(t *testing.T) {
	assert.Equal(t, "OK", EFWStatusOK.String())
	assert.Equal(t, "bad LED", EFWStatusBadLED.String())
	assert.Equal(t, "status 99", EFWStatus(99).String())
}

// encodeHwdepEvent lays ev out the way the kernel writes it.
func encodeHwdepEvent(ev HwdepEvent) []byte {
	buf := make([]byte, 4, 8+len(ev.Payload))
	binary.NativeEndian.PutUint32(buf, uint32(ev.Type))
	switch ev.Type {
	case HwdepEventLockStatus:
		var v uint32
		if ev.Locked {
			v = 1
		}
		buf = binary.NativeEndian.AppendUint32(buf, v)
	case HwdepEventDICENotification:
		buf = binary.NativeEndian.AppendUint32(buf, ev.Notification)
	default:
		buf = append(buf, ev.Payload...)
	}
	return buf
}

func TestHwdepEventRoundTrip(t *testing.T) {
	tests := []HwdepEvent{
		{Type: HwdepEventLockStatus, Locked: true},
		{Type: HwdepEventLockStatus},
		{Type: HwdepEventDICENotification, Notification: 0x20},
		{Type: HwdepEventEFWResponse, Payload: []byte{0, 0, 0, 6}},
	}
	for _, ev := range tests {
		t.Run(ev.Type.String(), func(t *testing.T) {
			got, err := DecodeHwdepEvent(encodeHwdepEvent(ev))
			require.NoError(t, err)
			assert.Equal(t, ev.Type, got.Type)
			assert.Equal(t, ev.Locked, got.Locked)
			assert.Equal(t, ev.Notification, got.Notification)
			if len(ev.Payload) > 0 {
				assert.Equal(t, ev.Payload, got.Payload)
			}
		})
	}
}

func TestDecodeHwdepEventShort(t *testing.T) {
	_, err := DecodeHwdepEvent([]byte{1})
	assert.ErrorIs(t, err, ErrHwdepShortEvent)

	buf := encodeHwdepEvent(HwdepEvent{Type: HwdepEventDICENotification})
	_, err = DecodeHwdepEvent(buf[:4])
	assert.ErrorIs(t, err, ErrHwdepShortEvent)
}

func TestTCodeClassification(t *testing.T) {
	assert.True(t, TCodeReadBlockRequest.IsRead())
	assert.True(t, TCodeWriteQuadletRequest.IsWrite())
	assert.True(t, TCodeLockCompareSwap.IsLock())
	assert.True(t, TCodeLockRequest.IsLock())
	assert.False(t, TCodeReadQuadletResponse.IsRequest())
	assert.False(t, TCodeWriteBlockRequest.ResponseCarriesData())
	assert.True(t, TCodeReadQuadletRequest.ResponseCarriesData())

	assert.Equal(t, TCodeReadQuadletRequest, ReadCode(1))
	assert.Equal(t, TCodeReadBlockRequest, ReadCode(4))
	assert.Equal(t, TCodeWriteQuadletRequest, WriteCode(1))
	assert.Equal(t, TCodeWriteBlockRequest, WriteCode(2))
}

func TestWindows(t *testing.T) {
	assert.True(t, Overlaps(0x100, 0x100, 0x1ff, 1))
	assert.False(t, Overlaps(0x100, 0x100, 0x200, 0x10))
	assert.True(t, Contains(0xfffff0000d00, 0x100, 0xfffff0000d00, 8))
	assert.False(t, Contains(0xfffff0000d00, 0x100, 0xfffff0000dfc, 8))
	assert.True(t, IsFCPRegion(FCPResponseAddress, FCPMaxFrameBytes))
	assert.False(t, IsFCPRegion(0xfffff0000980, 4))
}

func TestFamily(t *testing.T) {
	assert.Equal(t, "FIREWORKS", FamilyFireworks.String())
	assert.False(t, FamilyDICE.SupportsFCP())
	assert.True(t, FamilyBeBoB.SupportsFCP())
}
