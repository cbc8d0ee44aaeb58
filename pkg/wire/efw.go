package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fwctl/fwctl-go/pkg/quadlet"
)

// EFW frame constants.
const (
	// EFWVersion is the transaction format version written by the host.
	EFWVersion uint32 = 1

	// EFWHeaderQuadlets is the number of header quadlets before parameters.
	EFWHeaderQuadlets = 6

	// EFWMaxFrameBytes is the largest frame the hwdep node accepts.
	EFWMaxFrameBytes = 0x200

	// EFWSeqnumMax is the largest sequence number user space may use; the
	// range above it is reserved for the kernel driver.
	EFWSeqnumMax uint32 = 0xfffe

	// EFWStatusUnset is written into the status field of a request.
	EFWStatusUnset uint32 = 0xff
)

// EFW errors.
var (
	ErrEFWShortFrame = errors.New("efw frame too short")
	ErrEFWFrameSize  = errors.New("efw frame length out of range")
)

// EFWStatus is the status quadlet of an EFW response.
type EFWStatus uint32

const (
	EFWStatusOK EFWStatus = iota
	EFWStatusBad
	EFWStatusBadCommand
	EFWStatusCommErr
	EFWStatusBadQuadCount
	EFWStatusUnsupported
	EFWStatus1394Timeout
	EFWStatusDSPTimeout
	EFWStatusBadRate
	EFWStatusBadClock
	EFWStatusBadChannel
	EFWStatusBadPan
	EFWStatusFlashBusy
	EFWStatusBadMirror
	EFWStatusBadLED
	EFWStatusBadParameter
	EFWStatusIncomplete
)

var efwStatusNames = [...]string{
	EFWStatusOK:           "OK",
	EFWStatusBad:          "bad",
	EFWStatusBadCommand:   "bad command",
	EFWStatusCommErr:      "comm err",
	EFWStatusBadQuadCount: "bad quad count",
	EFWStatusUnsupported:  "unsupported",
	EFWStatus1394Timeout:  "1394 timeout",
	EFWStatusDSPTimeout:   "DSP timeout",
	EFWStatusBadRate:      "bad rate",
	EFWStatusBadClock:     "bad clock",
	EFWStatusBadChannel:   "bad channel",
	EFWStatusBadPan:       "bad pan",
	EFWStatusFlashBusy:    "flash busy",
	EFWStatusBadMirror:    "bad mirror",
	EFWStatusBadLED:       "bad LED",
	EFWStatusBadParameter: "bad parameter",
	EFWStatusIncomplete:   "incomplete",
}

// String returns the status name.
func (s EFWStatus) String() string {
	if int(s) < len(efwStatusNames) {
		return efwStatusNames[s]
	}
	return fmt.Sprintf("status %d", uint32(s))
}

// EFWFrame is one Echo Fireworks transaction.
//
// Layout (big-endian quadlets):
//
//	[0] length in quadlets, header included
//	[1] version
//	[2] sequence number
//	[3] category
//	[4] command
//	[5] status
//	[6...] parameters
type EFWFrame struct {
	Version  uint32
	Seqnum   uint32
	Category uint32
	Command  uint32
	Status   EFWStatus
	Params   quadlet.Frame
}

// Quadlets returns the frame length in quadlets.
func (f *EFWFrame) Quadlets() int {
	return EFWHeaderQuadlets + len(f.Params)
}

// Bytes encodes the frame.
func (f *EFWFrame) Bytes() ([]byte, error) {
	n := f.Quadlets()
	if n*quadlet.Size > EFWMaxFrameBytes {
		return nil, fmt.Errorf("%w: %d quadlets", ErrEFWFrameSize, n)
	}
	q := make(quadlet.Frame, 0, n)
	q = append(q, uint32(n), f.Version, f.Seqnum, f.Category, f.Command, uint32(f.Status))
	q = append(q, f.Params...)
	return q.Bytes(), nil
}

// ParseEFWFrames decodes one or more concatenated EFW frames, as delivered in
// a single hwdep response event.
func ParseEFWFrames(data []byte) ([]EFWFrame, error) {
	var frames []EFWFrame
	for len(data) > 0 {
		if len(data) < EFWHeaderQuadlets*quadlet.Size {
			return frames, fmt.Errorf("%w: %d bytes", ErrEFWShortFrame, len(data))
		}
		n := int(binary.BigEndian.Uint32(data))
		size := n * quadlet.Size
		if n < EFWHeaderQuadlets || size > len(data) {
			return frames, fmt.Errorf("%w: %d quadlets with %d bytes left", ErrEFWFrameSize, n, len(data))
		}

		q, err := quadlet.FromBytes(data[:size])
		if err != nil {
			return frames, err
		}
		frames = append(frames, EFWFrame{
			Version:  q[1],
			Seqnum:   q[2],
			Category: q[3],
			Command:  q[4],
			Status:   EFWStatus(q[5]),
			Params:   q[EFWHeaderQuadlets:].Clone(),
		})
		data = data[size:]
	}
	return frames, nil
}
