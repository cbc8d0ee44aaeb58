package wire

import "fmt"

// AVCCode is the first byte of an AV/C frame: a command type (ctype) in
// requests or a response code in responses.
type AVCCode uint8

const (
	AVCControl         AVCCode = 0x00
	AVCStatus          AVCCode = 0x01
	AVCSpecificInquiry AVCCode = 0x02
	AVCNotify          AVCCode = 0x03
	AVCGeneralInquiry  AVCCode = 0x04

	AVCNotImplemented    AVCCode = 0x08
	AVCAccepted          AVCCode = 0x09
	AVCRejected          AVCCode = 0x0a
	AVCInTransition      AVCCode = 0x0b
	AVCImplementedStable AVCCode = 0x0c
	AVCChanged           AVCCode = 0x0d
	AVCInterim           AVCCode = 0x0f
)

// AVC frame constants.
const (
	// AVCSubunitUnit addresses the unit itself rather than a subunit.
	AVCSubunitUnit byte = 0xff

	// AVCFill is the "don't care" value for unused operand bytes.
	AVCFill byte = 0xff

	// AVCCommandFrameSize is the length of the fixed command frame.
	AVCCommandFrameSize = 8

	// AVCMinFrameSize is the smallest frame with ctype, subunit and opcode.
	AVCMinFrameSize = 3
)

// String returns the code name.
func (c AVCCode) String() string {
	switch c {
	case AVCControl:
		return "CONTROL"
	case AVCStatus:
		return "STATUS"
	case AVCSpecificInquiry:
		return "SPECIFIC_INQUIRY"
	case AVCNotify:
		return "NOTIFY"
	case AVCGeneralInquiry:
		return "GENERAL_INQUIRY"
	case AVCNotImplemented:
		return "NOT_IMPLEMENTED"
	case AVCAccepted:
		return "ACCEPTED"
	case AVCRejected:
		return "REJECTED"
	case AVCInTransition:
		return "IN_TRANSITION"
	case AVCImplementedStable:
		return "IMPLEMENTED_STABLE"
	case AVCChanged:
		return "CHANGED"
	case AVCInterim:
		return "INTERIM"
	default:
		return fmt.Sprintf("0x%02x", uint8(c))
	}
}

// IsResponse returns true if the code is an AV/C response code.
func (c AVCCode) IsResponse() bool {
	return c >= AVCNotImplemented && c <= AVCInterim
}

// NewAVCFrame builds an AV/C command frame. The frame is at least
// AVCCommandFrameSize bytes; unused trailing bytes are set to AVCFill and the
// length is rounded up to a whole quadlet.
func NewAVCFrame(ctype AVCCode, subunit, opcode byte, operands ...byte) []byte {
	n := AVCMinFrameSize + len(operands)
	if n < AVCCommandFrameSize {
		n = AVCCommandFrameSize
	}
	if rem := n % 4; rem != 0 {
		n += 4 - rem
	}

	frame := make([]byte, n)
	frame[0] = byte(ctype)
	frame[1] = subunit
	frame[2] = opcode
	copy(frame[3:], operands)
	for i := AVCMinFrameSize + len(operands); i < n; i++ {
		frame[i] = AVCFill
	}
	return frame
}

// AVCResponseCode returns the response code of an AV/C frame.
func AVCResponseCode(frame []byte) AVCCode {
	if len(frame) == 0 {
		return 0
	}
	return AVCCode(frame[0] & 0x0f)
}

// AVCMatches returns true if resp answers req: the subunit and opcode bytes
// are the same.
func AVCMatches(req, resp []byte) bool {
	if len(req) < AVCMinFrameSize || len(resp) < AVCMinFrameSize {
		return false
	}
	return req[1] == resp[1] && req[2] == resp[2]
}
