package quadlet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Size is the number of bytes in one quadlet.
const Size = 4

// MaxAddress is the highest offset in a node's 48-bit address space.
const MaxAddress uint64 = 1<<48 - 1

// Codec errors.
var (
	ErrUnaligned    = errors.New("byte length is not a multiple of 4")
	ErrInvalidValue = errors.New("invalid quadlet value")
	ErrAddressRange = errors.New("address outside the 48-bit address space")
)

// Frame is an ordered sequence of quadlets.
type Frame []uint32

// FromBytes decodes big-endian bytes into a Frame.
func FromBytes(data []byte) (Frame, error) {
	if len(data)%Size != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrUnaligned, len(data))
	}
	f := make(Frame, len(data)/Size)
	for i := range f {
		f[i] = binary.BigEndian.Uint32(data[i*Size:])
	}
	return f, nil
}

// Bytes encodes the frame as big-endian bytes.
func (f Frame) Bytes() []byte {
	buf := make([]byte, len(f)*Size)
	for i, q := range f {
		binary.BigEndian.PutUint32(buf[i*Size:], q)
	}
	return buf
}

// Clone returns a copy of the frame that shares no storage with f.
func (f Frame) Clone() Frame {
	if f == nil {
		return nil
	}
	c := make(Frame, len(f))
	copy(c, f)
	return c
}

// Lines renders one line per quadlet as " [NN]: 0xXXXXXXXX".
func (f Frame) Lines() []string {
	lines := make([]string, len(f))
	for i, q := range f {
		lines[i] = fmt.Sprintf(" [%02d]: %s", i, Format(q))
	}
	return lines
}

// String implements fmt.Stringer.
func (f Frame) String() string {
	parts := make([]string, len(f))
	for i, q := range f {
		parts[i] = Format(q)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Format renders a quadlet as zero-padded, 8-hex-digit text with a 0x prefix.
func Format(q uint32) string {
	return fmt.Sprintf("0x%08x", q)
}

// Parse parses a quadlet written in hex, with or without a 0x prefix.
func Parse(s string) (uint32, error) {
	v, err := strconv.ParseUint(trimHex(s), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}
	return uint32(v), nil
}

// ParseAddress parses a 48-bit FireWire offset written in hex, with or
// without a 0x prefix. Values above MaxAddress fail with ErrAddressRange.
func ParseAddress(s string) (uint64, error) {
	v, err := strconv.ParseUint(trimHex(s), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if v > MaxAddress {
		return 0, fmt.Errorf("%w: %q", ErrAddressRange, s)
	}
	return v, nil
}

func trimHex(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
