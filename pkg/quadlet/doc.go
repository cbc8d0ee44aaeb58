// Package quadlet implements the 32-bit word container used by every
// FireWire address-space transaction.
//
// A quadlet is always big-endian on the bus. Frame is the host-side
// representation: an ordered slice of uint32 whose width does not depend on
// the platform. Conversions to and from the wire are done only through
// FromBytes and Frame.Bytes.
//
//	frame, err := quadlet.FromBytes(payload)
//	fmt.Println(quadlet.Format(frame[0])) // 0x00000042
package quadlet
