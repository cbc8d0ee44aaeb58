// Package wire defines the binary wire contract between the host and a
// FireWire audio unit.
//
// Two kernel interfaces meet here: the IEEE 1394 asynchronous transaction
// layer exposed by the firewire character device, and the ALSA FireWire
// hwdep interface used for streaming locks, DICE notifications and Echo
// Fireworks (EFW) transactions. All multi-byte fields on the bus are
// big-endian quadlets; hwdep event headers are host-endian.
//
// # Transaction Codes
//
// TCode identifies the kind of asynchronous packet (read/write quadlet or
// block, lock). RCode is the response code returned by the bus or the
// responding node; RCodeComplete is the only success value.
//
// # Fixed Frames
//
//   - AV/C commands travel over FCP: a command frame is written to
//     FCPCommandAddress and the unit writes its response to
//     FCPResponseAddress. NewAVCFrame builds the 8-byte form with the unused
//     operands set to the 0xff "don't care" fill.
//   - EFW transactions are framed by EFWFrame: six header quadlets followed
//     by parameters.
package wire
