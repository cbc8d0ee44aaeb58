package wire

// Well-known offsets in the 48-bit node address space.
const (
	// AddressMask selects the 48-bit offset part of a FireWire address.
	AddressMask uint64 = 0xffffffffffff

	// CSRRegisterBase is the start of the CSR architecture register space.
	CSRRegisterBase uint64 = 0xfffff0000000

	// ConfigROMAddress is the start of the configuration ROM.
	ConfigROMAddress uint64 = 0xfffff0000400

	// FCPCommandAddress receives AV/C command frames.
	FCPCommandAddress uint64 = 0xfffff0000b00

	// FCPResponseAddress receives AV/C response frames.
	FCPResponseAddress uint64 = 0xfffff0000d00

	// FCPMaxFrameBytes is the size of each FCP register window.
	FCPMaxFrameBytes = 0x200
)

// IsFCPRegion returns true if [offset, offset+length) lies within the FCP
// command or response registers. The kernel lets several clients share
// windows in this region.
func IsFCPRegion(offset, length uint64) bool {
	return offset >= FCPCommandAddress && offset+length <= FCPResponseAddress+FCPMaxFrameBytes
}

// Overlaps returns true if the windows [a, a+alen) and [b, b+blen) share at
// least one byte.
func Overlaps(a, alen, b, blen uint64) bool {
	return a < b+blen && b < a+alen
}

// Contains returns true if [offset, offset+length) lies within
// [base, base+size).
func Contains(base, size, offset, length uint64) bool {
	return offset >= base && offset+length <= base+size
}
