package wire

// TCode is an IEEE 1394 transaction code.
//
// The values from TCodeLockMaskSwap upwards are the firewire character
// device's encoding of a lock request together with its extended tcode.
type TCode uint8

const (
	TCodeWriteQuadletRequest TCode = 0x0
	TCodeWriteBlockRequest   TCode = 0x1
	TCodeWriteResponse       TCode = 0x2
	TCodeReadQuadletRequest  TCode = 0x4
	TCodeReadBlockRequest    TCode = 0x5
	TCodeReadQuadletResponse TCode = 0x6
	TCodeReadBlockResponse   TCode = 0x7
	TCodeCycleStart          TCode = 0x8
	TCodeLockRequest         TCode = 0x9
	TCodeStreamData          TCode = 0xa
	TCodeLockResponse        TCode = 0xb

	TCodeLockMaskSwap        TCode = 0x11
	TCodeLockCompareSwap     TCode = 0x12
	TCodeLockFetchAdd        TCode = 0x13
	TCodeLockLittleAdd       TCode = 0x14
	TCodeLockBoundedAdd      TCode = 0x15
	TCodeLockWrapAdd         TCode = 0x16
	TCodeLockVendorDependent TCode = 0x17
)

// String returns the transaction code name.
func (t TCode) String() string {
	switch t {
	case TCodeWriteQuadletRequest:
		return "WRITE_QUADLET_REQUEST"
	case TCodeWriteBlockRequest:
		return "WRITE_BLOCK_REQUEST"
	case TCodeWriteResponse:
		return "WRITE_RESPONSE"
	case TCodeReadQuadletRequest:
		return "READ_QUADLET_REQUEST"
	case TCodeReadBlockRequest:
		return "READ_BLOCK_REQUEST"
	case TCodeReadQuadletResponse:
		return "READ_QUADLET_RESPONSE"
	case TCodeReadBlockResponse:
		return "READ_BLOCK_RESPONSE"
	case TCodeCycleStart:
		return "CYCLE_START"
	case TCodeLockRequest:
		return "LOCK_REQUEST"
	case TCodeStreamData:
		return "STREAM_DATA"
	case TCodeLockResponse:
		return "LOCK_RESPONSE"
	case TCodeLockMaskSwap:
		return "LOCK_MASK_SWAP"
	case TCodeLockCompareSwap:
		return "LOCK_COMPARE_SWAP"
	case TCodeLockFetchAdd:
		return "LOCK_FETCH_ADD"
	case TCodeLockLittleAdd:
		return "LOCK_LITTLE_ADD"
	case TCodeLockBoundedAdd:
		return "LOCK_BOUNDED_ADD"
	case TCodeLockWrapAdd:
		return "LOCK_WRAP_ADD"
	case TCodeLockVendorDependent:
		return "LOCK_VENDOR_DEPENDENT"
	default:
		return "UNKNOWN"
	}
}

// IsRead returns true for read request codes.
func (t TCode) IsRead() bool {
	return t == TCodeReadQuadletRequest || t == TCodeReadBlockRequest
}

// IsWrite returns true for write request codes.
func (t TCode) IsWrite() bool {
	return t == TCodeWriteQuadletRequest || t == TCodeWriteBlockRequest
}

// IsLock returns true for lock request codes, in either encoding.
func (t TCode) IsLock() bool {
	return t == TCodeLockRequest || (t >= TCodeLockMaskSwap && t <= TCodeLockVendorDependent)
}

// IsRequest returns true if the code names a request packet.
func (t TCode) IsRequest() bool {
	return t.IsRead() || t.IsWrite() || t.IsLock()
}

// ResponseCarriesData returns true if a response to this request includes a
// data payload. Write responses never do.
func (t TCode) ResponseCarriesData() bool {
	return t.IsRead() || t.IsLock()
}

// ReadCode returns the read request code for a transfer of n quadlets.
func ReadCode(quadlets int) TCode {
	if quadlets == 1 {
		return TCodeReadQuadletRequest
	}
	return TCodeReadBlockRequest
}

// WriteCode returns the write request code for a transfer of n quadlets.
func WriteCode(quadlets int) TCode {
	if quadlets == 1 {
		return TCodeWriteQuadletRequest
	}
	return TCodeWriteBlockRequest
}
