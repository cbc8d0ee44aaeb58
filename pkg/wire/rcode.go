package wire

// RCode represents an IEEE 1394 response code, extended with the
// pseudo-codes the Linux firewire stack reports for local failures.
type RCode uint32

const (
	// RCodeComplete indicates the transaction completed successfully.
	RCodeComplete RCode = 0x00

	// RCodeConflictError indicates a resource conflict; the request may be retried.
	RCodeConflictError RCode = 0x04

	// RCodeDataError indicates the data field failed its CRC or was malformed.
	RCodeDataError RCode = 0x05

	// RCodeTypeError indicates the request type is not supported by the node.
	RCodeTypeError RCode = 0x06

	// RCodeAddressError indicates the destination offset is not accessible.
	RCodeAddressError RCode = 0x07

	// RCodeSendError indicates the request packet could not be sent.
	RCodeSendError RCode = 0x10

	// RCodeCancelled indicates the transaction was cancelled locally.
	RCodeCancelled RCode = 0x11

	// RCodeBusy indicates the node kept answering busy.
	RCodeBusy RCode = 0x12

	// RCodeGeneration indicates the bus generation changed before sending.
	RCodeGeneration RCode = 0x13

	// RCodeNoAck indicates no acknowledge was received.
	RCodeNoAck RCode = 0x14
)

// String returns the response code name.
func (r RCode) String() string {
	switch r {
	case RCodeComplete:
		return "COMPLETE"
	case RCodeConflictError:
		return "CONFLICT_ERROR"
	case RCodeDataError:
		return "DATA_ERROR"
	case RCodeTypeError:
		return "TYPE_ERROR"
	case RCodeAddressError:
		return "ADDRESS_ERROR"
	case RCodeSendError:
		return "SEND_ERROR"
	case RCodeCancelled:
		return "CANCELLED"
	case RCodeBusy:
		return "BUSY"
	case RCodeGeneration:
		return "GENERATION"
	case RCodeNoAck:
		return "NO_ACK"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the code indicates success.
func (r RCode) IsSuccess() bool {
	return r == RCodeComplete
}

// IsError returns true if the code indicates an error.
func (r RCode) IsError() bool {
	return r != RCodeComplete
}
