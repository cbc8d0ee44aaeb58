package transaction

import (
	"errors"
	"fmt"

	"github.com/fwctl/fwctl-go/pkg/wire"
)

// Transaction errors.
var (
	// ErrIO matches every *IOError.
	ErrIO = errors.New("transaction failed")

	// ErrTimeout indicates no response arrived in time.
	ErrTimeout = errors.New("transaction timed out")

	// ErrNotificationTimeout indicates the expected DICE notification did
	// not arrive.
	ErrNotificationTimeout = errors.New("notification timed out")

	// ErrUnsupported indicates the session's variant does not support the
	// transaction shape.
	ErrUnsupported = errors.New("transaction not supported by variant")

	// ErrInvalidFrame indicates a malformed request frame or length.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrInvalidAddress indicates an offset beyond the 48-bit address space.
	ErrInvalidAddress = errors.New("address outside the 48-bit address space")

	// ErrClosed indicates the transaction helper was closed.
	ErrClosed = errors.New("transaction helper closed")
)

// IOError reports a failed bus transaction. Either RCode holds the failing
// response code or Err holds the cause (such as ErrTimeout).
type IOError struct {
	Op    string
	Addr  uint64
	RCode wire.RCode
	Err   error
}

// Error implements error.
func (e *IOError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s 0x%012x: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("%s 0x%012x: %s", e.Op, e.Addr, e.RCode)
}

// Is reports ErrIO.
func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

// Unwrap returns the cause.
func (e *IOError) Unwrap() error {
	return e.Err
}

// EFWStatusError is returned when an EFW response carries a status other
// than OK.
type EFWStatusError struct {
	Category uint32
	Command  uint32
	Status   wire.EFWStatus
}

// Error implements error.
func (e *EFWStatusError) Error() string {
	return fmt.Sprintf("efw %d/%d: %s", e.Category, e.Command, e.Status)
}
