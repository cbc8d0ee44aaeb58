package unit

import (
	"errors"
	"fmt"

	"github.com/fwctl/fwctl-go/pkg/hal"
)

// Session errors.
var (
	// ErrVariantMismatch indicates the unit does not speak the variant it was
	// opened under. The device handle is already released.
	ErrVariantMismatch = errors.New("unit does not match protocol variant")

	// ErrListen indicates Listen failed.
	ErrListen = errors.New("cannot listen")

	// ErrNotReady indicates the session is not listening.
	ErrNotReady = errors.New("session not listening")

	// ErrSessionClosed indicates the unit was disconnected or the session
	// was closed.
	ErrSessionClosed = errors.New("session closed")

	// ErrAddressConflict indicates an address window overlaps one already
	// claimed on the session.
	ErrAddressConflict = errors.New("address window already claimed")
)

// deviceError maps device removal to ErrSessionClosed.
func deviceError(err error) error {
	if errors.Is(err, hal.ErrDisconnected) || errors.Is(err, hal.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrSessionClosed, err)
	}
	return err
}
