// Package responder answers requests the unit sends into a window of the
// local node's address space.
package responder

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fwctl/fwctl-go/pkg/hal"
	"github.com/fwctl/fwctl-go/pkg/quadlet"
	"github.com/fwctl/fwctl-go/pkg/unit"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

// Responder errors.
var (
	// ErrDeviceRejected indicates the kernel refused the window.
	ErrDeviceRejected = errors.New("device rejected address window")

	// ErrAlreadyRegistered indicates Register was called twice.
	ErrAlreadyRegistered = errors.New("responder already registered")

	// ErrNotRegistered indicates Unregister without a registration.
	ErrNotRegistered = errors.New("responder not registered")
)

// Handler handles one inbound request. It returns the response payload, or
// false to send no response at all. The payload is used for read and lock
// requests; writes are always acknowledged without data.
type Handler func(tcode wire.TCode, frame quadlet.Frame) (quadlet.Frame, bool)

// Responder binds a Handler to an address window of a session.
type Responder struct {
	handler Handler

	mu    sync.Mutex
	claim *unit.Claim
}

// New creates an unregistered responder.
func New(h Handler) *Responder {
	return &Responder{handler: h}
}

// Register claims [base, base+length) on s. The session must be listening.
// A window overlapping another registration on s fails with
// unit.ErrAddressConflict.
func (r *Responder) Register(s *unit.Session, base, length uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.claim != nil {
		return ErrAlreadyRegistered
	}
	claim, err := s.Claim(base, length, r.serve)
	if err != nil {
		if errors.Is(err, hal.ErrRejected) {
			return fmt.Errorf("%w: %w", ErrDeviceRejected, err)
		}
		return err
	}
	r.claim = claim
	return nil
}

// Unregister releases the window. If the session is already gone this only
// forgets the registration.
func (r *Responder) Unregister() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.claim == nil {
		return ErrNotRegistered
	}
	claim := r.claim
	r.claim = nil
	return claim.Release()
}

// Registered returns true while a window is held.
func (r *Responder) Registered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.claim != nil
}

// serve frames the handler's result into a response.
func (r *Responder) serve(req unit.InboundRequest) (unit.Reply, bool) {
	frame, err := quadlet.FromBytes(req.Data)
	if err != nil {
		return unit.Reply{RCode: wire.RCodeDataError}, true
	}

	payload, ok := r.handler(req.TCode, frame)
	if !ok {
		return unit.Reply{}, false
	}

	switch {
	case req.TCode.IsWrite():
		return unit.Reply{RCode: wire.RCodeComplete}, true
	case req.TCode.ResponseCarriesData():
		return unit.Reply{RCode: wire.RCodeComplete, Data: payload.Bytes()}, true
	default:
		return unit.Reply{RCode: wire.RCodeTypeError}, true
	}
}
