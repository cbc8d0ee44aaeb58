package unit

import (
	"fmt"
	"sync/atomic"

	"github.com/fwctl/fwctl-go/pkg/hal"
	"github.com/fwctl/fwctl-go/pkg/log"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

// InboundRequest is a request another node sent into a claimed window.
type InboundRequest struct {
	TCode      wire.TCode
	Offset     uint64
	Data       []byte
	Source     uint32
	Generation uint32
}

// Reply is the response to an InboundRequest.
type Reply struct {
	RCode wire.RCode
	Data  []byte
}

// RequestHandler handles an inbound request. Returning false finishes the
// request without sending a response frame.
type RequestHandler func(req InboundRequest) (Reply, bool)

// Claim is an address window allocated in the local node's address space.
type Claim struct {
	s       *Session
	base    uint64
	length  uint64
	shared  bool
	handler RequestHandler
	closure uint64
	handle  uint32

	released atomic.Bool
}

// ClaimOption configures a Claim.
type ClaimOption func(*Claim)

// Shared marks a claim that may overlap other claims, such as the FCP
// response register. Shared handlers run on the event reader and must not
// block.
func Shared() ClaimOption {
	return func(c *Claim) { c.shared = true }
}

// Claim allocates [base, base+length) and routes inbound requests inside it
// to h. An exclusive claim overlapping another exclusive claim of the
// session fails with ErrAddressConflict; a window the kernel refuses fails
// with an error wrapping hal.ErrRejected.
func (s *Session) Claim(base, length uint64, h RequestHandler, opts ...ClaimOption) (*Claim, error) {
	c := &Claim{s: s, base: base, length: length, handler: h}
	for _, opt := range opts {
		opt(c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return nil, err
	}
	if !c.shared {
		for _, other := range s.claims {
			if !other.shared && wire.Overlaps(base, length, other.base, other.length) {
				return nil, fmt.Errorf("%w: %#x+%#x overlaps %#x+%#x",
					ErrAddressConflict, base, length, other.base, other.length)
			}
		}
	}

	s.nextClosure++
	c.closure = s.nextClosure
	handle, err := s.dev.Allocate(base, length, c.closure)
	if err != nil {
		return nil, fmt.Errorf("allocate %#x+%#x: %w", base, length, deviceError(err))
	}
	c.handle = handle
	s.claims[c.closure] = c

	s.logger.Debug("address window claimed", "base", fmt.Sprintf("%#x", base), "length", length, "shared", c.shared)
	return c, nil
}

// Base returns the window start.
func (c *Claim) Base() uint64 { return c.base }

// Length returns the window size.
func (c *Claim) Length() uint64 { return c.length }

// Release frees the window. It is a no-op once the claim or the session is
// released.
func (c *Claim) Release() error {
	if c.released.Swap(true) {
		return nil
	}

	s := c.s
	s.mu.Lock()
	delete(s.claims, c.closure)
	gone := s.released || s.disconnected
	s.mu.Unlock()
	if gone {
		return nil
	}

	if err := s.dev.Deallocate(c.handle); err != nil {
		return fmt.Errorf("deallocate %#x: %w", c.base, deviceError(err))
	}
	s.logger.Debug("address window released", "base", fmt.Sprintf("%#x", c.base))
	return nil
}

// dispatchRequest routes an inbound request to its claim. Requests for
// unknown closures are answered with an address error.
func (s *Session) dispatchRequest(ev hal.Event) {
	s.mu.Lock()
	c := s.claims[ev.Closure]
	s.mu.Unlock()

	s.logPacket(log.DirectionIn, log.CategoryRequest, ev.TCode, ev.Offset, nil, ev.Generation, uint64(ev.Handle), ev.Data, nil)

	if c == nil {
		s.respond(ev, Reply{RCode: wire.RCodeAddressError}, true)
		return
	}
	if c.shared {
		c.serve(ev)
		return
	}
	s.sched.Post(func() { c.serve(ev) })
}

func (c *Claim) serve(ev hal.Event) {
	s := c.s
	if s.Released() {
		return
	}
	if c.released.Load() {
		s.respond(ev, Reply{}, false)
		return
	}
	reply, ok := c.handler(InboundRequest{
		TCode:      ev.TCode,
		Offset:     ev.Offset,
		Data:       ev.Data,
		Source:     ev.NodeID,
		Generation: ev.Generation,
	})
	s.respond(ev, reply, ok)
}

func (s *Session) respond(ev hal.Event, reply Reply, send bool) {
	if !send {
		if err := s.dev.ReleaseRequest(ev.Handle); err != nil {
			s.logger.Debug("release inbound request failed", "handle", ev.Handle, "error", err)
		}
		return
	}

	rcode := reply.RCode
	s.logPacket(log.DirectionOut, log.CategoryResponse, ev.TCode, ev.Offset, &rcode, ev.Generation, uint64(ev.Handle), reply.Data, nil)
	if err := s.dev.SendResponse(ev.Handle, reply.RCode, reply.Data); err != nil {
		s.logger.Warn("send response failed", "handle", ev.Handle, "error", err)
		s.logError(log.LayerBus, err, "send response")
	}
}
