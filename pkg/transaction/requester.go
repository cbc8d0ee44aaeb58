package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fwctl/fwctl-go/pkg/hal"
	"github.com/fwctl/fwctl-go/pkg/quadlet"
	"github.com/fwctl/fwctl-go/pkg/unit"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

// Requester issues plain asynchronous transactions to the unit.
type Requester struct {
	s       *unit.Session
	timeout time.Duration
}

// NewRequester creates a Requester on s.
func NewRequester(s *unit.Session, opts ...Option) *Requester {
	o := buildOptions(DefaultRequestTimeout, opts)
	return &Requester{s: s, timeout: o.timeout}
}

// Read reads quadlets starting at addr. A single quadlet uses a read-quadlet
// request, anything longer a read-block request.
func (r *Requester) Read(ctx context.Context, addr uint64, quadlets int) (quadlet.Frame, error) {
	if quadlets <= 0 {
		return nil, fmt.Errorf("read 0x%012x: %w: %d quadlets", addr, ErrInvalidFrame, quadlets)
	}
	data, err := request(ctx, r.s, r.timeout, "read", hal.Request{
		TCode:  wire.ReadCode(quadlets),
		Offset: addr,
		Length: quadlets * quadlet.Size,
	})
	if err != nil {
		return nil, err
	}
	frame, err := quadlet.FromBytes(data)
	if err != nil || len(frame) != quadlets {
		return nil, &IOError{Op: "read", Addr: addr, Err: fmt.Errorf("short response of %d bytes", len(data))}
	}
	return frame, nil
}

// Write writes frame starting at addr.
func (r *Requester) Write(ctx context.Context, addr uint64, frame quadlet.Frame) error {
	if len(frame) == 0 {
		return fmt.Errorf("write 0x%012x: %w: empty frame", addr, ErrInvalidFrame)
	}
	_, err := request(ctx, r.s, r.timeout, "write", hal.Request{
		TCode:  wire.WriteCode(len(frame)),
		Offset: addr,
		Data:   frame.Bytes(),
	})
	return err
}

// CompareSwap replaces the value at addr with data if it currently equals
// arg, and returns the value found. arg and data are one quadlet (32-bit
// lock) or two quadlets (64-bit lock).
func (r *Requester) CompareSwap(ctx context.Context, addr uint64, arg, data quadlet.Frame) (quadlet.Frame, error) {
	if len(arg) != len(data) || len(arg) < 1 || len(arg) > 2 {
		return nil, fmt.Errorf("compare-swap 0x%012x: %w: %d/%d quadlets", addr, ErrInvalidFrame, len(arg), len(data))
	}
	payload := append(arg.Bytes(), data.Bytes()...)
	resp, err := request(ctx, r.s, r.timeout, "compare-swap", hal.Request{
		TCode:  wire.TCodeLockCompareSwap,
		Offset: addr,
		Data:   payload,
	})
	if err != nil {
		return nil, err
	}
	old, err := quadlet.FromBytes(resp)
	if err != nil || len(old) != len(arg) {
		return nil, &IOError{Op: "compare-swap", Addr: addr, Err: fmt.Errorf("short response of %d bytes", len(resp))}
	}
	return old, nil
}

// request runs one transaction and maps failures to *IOError. Session
// state errors and the caller's own context errors pass through wrapped.
func request(ctx context.Context, s *unit.Session, timeout time.Duration, op string, req hal.Request) ([]byte, error) {
	if req.Offset&^wire.AddressMask != 0 {
		return nil, fmt.Errorf("%s 0x%x: %w", op, req.Offset, ErrInvalidAddress)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rcode, data, err := s.Request(tctx, req)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("%s 0x%012x: %w", op, req.Offset, ctx.Err())
		case errors.Is(err, context.DeadlineExceeded):
			return nil, &IOError{Op: op, Addr: req.Offset, Err: ErrTimeout}
		default:
			return nil, fmt.Errorf("%s 0x%012x: %w", op, req.Offset, err)
		}
	}
	if rcode != wire.RCodeComplete {
		return nil, &IOError{Op: op, Addr: req.Offset, RCode: rcode}
	}
	return data, nil
}
