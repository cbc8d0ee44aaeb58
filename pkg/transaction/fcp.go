package transaction

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fwctl/fwctl-go/pkg/hal"
	"github.com/fwctl/fwctl-go/pkg/log"
	"github.com/fwctl/fwctl-go/pkg/unit"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

// fcpBacklog bounds the response frames buffered for the waiting command.
const fcpBacklog = 8

// FCP exchanges AV/C frames over the FCP registers. One command is in
// flight at a time.
type FCP struct {
	s       *unit.Session
	timeout time.Duration
	claim   *unit.Claim

	mu sync.Mutex

	rxMu    sync.Mutex
	waiting bool
	closed  bool
	frames  chan []byte
}

// NewFCP listens on the FCP response register of s. DICE sessions return
// ErrUnsupported.
func NewFCP(s *unit.Session, opts ...Option) (*FCP, error) {
	if s.Variant() == unit.VariantDICE {
		return nil, fmt.Errorf("fcp: %w: %s", ErrUnsupported, s.Variant())
	}
	o := buildOptions(DefaultFCPTimeout, opts)
	f := &FCP{
		s:       s,
		timeout: o.timeout,
		frames:  make(chan []byte, fcpBacklog),
	}

	claim, err := s.Claim(wire.FCPResponseAddress, wire.FCPMaxFrameBytes, f.receive, unit.Shared())
	if err != nil {
		return nil, fmt.Errorf("fcp: %w", err)
	}
	f.claim = claim
	return f, nil
}

// receive runs on the session reader. The kernel answers FCP writes itself,
// so the request is only released.
func (f *FCP) receive(req unit.InboundRequest) (unit.Reply, bool) {
	if !req.TCode.IsWrite() || req.Offset != wire.FCPResponseAddress {
		return unit.Reply{}, false
	}

	f.rxMu.Lock()
	defer f.rxMu.Unlock()
	if f.waiting {
		select {
		case f.frames <- bytes.Clone(req.Data):
		default:
		}
	}
	return unit.Reply{}, false
}

// Transact writes cmd to the FCP command register and returns the matching
// response frame verbatim. INTERIM responses restart the wait. cmd must be at
// least wire.AVCCommandFrameSize bytes; build it with wire.NewAVCFrame.
func (f *FCP) Transact(ctx context.Context, cmd []byte) ([]byte, error) {
	if len(cmd) < wire.AVCCommandFrameSize || len(cmd)%4 != 0 || len(cmd) > wire.FCPMaxFrameBytes {
		return nil, fmt.Errorf("fcp: %w: %d bytes", ErrInvalidFrame, len(cmd))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.arm(); err != nil {
		return nil, err
	}
	defer f.disarm()

	f.logFrame(log.DirectionOut, log.CategoryRequest, cmd)
	_, err := request(ctx, f.s, f.timeout, "fcp", hal.Request{
		TCode:  wire.WriteCode(len(cmd) / 4),
		Offset: wire.FCPCommandAddress,
		Data:   cmd,
	})
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()
	for {
		select {
		case resp := <-f.frames:
			if !wire.AVCResponseCode(resp).IsResponse() || !wire.AVCMatches(cmd, resp) {
				continue
			}
			f.logFrame(log.DirectionIn, log.CategoryResponse, resp)
			if wire.AVCResponseCode(resp) == wire.AVCInterim {
				timer.Reset(f.timeout)
				continue
			}
			return resp, nil
		case <-timer.C:
			return nil, fmt.Errorf("fcp opcode 0x%02x: %w", cmd[2], ErrTimeout)
		case <-ctx.Done():
			return nil, fmt.Errorf("fcp: %w", ctx.Err())
		}
	}
}

// arm discards stale frames and starts accepting responses.
func (f *FCP) arm() error {
	f.rxMu.Lock()
	defer f.rxMu.Unlock()
	if f.closed {
		return ErrClosed
	}
drain:
	for {
		select {
		case <-f.frames:
		default:
			break drain
		}
	}
	f.waiting = true
	return nil
}

func (f *FCP) disarm() {
	f.rxMu.Lock()
	f.waiting = false
	f.rxMu.Unlock()
}

// Close stops listening on the FCP response register.
func (f *FCP) Close() error {
	f.rxMu.Lock()
	if f.closed {
		f.rxMu.Unlock()
		return nil
	}
	f.closed = true
	f.rxMu.Unlock()
	return f.claim.Release()
}

func (f *FCP) logFrame(dir log.Direction, cat log.Category, frame []byte) {
	data, truncated := log.Truncate(frame)
	ev := &log.VendorEvent{
		Protocol:  log.VendorFCP,
		Size:      len(frame),
		Data:      data,
		Truncated: truncated,
	}
	if dir == log.DirectionIn {
		code := uint32(wire.AVCResponseCode(frame))
		ev.Status = &code
	}
	f.s.Log(log.Event{Direction: dir, Layer: log.LayerBus, Category: cat, Vendor: ev})
}
