package transaction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fwctl/fwctl-go/pkg/hal"
	"github.com/fwctl/fwctl-go/pkg/log"
	"github.com/fwctl/fwctl-go/pkg/quadlet"
	"github.com/fwctl/fwctl-go/pkg/unit"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

// EFW runs Echo Fireworks commands over the hwdep node.
type EFW struct {
	s       *unit.Session
	timeout time.Duration
	stop    func()

	mu      sync.Mutex
	seqnum  uint32
	pending map[uint32]*efwWaiter
	closed  bool
}

type efwWaiter struct {
	category uint32
	command  uint32
	ch       chan wire.EFWFrame
}

// NewEFW binds an EFW helper to s. Sessions of other variants return
// ErrUnsupported.
func NewEFW(s *unit.Session, opts ...Option) (*EFW, error) {
	if s.Variant() != unit.VariantEFW {
		return nil, fmt.Errorf("efw: %w: %s", ErrUnsupported, s.Variant())
	}
	o := buildOptions(DefaultEFWTimeout, opts)
	e := &EFW{
		s:       s,
		timeout: o.timeout,
		pending: make(map[uint32]*efwWaiter),
	}
	e.stop = s.Observe(e.observe)
	return e, nil
}

// nextSeqnum returns the sequence number of the next command. Responses
// carry it plus one, so it advances by two and wraps before the range the
// kernel driver reserves.
func (e *EFW) nextSeqnum() uint32 {
	seq := e.seqnum
	e.seqnum += 2
	if e.seqnum > wire.EFWSeqnumMax {
		e.seqnum = 0
	}
	return seq
}

// Transact sends one command and returns the response parameters. A status
// other than OK yields *EFWStatusError.
func (e *EFW) Transact(ctx context.Context, category, command uint32, params quadlet.Frame) (quadlet.Frame, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	seq := e.nextSeqnum()
	w := &efwWaiter{category: category, command: command, ch: make(chan wire.EFWFrame, 1)}
	e.pending[seq+1] = w
	e.mu.Unlock()
	defer e.forget(seq + 1)

	req := wire.EFWFrame{
		Version:  wire.EFWVersion,
		Seqnum:   seq,
		Category: category,
		Command:  command,
		Status:   wire.EFWStatus(wire.EFWStatusUnset),
		Params:   params,
	}
	frame, err := req.Bytes()
	if err != nil {
		return nil, fmt.Errorf("efw %d/%d: %w", category, command, err)
	}

	e.logFrame(log.DirectionOut, log.CategoryRequest, &req, frame)
	if err := e.s.SendVendor(frame); err != nil {
		return nil, fmt.Errorf("efw %d/%d: %w", category, command, err)
	}

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	select {
	case resp, ok := <-w.ch:
		if !ok {
			return nil, fmt.Errorf("efw %d/%d: %w", category, command, ErrClosed)
		}
		if resp.Status != wire.EFWStatusOK {
			return nil, &EFWStatusError{Category: category, Command: command, Status: resp.Status}
		}
		return resp.Params, nil
	case <-timer.C:
		return nil, fmt.Errorf("efw %d/%d seqnum %d: %w", category, command, seq, ErrTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("efw %d/%d: %w", category, command, ctx.Err())
	}
}

func (e *EFW) forget(seq uint32) {
	e.mu.Lock()
	delete(e.pending, seq)
	e.mu.Unlock()
}

// observe runs on the session reader and completes waiting commands. One
// hwdep event may carry several response frames.
func (e *EFW) observe(ev hal.Event) {
	if ev.Type != hal.EventEFWResponse {
		return
	}
	frames, err := wire.ParseEFWFrames(ev.Data)
	if err != nil {
		e.s.Log(log.Event{
			Direction: log.DirectionIn,
			Layer:     log.LayerHwdep,
			Category:  log.CategoryError,
			Error:     &log.ErrorEventData{Layer: log.LayerHwdep, Message: err.Error(), Context: "parse efw response"},
		})
	}

	for i := range frames {
		resp := frames[i]
		raw, _ := resp.Bytes()
		e.logFrame(log.DirectionIn, log.CategoryResponse, &resp, raw)

		e.mu.Lock()
		w, ok := e.pending[resp.Seqnum]
		if ok && w.category == resp.Category && w.command == resp.Command {
			delete(e.pending, resp.Seqnum)
		} else {
			ok = false
		}
		e.mu.Unlock()
		if ok {
			w.ch <- resp
		}
	}
}

// Close stops matching responses. Waiting commands fail with ErrClosed.
func (e *EFW) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	pending := e.pending
	e.pending = make(map[uint32]*efwWaiter)
	e.mu.Unlock()

	e.stop()
	for _, w := range pending {
		close(w.ch)
	}
	return nil
}

func (e *EFW) logFrame(dir log.Direction, cat log.Category, f *wire.EFWFrame, raw []byte) {
	data, truncated := log.Truncate(raw)
	ev := &log.VendorEvent{
		Protocol:  log.VendorEFW,
		Seqnum:    f.Seqnum,
		Category:  f.Category,
		Command:   f.Command,
		Size:      len(raw),
		Data:      data,
		Truncated: truncated,
	}
	if dir == log.DirectionIn {
		status := uint32(f.Status)
		ev.Status = &status
	}
	e.s.Log(log.Event{Direction: dir, Layer: log.LayerHwdep, Category: cat, Vendor: ev})
}
