package transaction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fwctl/fwctl-go/pkg/hal"
	"github.com/fwctl/fwctl-go/pkg/quadlet"
	"github.com/fwctl/fwctl-go/pkg/unit"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

// DICE writes to a DICE unit and waits for the notification that
// acknowledges the write.
type DICE struct {
	s       *unit.Session
	timeout time.Duration
	stop    func()

	mu      sync.Mutex
	waiters map[*diceWaiter]struct{}
	closed  bool
}

type diceWaiter struct {
	bit uint32
	ch  chan uint32
}

// NewDICE binds a DICE helper to s. Sessions of other variants return
// ErrUnsupported.
func NewDICE(s *unit.Session, opts ...Option) (*DICE, error) {
	if s.Variant() != unit.VariantDICE {
		return nil, fmt.Errorf("dice: %w: %s", ErrUnsupported, s.Variant())
	}
	o := buildOptions(DefaultNotificationTimeout, opts)
	d := &DICE{
		s:       s,
		timeout: o.timeout,
		waiters: make(map[*diceWaiter]struct{}),
	}
	d.stop = s.Observe(d.observe)
	return d, nil
}

// Transact writes frame to addr, then waits until a notification with bit
// set arrives. A zero bit skips the wait.
func (d *DICE) Transact(ctx context.Context, addr uint64, frame quadlet.Frame, bit uint32) error {
	if len(frame) == 0 {
		return fmt.Errorf("dice 0x%012x: %w: empty frame", addr, ErrInvalidFrame)
	}

	// Register before writing; the notification may overtake the response.
	var w *diceWaiter
	if bit != 0 {
		w = &diceWaiter{bit: bit, ch: make(chan uint32, 1)}
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return ErrClosed
		}
		d.waiters[w] = struct{}{}
		d.mu.Unlock()
		defer d.forget(w)
	}

	_, err := request(ctx, d.s, d.timeout, "dice write", hal.Request{
		TCode:  wire.WriteCode(len(frame)),
		Offset: addr,
		Data:   frame.Bytes(),
	})
	if err != nil || w == nil {
		return err
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()
	select {
	case _, ok := <-w.ch:
		if !ok {
			return fmt.Errorf("dice 0x%012x: %w", addr, ErrClosed)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("dice 0x%012x bit 0x%08x: %w", addr, bit, ErrNotificationTimeout)
	case <-ctx.Done():
		return fmt.Errorf("dice 0x%012x: %w", addr, ctx.Err())
	}
}

func (d *DICE) forget(w *diceWaiter) {
	d.mu.Lock()
	delete(d.waiters, w)
	d.mu.Unlock()
}

func (d *DICE) observe(ev hal.Event) {
	if ev.Type != hal.EventDICENotification {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for w := range d.waiters {
		if ev.Notification&w.bit != 0 {
			delete(d.waiters, w)
			w.ch <- ev.Notification
		}
	}
}

// Close stops watching notifications. Waiting calls fail with ErrClosed.
func (d *DICE) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	waiters := d.waiters
	d.waiters = make(map[*diceWaiter]struct{})
	d.mu.Unlock()

	d.stop()
	for w := range waiters {
		close(w.ch)
	}
	return nil
}
