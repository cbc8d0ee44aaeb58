package sim

import (
	"context"
	"sync"

	"github.com/fwctl/fwctl-go/pkg/hal"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

// device is one open handle on a Unit.
//
// Lock order is Unit.mu before device.mu.
type device struct {
	unit *Unit

	mu           sync.Mutex
	queue        []hal.Event
	closed       bool
	disconnected bool
	signal       chan struct{}
}

func (d *device) push(ev hal.Event) {
	d.mu.Lock()
	if d.closed || d.disconnected {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, ev)
	d.mu.Unlock()
	d.wake()
}

func (d *device) disconnect() {
	d.mu.Lock()
	d.disconnected = true
	d.mu.Unlock()
	d.wake()
}

func (d *device) wake() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *device) state() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.closed:
		return hal.ErrClosed
	case d.disconnected:
		return hal.ErrDisconnected
	}
	return nil
}

// Info implements hal.Device.
func (d *device) Info() hal.Info {
	return d.unit.info
}

// Generation implements hal.Device.
func (d *device) Generation() (uint32, error) {
	if err := d.state(); err != nil {
		return 0, err
	}
	d.unit.mu.Lock()
	defer d.unit.mu.Unlock()
	return d.unit.generation, nil
}

// Lock implements hal.Device.
func (d *device) Lock() error {
	if err := d.state(); err != nil {
		return err
	}
	u := d.unit
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.streaming || u.lockOwner != nil {
		return hal.ErrBusy
	}
	u.lockOwner = d
	u.broadcast(hal.Event{Type: hal.EventLockStatus, Locked: true})
	return nil
}

// Unlock implements hal.Device.
func (d *device) Unlock() error {
	if err := d.state(); err != nil {
		return err
	}
	u := d.unit
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.lockOwner != d {
		return ErrNotLocked
	}
	u.lockOwner = nil
	u.broadcast(hal.Event{Type: hal.EventLockStatus, Locked: false})
	return nil
}

// NextEvent implements hal.Device.
func (d *device) NextEvent(ctx context.Context) (hal.Event, error) {
	for {
		d.mu.Lock()
		switch {
		case d.closed:
			d.mu.Unlock()
			return hal.Event{}, hal.ErrClosed
		case len(d.queue) > 0:
			ev := d.queue[0]
			d.queue = d.queue[1:]
			d.mu.Unlock()
			return ev, nil
		case d.disconnected:
			d.mu.Unlock()
			return hal.Event{}, hal.ErrDisconnected
		}
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return hal.Event{}, ctx.Err()
		case <-d.signal:
		}
	}
}

// SendRequest implements hal.Device.
func (d *device) SendRequest(req hal.Request) error {
	if err := d.state(); err != nil {
		return err
	}
	u := d.unit
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.silent {
		return nil
	}

	rcode, data, after := u.execute(req)
	d.push(hal.Event{
		Type:    hal.EventResponse,
		Closure: req.Closure,
		RCode:   rcode,
		Data:    data,
	})
	if after != nil {
		after()
	}
	return nil
}

// Allocate implements hal.Device. Windows in the FCP region may be shared;
// everywhere else a window must not overlap an existing one.
func (d *device) Allocate(offset, length, closure uint64) (uint32, error) {
	if err := d.state(); err != nil {
		return 0, err
	}
	if length == 0 || offset&wire.AddressMask != offset {
		return 0, hal.ErrRejected
	}
	u := d.unit
	u.mu.Lock()
	defer u.mu.Unlock()
	if !wire.IsFCPRegion(offset, length) {
		for _, a := range u.allocs {
			if wire.Overlaps(a.offset, a.length, offset, length) {
				return 0, hal.ErrRejected
			}
		}
	}
	u.nextHandle++
	a := &allocation{dev: d, handle: u.nextHandle, offset: offset, length: length, closure: closure}
	u.allocs = append(u.allocs, a)
	return a.handle, nil
}

// Deallocate implements hal.Device.
func (d *device) Deallocate(handle uint32) error {
	if err := d.state(); err != nil {
		return err
	}
	u := d.unit
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, a := range u.allocs {
		if a.dev == d && a.handle == handle {
			u.allocs = append(u.allocs[:i], u.allocs[i+1:]...)
			return nil
		}
	}
	return ErrUnknownHandle
}

// SendResponse implements hal.Device.
func (d *device) SendResponse(handle uint32, rcode wire.RCode, data []byte) error {
	if err := d.state(); err != nil {
		return err
	}
	u := d.unit
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.inflight[handle] != d {
		return ErrUnknownHandle
	}
	delete(u.inflight, handle)
	u.responses = append(u.responses, Response{
		Handle: handle,
		RCode:  rcode,
		Data:   append([]byte(nil), data...),
	})
	return nil
}

// ReleaseRequest implements hal.Device.
func (d *device) ReleaseRequest(handle uint32) error {
	if err := d.state(); err != nil {
		return err
	}
	u := d.unit
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.inflight[handle] != d {
		return ErrUnknownHandle
	}
	delete(u.inflight, handle)
	u.released = append(u.released, handle)
	return nil
}

// WriteVendor implements hal.Device.
func (d *device) WriteVendor(frame []byte) error {
	if err := d.state(); err != nil {
		return err
	}
	u := d.unit
	if u.info.Family != wire.FamilyFireworks {
		return hal.ErrNotSupported
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.silent {
		return nil
	}
	return u.efwRespond(d, frame)
}

// Close implements hal.Device.
func (d *device) Close() error {
	u := d.unit
	u.mu.Lock()
	defer u.mu.Unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.queue = nil
	d.mu.Unlock()
	d.wake()

	delete(u.devices, d)
	if u.lockOwner == d {
		u.lockOwner = nil
		u.broadcast(hal.Event{Type: hal.EventLockStatus, Locked: false})
	}
	kept := u.allocs[:0]
	for _, a := range u.allocs {
		if a.dev != d {
			kept = append(kept, a)
		}
	}
	u.allocs = kept
	for h, owner := range u.inflight {
		if owner == d {
			delete(u.inflight, h)
		}
	}
	return nil
}

var _ hal.Device = (*device)(nil)
