// Package sim provides an in-memory FireWire audio unit implementing the
// hal interfaces.
//
// A Unit models one device: a quadlet memory map, the FCP registers with an
// optional AV/C responder, an optional Echo Fireworks responder on the hwdep
// node, DICE notifications triggered by writes, the ALSA streaming lock, and
// the kernel's address window allocation rules. Tests inject bus resets,
// notifications, inbound requests and hot-unplug, and inspect the responses
// the host sent.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fwctl/fwctl-go/pkg/hal"
	"github.com/fwctl/fwctl-go/pkg/quadlet"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

// Errors.
var (
	ErrNoUnit        = errors.New("no simulated unit at path")
	ErrNotLocked     = errors.New("streaming lock not held")
	ErrUnknownHandle = errors.New("unknown handle")
)

// LocalNodeID is the node ID reported in bus reset events.
const LocalNodeID = 0xffc0

// AVCHandler answers an AV/C command written to the FCP command register.
// Each returned frame is written back to the FCP response register in order,
// so an INTERIM response followed by the final one is two frames. Handlers
// run with the unit locked and must not call Unit methods.
type AVCHandler func(command []byte) [][]byte

// EFWHandler answers an EFW command. Handlers run with the unit locked and
// must not call Unit methods.
type EFWHandler func(category, command uint32, params quadlet.Frame) (wire.EFWStatus, quadlet.Frame)

// Response is an answer the host sent to an inbound request.
type Response struct {
	Handle uint32
	RCode  wire.RCode
	Data   []byte
}

// Driver opens simulated units by path.
type Driver struct {
	mu    sync.Mutex
	units map[string]*Unit
}

// NewDriver creates a Driver with no units attached.
func NewDriver() *Driver {
	return &Driver{units: make(map[string]*Unit)}
}

// Attach makes u reachable at path.
func (d *Driver) Attach(path string, u *Unit) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.units[path] = u
}

// Detach removes the unit at path. Open handles stay valid.
func (d *Driver) Detach(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.units, path)
}

// Paths returns the attached paths in no particular order.
func (d *Driver) Paths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	paths := make([]string, 0, len(d.units))
	for p := range d.units {
		paths = append(paths, p)
	}
	return paths
}

// Open implements hal.Driver.
func (d *Driver) Open(path string) (hal.Device, error) {
	d.mu.Lock()
	u, ok := d.units[path]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoUnit, path)
	}
	dev, err := u.open()
	if err != nil {
		return nil, err
	}
	return dev, nil
}

var _ hal.Driver = (*Driver)(nil)

type allocation struct {
	dev     *device
	handle  uint32
	offset  uint64
	length  uint64
	closure uint64
}

// Unit is a simulated FireWire audio unit.
type Unit struct {
	mu sync.Mutex

	info       hal.Info
	generation uint32
	memory     map[uint64]uint32
	faults     map[uint64]wire.RCode
	silent     bool

	streaming bool
	lockOwner *device

	avc    AVCHandler
	efw    EFWHandler
	notify map[uint64]uint32

	devices    map[*device]struct{}
	allocs     []*allocation
	nextHandle uint32
	inflight   map[uint32]*device
	responses  []Response
	released   []uint32
	opens      int

	disconnected bool
}

// NewUnit creates a unit with the given identity and an empty memory map.
func NewUnit(info hal.Info) *Unit {
	return &Unit{
		info:       info,
		generation: 1,
		memory:     make(map[uint64]uint32),
		faults:     make(map[uint64]wire.RCode),
		notify:     make(map[uint64]uint32),
		devices:    make(map[*device]struct{}),
		inflight:   make(map[uint32]*device),
	}
}

// Info returns the unit identity.
func (u *Unit) Info() hal.Info {
	return u.info
}

// SetQuadlet stores v at addr.
func (u *Unit) SetQuadlet(addr uint64, v uint32) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.memory[addr] = v
}

// Quadlet returns the value stored at addr.
func (u *Unit) Quadlet(addr uint64) (uint32, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	v, ok := u.memory[addr]
	return v, ok
}

// SetFault makes every request to addr fail with rcode.
func (u *Unit) SetFault(addr uint64, rcode wire.RCode) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.faults[addr] = rcode
}

// SetSilent stops the unit from answering requests, so they time out.
func (u *Unit) SetSilent(silent bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.silent = silent
}

// HandleAVC installs the AV/C responder.
func (u *Unit) HandleAVC(h AVCHandler) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.avc = h
}

// HandleEFW installs the EFW responder. Only units of the Fireworks family
// accept EFW frames.
func (u *Unit) HandleEFW(h EFWHandler) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.efw = h
}

// NotifyOnWrite makes every write to addr raise a DICE notification with bits.
func (u *Unit) NotifyOnWrite(addr uint64, bits uint32) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.notify[addr] = bits
}

// SetStreaming starts or stops kernel streaming and reports the lock change
// to every open handle.
func (u *Unit) SetStreaming(on bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.streaming = on
	u.broadcast(hal.Event{Type: hal.EventLockStatus, Locked: on})
}

// BusReset advances the bus generation and returns the new value.
func (u *Unit) BusReset() uint32 {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.generation++
	u.broadcast(hal.Event{Type: hal.EventBusReset, Generation: u.generation, NodeID: LocalNodeID})
	return u.generation
}

// Notify sends a DICE notification to every open handle.
func (u *Unit) Notify(bits uint32) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.broadcast(hal.Event{Type: hal.EventDICENotification, Notification: bits})
}

// InjectEFWResponse delivers raw EFW frames to every open handle as one
// hwdep event.
func (u *Unit) InjectEFWResponse(frames ...wire.EFWFrame) error {
	var data []byte
	for i := range frames {
		b, err := frames[i].Bytes()
		if err != nil {
			return err
		}
		data = append(data, b...)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.broadcast(hal.Event{Type: hal.EventEFWResponse, Data: data})
	return nil
}

// InjectRequest delivers an inbound request from the unit to every
// allocation covering it and returns the number of deliveries. A request
// outside all allocated windows is dropped, as the kernel answers it with
// an address error itself.
func (u *Unit) InjectRequest(tcode wire.TCode, offset uint64, data []byte) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.deliver(tcode, offset, data)
}

// Disconnect simulates hot-unplug. Every open handle reports
// hal.ErrDisconnected once its queued events are drained.
func (u *Unit) Disconnect() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.disconnected = true
	for d := range u.devices {
		d.disconnect()
	}
}

// Responses returns the responses the host sent to inbound requests.
func (u *Unit) Responses() []Response {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]Response(nil), u.responses...)
}

// Released returns the inbound request handles the host finished without a
// response.
func (u *Unit) Released() []uint32 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]uint32(nil), u.released...)
}

// OpenHandles returns the number of handles not yet closed.
func (u *Unit) OpenHandles() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.devices)
}

// Opens returns the number of times the unit was opened.
func (u *Unit) Opens() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.opens
}

// Allocations returns the number of address windows currently allocated.
func (u *Unit) Allocations() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.allocs)
}

func (u *Unit) open() (*device, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.disconnected {
		return nil, hal.ErrDisconnected
	}
	d := &device{unit: u, signal: make(chan struct{}, 1)}
	u.devices[d] = struct{}{}
	u.opens++
	return d, nil
}

func (u *Unit) broadcast(ev hal.Event) {
	for d := range u.devices {
		d.push(ev)
	}
}

func (u *Unit) deliver(tcode wire.TCode, offset uint64, data []byte) int {
	length := uint64(len(data))
	if length == 0 {
		length = quadlet.Size
	}
	n := 0
	for _, a := range u.allocs {
		if !wire.Contains(a.offset, a.length, offset, length) {
			continue
		}
		u.nextHandle++
		h := u.nextHandle
		u.inflight[h] = a.dev
		a.dev.push(hal.Event{
			Type:       hal.EventRequest,
			Generation: u.generation,
			NodeID:     LocalNodeID + 2,
			Closure:    a.closure,
			TCode:      tcode,
			Offset:     offset,
			Handle:     h,
			Data:       append([]byte(nil), data...),
		})
		n++
	}
	return n
}

// execute runs a request against the memory map and returns the response.
// Follow-up actions (FCP responses, notifications) are returned separately
// so they are queued after the response.
func (u *Unit) execute(req hal.Request) (wire.RCode, []byte, func()) {
	if req.Generation != u.generation {
		return wire.RCodeGeneration, nil, nil
	}
	if rc, ok := u.faults[req.Offset]; ok {
		return rc, nil, nil
	}

	switch {
	case req.TCode.IsRead():
		if req.Length <= 0 || req.Length%quadlet.Size != 0 {
			return wire.RCodeTypeError, nil, nil
		}
		f := make(quadlet.Frame, req.Length/quadlet.Size)
		for i := range f {
			v, ok := u.memory[req.Offset+uint64(i*quadlet.Size)]
			if !ok {
				return wire.RCodeAddressError, nil, nil
			}
			f[i] = v
		}
		return wire.RCodeComplete, f.Bytes(), nil

	case req.TCode.IsWrite():
		if req.Offset == wire.FCPCommandAddress {
			return wire.RCodeComplete, nil, u.fcp(req.Data)
		}
		f, err := quadlet.FromBytes(req.Data)
		if err != nil {
			return wire.RCodeDataError, nil, nil
		}
		for i, v := range f {
			u.memory[req.Offset+uint64(i*quadlet.Size)] = v
		}
		var after func()
		if bits, ok := u.notify[req.Offset]; ok {
			after = func() {
				u.broadcast(hal.Event{Type: hal.EventDICENotification, Notification: bits})
			}
		}
		return wire.RCodeComplete, nil, after

	case req.TCode == wire.TCodeLockCompareSwap:
		return u.compareSwap(req)

	default:
		return wire.RCodeTypeError, nil, nil
	}
}

func (u *Unit) fcp(command []byte) func() {
	if u.avc == nil || !u.info.Family.SupportsFCP() {
		return nil
	}
	frames := u.avc(append([]byte(nil), command...))
	return func() {
		for _, f := range frames {
			u.deliver(wire.WriteCode(len(f)/quadlet.Size), wire.FCPResponseAddress, f)
		}
	}
}

func (u *Unit) compareSwap(req hal.Request) (wire.RCode, []byte, func()) {
	ops, err := quadlet.FromBytes(req.Data)
	if err != nil || len(ops) == 0 || len(ops)%2 != 0 {
		return wire.RCodeDataError, nil, nil
	}
	n := len(ops) / 2
	arg, data := ops[:n], ops[n:]

	old := make(quadlet.Frame, n)
	match := true
	for i := range old {
		v, ok := u.memory[req.Offset+uint64(i*quadlet.Size)]
		if !ok {
			return wire.RCodeAddressError, nil, nil
		}
		old[i] = v
		if v != arg[i] {
			match = false
		}
	}
	if match {
		for i, v := range data {
			u.memory[req.Offset+uint64(i*quadlet.Size)] = v
		}
	}
	return wire.RCodeComplete, old.Bytes(), nil
}

func (u *Unit) efwRespond(d *device, frame []byte) error {
	frames, err := wire.ParseEFWFrames(frame)
	if err != nil {
		return err
	}
	if u.efw == nil {
		return nil
	}
	var data []byte
	for _, f := range frames {
		status, params := u.efw(f.Category, f.Command, f.Params.Clone())
		resp := wire.EFWFrame{
			Version:  f.Version,
			Seqnum:   f.Seqnum + 1,
			Category: f.Category,
			Command:  f.Command,
			Status:   status,
			Params:   params,
		}
		b, err := resp.Bytes()
		if err != nil {
			return err
		}
		data = append(data, b...)
	}
	d.push(hal.Event{Type: hal.EventEFWResponse, Data: data})
	return nil
}
