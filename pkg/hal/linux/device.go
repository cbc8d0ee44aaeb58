//go:build linux

package linux

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/fwctl/fwctl-go/pkg/hal"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

// Buffer sizes for event reads.
const (
	hwdepReadSize = 4096
	cdevReadSize  = 16384
)

// DevDir is the directory holding firewire character devices.
const DevDir = "/dev"

// Driver opens ALSA FireWire hwdep nodes.
type Driver struct{}

// NewDriver creates a Driver.
func NewDriver() *Driver {
	return &Driver{}
}

// Open implements hal.Driver.
func (*Driver) Open(path string) (hal.Device, error) {
	d, err := open(path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

var _ hal.Driver = (*Driver)(nil)

type device struct {
	info    hal.Info
	hwdepfd int
	cdevfd  int
	poll    *poller

	// readMu serializes NextEvent and keeps Close from closing descriptors
	// under a blocked wait.
	readMu sync.Mutex
	queue  []hal.Event
	hwBuf  []byte
	cdBuf  []byte

	mu     sync.Mutex
	closed bool
}

func open(path string) (_ *device, err error) {
	hwdepfd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			unix.Close(hwdepfd)
		}
	}()

	var gi sndFirewireGetInfo
	if err := ioctl(hwdepfd, ioctlSndFirewireGetInfo, unsafe.Pointer(&gi)); err != nil {
		return nil, fmt.Errorf("%s: get info: %w", path, err)
	}
	info := infoFromHwdep(&gi)
	if info.Device == "" {
		return nil, fmt.Errorf("%s: no firewire character device", path)
	}

	cdevPath := filepath.Join(DevDir, info.Device)
	cdevfd, err := unix.Open(cdevPath, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cdevPath, err)
	}
	defer func() {
		if err != nil {
			unix.Close(cdevfd)
		}
	}()

	// The first GET_INFO fixes the ABI version for the client.
	ci := fwCdevGetInfo{version: fwCdevVersion}
	if err := ioctl(cdevfd, ioctlFwCdevGetInfo, unsafe.Pointer(&ci)); err != nil {
		return nil, fmt.Errorf("%s: get info: %w", cdevPath, err)
	}

	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	if err := p.add(hwdepfd); err != nil {
		p.close()
		return nil, err
	}
	if err := p.add(cdevfd); err != nil {
		p.close()
		return nil, err
	}

	return &device{
		info:    info,
		hwdepfd: hwdepfd,
		cdevfd:  cdevfd,
		poll:    p,
		hwBuf:   make([]byte, hwdepReadSize),
		cdBuf:   make([]byte, cdevReadSize),
	}, nil
}

func ioctl(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func (d *device) check() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return hal.ErrClosed
	}
	return nil
}

// mapErrno converts errno values the drivers use for unit removal.
func mapErrno(err error) error {
	switch {
	case errors.Is(err, unix.ENODEV), errors.Is(err, unix.ENOENT):
		return fmt.Errorf("%w: %v", hal.ErrDisconnected, err)
	case errors.Is(err, unix.EBADF):
		return hal.ErrClosed
	}
	return err
}

// Info implements hal.Device.
func (d *device) Info() hal.Info {
	return d.info
}

// Generation implements hal.Device.
func (d *device) Generation() (uint32, error) {
	if err := d.check(); err != nil {
		return 0, err
	}
	// The kernel writes through busReset, which it gets as an integer, so the
	// buffer lives on the heap where the stack cannot move it.
	reset := new([busResetSize + 4]byte)
	ci := fwCdevGetInfo{
		version:  fwCdevVersion,
		busReset: uint64(uintptr(unsafe.Pointer(&reset[0]))),
	}
	err := ioctl(d.cdevfd, ioctlFwCdevGetInfo, unsafe.Pointer(&ci))
	runtime.KeepAlive(reset)
	if err != nil {
		return 0, mapErrno(err)
	}
	ev, ok, err := decodeCdevEvent(reset[:])
	if err != nil {
		return 0, fmt.Errorf("bus state: %w", err)
	}
	if !ok || ev.Type != hal.EventBusReset {
		return 0, errors.New("bus state unavailable")
	}
	return ev.Generation, nil
}

// Lock implements hal.Device.
func (d *device) Lock() error {
	if err := d.check(); err != nil {
		return err
	}
	if err := ioctl(d.hwdepfd, ioctlSndFirewireLock, nil); err != nil {
		if errors.Is(err, unix.EBUSY) {
			return hal.ErrBusy
		}
		return mapErrno(err)
	}
	return nil
}

// Unlock implements hal.Device.
func (d *device) Unlock() error {
	if err := d.check(); err != nil {
		return err
	}
	return mapErrno(ioctl(d.hwdepfd, ioctlSndFirewireUnlock, nil))
}

// NextEvent implements hal.Device.
func (d *device) NextEvent(ctx context.Context) (hal.Event, error) {
	d.readMu.Lock()
	defer d.readMu.Unlock()

	stop := context.AfterFunc(ctx, func() { d.poll.wake() })
	defer stop()

	for {
		if err := d.check(); err != nil {
			return hal.Event{}, err
		}
		if len(d.queue) > 0 {
			ev := d.queue[0]
			d.queue = d.queue[1:]
			return ev, nil
		}
		if err := ctx.Err(); err != nil {
			return hal.Event{}, err
		}

		ready, err := d.poll.wait(-1)
		if err != nil {
			return hal.Event{}, mapErrno(err)
		}
		for _, r := range ready {
			if err := d.drain(r); err != nil {
				return hal.Event{}, err
			}
		}
	}
}

// drain reads every pending event from a ready descriptor into the queue.
func (d *device) drain(r readiness) error {
	fd, buf, decode := d.cdevfd, d.cdBuf, decodeCdevEvent
	if r.fd == d.hwdepfd {
		fd, buf, decode = d.hwdepfd, d.hwBuf, decodeHwdepEvent
	}

	for {
		n, err := unix.Read(fd, buf)
		if errors.Is(err, unix.EAGAIN) {
			break
		}
		if err != nil {
			return mapErrno(err)
		}
		if n == 0 {
			break
		}
		ev, ok, err := decode(buf[:n])
		if err != nil {
			return err
		}
		if ok {
			d.queue = append(d.queue, ev)
		}
	}

	if r.hangup() && len(d.queue) == 0 {
		return hal.ErrDisconnected
	}
	return nil
}

// SendRequest implements hal.Device.
func (d *device) SendRequest(req hal.Request) error {
	if err := d.check(); err != nil {
		return err
	}
	length := len(req.Data)
	if req.TCode.IsRead() {
		length = req.Length
	}
	sr := fwCdevSendRequest{
		tcode:      uint32(req.TCode),
		length:     uint32(length),
		offset:     req.Offset & wire.AddressMask,
		closure:    req.Closure,
		generation: req.Generation,
	}
	if len(req.Data) > 0 {
		sr.data = uint64(uintptr(unsafe.Pointer(&req.Data[0])))
	}
	err := ioctl(d.cdevfd, ioctlFwCdevSendRequest, unsafe.Pointer(&sr))
	runtime.KeepAlive(req.Data)
	return mapErrno(err)
}

// Allocate implements hal.Device.
func (d *device) Allocate(offset, length, closure uint64) (uint32, error) {
	if err := d.check(); err != nil {
		return 0, err
	}
	a := fwCdevAllocate{
		offset:    offset,
		closure:   closure,
		length:    uint32(length),
		regionEnd: offset + length,
	}
	if err := ioctl(d.cdevfd, ioctlFwCdevAllocate, unsafe.Pointer(&a)); err != nil {
		if errors.Is(err, unix.EBUSY) || errors.Is(err, unix.EINVAL) {
			return 0, fmt.Errorf("%w: %v", hal.ErrRejected, err)
		}
		return 0, mapErrno(err)
	}
	return a.handle, nil
}

// Deallocate implements hal.Device.
func (d *device) Deallocate(handle uint32) error {
	if err := d.check(); err != nil {
		return err
	}
	da := fwCdevDeallocate{handle: handle}
	return mapErrno(ioctl(d.cdevfd, ioctlFwCdevDeallocate, unsafe.Pointer(&da)))
}

// SendResponse implements hal.Device.
func (d *device) SendResponse(handle uint32, rcode wire.RCode, data []byte) error {
	if err := d.check(); err != nil {
		return err
	}
	sr := fwCdevSendResponse{
		rcode:  uint32(rcode),
		length: uint32(len(data)),
		handle: handle,
	}
	if len(data) > 0 {
		sr.data = uint64(uintptr(unsafe.Pointer(&data[0])))
	}
	err := ioctl(d.cdevfd, ioctlFwCdevSendResponse, unsafe.Pointer(&sr))
	runtime.KeepAlive(data)
	return mapErrno(err)
}

// ReleaseRequest implements hal.Device. The kernel keeps every inbound
// request until the client answers it, so the request is completed with an
// empty response. Inside the FCP region the kernel sends no packet for it.
func (d *device) ReleaseRequest(handle uint32) error {
	return d.SendResponse(handle, wire.RCodeComplete, nil)
}

// WriteVendor implements hal.Device.
func (d *device) WriteVendor(frame []byte) error {
	if err := d.check(); err != nil {
		return err
	}
	n, err := unix.Write(d.hwdepfd, frame)
	if err != nil {
		if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENXIO) {
			return fmt.Errorf("%w: %v", hal.ErrNotSupported, err)
		}
		return mapErrno(err)
	}
	if n != len(frame) {
		return fmt.Errorf("short hwdep write: %d of %d bytes", n, len(frame))
	}
	return nil
}

// Close implements hal.Device.
func (d *device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.poll.wake()
	d.readMu.Lock()
	defer d.readMu.Unlock()

	err := d.poll.close()
	if cerr := unix.Close(d.cdevfd); err == nil {
		err = cerr
	}
	if cerr := unix.Close(d.hwdepfd); err == nil {
		err = cerr
	}
	d.queue = nil
	return err
}

var _ hal.Device = (*device)(nil)
