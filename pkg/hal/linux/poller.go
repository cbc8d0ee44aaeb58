//go:build linux

package linux

import (
	"errors"

	"golang.org/x/sys/unix"
)

// maxEpollEvents bounds the events returned by one epoll_wait.
const maxEpollEvents = 4

// poller multiplexes the hwdep and cdev descriptors with epoll. An eventfd
// registered alongside them wakes a blocked wait.
type poller struct {
	epfd   int
	wakefd int
}

// readiness reports one ready descriptor.
type readiness struct {
	fd     int
	events uint32
}

// hangup returns true if the descriptor reported an error or hangup, which
// both drivers use to signal unit removal.
func (r readiness) hangup() bool {
	return r.events&(unix.EPOLLERR|unix.EPOLLHUP) != 0
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	p := &poller{epfd: epfd, wakefd: wakefd}
	if err := p.add(wakefd); err != nil {
		p.close()
		return nil, err
	}
	return p, nil
}

// add watches fd for input.
func (p *poller) add(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// wake interrupts a blocked wait.
func (p *poller) wake() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(p.wakefd, buf[:])
	if errors.Is(err, unix.EAGAIN) {
		return nil
	}
	return err
}

// wait blocks until a watched descriptor is ready or wake is called. The
// wake descriptor is drained and never reported; a wake-up alone returns an
// empty slice.
func (p *poller) wait(timeoutMs int) ([]readiness, error) {
	var events [maxEpollEvents]unix.EpollEvent
	for {
		n, err := unix.EpollWait(p.epfd, events[:], timeoutMs)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return nil, err
		}

		ready := make([]readiness, 0, n)
		for _, ev := range events[:n] {
			if int(ev.Fd) == p.wakefd {
				var buf [8]byte
				unix.Read(p.wakefd, buf[:])
				continue
			}
			ready = append(ready, readiness{fd: int(ev.Fd), events: ev.Events})
		}
		return ready, nil
	}
}

func (p *poller) close() error {
	err := unix.Close(p.wakefd)
	if cerr := unix.Close(p.epfd); err == nil {
		err = cerr
	}
	return err
}
