//go:build linux

package poller

import (
	"golang.org/x/sys/unix"
)

// epollRDHUP lets the poller surface peer shutdown as a readable event so
// the worker observes the close instead of waiting for a timeout.
const epollRDHUP = unix.EPOLLRDHUP

// EpollPoller is an epoll-based I/O multiplexer (one instance per worker)
type EpollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

// NewPoller creates a new Poller (Linux)
func NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	return &EpollPoller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, 1024),
	}, nil
}

// Add adds a file descriptor to the watch list.
// Level-triggered on purpose: a worker that could not drain a socket in one
// pass gets woken again, which keeps the connection loop simple.
func (p *EpollPoller) Add(fd int) error {
	ev := unix.EpollEvent{
		Events: uint32(unix.EPOLLIN) | uint32(epollRDHUP),
		Fd:     int32(fd),
	}

	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Remove removes a file descriptor from the watch list
func (p *EpollPoller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait waits up to timeout milliseconds for I/O events
func (p *EpollPoller) Wait(timeout int) ([]int, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeout)
	if err != nil && err != unix.EINTR {
		return nil, err
	}

	if n <= 0 {
		return nil, nil
	}

	fds := make([]int, 0, n)
	for i := 0; i < n; i++ {
		fds = append(fds, int(p.events[i].Fd))
	}

	return fds, nil
}

// Close closes the Poller
func (p *EpollPoller) Close() error {
	return unix.Close(p.epfd)
}
