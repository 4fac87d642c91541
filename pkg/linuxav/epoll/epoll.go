//go:build linux

// Package epoll wraps the Linux epoll readiness-notification facility for
// use by single-goroutine event loops.
package epoll

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Readiness flags accepted by Add/Modify and reported in Event.Events.
const (
	In  = unix.EPOLLIN
	Out = unix.EPOLLOUT
	Pri = unix.EPOLLPRI
	Err = unix.EPOLLERR
	Hup = unix.EPOLLHUP
)

const maxEvents = 10

// Event is a single readiness notification.
type Event struct {
	Fd     int
	Events uint32
}

// Multiplexer owns one epoll instance.
type Multiplexer struct {
	fd int
}

// New creates an epoll instance with CLOEXEC set.
func New() (*Multiplexer, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &Multiplexer{fd: fd}, nil
}

// Add registers fd for the given readiness events.
func (m *Multiplexer) Add(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(m.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add fd %d: %w", fd, err)
	}
	return nil
}

// Modify changes the event set watched for fd. The UVC gadget driver does
// not reliably honor EPOLL_CTL_MOD, so this is implemented as DEL + ADD.
func (m *Multiplexer) Modify(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(m.fd, unix.EPOLL_CTL_DEL, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl del fd %d: %w", fd, err)
	}
	if err := unix.EpollCtl(m.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add fd %d: %w", fd, err)
	}
	return nil
}

// Remove deregisters fd.
func (m *Multiplexer) Remove(fd int) error {
	var ev unix.EpollEvent
	if err := unix.EpollCtl(m.fd, unix.EPOLL_CTL_DEL, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl del fd %d: %w", fd, err)
	}
	return nil
}

// Wait blocks for up to timeoutMs milliseconds and returns the ready events.
// A timeout yields an empty slice, not an error. EINTR is retried.
func (m *Multiplexer) Wait(timeoutMs int) ([]Event, error) {
	var buf [maxEvents]unix.EpollEvent
	for {
		n, err := unix.EpollWait(m.fd, buf[:], timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("epoll_wait: %w", err)
		}
		events := make([]Event, n)
		for i := 0; i < n; i++ {
			events[i] = Event{Fd: int(buf[i].Fd), Events: buf[i].Events}
		}
		return events, nil
	}
}

// Close releases the epoll instance.
func (m *Multiplexer) Close() error {
	return unix.Close(m.fd)
}
