//go:build linux

package gevent

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// epollBackend multiplexes using epoll(7), level triggered.
type epollBackend struct { // betteralign:ignore
	eventBuf [256]unix.EpollEvent // preallocated, only touched by Dispatch
	table    fdTable
	epfd     int
	closed   atomic.Bool
}

// Init initializes the epoll instance.
func (p *epollBackend) Init() error {
	if p.closed.Load() {
		return newError("epoll init", KindState, ErrBaseClosed)
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return newError("epoll init", resourceKind(err), err)
	}
	p.epfd = epfd
	return nil
}

// Deinit closes the epoll instance.
func (p *epollBackend) Deinit() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(p.epfd)
}

// Add registers the event's descriptor, rolling back the table entry if the
// kernel rejects it.
func (p *epollBackend) Add(ev *Event) error {
	const op = "epoll add"
	if p.closed.Load() {
		return newError(op, KindState, ErrBaseClosed)
	}
	if err := p.table.add(ev); err != nil {
		return registrationError(op, err)
	}
	e := unix.EpollEvent{
		Events: flagsToEpoll(ev.flags),
		Fd:     int32(ev.fd),
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, ev.fd, &e); err != nil {
		_ = p.table.remove(ev)
		return registrationError(op, err)
	}
	return nil
}

// Del unregisters the event's descriptor.
//
// Del does NOT cancel a callback that is already executing, and the caller
// must not close the descriptor until Del has returned.
func (p *epollBackend) Del(ev *Event) error {
	const op = "epoll del"
	if err := p.table.remove(ev); err != nil {
		return registrationError(op, err)
	}
	if p.closed.Load() {
		return nil
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, ev.fd, nil); err != nil && err != unix.EBADF && err != unix.ENOENT {
		return registrationError(op, err)
	}
	return nil
}

// Dispatch waits for readiness then invokes callbacks inline.
func (p *epollBackend) Dispatch(timeout time.Duration) (int, error) {
	const op = "epoll_wait"
	if p.closed.Load() {
		return 0, closedBackendError(op)
	}

	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, dispatchError(op, err)
	}

	for i := 0; i < n; i++ {
		raw := p.eventBuf[i]
		// callbacks may have removed the event in the meantime
		ev := p.table.lookup(int(raw.Fd))
		if ev == nil {
			continue
		}
		ev.fire(epollToFlags(raw.Events, ev.flags))
		if p.table.consume(ev) {
			_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, ev.fd, nil)
		}
	}

	return n, nil
}

// flagsToEpoll converts Flags to epoll event flags. EPOLLERR and EPOLLHUP
// are always reported by the kernel. Non-persistent events use
// EPOLLONESHOT, so they are never reported twice.
func flagsToEpoll(flags Flags) uint32 {
	var events uint32
	if flags&FlagRead != 0 {
		events |= unix.EPOLLIN
	}
	if flags&FlagWrite != 0 {
		events |= unix.EPOLLOUT
	}
	if flags&FlagError != 0 {
		events |= unix.EPOLLRDHUP
	}
	if flags&FlagPersist == 0 {
		events |= unix.EPOLLONESHOT
	}
	return events
}

// epollToFlags converts epoll event flags to Flags. As with pollToFlags, a
// hangup or error also reports the registered read and write interest.
func epollToFlags(events uint32, registered Flags) Flags {
	var flags Flags
	if events&unix.EPOLLIN != 0 {
		flags |= FlagRead
	}
	if events&unix.EPOLLOUT != 0 {
		flags |= FlagWrite
	}
	if events&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		flags |= FlagError | registered&(FlagRead|FlagWrite)
	}
	return flags
}
