//go:build linux

package gevent

import (
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// selectSetSize is FD_SETSIZE, the number of bits in an fd_set.
const selectSetSize = int(unsafe.Sizeof(unix.FdSet{}) * 8)

// selectBackend multiplexes using select(2). Descriptors >= FD_SETSIZE are
// rejected at registration.
//
// select(2) reports a hangup or error as readability or writability, so a
// ready descriptor whose event has FlagError is checked with hungUp. An
// event registered for FlagError alone is only watched via exceptfds, and
// does not observe a hangup.
type selectBackend struct {
	fds    []int
	table  fdTable
	closed atomic.Bool
}

func (p *selectBackend) Init() error {
	if p.closed.Load() {
		return newError("select init", KindState, ErrBaseClosed)
	}
	return nil
}

func (p *selectBackend) Deinit() error {
	p.closed.Store(true)
	p.fds = nil
	return nil
}

func (p *selectBackend) Add(ev *Event) error {
	if p.closed.Load() {
		return newError("select add", KindState, ErrBaseClosed)
	}
	if ev.fd >= selectSetSize {
		return registrationError("select add", ErrFDOutOfRange)
	}
	if err := p.table.add(ev); err != nil {
		return registrationError("select add", err)
	}
	return nil
}

func (p *selectBackend) Del(ev *Event) error {
	if err := p.table.remove(ev); err != nil {
		return registrationError("select del", err)
	}
	return nil
}

func (p *selectBackend) Dispatch(timeout time.Duration) (int, error) {
	const op = "select"
	if p.closed.Load() {
		return 0, closedBackendError(op)
	}

	var rset, wset, eset unix.FdSet
	maxFD := -1
	p.fds = p.fds[:0]
	p.table.each(func(ev *Event) {
		if ev.flags&FlagRead != 0 {
			rset.Set(ev.fd)
		}
		if ev.flags&FlagWrite != 0 {
			wset.Set(ev.fd)
		}
		if ev.flags&FlagError != 0 {
			eset.Set(ev.fd)
		}
		maxFD = max(maxFD, ev.fd)
		p.fds = append(p.fds, ev.fd)
	})

	var tv *unix.Timeval
	if timeout >= 0 {
		t := unix.NsecToTimeval(int64(timeout))
		tv = &t
	}

	n, err := unix.Select(maxFD+1, &rset, &wset, &eset, tv)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, dispatchError(op, err)
	}

	var processed int
	for _, fd := range p.fds {
		if processed >= n {
			break
		}
		var ready Flags
		if rset.IsSet(fd) {
			ready |= FlagRead
		}
		if wset.IsSet(fd) {
			ready |= FlagWrite
		}
		if eset.IsSet(fd) {
			ready |= FlagError
		}
		if ready == 0 {
			continue
		}
		processed++
		ev := p.table.lookup(fd)
		if ev == nil {
			continue
		}
		if ready&FlagError == 0 && ev.flags&FlagError != 0 && hungUp(fd) {
			ready |= FlagError
		}
		ev.fire(ready)
		p.table.consume(ev)
	}

	return processed, nil
}

// hungUp reports whether fd has a pending hangup or error condition.
func hungUp(fd int) bool {
	pfd := [1]unix.PollFd{{Fd: int32(fd), Events: unix.POLLRDHUP}}
	n, err := unix.Poll(pfd[:], 0)
	return err == nil && n > 0 &&
		pfd[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL|unix.POLLRDHUP) != 0
}
