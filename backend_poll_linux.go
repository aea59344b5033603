//go:build linux

package gevent

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// pollBackend multiplexes using poll(2). The pollfd set is rebuilt from the
// table for every dispatch, so registration from another goroutine never
// mutates memory the kernel is reading.
type pollBackend struct {
	pfds   []unix.PollFd
	table  fdTable
	closed atomic.Bool
}

func (p *pollBackend) Init() error {
	if p.closed.Load() {
		return newError("poll init", KindState, ErrBaseClosed)
	}
	return nil
}

func (p *pollBackend) Deinit() error {
	p.closed.Store(true)
	p.pfds = nil
	return nil
}

func (p *pollBackend) Add(ev *Event) error {
	if p.closed.Load() {
		return newError("poll add", KindState, ErrBaseClosed)
	}
	if err := p.table.add(ev); err != nil {
		return registrationError("poll add", err)
	}
	return nil
}

func (p *pollBackend) Del(ev *Event) error {
	if err := p.table.remove(ev); err != nil {
		return registrationError("poll del", err)
	}
	return nil
}

func (p *pollBackend) Dispatch(timeout time.Duration) (int, error) {
	const op = "poll"
	if p.closed.Load() {
		return 0, closedBackendError(op)
	}

	p.pfds = p.pfds[:0]
	p.table.each(func(ev *Event) {
		p.pfds = append(p.pfds, unix.PollFd{
			Fd:     int32(ev.fd),
			Events: flagsToPoll(ev.flags),
		})
	})

	n, err := unix.Poll(p.pfds, timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, dispatchError(op, err)
	}

	var processed int
	for i := 0; i < len(p.pfds) && processed < n; i++ {
		pfd := p.pfds[i]
		if pfd.Revents == 0 {
			continue
		}
		processed++
		ev := p.table.lookup(int(pfd.Fd))
		if ev == nil {
			continue
		}
		ev.fire(pollToFlags(pfd.Revents, ev.flags))
		p.table.consume(ev)
	}

	return processed, nil
}

func flagsToPoll(flags Flags) int16 {
	var events int16
	if flags&FlagRead != 0 {
		events |= unix.POLLIN
	}
	if flags&FlagWrite != 0 {
		events |= unix.POLLOUT
	}
	if flags&FlagError != 0 {
		events |= unix.POLLRDHUP
	}
	return events
}

// pollToFlags converts revents to Flags. A hangup or error also reports
// whichever of read and write interest is registered, so those callbacks
// observe the EOF or failed write, as they would with select.
func pollToFlags(revents int16, registered Flags) Flags {
	var flags Flags
	if revents&unix.POLLIN != 0 {
		flags |= FlagRead
	}
	if revents&unix.POLLOUT != 0 {
		flags |= FlagWrite
	}
	if revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL|unix.POLLRDHUP) != 0 {
		flags |= FlagError | registered&(FlagRead|FlagWrite)
	}
	return flags
}
