//go:build linux

package gevent

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// createTimerFD creates a non-blocking CLOCK_MONOTONIC timerfd, armed to
// first expire after period. Persistent timers re-arm with the same
// interval, one-shot timers are disarmed after the first expiration.
func createTimerFD(period time.Duration, persistent bool) (int, error) {
	const op = "new timer event"

	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return -1, newError(op, resourceKind(err), fmt.Errorf("timerfd_create: %w", err))
	}

	its := unix.ItimerSpec{
		Value: unix.NsecToTimespec(int64(period)),
	}
	if persistent {
		its.Interval = its.Value
	}

	if err := unix.TimerfdSettime(fd, 0, &its, nil); err != nil {
		_ = unix.Close(fd)
		return -1, newError(op, KindResourceCreation, fmt.Errorf("timerfd_settime: %w", err))
	}

	return fd, nil
}

// drainTimerFD consumes the expiration counter, so level-triggered backends
// stop reporting the descriptor as readable.
func drainTimerFD(fd int) {
	var buf [8]byte
	_, _ = unix.Read(fd, buf[:])
}

// resourceKind maps descriptor creation failures onto the error taxonomy.
func resourceKind(err error) ErrorKind {
	switch err {
	case unix.ENOMEM, unix.EMFILE, unix.ENFILE:
		return KindAllocation
	default:
		return KindResourceCreation
	}
}
