//go:build linux

package gevent

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// createWakePipe creates the self-pipe used to interrupt a blocking
// dispatch. Both ends are non-blocking: a drain never stalls on a spurious
// byte, and a signal never stalls on a full pipe.
func createWakePipe() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, newError("new base", resourceKind(err), fmt.Errorf("pipe: %w", err))
	}
	return fds[0], fds[1], nil
}

// writeWake writes one byte to the write end. A full pipe already
// guarantees a pending wakeup, so EAGAIN is not an error.
func writeWake(fd int) error {
	buf := [1]byte{0}
	for {
		_, err := unix.Write(fd, buf[:])
		switch err {
		case nil, unix.EAGAIN:
			return nil
		case unix.EINTR:
			continue
		default:
			return err
		}
	}
}

// drainWake empties the read end.
func drainWake(fd int) {
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil || n < len(buf) {
			return
		}
	}
}

func closeFD(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}
