//go:build linux

package gevent

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DefaultBackend is the backend used when none is configured.
const DefaultBackend = BackendEpoll

func availableBackends() []BackendKind {
	return []BackendKind{BackendSelect, BackendPoll, BackendEpoll}
}

func newBackend(kind BackendKind) (Backend, error) {
	switch kind {
	case BackendSelect:
		return new(selectBackend), nil
	case BackendPoll:
		return new(pollBackend), nil
	case BackendEpoll:
		return new(epollBackend), nil
	default:
		return nil, newError("new backend "+kind.String(), KindState, ErrNotSupported)
	}
}

// dispatchError wraps a multiplexing syscall failure. Errors indicating the
// multiplexer or the descriptor sets are no longer valid are fatal.
func dispatchError(op string, err error) error {
	e := newError(op, KindBackendDispatch, fmt.Errorf("%s: %w", op, err))
	switch err {
	case unix.EBADF, unix.EINVAL, unix.EFAULT:
		e.Fatal = true
	}
	return e
}

func closedBackendError(op string) error {
	return &Error{Op: op, Kind: KindBackendDispatch, Fatal: true, Err: ErrBaseClosed}
}

func registrationError(op string, err error) error {
	return newError(op, KindInvalidArgument, err)
}
