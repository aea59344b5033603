//go:build !linux

package gevent

import (
	"time"
)

// DefaultBackend is the backend used when none is configured. No backend is
// implemented for this platform, see Backends.
const DefaultBackend = BackendSelect

func newBackend(kind BackendKind) (Backend, error) {
	return nil, newError("new backend "+kind.String(), KindState, ErrNotSupported)
}

func availableBackends() []BackendKind { return nil }

func createTimerFD(time.Duration, bool) (int, error) {
	return -1, newError("new timer event", KindResourceCreation, ErrNotSupported)
}

func drainTimerFD(int) {}

func createWakePipe() (int, int, error) {
	return -1, -1, newError("new base", KindResourceCreation, ErrNotSupported)
}

func writeWake(int) error { return ErrNotSupported }

func drainWake(int) {}

func closeFD(int) error { return nil }
