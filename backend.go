package gevent

import (
	"time"
)

// Backend is the capability set of one readiness multiplexing mechanism.
//
// A Backend instance serves exactly one Base, which calls Init once, before
// any other method, and Deinit once, during Base.Destroy.
//
// Implementations must not panic on bad input: Add of an already registered
// descriptor, or Del of an unknown one, return an error. Dispatch blocks
// until at least one registered descriptor is ready (the Base's wake pipe
// is always registered), or until timeout elapses (timeout < 0 blocks
// indefinitely), invokes the callbacks of each ready event, then returns the
// number of events processed. Events without FlagPersist are removed after
// their callback ran.
//
// Dispatch failures should be returned as *Error values of kind
// KindBackendDispatch, with Fatal set for unrecoverable conditions (e.g.
// EBADF on the multiplexer itself).
type Backend interface {
	Init() error
	Add(ev *Event) error
	Del(ev *Event) error
	Dispatch(timeout time.Duration) (int, error)
	Deinit() error
}

// BackendKind identifies one of the built-in backends.
type BackendKind uint8

const (
	BackendSelect BackendKind = iota
	BackendPoll
	BackendEpoll
	BackendIOCP
)

// String returns the name of the backend.
func (k BackendKind) String() string {
	switch k {
	case BackendSelect:
		return "select"
	case BackendPoll:
		return "poll"
	case BackendEpoll:
		return "epoll"
	case BackendIOCP:
		return "iocp"
	default:
		return "unknown"
	}
}

// ParseBackendKind returns the BackendKind for name, as returned by
// BackendKind.String.
func ParseBackendKind(name string) (BackendKind, bool) {
	for _, k := range [...]BackendKind{BackendSelect, BackendPoll, BackendEpoll, BackendIOCP} {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

// Backends lists the built-in backends available on this platform.
func Backends() []BackendKind {
	return availableBackends()
}

// timeoutMillis converts a dispatch timeout to poll(2) style milliseconds,
// rounding sub-millisecond timeouts up so they don't degrade to a busy poll.
func timeoutMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		ms++
	}
	if ms > 1<<31-1 {
		ms = 1<<31 - 1
	}
	return int(ms)
}
